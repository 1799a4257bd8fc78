// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kernel

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/gx-org/gxlower/scalar"
)

type validator struct {
	k    *Kernel
	errs error
}

func (v *validator) append(format string, args ...any) {
	v.errs = multierr.Append(v.errs, errors.Errorf(format, args...))
}

func (v *validator) checkNames() map[string]bool {
	defined := make(map[string]bool)
	for _, arg := range v.k.args.items() {
		if defined[arg.ArgName()] {
			v.append("argument %s defined more than once", arg.ArgName())
		}
		defined[arg.ArgName()] = true
	}
	temps := make(map[string]bool)
	for _, temp := range v.k.temporaries.items() {
		switch {
		case temps[temp.Name]:
			v.append("temporary %s defined more than once", temp.Name)
		case defined[temp.Name]:
			v.append("temporary %s has the same name as an argument", temp.Name)
		}
		temps[temp.Name] = true
		defined[temp.Name] = true
	}
	return defined
}

func (v *validator) checkDomains() {
	for _, dom := range v.k.domains.items() {
		for _, param := range dom.Params() {
			arg, ok := v.k.Arg(param)
			if !ok {
				v.append("parameter %s of domain %s is not an argument", param, dom)
				continue
			}
			if _, ok := arg.(*ValueArg); !ok {
				v.append("parameter %s of domain %s is not a value argument", param, dom)
			}
		}
	}
}

func reductionInames(x scalar.Expr) []string {
	var inames []string
	// The function never fails.
	_, _ = scalar.Map(x, func(x scalar.Expr) (scalar.Expr, bool, error) {
		if red, ok := x.(scalar.Reduce); ok {
			inames = append(inames, red.Inames...)
		}
		return x, false, nil
	})
	return inames
}

func (v *validator) checkInstruction(insn *Assignment, ids map[string]bool, defined map[string]bool) {
	for _, dep := range insn.DependsOn {
		if !ids[dep] {
			v.append("instruction %s depends on unknown instruction %s", insn.ID, dep)
		}
	}
	assignee := insn.AssigneeName()
	if _, isTemp := v.k.Temporary(assignee); !isTemp {
		arg, ok := v.k.Arg(assignee)
		if global, isGlobal := arg.(*GlobalArg); !ok || !isGlobal || !global.IsOutput {
			v.append("instruction %s assigns %s which is neither a temporary nor an output argument", insn.ID, assignee)
		}
	}
	inames := append(append([]string{}, insn.WithinInames...), reductionInames(insn.Expr)...)
	dom, ok := v.k.DomainFor(inames)
	if !ok {
		v.append("instruction %s: no domain for index variables %v", insn.ID, inames)
	}
	local := make(map[string]bool)
	for _, iname := range insn.WithinInames {
		local[iname] = true
	}
	for _, x := range []scalar.Expr{insn.Assignee, insn.Expr} {
		for _, name := range scalar.FreeVariables(x) {
			if defined[name] || local[name] {
				continue
			}
			if dom != nil && dom.Has(name) {
				continue
			}
			v.append("instruction %s: undefined variable %s", insn.ID, name)
		}
	}
}

// Validate checks that the kernel is well formed and returns all the
// problems it finds.
func (k *Kernel) Validate() error {
	v := &validator{k: k}
	defined := v.checkNames()
	v.checkDomains()
	ids := make(map[string]bool)
	for _, insn := range k.insns.items() {
		if ids[insn.ID] {
			v.append("instruction identifier %s used more than once", insn.ID)
		}
		ids[insn.ID] = true
	}
	for _, insn := range k.insns.items() {
		v.checkInstruction(insn, ids, defined)
	}
	return v.errs
}
