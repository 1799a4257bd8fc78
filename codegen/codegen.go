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

// Package codegen lowers a graph of array expressions into a kernel.
//
// Nodes are lowered bottom-up. Every node is lowered once per call into
// either a kernel variable (StoredResult) or a scalar expression inlined
// where the node is used (InlinedResult). Matrix products, stacks, and
// concatenations are stored in temporaries. Outputs are stored in output
// arguments.
package codegen

import (
	"github.com/pkg/errors"
	"github.com/gx-org/gxlower/array"
	gxfmt "github.com/gx-org/gxlower/base/fmt"
	"github.com/gx-org/gxlower/kernel"
	"github.com/gx-org/gxlower/kernel/exec"
	"golang.org/x/exp/maps"
)

// DefaultOutputName is the name of the output when lowering a single array.
const DefaultOutputName = "_pt_out"

// Program is a kernel bound to the host data of its data wrappers.
type Program struct {
	Kernel *kernel.Kernel
	// BoundArguments maps the names of data wrappers to their data.
	BoundArguments map[string]*array.Data
	// Outputs are the names of the output arguments of the kernel.
	Outputs []string
}

// Run executes the program on the host.
// Inputs provide the values of placeholders and size parameters.
func (p *Program) Run(inputs map[string]*array.Data) (map[string]*array.Data, error) {
	all := maps.Clone(p.BoundArguments)
	if all == nil {
		all = make(map[string]*array.Data)
	}
	for name, data := range inputs {
		if _, bound := all[name]; bound {
			return nil, errors.Errorf("argument %s is already bound", name)
		}
		all[name] = data
	}
	return exec.Run(p.Kernel, all)
}

// GenerateKernel lowers a set of named outputs into a kernel.
// Every output is stored in an output argument with the same name.
func GenerateKernel(outputs *array.DictOfNamedArrays, opts ...Option) (*Program, error) {
	o, err := processOptions(opts)
	if err != nil {
		return nil, err
	}
	ns, err := outputs.Namespace()
	if err != nil {
		return nil, err
	}
	state := newState(ns, kernel.New(o.kernelName), o)
	for name := range ns.Items().Keys() {
		state.VarNames.Register(name)
	}
	for _, name := range outputs.Names() {
		if state.VarNames.IsTaken(name) {
			return nil, errors.Errorf("output %s has the same name as an input", name)
		}
		state.VarNames.Register(name)
	}

	for name, a := range ns.Items().Iter() {
		if _, err := state.Lower(a); err != nil {
			return nil, errors.Wrapf(err, "cannot lower input %s", name)
		}
	}
	for name, a := range outputs.Iter() {
		r, err := state.Lower(a)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot lower output %s", name)
		}
		if _, err := AddStore(name, a, r, state, false); err != nil {
			return nil, errors.Wrapf(err, "cannot store output %s", name)
		}
	}

	k := state.Kernel()
	if o.validate {
		if err := k.Validate(); err != nil {
			return nil, errors.Wrapf(err, "invalid kernel generated:\n%s\n", gxfmt.Number(k.String()))
		}
	}
	bound := make(map[string]*array.Data)
	for name, a := range ns.Items().Iter() {
		if wrapper, ok := a.(*array.DataWrapper); ok {
			bound[name] = wrapper.Data
		}
	}
	return &Program{
		Kernel:         k,
		BoundArguments: bound,
		Outputs:        outputs.Names(),
	}, nil
}

// GenerateKernelForArray lowers a single array into a kernel.
// The array is stored in an output argument named DefaultOutputName.
func GenerateKernelForArray(a array.Array, opts ...Option) (*Program, error) {
	outputs, err := array.DictOf(DefaultOutputName, a)
	if err != nil {
		return nil, err
	}
	return GenerateKernel(outputs, opts...)
}
