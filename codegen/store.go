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

package codegen

import (
	"fmt"

	"github.com/gx-org/gxlower/array"
	"github.com/gx-org/gxlower/base/ordered"
	"github.com/gx-org/gxlower/domain"
	"github.com/gx-org/gxlower/kernel"
	"github.com/gx-org/gxlower/scalar"
)

// dim returns the scalar expression of the length of an axis.
// Symbolic lengths are lowered and must not depend on instructions
// or reduction variables.
func (s *State) dim(a array.Array, axis int) (scalar.Expr, error) {
	dim := a.Shape()[axis]
	if !dim.IsParam() {
		return scalar.Int(dim.Size), nil
	}
	r, err := s.Lower(dim.Param)
	if err != nil {
		return nil, err
	}
	ctx := NewExprContext(s, nil)
	expr, err := r.ToExpression(nil, ctx)
	if err != nil {
		return nil, err
	}
	if deps := ctx.DependsOn(); len(deps) > 0 || ctx.ReductionBounds.Size() > 0 {
		var reductions []string
		for name := range ctx.ReductionBounds.Keys() {
			reductions = append(reductions, name)
		}
		return nil, &SymbolicShapeViolationError{
			Node:       a,
			Axis:       axis,
			DependsOn:  deps,
			Reductions: reductions,
		}
	}
	return expr, nil
}

// shape returns the scalar expressions of the axis lengths of an array.
func (s *State) shape(a array.Array) ([]scalar.Expr, error) {
	shape := make([]scalar.Expr, array.NDim(a))
	for axis := range shape {
		var err error
		if shape[axis], err = s.dim(a, axis); err != nil {
			return nil, err
		}
	}
	return shape, nil
}

// BuildDomain returns the domain iterating over the elements of an array
// with the given index variables and reduction variables.
func BuildDomain(state *State, inames []string, a array.Array, reductions *ordered.Map[string, domain.Bound]) (*domain.Set, error) {
	shape, err := state.shape(a)
	if err != nil {
		return nil, err
	}
	return domain.Build(inames, shape, reductions)
}

// temporaryFor returns a temporary to store an array.
// Only global temporaries can have a symbolic shape.
func temporaryFor(name string, a array.Array, shape []scalar.Expr) *kernel.Temporary {
	space := kernel.AddressSpaceAuto
	if !a.Shape().IsConstant() {
		space = kernel.AddressSpaceGlobal
	}
	return &kernel.Temporary{
		Name:         name,
		DType:        a.DType(),
		Shape:        shape,
		AddressSpace: space,
	}
}

// RenameReductions renames the reduction variables of an expression and
// of its context with names returned by gen.
func RenameReductions(expr scalar.Expr, ctx *ExprContext, gen func(string) string) scalar.Expr {
	subst := make(map[string]scalar.Expr, ctx.ReductionBounds.Size())
	renamed := ordered.NewMap[string, domain.Bound]()
	for old, bound := range ctx.ReductionBounds.Iter() {
		name := gen(old)
		subst[old] = scalar.V(name)
		renamed.Store(name, bound)
	}
	ctx.ReductionBounds = renamed
	return scalar.Substitute(expr, subst)
}

// AddStore adds an instruction storing the value of an array in a new
// variable of the kernel: a temporary if toTemporary is true, an output
// argument otherwise. It returns the identifier of the instruction.
func AddStore(name string, a array.Array, result Result, state *State, toTemporary bool) (string, error) {
	inames := make([]string, array.NDim(a))
	for d := range inames {
		inames[d] = state.VarNames.Name(fmt.Sprintf("%s_dim%d", name, d))
	}
	indices := scalar.Vars(inames...)
	ctx := NewExprContext(state, nil)
	expr, err := result.ToExpression(indices, ctx)
	if err != nil {
		return "", err
	}
	expr = RenameReductions(expr, ctx, func(old string) string {
		return state.VarNames.Name(name + old)
	})
	shape, err := state.shape(a)
	if err != nil {
		return "", err
	}
	dom, err := domain.Build(inames, shape, ctx.ReductionBounds)
	if err != nil {
		return "", err
	}
	insn := &kernel.Assignment{
		ID:           state.InsnIDs.Name(name + "_store"),
		Assignee:     scalar.Index(name, indices...),
		Expr:         expr,
		WithinInames: inames,
		DependsOn:    ctx.DependsOn(),
	}
	k := state.Kernel()
	if toTemporary {
		k = k.WithTemporaries(temporaryFor(name, a, shape))
	} else {
		k = k.WithArgs(&kernel.GlobalArg{
			Name:     name,
			Shape:    shape,
			DType:    a.DType(),
			IsOutput: true,
		})
	}
	state.UpdateKernel(k.WithDomains(dom).WithInstructions(insn))
	state.opts.emitted(insn)
	return insn.ID, nil
}
