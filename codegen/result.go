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
	"slices"

	"github.com/gx-org/gxlower/array"
	"github.com/gx-org/gxlower/base/ordered"
	"github.com/gx-org/gxlower/domain"
	"github.com/gx-org/gxlower/scalar"
)

type (
	// Result is the lowered form of a node.
	Result interface {
		fmt.Stringer
		// ToExpression returns a scalar expression computing the element of the
		// node at the given indices. The dependencies and reduction variables of
		// the expression are recorded in the context.
		ToExpression(indices []scalar.Expr, ctx *ExprContext) (scalar.Expr, error)
	}

	// StoredResult is a node stored in a kernel variable.
	StoredResult struct {
		Name string
		// DependsOn lists the instructions writing the variable.
		DependsOn []string
	}

	// InlinedResult is a node computed by a scalar expression, inlined where it is used.
	//
	// The expression refers to the index of the element with the positional
	// variables _0, _1, ...
	InlinedResult struct {
		Expr            scalar.Expr
		ReductionBounds *ordered.Map[string, domain.Bound]
		DependsOn       []string
	}
)

var (
	_ Result = (*StoredResult)(nil)
	_ Result = (*InlinedResult)(nil)
)

// ToExpression returns a reference to the variable.
func (r *StoredResult) ToExpression(indices []scalar.Expr, ctx *ExprContext) (scalar.Expr, error) {
	ctx.UpdateDependsOn(r.DependsOn...)
	return scalar.Index(r.Name, indices...), nil
}

func (r *StoredResult) String() string {
	return fmt.Sprintf("stored %s dep=%v", r.Name, r.DependsOn)
}

func inlinedFromContext(expr scalar.Expr, ctx *ExprContext) *InlinedResult {
	return &InlinedResult{
		Expr:            expr,
		ReductionBounds: ctx.ReductionBounds.Clone(),
		DependsOn:       ctx.DependsOn(),
	}
}

// ToExpression substitutes the positional variables of the expression with
// the given indices. Reduction variables are renamed such that they do not
// collide with the reduction variables already in the context.
func (r *InlinedResult) ToExpression(indices []scalar.Expr, ctx *ExprContext) (scalar.Expr, error) {
	subst := make(map[string]scalar.Expr, len(indices)+r.ReductionBounds.Size())
	for d, index := range indices {
		subst[array.IndexName(d)] = index
	}
	start := ctx.ReductionBounds.Size()
	i := 0
	for old, bound := range r.ReductionBounds.Iter() {
		name := fmt.Sprintf("_r%d", start+i)
		if ctx.ReductionBounds.Has(name) {
			return nil, &ReductionNameCollisionError{Name: name}
		}
		subst[old] = scalar.V(name)
		ctx.ReductionBounds.Store(name, bound)
		i++
	}
	ctx.UpdateDependsOn(r.DependsOn...)
	return scalar.Substitute(r.Expr, subst), nil
}

func (r *InlinedResult) String() string {
	return fmt.Sprintf("inlined %s reductions=%v dep=%v", r.Expr, slices.Collect(r.ReductionBounds.Keys()), r.DependsOn)
}
