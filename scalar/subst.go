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

package scalar

import (
	"maps"
	"slices"

	"github.com/pkg/errors"
)

// MapFunc is called on every sub-expression before its children.
// If the function returns true, the returned expression replaces
// the sub-expression and its children are not visited.
type MapFunc func(Expr) (Expr, bool, error)

// Map rebuilds an expression, applying f to every sub-expression.
func Map(x Expr, f MapFunc) (Expr, error) {
	r, done, err := f(x)
	if err != nil || done {
		return r, err
	}
	switch xT := x.(type) {
	case Int, Float, Var:
		return x, nil
	case Subscript:
		index, err := mapAll(xT.Index, f)
		if err != nil {
			return nil, err
		}
		return Subscript{Aggregate: xT.Aggregate, Index: index}, nil
	case Binary:
		lhs, err := Map(xT.X, f)
		if err != nil {
			return nil, err
		}
		rhs, err := Map(xT.Y, f)
		if err != nil {
			return nil, err
		}
		return Binary{Op: xT.Op, X: lhs, Y: rhs}, nil
	case Neg:
		arg, err := Map(xT.X, f)
		if err != nil {
			return nil, err
		}
		return Neg{X: arg}, nil
	case Call:
		args, err := mapAll(xT.Args, f)
		if err != nil {
			return nil, err
		}
		return Call{Func: xT.Func, Args: args}, nil
	case Reduce:
		body, err := Map(xT.Body, f)
		if err != nil {
			return nil, err
		}
		return Reduce{Op: xT.Op, Inames: xT.Inames, Body: body}, nil
	default:
		return nil, errors.Errorf("scalar expression %T not supported", x)
	}
}

func mapAll(xs []Expr, f MapFunc) ([]Expr, error) {
	rs := make([]Expr, len(xs))
	for i, x := range xs {
		var err error
		rs[i], err = Map(x, f)
		if err != nil {
			return nil, err
		}
	}
	return rs, nil
}

func collectVariables(vars map[string]bool, bound map[string]int, x Expr) {
	switch xT := x.(type) {
	case Var:
		if bound[xT.Name] == 0 {
			vars[xT.Name] = true
		}
	case Subscript:
		collectVariables(vars, bound, xT.Aggregate)
		for _, index := range xT.Index {
			collectVariables(vars, bound, index)
		}
	case Binary:
		collectVariables(vars, bound, xT.X)
		collectVariables(vars, bound, xT.Y)
	case Neg:
		collectVariables(vars, bound, xT.X)
	case Call:
		for _, arg := range xT.Args {
			collectVariables(vars, bound, arg)
		}
	case Reduce:
		for _, iname := range xT.Inames {
			bound[iname]++
		}
		collectVariables(vars, bound, xT.Body)
		for _, iname := range xT.Inames {
			bound[iname]--
		}
	}
}

// FreeVariables returns the sorted list of names an expression depends on.
// Index variables bound by a reduction are not free.
func FreeVariables(x Expr) []string {
	vars := make(map[string]bool)
	collectVariables(vars, make(map[string]int), x)
	return slices.Sorted(maps.Keys(vars))
}

// Substitute replaces free variables by expressions.
// All replacements are done simultaneously.
//
// The aggregate of a subscript and the index variables of a reduction
// are renamed when they are substituted by a variable.
func Substitute(x Expr, subst map[string]Expr) Expr {
	if len(subst) == 0 {
		return x
	}
	switch xT := x.(type) {
	case Var:
		if r, ok := subst[xT.Name]; ok {
			return r
		}
		return xT
	case Subscript:
		agg := xT.Aggregate
		if r, ok := subst[agg.Name].(Var); ok {
			agg = r
		}
		index := make([]Expr, len(xT.Index))
		for i, ix := range xT.Index {
			index[i] = Substitute(ix, subst)
		}
		return Subscript{Aggregate: agg, Index: index}
	case Binary:
		return Binary{Op: xT.Op, X: Substitute(xT.X, subst), Y: Substitute(xT.Y, subst)}
	case Neg:
		return Neg{X: Substitute(xT.X, subst)}
	case Call:
		args := make([]Expr, len(xT.Args))
		for i, arg := range xT.Args {
			args[i] = Substitute(arg, subst)
		}
		return Call{Func: xT.Func, Args: args}
	case Reduce:
		inames := make([]string, len(xT.Inames))
		inner := subst
		cloned := false
		for i, iname := range xT.Inames {
			inames[i] = iname
			r, ok := subst[iname]
			if !ok {
				continue
			}
			if rVar, isVar := r.(Var); isVar {
				inames[i] = rVar.Name
				continue
			}
			// The index variable shadows the substitution in the body.
			if !cloned {
				inner = maps.Clone(subst)
				cloned = true
			}
			delete(inner, iname)
		}
		return Reduce{Op: xT.Op, Inames: inames, Body: Substitute(xT.Body, inner)}
	default:
		return x
	}
}
