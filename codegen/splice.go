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
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/gx-org/gxlower/scalar"
)

// isIndexName returns true if a name is a positional index variable (_0, _1, ...).
func isIndexName(name string) bool {
	digits, ok := strings.CutPrefix(name, "_")
	if !ok || digits == "" {
		return false
	}
	_, err := strconv.ParseUint(digits, 10, 64)
	return err == nil
}

// splice lowers the arrays referenced by a scalar expression and
// replaces the references with the expressions of their results.
//
// A bare name is replaced by the element of a zero-dimensional array.
// A subscripted name is replaced by the element of the array at the
// given indices, which are left unchanged.
func (m *codeGenMapper) splice(x scalar.Expr, ctx *ExprContext) (scalar.Expr, error) {
	return scalar.Map(x, func(x scalar.Expr) (scalar.Expr, bool, error) {
		switch xT := x.(type) {
		case scalar.Var:
			a, ok := ctx.Lookup(xT.Name)
			if !ok {
				if isIndexName(xT.Name) {
					return x, true, nil
				}
				return nil, true, errors.Errorf("undefined name %s", xT.Name)
			}
			r, err := m.rec(a)
			if err != nil {
				return nil, true, err
			}
			expr, err := r.ToExpression(nil, ctx)
			return expr, true, err
		case scalar.Subscript:
			a, ok := ctx.Lookup(xT.Aggregate.Name)
			if !ok {
				return nil, true, errors.Errorf("undefined array %s", xT.Aggregate.Name)
			}
			r, err := m.rec(a)
			if err != nil {
				return nil, true, err
			}
			expr, err := r.ToExpression(xT.Index, ctx)
			return expr, true, err
		case scalar.Reduce:
			return nil, true, errors.Errorf("cannot lower %s: reductions without bounds not supported", x)
		}
		return x, false, nil
	})
}
