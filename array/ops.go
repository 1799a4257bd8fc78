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

package array

import (
	"fmt"
	"go/token"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/gxlower/scalar"
)

// IndexName returns the name of the positional index variable of an axis
// in the expression of an IndexLambda.
func IndexName(axis int) string {
	return fmt.Sprintf("_%d", axis)
}

// IndexVars returns the positional index variables of an array with ndim axes.
func IndexVars(ndim int) []scalar.Expr {
	vars := make([]scalar.Expr, ndim)
	for i := range vars {
		vars[i] = scalar.V(IndexName(i))
	}
	return vars
}

// IsFloat returns true if a data type is a floating-point type.
func IsFloat(dt dtype.DataType) bool {
	return dt == dtype.Float32 || dt == dtype.Float64
}

type elementwise struct {
	shape    Shape
	dtype    dtype.DataType
	bindings map[string]Array
	hasArray bool
}

func (ew *elementwise) operand(x any) (scalar.Expr, error) {
	a, ok := x.(Array)
	if !ok {
		return nil, nil
	}
	if ew.hasArray {
		if !SameShape(ew.shape, a.Shape()) {
			return nil, errors.Errorf("shape %s does not match shape %s", a.Shape(), ew.shape)
		}
		if ew.dtype != a.DType() {
			return nil, errors.Errorf("data type %s does not match data type %s", a.DType(), ew.dtype)
		}
	}
	ew.hasArray = true
	ew.shape = a.Shape()
	ew.dtype = a.DType()
	name := fmt.Sprintf("_in%d", len(ew.bindings))
	ew.bindings[name] = a
	return scalar.Index(name, IndexVars(len(ew.shape))...), nil
}

func (ew *elementwise) constant(x any) (scalar.Expr, error) {
	switch xT := x.(type) {
	case int:
		if IsFloat(ew.dtype) {
			return scalar.Float(xT), nil
		}
		return scalar.Int(xT), nil
	case int64:
		if IsFloat(ew.dtype) {
			return scalar.Float(xT), nil
		}
		return scalar.Int(xT), nil
	case float64:
		if !IsFloat(ew.dtype) {
			return nil, errors.Errorf("cannot combine floating-point constant %v with array of type %s", xT, ew.dtype)
		}
		return scalar.Float(xT), nil
	case float32:
		if !IsFloat(ew.dtype) {
			return nil, errors.Errorf("cannot combine floating-point constant %v with array of type %s", xT, ew.dtype)
		}
		return scalar.Float(xT), nil
	}
	return nil, errors.Errorf("operand of type %T not supported", x)
}

func binary(op token.Token, x, y any) (*IndexLambda, error) {
	ew := &elementwise{bindings: make(map[string]Array)}
	operands := []any{x, y}
	exprs := make([]scalar.Expr, len(operands))
	for i, operand := range operands {
		var err error
		if exprs[i], err = ew.operand(operand); err != nil {
			return nil, errors.Wrapf(err, "operand %d of %s", i, op)
		}
	}
	if !ew.hasArray {
		return nil, errors.Errorf("%s requires at least one array operand", op)
	}
	for i, operand := range operands {
		if exprs[i] != nil {
			continue
		}
		var err error
		if exprs[i], err = ew.constant(operand); err != nil {
			return nil, errors.Wrapf(err, "operand %d of %s", i, op)
		}
	}
	expr := scalar.Binary{Op: op, X: exprs[0], Y: exprs[1]}
	return NewIndexLambda(expr, ew.shape, ew.dtype, ew.bindings)
}

// Add returns the elementwise sum x+y.
// Operands are arrays of the same shape or numerical constants.
func Add(x, y any) (*IndexLambda, error) {
	return binary(token.ADD, x, y)
}

// Sub returns the elementwise difference x-y.
// Operands are arrays of the same shape or numerical constants.
func Sub(x, y any) (*IndexLambda, error) {
	return binary(token.SUB, x, y)
}

// Mul returns the elementwise product x*y.
// Operands are arrays of the same shape or numerical constants.
func Mul(x, y any) (*IndexLambda, error) {
	return binary(token.MUL, x, y)
}

// Div returns the elementwise quotient x/y.
// Operands are arrays of the same shape or numerical constants.
func Div(x, y any) (*IndexLambda, error) {
	return binary(token.QUO, x, y)
}
