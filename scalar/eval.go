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
	"go/token"
	"math"

	"github.com/pkg/errors"
)

// Env provides the values of the names found in an expression.
type Env interface {
	// Value returns the value of a variable.
	Value(name string) (float64, error)
	// Element returns an element of an array.
	Element(name string, index []int64) (float64, error)
	// Range returns the half-open range of a reduction index variable.
	Range(iname string) (lo, hi int64, err error)
}

// Bindings is an environment binding names to integers.
// It is typically used to evaluate shapes and bounds given values of size parameters.
type Bindings map[string]int64

var _ Env = Bindings(nil)

// Value returns the value bound to a name.
func (b Bindings) Value(name string) (float64, error) {
	v, ok := b[name]
	if !ok {
		return 0, errors.Errorf("undefined variable %s", name)
	}
	return float64(v), nil
}

// Element always returns an error.
func (b Bindings) Element(name string, index []int64) (float64, error) {
	return 0, errors.Errorf("cannot index %s: no array in integer bindings", name)
}

// Range always returns an error.
func (b Bindings) Range(iname string) (lo, hi int64, err error) {
	return 0, 0, errors.Errorf("no range for reduction variable %s in integer bindings", iname)
}

type reduceEnv struct {
	Env
	vals map[string]int64
}

func (e *reduceEnv) Value(name string) (float64, error) {
	if v, ok := e.vals[name]; ok {
		return float64(v), nil
	}
	return e.Env.Value(name)
}

// EvalInt evaluates an expression that must have an integer value.
func EvalInt(x Expr, env Env) (int64, error) {
	v, err := Eval(x, env)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) || math.IsInf(v, 0) {
		return 0, errors.Errorf("%s=%v is not an integer", x, v)
	}
	return int64(v), nil
}

// Eval evaluates an expression.
func Eval(x Expr, env Env) (float64, error) {
	switch xT := x.(type) {
	case Int:
		return float64(xT), nil
	case Float:
		return float64(xT), nil
	case Var:
		return env.Value(xT.Name)
	case Subscript:
		index := make([]int64, len(xT.Index))
		for i, ix := range xT.Index {
			var err error
			if index[i], err = EvalInt(ix, env); err != nil {
				return 0, errors.Wrapf(err, "cannot evaluate index %d of %s", i, xT)
			}
		}
		return env.Element(xT.Aggregate.Name, index)
	case Binary:
		lhs, err := Eval(xT.X, env)
		if err != nil {
			return 0, err
		}
		rhs, err := Eval(xT.Y, env)
		if err != nil {
			return 0, err
		}
		return evalBinary(xT.Op, lhs, rhs)
	case Neg:
		v, err := Eval(xT.X, env)
		return -v, err
	case Call:
		args := make([]float64, len(xT.Args))
		for i, arg := range xT.Args {
			var err error
			if args[i], err = Eval(arg, env); err != nil {
				return 0, err
			}
		}
		return evalCall(xT.Func, args)
	case Reduce:
		return evalReduce(xT, env)
	default:
		return 0, errors.Errorf("cannot evaluate scalar expression %T", x)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func evalBinary(op token.Token, x, y float64) (float64, error) {
	switch op {
	case token.ADD:
		return x + y, nil
	case token.SUB:
		return x - y, nil
	case token.MUL:
		return x * y, nil
	case token.QUO:
		return x / y, nil
	case token.REM:
		if y == 0 {
			return 0, errors.Errorf("modulo by zero")
		}
		r := math.Mod(x, y)
		if r != 0 && (r < 0) != (y < 0) {
			r += y
		}
		return r, nil
	case token.EQL:
		return boolToFloat(x == y), nil
	case token.NEQ:
		return boolToFloat(x != y), nil
	case token.LSS:
		return boolToFloat(x < y), nil
	case token.LEQ:
		return boolToFloat(x <= y), nil
	case token.GTR:
		return boolToFloat(x > y), nil
	case token.GEQ:
		return boolToFloat(x >= y), nil
	case token.LAND:
		return boolToFloat(x != 0 && y != 0), nil
	case token.LOR:
		return boolToFloat(x != 0 || y != 0), nil
	default:
		return 0, errors.Errorf("binary operator %s not supported", op)
	}
}

var unaryFuncs = map[string]func(float64) float64{
	"abs":   math.Abs,
	"ceil":  math.Ceil,
	"cos":   math.Cos,
	"exp":   math.Exp,
	"floor": math.Floor,
	"log":   math.Log,
	"sin":   math.Sin,
	"sqrt":  math.Sqrt,
	"tanh":  math.Tanh,
}

var binaryFuncs = map[string]func(float64, float64) float64{
	"max": math.Max,
	"min": math.Min,
	"pow": math.Pow,
}

func evalCall(name string, args []float64) (float64, error) {
	if f, ok := unaryFuncs[name]; ok {
		if len(args) != 1 {
			return 0, errors.Errorf("%s requires 1 argument but got %d", name, len(args))
		}
		return f(args[0]), nil
	}
	if f, ok := binaryFuncs[name]; ok {
		if len(args) != 2 {
			return 0, errors.Errorf("%s requires 2 arguments but got %d", name, len(args))
		}
		return f(args[0], args[1]), nil
	}
	return 0, errors.Errorf("function %s not supported", name)
}

func evalReduce(x Reduce, env Env) (float64, error) {
	var acc float64
	switch x.Op {
	case Sum:
		acc = 0
	case Product:
		acc = 1
	case Max:
		acc = math.Inf(-1)
	case Min:
		acc = math.Inf(1)
	default:
		return 0, errors.Errorf("reduction %s not supported", x.Op)
	}
	los := make([]int64, len(x.Inames))
	his := make([]int64, len(x.Inames))
	for i, iname := range x.Inames {
		var err error
		if los[i], his[i], err = env.Range(iname); err != nil {
			return 0, err
		}
		if los[i] >= his[i] {
			return acc, nil
		}
	}
	inner := &reduceEnv{Env: env, vals: make(map[string]int64, len(x.Inames))}
	for i, iname := range x.Inames {
		inner.vals[iname] = los[i]
	}
	for {
		v, err := Eval(x.Body, inner)
		if err != nil {
			return 0, err
		}
		switch x.Op {
		case Sum:
			acc += v
		case Product:
			acc *= v
		case Max:
			acc = math.Max(acc, v)
		case Min:
			acc = math.Min(acc, v)
		}
		// Increment the multi-index, last index variable first.
		axis := len(x.Inames) - 1
		for ; axis >= 0; axis-- {
			iname := x.Inames[axis]
			inner.vals[iname]++
			if inner.vals[iname] < his[axis] {
				break
			}
			inner.vals[iname] = los[axis]
		}
		if axis < 0 {
			return acc, nil
		}
	}
}
