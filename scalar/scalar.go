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

// Package scalar implements the scalar expressions found in index lambdas,
// array shapes, and kernel instructions.
//
// Expressions are immutable trees. Index arithmetic and element arithmetic
// share the same algebra: integer operands are represented exactly by float64
// as long as they stay below 2^53.
package scalar

import (
	"fmt"
	"go/token"
	"strconv"
	"strings"
)

type (
	// Expr is a scalar expression.
	Expr interface {
		fmt.Stringer
		// scalarExpr marks a structure as a scalar expression.
		// It prevents external implementations of the interface.
		scalarExpr()
	}

	// Int is an integer literal.
	Int int64

	// Float is a floating-point literal.
	Float float64

	// Var is a reference to a name: an array, an index variable, or a size parameter.
	Var struct {
		Name string
	}

	// Subscript indexes an array given a tuple of indices.
	Subscript struct {
		Aggregate Var
		Index     []Expr
	}

	// Binary is a binary operation.
	// Supported operators are token.ADD, token.SUB, token.MUL, token.QUO, token.REM,
	// and the comparison operators.
	Binary struct {
		Op   token.Token
		X, Y Expr
	}

	// Neg is the arithmetic negation of an expression.
	Neg struct {
		X Expr
	}

	// Call applies an elementary function to its arguments.
	Call struct {
		Func string
		Args []Expr
	}

	// Reduce reduces an expression over a set of index variables.
	// The bounds of the index variables are not part of the expression:
	// they are stored in the domain of the instruction evaluating the expression.
	Reduce struct {
		Op     ReduceOp
		Inames []string
		Body   Expr
	}
)

// ReduceOp is a reduction operator.
type ReduceOp int

const (
	// Sum adds all values.
	Sum ReduceOp = iota
	// Product multiplies all values.
	Product
	// Max keeps the largest value.
	Max
	// Min keeps the smallest value.
	Min
)

var reduceOpNames = map[ReduceOp]string{
	Sum:     "sum",
	Product: "product",
	Max:     "max",
	Min:     "min",
}

func (op ReduceOp) String() string {
	name, ok := reduceOpNames[op]
	if !ok {
		return fmt.Sprintf("ReduceOp(%d)", int(op))
	}
	return name
}

func (Int) scalarExpr()       {}
func (Float) scalarExpr()     {}
func (Var) scalarExpr()       {}
func (Subscript) scalarExpr() {}
func (Binary) scalarExpr()    {}
func (Neg) scalarExpr()       {}
func (Call) scalarExpr()      {}
func (Reduce) scalarExpr()    {}

func (x Int) String() string {
	return strconv.FormatInt(int64(x), 10)
}

// String representation of the literal.
// The representation always differs from the one of an Int.
func (x Float) String() string {
	s := strconv.FormatFloat(float64(x), 'g', -1, 64)
	if strings.ContainsAny(s, ".eIN") {
		return s
	}
	return s + ".0"
}

func (x Var) String() string {
	return x.Name
}

func joinExprs(xs []Expr) string {
	ss := make([]string, len(xs))
	for i, x := range xs {
		ss[i] = x.String()
	}
	return strings.Join(ss, ", ")
}

func (x Subscript) String() string {
	return fmt.Sprintf("%s[%s]", x.Aggregate.Name, joinExprs(x.Index))
}

func (x Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", x.X, x.Op, x.Y)
}

func (x Neg) String() string {
	return fmt.Sprintf("-%s", x.X)
}

func (x Call) String() string {
	return fmt.Sprintf("%s(%s)", x.Func, joinExprs(x.Args))
}

func (x Reduce) String() string {
	return fmt.Sprintf("%s([%s], %s)", x.Op, strings.Join(x.Inames, ", "), x.Body)
}

// V returns a reference to a name.
func V(name string) Var {
	return Var{Name: name}
}

// Vars returns references to a list of names.
func Vars(names ...string) []Expr {
	vs := make([]Expr, len(names))
	for i, name := range names {
		vs[i] = V(name)
	}
	return vs
}

// Index returns an array element or, if no index is given, a reference to the array.
func Index(name string, index ...Expr) Expr {
	if len(index) == 0 {
		return V(name)
	}
	return Subscript{Aggregate: V(name), Index: index}
}

// Add returns x+y.
func Add(x, y Expr) Expr {
	return Binary{Op: token.ADD, X: x, Y: y}
}

// Sub returns x-y.
func Sub(x, y Expr) Expr {
	return Binary{Op: token.SUB, X: x, Y: y}
}

// Mul returns x*y.
func Mul(x, y Expr) Expr {
	return Binary{Op: token.MUL, X: x, Y: y}
}

// Quo returns x/y.
func Quo(x, y Expr) Expr {
	return Binary{Op: token.QUO, X: x, Y: y}
}

// FloorDiv returns the integer part of x/y, rounded towards negative infinity.
func FloorDiv(x, y Expr) Expr {
	return Call{Func: "floor", Args: []Expr{Quo(x, y)}}
}

// Mod returns x modulo y. The result has the sign of y.
func Mod(x, y Expr) Expr {
	return Binary{Op: token.REM, X: x, Y: y}
}

// SumOver returns the sum of an expression over index variables.
func SumOver(inames []string, body Expr) Expr {
	return Reduce{Op: Sum, Inames: inames, Body: body}
}
