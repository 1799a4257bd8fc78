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

// Package array defines the nodes of a lazily evaluated graph of array expressions.
//
// Nodes are immutable once built. A graph is a directed acyclic graph:
// a node can be shared by any number of parents.
package array

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/gxlower/base/iter"
)

// Kind of a node in the graph.
type Kind int

// Kinds of nodes.
const (
	InvalidKind Kind = iota
	PlaceholderKind
	DataWrapperKind
	SizeParamKind
	IndexLambdaKind
	MatrixProductKind
	StackKind
	ConcatenateKind
	RollKind
	AxisPermutationKind
	SliceKind
	ReshapeKind
	DistributedSendKind
	DistributedRecvKind
)

var kindNames = map[Kind]string{
	InvalidKind:         "Invalid",
	PlaceholderKind:     "Placeholder",
	DataWrapperKind:     "DataWrapper",
	SizeParamKind:       "SizeParam",
	IndexLambdaKind:     "IndexLambda",
	MatrixProductKind:   "MatrixProduct",
	StackKind:           "Stack",
	ConcatenateKind:     "Concatenate",
	RollKind:            "Roll",
	AxisPermutationKind: "AxisPermutation",
	SliceKind:           "Slice",
	ReshapeKind:         "Reshape",
	DistributedSendKind: "DistributedSend",
	DistributedRecvKind: "DistributedRecv",
}

func (k Kind) String() string {
	name, ok := kindNames[k]
	if !ok {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return name
}

type (
	// Array is a node in the graph of array expressions.
	Array interface {
		fmt.Stringer

		// Kind of the node.
		Kind() Kind
		// Shape of the array.
		Shape() Shape
		// DType returns the type of the elements of the array.
		DType() dtype.DataType
		// Tags attached to the node.
		Tags() Tags
		// Children returns the array operands of the node, in a fixed order.
		// Arrays referenced by the shape are not included.
		Children() []Array

		// node marks a structure as a node structure.
		// It prevents external implementations of the interface.
		node()
	}

	// Info is the information common to all nodes.
	Info struct {
		ShapeF Shape
		DTypeF dtype.DataType
		TagsF  Tags
	}
)

// Shape of the array.
func (inf *Info) Shape() Shape { return inf.ShapeF }

// DType returns the type of the elements of the array.
func (inf *Info) DType() dtype.DataType { return inf.DTypeF }

// Tags attached to the node.
func (inf *Info) Tags() Tags { return inf.TagsF }

// NDim returns the number of axes of an array.
func NDim(a Array) int {
	return len(a.Shape())
}

// Operands returns the children of a node followed by the arrays
// referenced by its shape.
func Operands(a Array) []Array {
	var params []Array
	for _, dim := range a.Shape() {
		if dim.Param != nil {
			params = append(params, dim.Param)
		}
	}
	return slices.Collect(iter.All(a.Children(), params))
}

// Dim is the length of an axis.
// It is either a constant or the value of a scalar array
// (usually a SizeParam).
type Dim struct {
	Size  int
	Param Array
}

// IntDim returns a constant axis length.
func IntDim(size int) Dim {
	return Dim{Size: size}
}

// ParamDim returns an axis length given by the value of a scalar array.
func ParamDim(param Array) Dim {
	return Dim{Param: param}
}

// IsParam returns true if the length of the axis is not a constant.
func (d Dim) IsParam() bool {
	return d.Param != nil
}

func (d Dim) String() string {
	if d.Param == nil {
		return fmt.Sprint(d.Size)
	}
	if param, ok := d.Param.(*SizeParam); ok {
		return param.Name
	}
	return d.Param.String()
}

// Shape is the list of the axis lengths of an array.
type Shape []Dim

// Ints returns a constant shape.
func Ints(sizes ...int) Shape {
	shape := make(Shape, len(sizes))
	for i, size := range sizes {
		shape[i] = IntDim(size)
	}
	return shape
}

// IsConstant returns true if all the axis lengths are constants.
func (s Shape) IsConstant() bool {
	for _, dim := range s {
		if dim.IsParam() {
			return false
		}
	}
	return true
}

// Sizes returns the constant axis lengths of the shape.
// The second value is false if the shape is symbolic.
func (s Shape) Sizes() ([]int, bool) {
	sizes := make([]int, len(s))
	for i, dim := range s {
		if dim.IsParam() {
			return nil, false
		}
		sizes[i] = dim.Size
	}
	return sizes, true
}

func (s Shape) String() string {
	ss := make([]string, len(s))
	for i, dim := range s {
		ss[i] = dim.String()
	}
	return "(" + strings.Join(ss, ", ") + ")"
}

func sameDim(x, y Dim) bool {
	if x.IsParam() != y.IsParam() {
		return false
	}
	if !x.IsParam() {
		return x.Size == y.Size
	}
	return x.Param == y.Param || x.String() == y.String()
}

// SameShape returns true if two shapes have the same axis lengths.
// Symbolic axis lengths are compared by reference or by name.
func SameShape(x, y Shape) bool {
	return slices.EqualFunc(x, y, sameDim)
}

// Tags is a sorted set of tags attached to a node.
// Tags are not interpreted by the lowering.
type Tags []string

// NewTags returns a normalized set of tags.
func NewTags(tags ...string) Tags {
	if len(tags) == 0 {
		return nil
	}
	ts := slices.Clone(tags)
	slices.Sort(ts)
	return slices.Compact(ts)
}

func (t Tags) String() string {
	return "{" + strings.Join(t, ", ") + "}"
}
