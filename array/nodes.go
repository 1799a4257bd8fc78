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
	"slices"
	"sort"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/gxlower/scalar"
	"golang.org/x/exp/maps"
)

type (
	// Placeholder is an input array provided when the kernel is called.
	Placeholder struct {
		Info
		Name string
	}

	// DataWrapper is an input array bound to host data.
	DataWrapper struct {
		Info
		Name string
		Data *Data
	}

	// SizeParam is a scalar integer input usually found in shapes.
	SizeParam struct {
		Info
		Name string
	}

	// IndexLambda computes each element of an array with a scalar expression.
	//
	// The expression refers to the index of the element with the positional
	// variables _0, _1, ... and to other arrays with the names in Bindings.
	IndexLambda struct {
		Info
		Expr     scalar.Expr
		Bindings map[string]Array
	}

	// MatrixProduct contracts the last axis of X1 with the first axis of X2.
	MatrixProduct struct {
		Info
		X1, X2 Array
	}

	// Stack joins arrays of identical shapes along a new axis.
	Stack struct {
		Info
		Arrays []Array
		Axis   int
	}

	// Concatenate joins arrays along an existing axis.
	Concatenate struct {
		Info
		Arrays []Array
		Axis   int
	}

	// Roll shifts the elements of an array along an axis.
	// Elements shifted beyond the last position are re-introduced at the first.
	Roll struct {
		Info
		Array Array
		Shift int
		Axis  int
	}

	// AxisPermutation permutes the axes of an array.
	// Axis i of the result is axis Axes[i] of the operand.
	AxisPermutation struct {
		Info
		Array Array
		Axes  []int
	}

	// Slice extracts the elements of an array in [Starts[i], Stops[i]) for every axis i.
	Slice struct {
		Info
		Array  Array
		Starts []int
		Stops  []int
	}

	// Reshape changes the shape of an array, keeping its elements in row-major order.
	Reshape struct {
		Info
		Array Array
	}

	// DistributedSend sends an array to another rank.
	DistributedSend struct {
		Info
		Data     Array
		DestRank int
		CommTag  string
	}

	// DistributedRecv receives an array from another rank.
	DistributedRecv struct {
		Info
		SrcRank int
		CommTag string
	}
)

var (
	_ Array = (*Placeholder)(nil)
	_ Array = (*DataWrapper)(nil)
	_ Array = (*SizeParam)(nil)
	_ Array = (*IndexLambda)(nil)
	_ Array = (*MatrixProduct)(nil)
	_ Array = (*Stack)(nil)
	_ Array = (*Concatenate)(nil)
	_ Array = (*Roll)(nil)
	_ Array = (*AxisPermutation)(nil)
	_ Array = (*Slice)(nil)
	_ Array = (*Reshape)(nil)
	_ Array = (*DistributedSend)(nil)
	_ Array = (*DistributedRecv)(nil)
)

func checkShape(shape Shape) error {
	for i, dim := range shape {
		if dim.IsParam() {
			if len(dim.Param.Shape()) != 0 {
				return errors.Errorf("axis %d: length %s is not a scalar", i, dim.Param)
			}
			continue
		}
		if dim.Size < 0 {
			return errors.Errorf("axis %d: negative length %d", i, dim.Size)
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// Placeholder.

// MakePlaceholder returns a new input array.
func MakePlaceholder(name string, shape Shape, dt dtype.DataType, tags ...string) (*Placeholder, error) {
	if name == "" {
		return nil, errors.Errorf("placeholder requires a name")
	}
	if err := checkShape(shape); err != nil {
		return nil, errors.Wrapf(err, "invalid shape for placeholder %s", name)
	}
	return &Placeholder{
		Info: Info{ShapeF: shape, DTypeF: dt, TagsF: NewTags(tags...)},
		Name: name,
	}, nil
}

func (*Placeholder) node() {}

// Kind of the node.
func (*Placeholder) Kind() Kind { return PlaceholderKind }

// Children returns the array operands of the node.
func (*Placeholder) Children() []Array { return nil }

func (a *Placeholder) String() string {
	return fmt.Sprintf("Placeholder(%s%s)", a.Name, a.ShapeF)
}

// ----------------------------------------------------------------------------
// DataWrapper.

// MakeDataWrapper returns a new input array bound to data.
// The shape of the array is the shape of the data.
func MakeDataWrapper(name string, data *Data, tags ...string) (*DataWrapper, error) {
	if data == nil {
		return nil, errors.Errorf("data wrapper %s requires data", name)
	}
	return NewDataWrapper(name, data, Ints(data.Shape.AxisLengths...), tags...)
}

// NewDataWrapper returns a new input array bound to data given an explicit shape.
// The shape may be symbolic.
func NewDataWrapper(name string, data *Data, shape Shape, tags ...string) (*DataWrapper, error) {
	if name == "" {
		return nil, errors.Errorf("data wrapper requires a name")
	}
	if data == nil {
		return nil, errors.Errorf("data wrapper %s requires data", name)
	}
	if err := checkShape(shape); err != nil {
		return nil, errors.Wrapf(err, "invalid shape for data wrapper %s", name)
	}
	if len(shape) != len(data.Shape.AxisLengths) {
		return nil, errors.Errorf("data wrapper %s: shape %s has %d axes but data has %d", name, shape, len(shape), len(data.Shape.AxisLengths))
	}
	return &DataWrapper{
		Info: Info{ShapeF: shape, DTypeF: data.Shape.DType, TagsF: NewTags(tags...)},
		Name: name,
		Data: data,
	}, nil
}

func (*DataWrapper) node() {}

// Kind of the node.
func (*DataWrapper) Kind() Kind { return DataWrapperKind }

// Children returns the array operands of the node.
func (*DataWrapper) Children() []Array { return nil }

func (a *DataWrapper) String() string {
	return fmt.Sprintf("DataWrapper(%s%s)", a.Name, a.ShapeF)
}

// ----------------------------------------------------------------------------
// SizeParam.

// MakeSizeParam returns a new scalar integer input.
func MakeSizeParam(name string, tags ...string) (*SizeParam, error) {
	if name == "" {
		return nil, errors.Errorf("size parameter requires a name")
	}
	return &SizeParam{
		Info: Info{DTypeF: dtype.Int64, TagsF: NewTags(tags...)},
		Name: name,
	}, nil
}

func (*SizeParam) node() {}

// Kind of the node.
func (*SizeParam) Kind() Kind { return SizeParamKind }

// Children returns the array operands of the node.
func (*SizeParam) Children() []Array { return nil }

func (a *SizeParam) String() string {
	return fmt.Sprintf("SizeParam(%s)", a.Name)
}

// ----------------------------------------------------------------------------
// IndexLambda.

// NewIndexLambda returns a node computing its elements with a scalar expression.
func NewIndexLambda(expr scalar.Expr, shape Shape, dt dtype.DataType, bindings map[string]Array, tags ...string) (*IndexLambda, error) {
	if expr == nil {
		return nil, errors.Errorf("index lambda requires an expression")
	}
	if err := checkShape(shape); err != nil {
		return nil, errors.Wrapf(err, "invalid shape for index lambda")
	}
	for name, binding := range bindings {
		if binding == nil {
			return nil, errors.Errorf("index lambda binding %s is nil", name)
		}
	}
	return &IndexLambda{
		Info:     Info{ShapeF: shape, DTypeF: dt, TagsF: NewTags(tags...)},
		Expr:     expr,
		Bindings: bindings,
	}, nil
}

func (*IndexLambda) node() {}

// Kind of the node.
func (*IndexLambda) Kind() Kind { return IndexLambdaKind }

// BindingNames returns the names of the bindings in sorted order.
func (a *IndexLambda) BindingNames() []string {
	names := maps.Keys(a.Bindings)
	sort.Strings(names)
	return names
}

// Children returns the bound arrays, sorted by binding name.
func (a *IndexLambda) Children() []Array {
	names := a.BindingNames()
	children := make([]Array, len(names))
	for i, name := range names {
		children[i] = a.Bindings[name]
	}
	return children
}

func (a *IndexLambda) String() string {
	return fmt.Sprintf("IndexLambda(%s%s)", a.Expr, a.ShapeF)
}

// ----------------------------------------------------------------------------
// MatrixProduct.

// MatMul returns the matrix product of two arrays.
func MatMul(x1, x2 Array, tags ...string) (*MatrixProduct, error) {
	if NDim(x1) == 0 || NDim(x2) == 0 {
		return nil, errors.Errorf("matrix product requires arrays with at least one axis but got %s and %s", x1.Shape(), x2.Shape())
	}
	s1, s2 := x1.Shape(), x2.Shape()
	if !sameDim(s1[len(s1)-1], s2[0]) {
		return nil, errors.Errorf("matrix product: contraction axes of %s and %s do not match", s1, s2)
	}
	if x1.DType() != x2.DType() {
		return nil, errors.Errorf("matrix product: mismatched data types %s and %s", x1.DType(), x2.DType())
	}
	shape := append(slices.Clone(s1[:len(s1)-1]), s2[1:]...)
	return &MatrixProduct{
		Info: Info{ShapeF: shape, DTypeF: x1.DType(), TagsF: NewTags(tags...)},
		X1:   x1,
		X2:   x2,
	}, nil
}

func (*MatrixProduct) node() {}

// Kind of the node.
func (*MatrixProduct) Kind() Kind { return MatrixProductKind }

// Children returns the array operands of the node.
func (a *MatrixProduct) Children() []Array { return []Array{a.X1, a.X2} }

func (a *MatrixProduct) String() string {
	return fmt.Sprintf("MatrixProduct%s", a.ShapeF)
}

// ----------------------------------------------------------------------------
// Stack.

func checkSameType(what string, arrays []Array) error {
	if len(arrays) == 0 {
		return errors.Errorf("%s requires at least one array", what)
	}
	for i, a := range arrays[1:] {
		if a.DType() != arrays[0].DType() {
			return errors.Errorf("%s: array %d has data type %s but want %s", what, i+1, a.DType(), arrays[0].DType())
		}
	}
	return nil
}

// StackOf stacks arrays along a new axis.
func StackOf(arrays []Array, axis int, tags ...string) (*Stack, error) {
	if err := checkSameType("stack", arrays); err != nil {
		return nil, err
	}
	shape := arrays[0].Shape()
	for i, a := range arrays[1:] {
		if !SameShape(a.Shape(), shape) {
			return nil, errors.Errorf("stack: array %d has shape %s but want %s", i+1, a.Shape(), shape)
		}
	}
	if axis < 0 || axis > len(shape) {
		return nil, errors.Errorf("stack: axis %d out of range for arrays with %d axes", axis, len(shape))
	}
	return &Stack{
		Info: Info{
			ShapeF: slices.Insert(slices.Clone(shape), axis, IntDim(len(arrays))),
			DTypeF: arrays[0].DType(),
			TagsF:  NewTags(tags...),
		},
		Arrays: slices.Clone(arrays),
		Axis:   axis,
	}, nil
}

func (*Stack) node() {}

// Kind of the node.
func (*Stack) Kind() Kind { return StackKind }

// Children returns the array operands of the node.
func (a *Stack) Children() []Array { return a.Arrays }

func (a *Stack) String() string {
	return fmt.Sprintf("Stack%s", a.ShapeF)
}

// ----------------------------------------------------------------------------
// Concatenate.

// Concat concatenates arrays along an existing axis.
// The lengths of the concatenated axis must be constants.
func Concat(arrays []Array, axis int, tags ...string) (*Concatenate, error) {
	if err := checkSameType("concatenate", arrays); err != nil {
		return nil, err
	}
	shape := slices.Clone(arrays[0].Shape())
	if axis < 0 || axis >= len(shape) {
		return nil, errors.Errorf("concatenate: axis %d out of range for arrays with %d axes", axis, len(shape))
	}
	total := 0
	for i, a := range arrays {
		other := a.Shape()
		if len(other) != len(shape) {
			return nil, errors.Errorf("concatenate: array %d has %d axes but want %d", i, len(other), len(shape))
		}
		for d := range other {
			if d == axis {
				continue
			}
			if !sameDim(other[d], shape[d]) {
				return nil, errors.Errorf("concatenate: array %d has shape %s incompatible with %s", i, other, shape)
			}
		}
		if other[axis].IsParam() {
			return nil, errors.Errorf("concatenate: array %d has a symbolic length %s along axis %d", i, other[axis], axis)
		}
		total += other[axis].Size
	}
	shape[axis] = IntDim(total)
	return &Concatenate{
		Info:   Info{ShapeF: shape, DTypeF: arrays[0].DType(), TagsF: NewTags(tags...)},
		Arrays: slices.Clone(arrays),
		Axis:   axis,
	}, nil
}

func (*Concatenate) node() {}

// Kind of the node.
func (*Concatenate) Kind() Kind { return ConcatenateKind }

// Children returns the array operands of the node.
func (a *Concatenate) Children() []Array { return a.Arrays }

func (a *Concatenate) String() string {
	return fmt.Sprintf("Concatenate%s", a.ShapeF)
}

// ----------------------------------------------------------------------------
// Roll.

// RollOf rolls the elements of an array along an axis.
func RollOf(a Array, shift, axis int, tags ...string) (*Roll, error) {
	if axis < 0 || axis >= NDim(a) {
		return nil, errors.Errorf("roll: axis %d out of range for array of shape %s", axis, a.Shape())
	}
	return &Roll{
		Info:  Info{ShapeF: a.Shape(), DTypeF: a.DType(), TagsF: NewTags(tags...)},
		Array: a,
		Shift: shift,
		Axis:  axis,
	}, nil
}

func (*Roll) node() {}

// Kind of the node.
func (*Roll) Kind() Kind { return RollKind }

// Children returns the array operands of the node.
func (a *Roll) Children() []Array { return []Array{a.Array} }

func (a *Roll) String() string {
	return fmt.Sprintf("Roll(shift=%d, axis=%d)%s", a.Shift, a.Axis, a.ShapeF)
}

// ----------------------------------------------------------------------------
// AxisPermutation.

// Permute permutes the axes of an array.
func Permute(a Array, axes []int, tags ...string) (*AxisPermutation, error) {
	shape := a.Shape()
	if len(axes) != len(shape) {
		return nil, errors.Errorf("axis permutation %v does not match array of shape %s", axes, shape)
	}
	seen := make([]bool, len(axes))
	permuted := make(Shape, len(axes))
	for i, axis := range axes {
		if axis < 0 || axis >= len(axes) || seen[axis] {
			return nil, errors.Errorf("%v is not a permutation of the axes of %s", axes, shape)
		}
		seen[axis] = true
		permuted[i] = shape[axis]
	}
	return &AxisPermutation{
		Info:  Info{ShapeF: permuted, DTypeF: a.DType(), TagsF: NewTags(tags...)},
		Array: a,
		Axes:  slices.Clone(axes),
	}, nil
}

// Transpose reverses the axes of an array.
func Transpose(a Array, tags ...string) (*AxisPermutation, error) {
	axes := make([]int, NDim(a))
	for i := range axes {
		axes[i] = len(axes) - 1 - i
	}
	return Permute(a, axes, tags...)
}

func (*AxisPermutation) node() {}

// Kind of the node.
func (*AxisPermutation) Kind() Kind { return AxisPermutationKind }

// Children returns the array operands of the node.
func (a *AxisPermutation) Children() []Array { return []Array{a.Array} }

func (a *AxisPermutation) String() string {
	return fmt.Sprintf("AxisPermutation(%v)%s", a.Axes, a.ShapeF)
}

// ----------------------------------------------------------------------------
// Slice.

// SliceOf returns the elements of an array in [starts[i], stops[i]) along every axis i.
func SliceOf(a Array, starts, stops []int, tags ...string) (*Slice, error) {
	shape := a.Shape()
	if len(starts) != len(shape) || len(stops) != len(shape) {
		return nil, errors.Errorf("slice [%v:%v] does not match array of shape %s", starts, stops, shape)
	}
	sliced := make(Shape, len(shape))
	for i, dim := range shape {
		if starts[i] < 0 || stops[i] < starts[i] {
			return nil, errors.Errorf("axis %d: invalid slice [%d:%d]", i, starts[i], stops[i])
		}
		if !dim.IsParam() && stops[i] > dim.Size {
			return nil, errors.Errorf("axis %d: slice [%d:%d] out of bounds for length %d", i, starts[i], stops[i], dim.Size)
		}
		sliced[i] = IntDim(stops[i] - starts[i])
	}
	return &Slice{
		Info:   Info{ShapeF: sliced, DTypeF: a.DType(), TagsF: NewTags(tags...)},
		Array:  a,
		Starts: slices.Clone(starts),
		Stops:  slices.Clone(stops),
	}, nil
}

func (*Slice) node() {}

// Kind of the node.
func (*Slice) Kind() Kind { return SliceKind }

// Children returns the array operands of the node.
func (a *Slice) Children() []Array { return []Array{a.Array} }

func (a *Slice) String() string {
	return fmt.Sprintf("Slice(%v:%v)%s", a.Starts, a.Stops, a.ShapeF)
}

// ----------------------------------------------------------------------------
// Reshape.

func size(shape Shape) (int, bool) {
	sizes, ok := shape.Sizes()
	if !ok {
		return 0, false
	}
	n := 1
	for _, s := range sizes {
		n *= s
	}
	return n, true
}

// ReshapeOf changes the shape of an array.
// Both shapes must be constant and have the same number of elements.
func ReshapeOf(a Array, shape Shape, tags ...string) (*Reshape, error) {
	if err := checkShape(shape); err != nil {
		return nil, errors.Wrapf(err, "invalid shape for reshape")
	}
	from, fromOk := size(a.Shape())
	to, toOk := size(shape)
	if !fromOk || !toOk {
		return nil, errors.Errorf("cannot reshape %s into %s: symbolic shapes not supported", a.Shape(), shape)
	}
	if from != to {
		return nil, errors.Errorf("cannot reshape %s (%d elements) into %s (%d elements)", a.Shape(), from, shape, to)
	}
	return &Reshape{
		Info:  Info{ShapeF: shape, DTypeF: a.DType(), TagsF: NewTags(tags...)},
		Array: a,
	}, nil
}

func (*Reshape) node() {}

// Kind of the node.
func (*Reshape) Kind() Kind { return ReshapeKind }

// Children returns the array operands of the node.
func (a *Reshape) Children() []Array { return []Array{a.Array} }

func (a *Reshape) String() string {
	return fmt.Sprintf("Reshape%s", a.ShapeF)
}

// ----------------------------------------------------------------------------
// Distributed communication.

// Send returns a node sending an array to another rank.
func Send(data Array, destRank int, commTag string, tags ...string) (*DistributedSend, error) {
	if destRank < 0 {
		return nil, errors.Errorf("invalid destination rank %d", destRank)
	}
	return &DistributedSend{
		Info:     Info{ShapeF: data.Shape(), DTypeF: data.DType(), TagsF: NewTags(tags...)},
		Data:     data,
		DestRank: destRank,
		CommTag:  commTag,
	}, nil
}

func (*DistributedSend) node() {}

// Kind of the node.
func (*DistributedSend) Kind() Kind { return DistributedSendKind }

// Children returns the array operands of the node.
func (a *DistributedSend) Children() []Array { return []Array{a.Data} }

func (a *DistributedSend) String() string {
	return fmt.Sprintf("DistributedSend(dest=%d, tag=%s)%s", a.DestRank, a.CommTag, a.ShapeF)
}

// Recv returns a node receiving an array from another rank.
func Recv(srcRank int, commTag string, shape Shape, dt dtype.DataType, tags ...string) (*DistributedRecv, error) {
	if srcRank < 0 {
		return nil, errors.Errorf("invalid source rank %d", srcRank)
	}
	if err := checkShape(shape); err != nil {
		return nil, errors.Wrapf(err, "invalid shape for receive")
	}
	return &DistributedRecv{
		Info:    Info{ShapeF: shape, DTypeF: dt, TagsF: NewTags(tags...)},
		SrcRank: srcRank,
		CommTag: commTag,
	}, nil
}

func (*DistributedRecv) node() {}

// Kind of the node.
func (*DistributedRecv) Kind() Kind { return DistributedRecvKind }

// Children returns the array operands of the node.
func (*DistributedRecv) Children() []Array { return nil }

func (a *DistributedRecv) String() string {
	return fmt.Sprintf("DistributedRecv(src=%d, tag=%s)%s", a.SrcRank, a.CommTag, a.ShapeF)
}
