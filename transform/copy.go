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

package transform

import (
	"github.com/pkg/errors"
	"github.com/gx-org/gxlower/array"
)

// CopyMapper builds a structurally equal copy of a graph.
//
// Structurally equal nodes are copied once: they map to the same copy.
// Handlers of Override take precedence over the handlers of the mapper,
// letting callers rewrite some kinds of nodes. Overriding handlers use
// Rec to get the copies of the operands.
type CopyMapper struct {
	// Override implements any subset of the mapper interfaces with T=array.Array.
	Override any

	interner *Interner
	cache    map[int]array.Array
}

const copyMapperName = "CopyMapper"

var (
	_ PlaceholderMapper[array.Array]     = (*CopyMapper)(nil)
	_ DataWrapperMapper[array.Array]     = (*CopyMapper)(nil)
	_ SizeParamMapper[array.Array]       = (*CopyMapper)(nil)
	_ IndexLambdaMapper[array.Array]     = (*CopyMapper)(nil)
	_ MatrixProductMapper[array.Array]   = (*CopyMapper)(nil)
	_ StackMapper[array.Array]           = (*CopyMapper)(nil)
	_ ConcatenateMapper[array.Array]     = (*CopyMapper)(nil)
	_ RollMapper[array.Array]            = (*CopyMapper)(nil)
	_ AxisPermutationMapper[array.Array] = (*CopyMapper)(nil)
	_ SliceMapper[array.Array]           = (*CopyMapper)(nil)
	_ ReshapeMapper[array.Array]         = (*CopyMapper)(nil)
	_ DistributedSendMapper[array.Array] = (*CopyMapper)(nil)
	_ DistributedRecvMapper[array.Array] = (*CopyMapper)(nil)
)

// NewCopyMapper returns a new copy mapper.
func NewCopyMapper(override any) *CopyMapper {
	return &CopyMapper{
		Override: override,
		interner: NewInterner(),
		cache:    make(map[int]array.Array),
	}
}

func (m *CopyMapper) done(a array.Array) bool {
	_, ok := m.cache[m.interner.ID(a)]
	return ok
}

func (m *CopyMapper) visit(a array.Array) error {
	var mapper any = m
	if Handles[array.Array](m.Override, a) {
		mapper = m.Override
	}
	cp, err := Dispatch[array.Array](copyMapperName, mapper, a)
	if err != nil {
		return err
	}
	m.cache[m.interner.ID(a)] = cp
	return nil
}

// Copy returns the copy of a graph.
// x must be an array.
func (m *CopyMapper) Copy(x any) (array.Array, error) {
	a, ok := x.(array.Array)
	if !ok || a == nil {
		return nil, &ForeignObjectError{Mapper: copyMapperName, Value: x}
	}
	return m.Rec(a)
}

// Rec returns the copy of a node, computing it if required.
func (m *CopyMapper) Rec(a array.Array) (array.Array, error) {
	id := m.interner.ID(a)
	if cp, ok := m.cache[id]; ok {
		return cp, nil
	}
	if err := PostOrder(a, m.done, m.visit); err != nil {
		return nil, err
	}
	return m.cache[id], nil
}

func (m *CopyMapper) recAll(as []array.Array) ([]array.Array, error) {
	cps := make([]array.Array, len(as))
	for i, a := range as {
		var err error
		if cps[i], err = m.Rec(a); err != nil {
			return nil, err
		}
	}
	return cps, nil
}

// Shape returns the copy of a shape: symbolic axis lengths are copied.
func (m *CopyMapper) Shape(shape array.Shape) (array.Shape, error) {
	if shape == nil {
		return nil, nil
	}
	cp := make(array.Shape, len(shape))
	for i, dim := range shape {
		if !dim.IsParam() {
			cp[i] = dim
			continue
		}
		param, err := m.Rec(dim.Param)
		if err != nil {
			return nil, err
		}
		cp[i] = array.ParamDim(param)
	}
	return cp, nil
}

// MapPlaceholder copies a placeholder.
func (m *CopyMapper) MapPlaceholder(a *array.Placeholder) (array.Array, error) {
	shape, err := m.Shape(a.Shape())
	if err != nil {
		return nil, err
	}
	return array.MakePlaceholder(a.Name, shape, a.DType(), a.Tags()...)
}

// MapDataWrapper copies a data wrapper. The host data is shared.
func (m *CopyMapper) MapDataWrapper(a *array.DataWrapper) (array.Array, error) {
	shape, err := m.Shape(a.Shape())
	if err != nil {
		return nil, err
	}
	return array.NewDataWrapper(a.Name, a.Data, shape, a.Tags()...)
}

// MapSizeParam copies a size parameter.
func (m *CopyMapper) MapSizeParam(a *array.SizeParam) (array.Array, error) {
	return array.MakeSizeParam(a.Name, a.Tags()...)
}

// MapIndexLambda copies an index lambda and its bindings.
func (m *CopyMapper) MapIndexLambda(a *array.IndexLambda) (array.Array, error) {
	shape, err := m.Shape(a.Shape())
	if err != nil {
		return nil, err
	}
	bindings := make(map[string]array.Array, len(a.Bindings))
	for name, binding := range a.Bindings {
		if bindings[name], err = m.Rec(binding); err != nil {
			return nil, err
		}
	}
	return array.NewIndexLambda(a.Expr, shape, a.DType(), bindings, a.Tags()...)
}

// MapMatrixProduct copies a matrix product.
func (m *CopyMapper) MapMatrixProduct(a *array.MatrixProduct) (array.Array, error) {
	x1, err := m.Rec(a.X1)
	if err != nil {
		return nil, err
	}
	x2, err := m.Rec(a.X2)
	if err != nil {
		return nil, err
	}
	return array.MatMul(x1, x2, a.Tags()...)
}

// MapStack copies a stack.
func (m *CopyMapper) MapStack(a *array.Stack) (array.Array, error) {
	arrays, err := m.recAll(a.Arrays)
	if err != nil {
		return nil, err
	}
	return array.StackOf(arrays, a.Axis, a.Tags()...)
}

// MapConcatenate copies a concatenation.
func (m *CopyMapper) MapConcatenate(a *array.Concatenate) (array.Array, error) {
	arrays, err := m.recAll(a.Arrays)
	if err != nil {
		return nil, err
	}
	return array.Concat(arrays, a.Axis, a.Tags()...)
}

// MapRoll copies a roll.
func (m *CopyMapper) MapRoll(a *array.Roll) (array.Array, error) {
	x, err := m.Rec(a.Array)
	if err != nil {
		return nil, err
	}
	return array.RollOf(x, a.Shift, a.Axis, a.Tags()...)
}

// MapAxisPermutation copies an axis permutation.
func (m *CopyMapper) MapAxisPermutation(a *array.AxisPermutation) (array.Array, error) {
	x, err := m.Rec(a.Array)
	if err != nil {
		return nil, err
	}
	return array.Permute(x, a.Axes, a.Tags()...)
}

// MapSlice copies a slice.
func (m *CopyMapper) MapSlice(a *array.Slice) (array.Array, error) {
	x, err := m.Rec(a.Array)
	if err != nil {
		return nil, err
	}
	return array.SliceOf(x, a.Starts, a.Stops, a.Tags()...)
}

// MapReshape copies a reshape.
func (m *CopyMapper) MapReshape(a *array.Reshape) (array.Array, error) {
	x, err := m.Rec(a.Array)
	if err != nil {
		return nil, err
	}
	return array.ReshapeOf(x, a.Shape(), a.Tags()...)
}

// MapDistributedSend copies a send.
func (m *CopyMapper) MapDistributedSend(a *array.DistributedSend) (array.Array, error) {
	x, err := m.Rec(a.Data)
	if err != nil {
		return nil, err
	}
	return array.Send(x, a.DestRank, a.CommTag, a.Tags()...)
}

// MapDistributedRecv copies a receive.
func (m *CopyMapper) MapDistributedRecv(a *array.DistributedRecv) (array.Array, error) {
	shape, err := m.Shape(a.Shape())
	if err != nil {
		return nil, err
	}
	return array.Recv(a.SrcRank, a.CommTag, shape, a.DType(), a.Tags()...)
}

// CopyDictOfNamedArrays copies every array of a dictionary with the same mapper.
// Arrays shared between outputs are copied once.
func CopyDictOfNamedArrays(dict *array.DictOfNamedArrays, m *CopyMapper) (*array.DictOfNamedArrays, error) {
	out := array.NewDict()
	for name, a := range dict.Iter() {
		cp, err := m.Rec(a)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot copy %s", name)
		}
		if err := out.Add(name, cp); err != nil {
			return nil, err
		}
	}
	return out, nil
}
