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

// Package transform provides the framework to traverse and rewrite
// graphs of array expressions.
package transform

import (
	"github.com/gx-org/gxlower/array"
)

type (
	// PlaceholderMapper maps placeholders.
	PlaceholderMapper[T any] interface {
		MapPlaceholder(*array.Placeholder) (T, error)
	}

	// DataWrapperMapper maps data wrappers.
	DataWrapperMapper[T any] interface {
		MapDataWrapper(*array.DataWrapper) (T, error)
	}

	// SizeParamMapper maps size parameters.
	SizeParamMapper[T any] interface {
		MapSizeParam(*array.SizeParam) (T, error)
	}

	// IndexLambdaMapper maps index lambdas.
	IndexLambdaMapper[T any] interface {
		MapIndexLambda(*array.IndexLambda) (T, error)
	}

	// MatrixProductMapper maps matrix products.
	MatrixProductMapper[T any] interface {
		MapMatrixProduct(*array.MatrixProduct) (T, error)
	}

	// StackMapper maps stacks.
	StackMapper[T any] interface {
		MapStack(*array.Stack) (T, error)
	}

	// ConcatenateMapper maps concatenations.
	ConcatenateMapper[T any] interface {
		MapConcatenate(*array.Concatenate) (T, error)
	}

	// RollMapper maps rolls.
	RollMapper[T any] interface {
		MapRoll(*array.Roll) (T, error)
	}

	// AxisPermutationMapper maps axis permutations.
	AxisPermutationMapper[T any] interface {
		MapAxisPermutation(*array.AxisPermutation) (T, error)
	}

	// SliceMapper maps slices.
	SliceMapper[T any] interface {
		MapSlice(*array.Slice) (T, error)
	}

	// ReshapeMapper maps reshapes.
	ReshapeMapper[T any] interface {
		MapReshape(*array.Reshape) (T, error)
	}

	// DistributedSendMapper maps sends.
	DistributedSendMapper[T any] interface {
		MapDistributedSend(*array.DistributedSend) (T, error)
	}

	// DistributedRecvMapper maps receives.
	DistributedRecvMapper[T any] interface {
		MapDistributedRecv(*array.DistributedRecv) (T, error)
	}
)

// handler returns a function calling the handler of a mapper for a node.
// The second value is false if the mapper does not handle the kind of the node.
func handler[T any](mapper any, a array.Array) (func() (T, error), bool) {
	switch aT := a.(type) {
	case *array.Placeholder:
		m, ok := mapper.(PlaceholderMapper[T])
		if !ok {
			return nil, false
		}
		return func() (T, error) { return m.MapPlaceholder(aT) }, true
	case *array.DataWrapper:
		m, ok := mapper.(DataWrapperMapper[T])
		if !ok {
			return nil, false
		}
		return func() (T, error) { return m.MapDataWrapper(aT) }, true
	case *array.SizeParam:
		m, ok := mapper.(SizeParamMapper[T])
		if !ok {
			return nil, false
		}
		return func() (T, error) { return m.MapSizeParam(aT) }, true
	case *array.IndexLambda:
		m, ok := mapper.(IndexLambdaMapper[T])
		if !ok {
			return nil, false
		}
		return func() (T, error) { return m.MapIndexLambda(aT) }, true
	case *array.MatrixProduct:
		m, ok := mapper.(MatrixProductMapper[T])
		if !ok {
			return nil, false
		}
		return func() (T, error) { return m.MapMatrixProduct(aT) }, true
	case *array.Stack:
		m, ok := mapper.(StackMapper[T])
		if !ok {
			return nil, false
		}
		return func() (T, error) { return m.MapStack(aT) }, true
	case *array.Concatenate:
		m, ok := mapper.(ConcatenateMapper[T])
		if !ok {
			return nil, false
		}
		return func() (T, error) { return m.MapConcatenate(aT) }, true
	case *array.Roll:
		m, ok := mapper.(RollMapper[T])
		if !ok {
			return nil, false
		}
		return func() (T, error) { return m.MapRoll(aT) }, true
	case *array.AxisPermutation:
		m, ok := mapper.(AxisPermutationMapper[T])
		if !ok {
			return nil, false
		}
		return func() (T, error) { return m.MapAxisPermutation(aT) }, true
	case *array.Slice:
		m, ok := mapper.(SliceMapper[T])
		if !ok {
			return nil, false
		}
		return func() (T, error) { return m.MapSlice(aT) }, true
	case *array.Reshape:
		m, ok := mapper.(ReshapeMapper[T])
		if !ok {
			return nil, false
		}
		return func() (T, error) { return m.MapReshape(aT) }, true
	case *array.DistributedSend:
		m, ok := mapper.(DistributedSendMapper[T])
		if !ok {
			return nil, false
		}
		return func() (T, error) { return m.MapDistributedSend(aT) }, true
	case *array.DistributedRecv:
		m, ok := mapper.(DistributedRecvMapper[T])
		if !ok {
			return nil, false
		}
		return func() (T, error) { return m.MapDistributedRecv(aT) }, true
	}
	return nil, false
}

// Handles returns true if a mapper has a handler returning T for the kind of a node.
func Handles[T any](mapper any, a array.Array) bool {
	if mapper == nil {
		return false
	}
	_, ok := handler[T](mapper, a)
	return ok
}

// Dispatch calls the handler of a mapper matching the kind of x.
//
// name identifies the mapper in errors.
// A *ForeignObjectError is returned if x is not an array.
// A *UnsupportedNodeKindError is returned if the mapper has no handler
// for the kind of x.
func Dispatch[T any](name string, mapper any, x any) (T, error) {
	var zero T
	a, ok := x.(array.Array)
	if !ok || a == nil {
		return zero, &ForeignObjectError{Mapper: name, Value: x}
	}
	h, ok := handler[T](mapper, a)
	if !ok {
		return zero, &UnsupportedNodeKindError{Mapper: name, Kind: a.Kind()}
	}
	return h()
}
