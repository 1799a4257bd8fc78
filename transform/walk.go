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
	"github.com/gx-org/gxlower/array"
)

// Visitor is called by Walk on the nodes of a graph.
type Visitor interface {
	// Visit is called before the operands of a node are walked.
	// Returning false skips the operands of the node and its PostVisit.
	Visit(array.Array) bool
	// PostVisit is called after the operands of a node have been walked.
	PostVisit(array.Array)
}

// walkMapper returns the nodes to walk after a node.
type walkMapper struct{}

const walkMapperName = "WalkMapper"

func (walkMapper) operands(a array.Array) ([]array.Array, error) {
	return array.Operands(a), nil
}

func (m walkMapper) MapPlaceholder(a *array.Placeholder) ([]array.Array, error) {
	return m.operands(a)
}

func (m walkMapper) MapDataWrapper(a *array.DataWrapper) ([]array.Array, error) {
	return m.operands(a)
}

func (m walkMapper) MapSizeParam(a *array.SizeParam) ([]array.Array, error) {
	return m.operands(a)
}

func (m walkMapper) MapIndexLambda(a *array.IndexLambda) ([]array.Array, error) {
	return m.operands(a)
}

func (m walkMapper) MapMatrixProduct(a *array.MatrixProduct) ([]array.Array, error) {
	return m.operands(a)
}

func (m walkMapper) MapStack(a *array.Stack) ([]array.Array, error) {
	return m.operands(a)
}

func (m walkMapper) MapConcatenate(a *array.Concatenate) ([]array.Array, error) {
	return m.operands(a)
}

func (m walkMapper) MapRoll(a *array.Roll) ([]array.Array, error) {
	return m.operands(a)
}

func (m walkMapper) MapAxisPermutation(a *array.AxisPermutation) ([]array.Array, error) {
	return m.operands(a)
}

func (m walkMapper) MapSlice(a *array.Slice) ([]array.Array, error) {
	return m.operands(a)
}

func (m walkMapper) MapReshape(a *array.Reshape) ([]array.Array, error) {
	return m.operands(a)
}

func (m walkMapper) MapDistributedSend(a *array.DistributedSend) ([]array.Array, error) {
	return m.operands(a)
}

func (m walkMapper) MapDistributedRecv(a *array.DistributedRecv) ([]array.Array, error) {
	return m.operands(a)
}

// Walk visits the graphs rooted at x in depth-first order.
//
// Nodes shared by several parents are visited once per parent:
// the walk is not memoized. The operands of a node are walked in order:
// children first, then the arrays referenced by its shape.
func Walk(v Visitor, x any) error {
	a, ok := x.(array.Array)
	if !ok || a == nil {
		return &ForeignObjectError{Mapper: walkMapperName, Value: x}
	}
	stack := []frame{{node: a}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.expanded {
			v.PostVisit(top.node)
			continue
		}
		if !v.Visit(top.node) {
			continue
		}
		stack = append(stack, frame{node: top.node, expanded: true})
		ops, err := Dispatch[[]array.Array](walkMapperName, walkMapper{}, top.node)
		if err != nil {
			return err
		}
		for i := len(ops) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: ops[i]})
		}
	}
	return nil
}

type topoSorter struct {
	interner *Interner
	seen     map[int]bool
	order    []array.Array
}

func (s *topoSorter) Visit(a array.Array) bool {
	id := s.interner.ID(a)
	if s.seen[id] {
		return false
	}
	s.seen[id] = true
	return true
}

func (s *topoSorter) PostVisit(a array.Array) {
	s.order = append(s.order, a)
}

// TopoSort returns the nodes of the graphs of a dictionary, every node
// after all the nodes it depends on. Structurally equal nodes appear once.
func TopoSort(dict *array.DictOfNamedArrays) ([]array.Array, error) {
	s := &topoSorter{
		interner: NewInterner(),
		seen:     make(map[int]bool),
	}
	for _, a := range dict.Iter() {
		if err := Walk(s, a); err != nil {
			return nil, err
		}
	}
	return s.order, nil
}
