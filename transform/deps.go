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
	"golang.org/x/tools/container/intsets"

	"github.com/gx-org/gxlower/array"
	"github.com/gx-org/gxlower/base/ordered"
)

// NodeSet is a set of nodes, identified by their canonical identifiers.
// Structurally equal nodes are the same element.
type NodeSet struct {
	interner *Interner
	ids      intsets.Sparse
}

func newNodeSet(in *Interner) *NodeSet {
	return &NodeSet{interner: in}
}

// Has returns true if the set contains a node structurally equal to a.
func (s *NodeSet) Has(a array.Array) bool {
	return s.ids.Has(s.interner.ID(a))
}

// Len returns the number of nodes in the set.
func (s *NodeSet) Len() int {
	return s.ids.Len()
}

// Nodes returns one node for every element of the set,
// ordered by canonical identifier.
func (s *NodeSet) Nodes() []array.Array {
	ids := s.ids.AppendTo(nil)
	nodes := make([]array.Array, len(ids))
	for i, id := range ids {
		nodes[i] = s.interner.Node(id)
	}
	return nodes
}

func (s *NodeSet) String() string {
	return s.ids.String()
}

// DependencyMapper computes for every node the set of all the nodes
// it depends on, including itself.
type DependencyMapper struct {
	interner *Interner
	cache    map[int]*NodeSet
}

const dependencyMapperName = "DependencyMapper"

var (
	_ PlaceholderMapper[*NodeSet]     = (*DependencyMapper)(nil)
	_ DataWrapperMapper[*NodeSet]     = (*DependencyMapper)(nil)
	_ SizeParamMapper[*NodeSet]       = (*DependencyMapper)(nil)
	_ IndexLambdaMapper[*NodeSet]     = (*DependencyMapper)(nil)
	_ MatrixProductMapper[*NodeSet]   = (*DependencyMapper)(nil)
	_ StackMapper[*NodeSet]           = (*DependencyMapper)(nil)
	_ ConcatenateMapper[*NodeSet]     = (*DependencyMapper)(nil)
	_ RollMapper[*NodeSet]            = (*DependencyMapper)(nil)
	_ AxisPermutationMapper[*NodeSet] = (*DependencyMapper)(nil)
	_ SliceMapper[*NodeSet]           = (*DependencyMapper)(nil)
	_ ReshapeMapper[*NodeSet]         = (*DependencyMapper)(nil)
	_ DistributedSendMapper[*NodeSet] = (*DependencyMapper)(nil)
	_ DistributedRecvMapper[*NodeSet] = (*DependencyMapper)(nil)
)

// NewDependencyMapper returns a new dependency mapper.
func NewDependencyMapper() *DependencyMapper {
	return &DependencyMapper{
		interner: NewInterner(),
		cache:    make(map[int]*NodeSet),
	}
}

func (m *DependencyMapper) done(a array.Array) bool {
	_, ok := m.cache[m.interner.ID(a)]
	return ok
}

func (m *DependencyMapper) visit(a array.Array) error {
	deps, err := Dispatch[*NodeSet](dependencyMapperName, m, a)
	if err != nil {
		return err
	}
	m.cache[m.interner.ID(a)] = deps
	return nil
}

// Dependencies returns the nodes a graph depends on, including its root.
// x must be an array.
func (m *DependencyMapper) Dependencies(x any) (*NodeSet, error) {
	a, ok := x.(array.Array)
	if !ok || a == nil {
		return nil, &ForeignObjectError{Mapper: dependencyMapperName, Value: x}
	}
	id := m.interner.ID(a)
	if deps, ok := m.cache[id]; ok {
		return deps, nil
	}
	if err := PostOrder(a, m.done, m.visit); err != nil {
		return nil, err
	}
	return m.cache[id], nil
}

// combine returns the node itself with the dependencies of its operands,
// including the arrays referenced by its shape.
func (m *DependencyMapper) combine(a array.Array) (*NodeSet, error) {
	deps := newNodeSet(m.interner)
	deps.ids.Insert(m.interner.ID(a))
	for _, op := range array.Operands(a) {
		opDeps, err := m.Dependencies(op)
		if err != nil {
			return nil, err
		}
		deps.ids.UnionWith(&opDeps.ids)
	}
	return deps, nil
}

// MapPlaceholder returns the dependencies of a placeholder.
func (m *DependencyMapper) MapPlaceholder(a *array.Placeholder) (*NodeSet, error) {
	return m.combine(a)
}

// MapDataWrapper returns the dependencies of a data wrapper.
func (m *DependencyMapper) MapDataWrapper(a *array.DataWrapper) (*NodeSet, error) {
	return m.combine(a)
}

// MapSizeParam returns the dependencies of a size parameter.
func (m *DependencyMapper) MapSizeParam(a *array.SizeParam) (*NodeSet, error) {
	return m.combine(a)
}

// MapIndexLambda returns the dependencies of an index lambda.
func (m *DependencyMapper) MapIndexLambda(a *array.IndexLambda) (*NodeSet, error) {
	return m.combine(a)
}

// MapMatrixProduct returns the dependencies of a matrix product.
func (m *DependencyMapper) MapMatrixProduct(a *array.MatrixProduct) (*NodeSet, error) {
	return m.combine(a)
}

// MapStack returns the dependencies of a stack.
func (m *DependencyMapper) MapStack(a *array.Stack) (*NodeSet, error) {
	return m.combine(a)
}

// MapConcatenate returns the dependencies of a concatenation.
func (m *DependencyMapper) MapConcatenate(a *array.Concatenate) (*NodeSet, error) {
	return m.combine(a)
}

// MapRoll returns the dependencies of a roll.
func (m *DependencyMapper) MapRoll(a *array.Roll) (*NodeSet, error) {
	return m.combine(a)
}

// MapAxisPermutation returns the dependencies of an axis permutation.
func (m *DependencyMapper) MapAxisPermutation(a *array.AxisPermutation) (*NodeSet, error) {
	return m.combine(a)
}

// MapSlice returns the dependencies of a slice.
func (m *DependencyMapper) MapSlice(a *array.Slice) (*NodeSet, error) {
	return m.combine(a)
}

// MapReshape returns the dependencies of a reshape.
func (m *DependencyMapper) MapReshape(a *array.Reshape) (*NodeSet, error) {
	return m.combine(a)
}

// MapDistributedSend returns the dependencies of a send.
func (m *DependencyMapper) MapDistributedSend(a *array.DistributedSend) (*NodeSet, error) {
	return m.combine(a)
}

// MapDistributedRecv returns the dependencies of a receive.
func (m *DependencyMapper) MapDistributedRecv(a *array.DistributedRecv) (*NodeSet, error) {
	return m.combine(a)
}

// Dependencies returns, for every output of a dictionary, the set of nodes
// the output depends on.
func Dependencies(dict *array.DictOfNamedArrays) (*ordered.Map[string, *NodeSet], error) {
	m := NewDependencyMapper()
	deps := ordered.NewMap[string, *NodeSet]()
	for name, a := range dict.Iter() {
		set, err := m.Dependencies(a)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot compute the dependencies of %s", name)
		}
		deps.Store(name, set)
	}
	return deps, nil
}
