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
	"sort"

	"github.com/gx-org/gxlower/array"
	"github.com/gx-org/gxlower/base/ordered"
	"github.com/gx-org/gxlower/base/uname"
	"github.com/gx-org/gxlower/domain"
	"github.com/gx-org/gxlower/internal/base/scope"
	"github.com/gx-org/gxlower/kernel"
	"github.com/gx-org/gxlower/transform"
	"golang.org/x/exp/maps"
)

// State is the state of a lowering call.
// A state is owned by a single call and never shared.
type State struct {
	// VarNames generates the names of kernel variables and index variables.
	VarNames *uname.Unique
	// InsnIDs generates the identifiers of kernel instructions.
	InsnIDs *uname.Unique

	namespace scope.Scope[array.Array]
	kernel    *kernel.Kernel
	interner  *transform.Interner
	results   map[int]Result
	opts      *options
	mapper    *codeGenMapper
}

// NewState returns a new lowering state given a namespace and an initial kernel.
func NewState(ns *array.Namespace, k *kernel.Kernel, opts ...Option) (*State, error) {
	o, err := processOptions(opts)
	if err != nil {
		return nil, err
	}
	return newState(ns, k, o), nil
}

func newState(ns *array.Namespace, k *kernel.Kernel, opts *options) *State {
	var nsScope scope.Scope[array.Array] = ns
	if ns == nil {
		nsScope = scope.NewScopeWithValues[array.Array](nil)
	}
	s := &State{
		VarNames:  k.VarNameGenerator(),
		InsnIDs:   k.InstructionIDGenerator(),
		namespace: nsScope,
		kernel:    k,
		interner:  transform.NewInterner(),
		results:   make(map[int]Result),
		opts:      opts,
	}
	s.mapper = &codeGenMapper{state: s}
	return s
}

// Kernel returns the kernel built so far.
func (s *State) Kernel() *kernel.Kernel {
	return s.kernel
}

// UpdateKernel replaces the kernel being built.
func (s *State) UpdateKernel(k *kernel.Kernel) {
	s.kernel = k
}

// Result returns the result of a node if it has already been lowered.
func (s *State) Result(a array.Array) (Result, bool) {
	r, ok := s.results[s.interner.ID(a)]
	return r, ok
}

// Lower returns the result of a node, lowering it and its operands if required.
// A node is lowered at most once: structurally equal nodes share the same result.
func (s *State) Lower(a array.Array) (Result, error) {
	return s.mapper.rec(a)
}

// ExprContext is the context in which a scalar expression is lowered.
// It accumulates the instructions and reduction variables the expression depends on.
type ExprContext struct {
	// ReductionBounds maps reduction variables of the expression to their bounds.
	ReductionBounds *ordered.Map[string, domain.Bound]

	local     scope.Scope[array.Array]
	dependsOn map[string]bool
}

// NewExprContext returns a new expression context.
// Names defined in bindings shadow the names of the namespace of the state.
func NewExprContext(state *State, bindings map[string]array.Array) *ExprContext {
	var parent scope.Scope[array.Array]
	if state != nil {
		parent = state.namespace
	}
	return &ExprContext{
		ReductionBounds: ordered.NewMap[string, domain.Bound](),
		local:           scope.NewReadOnly(parent, scope.NewScopeWithValues(bindings)),
		dependsOn:       make(map[string]bool),
	}
}

// Lookup returns the array defined for a name.
func (c *ExprContext) Lookup(name string) (array.Array, bool) {
	return c.local.Find(name)
}

// DependsOn returns the sorted identifiers of the instructions the expression depends on.
func (c *ExprContext) DependsOn() []string {
	deps := maps.Keys(c.dependsOn)
	sort.Strings(deps)
	return deps
}

// UpdateDependsOn adds instruction identifiers to the dependencies of the expression.
func (c *ExprContext) UpdateDependsOn(ids ...string) {
	for _, id := range ids {
		c.dependsOn[id] = true
	}
}
