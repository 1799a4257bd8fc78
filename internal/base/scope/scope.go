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

// Package scope provides read-only namespaces that can be layered:
// a local namespace shadows its parent.
package scope

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gx-org/gxlower/base/ordered"
)

type (
	// Scope provides a set of values that can be find given their name.
	Scope[V any] interface {
		Find(string) (V, bool)
		Items() *ordered.Map[string, V]
	}

	roScope[V any] struct {
		parent Scope[V]
		local  Scope[V]
	}

	localScope[V any] struct {
		data *ordered.Map[string, V]
	}
)

// NewReadOnly returns a scope that can only be queried and not modified.
// Names defined in data shadow the names defined in parent.
func NewReadOnly[V any](parent, data Scope[V]) Scope[V] {
	return &roScope[V]{
		parent: parent,
		local:  data,
	}
}

// NewScopeWithValues returns a scope with predefined values.
// Values are ordered by name.
func NewScopeWithValues[V any](vals map[string]V) Scope[V] {
	names := make([]string, 0, len(vals))
	for name := range vals {
		names = append(names, name)
	}
	sort.Strings(names)
	data := ordered.NewMap[string, V]()
	for _, name := range names {
		data.Store(name, vals[name])
	}
	return &localScope[V]{data: data}
}

func find[V any](key string, local Scope[V], parent Scope[V]) (value V, ok bool) {
	if local != nil {
		value, ok = local.Find(key)
	}
	if ok || parent == nil {
		return
	}
	return parent.Find(key)
}

// Find returns the value associated with `key`, if any.
//
// The second return value indicates whether any value was found.
func (s *roScope[V]) Find(key string) (value V, ok bool) {
	return find(key, s.local, s.parent)
}

func mergeItems[V any](scopes ...Scope[V]) *ordered.Map[string, V] {
	all := ordered.NewMap[string, V]()
	for _, scope := range scopes {
		if scope == nil {
			continue
		}
		for k, v := range scope.Items().Iter() {
			all.Store(k, v)
		}
	}
	return all
}

func (s *roScope[V]) Items() *ordered.Map[string, V] {
	return mergeItems(s.parent, s.local)
}

func (s *roScope[V]) String() string {
	parentS := "root"
	if s.parent != nil {
		parentS = fmt.Sprint(s.parent)
	}
	return fmt.Sprintf("%s\n-- %p --\n%v\n", parentS, s.local, s.local)
}

func (s *localScope[V]) Find(key string) (value V, ok bool) {
	return s.data.Load(key)
}

func (s *localScope[V]) Items() *ordered.Map[string, V] {
	return s.data.Clone()
}

func (s *localScope[V]) String() string {
	if s.data.Size() == 0 {
		return "empty"
	}
	var kvs []string
	for k, v := range s.data.Iter() {
		kvs = append(kvs, fmt.Sprintf("%s: %T:%v", k, v, v))
	}
	return strings.Join(kvs, "\n")
}
