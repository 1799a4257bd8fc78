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

// Package uname provides unique names.
package uname

import "fmt"

// Unique generates unique names.
// A name returned by Name is never returned twice and never
// collides with a name that has been registered.
type Unique struct {
	taken map[string]bool
	next  map[string]int
}

// New name generator.
func New() *Unique {
	return &Unique{
		taken: make(map[string]bool),
		next:  make(map[string]int),
	}
}

// Register reserves names such that they will not be returned by Name.
func (n *Unique) Register(names ...string) {
	for _, name := range names {
		n.taken[name] = true
	}
}

// IsTaken returns true if a name has been registered or generated.
func (n *Unique) IsTaken(name string) bool {
	return n.taken[name]
}

// Name returns a unique name given a desired base name.
// If the base name is available, it is returned directly. Else, a unique suffix is appended.
func (n *Unique) Name(root string) string {
	if !n.taken[root] {
		n.taken[root] = true
		return root
	}
	for {
		index := n.next[root]
		n.next[root] = index + 1
		name := fmt.Sprintf("%s_%d", root, index)
		if n.taken[name] {
			continue
		}
		n.taken[name] = true
		return name
	}
}
