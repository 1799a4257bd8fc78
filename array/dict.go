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
	"iter"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/gx-org/gxlower/base/ordered"
)

// DictOfNamedArrays maps names to the output arrays of a computation.
// Names are iterated in insertion order.
type DictOfNamedArrays struct {
	arrays *ordered.Map[string, Array]
}

// NewDict returns an empty dictionary of named arrays.
func NewDict() *DictOfNamedArrays {
	return &DictOfNamedArrays{arrays: ordered.NewMap[string, Array]()}
}

// DictOf returns a dictionary with a single array.
func DictOf(name string, a Array) (*DictOfNamedArrays, error) {
	d := NewDict()
	if err := d.Add(name, a); err != nil {
		return nil, err
	}
	return d, nil
}

// Add an array to the dictionary.
func (d *DictOfNamedArrays) Add(name string, a Array) error {
	if name == "" {
		return errors.Errorf("cannot add an array without a name")
	}
	if a == nil {
		return errors.Errorf("cannot add a nil array for %s", name)
	}
	if d.arrays.Has(name) {
		return errors.Errorf("%s already defined", name)
	}
	d.arrays.Store(name, a)
	return nil
}

// Load returns the array given its name.
func (d *DictOfNamedArrays) Load(name string) (Array, bool) {
	return d.arrays.Load(name)
}

// Names of the arrays in insertion order.
func (d *DictOfNamedArrays) Names() []string {
	return slices.Collect(d.arrays.Keys())
}

// Iter iterates over the (name, array) pairs.
func (d *DictOfNamedArrays) Iter() iter.Seq2[string, Array] {
	return d.arrays.Iter()
}

// Len returns the number of arrays in the dictionary.
func (d *DictOfNamedArrays) Len() int {
	return d.arrays.Size()
}

func (d *DictOfNamedArrays) String() string {
	var ss []string
	for name, a := range d.Iter() {
		ss = append(ss, fmt.Sprintf("%s: %s", name, a))
	}
	return "{" + strings.Join(ss, ", ") + "}"
}

// Namespace is the immutable mapping from names to the named
// leaves (placeholders, data wrappers, size parameters) of a graph.
type Namespace struct {
	data *ordered.Map[string, Array]
}

// Find a leaf given its name.
func (ns *Namespace) Find(name string) (Array, bool) {
	return ns.data.Load(name)
}

// Items returns a copy of the (name, leaf) pairs ordered by name.
func (ns *Namespace) Items() *ordered.Map[string, Array] {
	return ns.data.Clone()
}

// Len returns the number of leaves in the namespace.
func (ns *Namespace) Len() int {
	return ns.data.Size()
}

// LeafName returns the name of a named leaf.
// The second value is false if the array is not a named leaf.
func LeafName(a Array) (string, bool) {
	switch aT := a.(type) {
	case *Placeholder:
		return aT.Name, true
	case *DataWrapper:
		return aT.Name, true
	case *SizeParam:
		return aT.Name, true
	}
	return "", false
}

// sameLeaf returns true if two leaves with the same name are the same input:
// same kind, data type, tags, and shape. Host data is compared by reference.
func sameLeaf(x, y Array) bool {
	if x == y {
		return true
	}
	if x.Kind() != y.Kind() || x.DType() != y.DType() {
		return false
	}
	if !slices.Equal(x.Tags(), y.Tags()) || !SameShape(x.Shape(), y.Shape()) {
		return false
	}
	if xw, ok := x.(*DataWrapper); ok {
		return xw.Data == y.(*DataWrapper).Data
	}
	return true
}

// Namespace collects the named leaves reachable from the arrays
// of the dictionary, including through symbolic axis lengths.
// Leaves sharing a name must be the same input: the first one found is kept.
// Two different leaves sharing a name is an error.
func (d *DictOfNamedArrays) Namespace() (*Namespace, error) {
	leaves := make(map[string]Array)
	seen := make(map[Array]bool)
	stack := slices.Collect(d.arrays.Values())
	for len(stack) > 0 {
		a := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[a] {
			continue
		}
		seen[a] = true
		if name, ok := LeafName(a); ok {
			prev, exists := leaves[name]
			if exists && !sameLeaf(prev, a) {
				return nil, errors.Errorf("name %s is used by two different inputs: %s and %s", name, prev, a)
			}
			if !exists {
				leaves[name] = a
			}
		}
		for _, op := range Operands(a) {
			if !seen[op] {
				stack = append(stack, op)
			}
		}
	}
	names := make([]string, 0, len(leaves))
	for name := range leaves {
		names = append(names, name)
	}
	slices.Sort(names)
	ns := &Namespace{data: ordered.NewMap[string, Array]()}
	for _, name := range names {
		ns.data.Store(name, leaves[name])
	}
	return ns, nil
}
