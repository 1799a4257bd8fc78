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
	"fmt"
	"strings"

	"github.com/gx-org/gxlower/array"
)

// Interner assigns to every node a canonical integer identifier.
// Two nodes have the same identifier if and only if they are structurally
// equal: same kind, same attributes, same tags, and structurally equal
// operands (including symbolic axis lengths).
//
// Host data of data wrappers is compared by reference.
type Interner struct {
	byNode map[array.Array]int
	byKey  map[string]int
	nodes  []array.Array
}

// NewInterner returns a new interner with no identifier assigned.
func NewInterner() *Interner {
	return &Interner{
		byNode: make(map[array.Array]int),
		byKey:  make(map[string]int),
	}
}

// ID returns the canonical identifier of a node.
func (in *Interner) ID(a array.Array) int {
	if id, ok := in.byNode[a]; ok {
		return id
	}
	// visit never fails.
	_ = PostOrder(a, in.known, in.assign)
	return in.byNode[a]
}

// Node returns the first node interned with a given identifier.
func (in *Interner) Node(id int) array.Array {
	return in.nodes[id]
}

// Len returns the number of distinct identifiers.
func (in *Interner) Len() int {
	return len(in.nodes)
}

func (in *Interner) known(a array.Array) bool {
	_, ok := in.byNode[a]
	return ok
}

func (in *Interner) assign(a array.Array) error {
	key := in.key(a)
	id, ok := in.byKey[key]
	if !ok {
		id = len(in.nodes)
		in.nodes = append(in.nodes, a)
		in.byKey[key] = id
	}
	in.byNode[a] = id
	return nil
}

func attributes(a array.Array) string {
	switch aT := a.(type) {
	case *array.Placeholder:
		return aT.Name
	case *array.DataWrapper:
		return fmt.Sprintf("%s,%p", aT.Name, aT.Data)
	case *array.SizeParam:
		return aT.Name
	case *array.IndexLambda:
		return fmt.Sprintf("%s,%v", aT.Expr, aT.BindingNames())
	case *array.Stack:
		return fmt.Sprint(aT.Axis)
	case *array.Concatenate:
		return fmt.Sprint(aT.Axis)
	case *array.Roll:
		return fmt.Sprintf("%d,%d", aT.Shift, aT.Axis)
	case *array.AxisPermutation:
		return fmt.Sprint(aT.Axes)
	case *array.Slice:
		return fmt.Sprintf("%v,%v", aT.Starts, aT.Stops)
	case *array.DistributedSend:
		return fmt.Sprintf("%d,%q", aT.DestRank, aT.CommTag)
	case *array.DistributedRecv:
		return fmt.Sprintf("%d,%q", aT.SrcRank, aT.CommTag)
	}
	return ""
}

// key returns a string identifying a node given the identifiers of its operands.
func (in *Interner) key(a array.Array) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%v|", a.Kind(), attributes(a), a.DType(), []string(a.Tags()))
	for _, dim := range a.Shape() {
		if dim.IsParam() {
			fmt.Fprintf(&b, "p%d,", in.byNode[dim.Param])
		} else {
			fmt.Fprintf(&b, "i%d,", dim.Size)
		}
	}
	b.WriteString("|")
	for _, child := range a.Children() {
		fmt.Fprintf(&b, "%d,", in.byNode[child])
	}
	return b.String()
}

// Equal returns true if two nodes are structurally equal.
func Equal(a, b array.Array) bool {
	in := NewInterner()
	return in.ID(a) == in.ID(b)
}
