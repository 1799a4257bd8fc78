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

import "github.com/gx-org/gxlower/array"

type frame struct {
	node     array.Array
	expanded bool
}

// PostOrder calls visit on every node reachable from root, operands
// before their parents, skipping nodes for which done returns true.
//
// visit must make done return true for the node it is given.
// The traversal uses an explicit stack: its native stack usage does not
// depend on the depth of the graph.
func PostOrder(root array.Array, done func(array.Array) bool, visit func(array.Array) error) error {
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if done(top.node) {
			continue
		}
		if top.expanded {
			if err := visit(top.node); err != nil {
				return err
			}
			continue
		}
		stack = append(stack, frame{node: top.node, expanded: true})
		ops := array.Operands(top.node)
		for i := len(ops) - 1; i >= 0; i-- {
			if !done(ops[i]) {
				stack = append(stack, frame{node: ops[i]})
			}
		}
	}
	return nil
}
