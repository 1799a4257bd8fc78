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
	"fmt"

	"github.com/gx-org/gxlower/array"
)

// SymbolicShapeViolationError is returned when an axis length of an array
// does not lower to a pure integer expression: it depends on instructions
// or on reduction variables.
type SymbolicShapeViolationError struct {
	Node       array.Array
	Axis       int
	DependsOn  []string
	Reductions []string
}

func (err *SymbolicShapeViolationError) Error() string {
	return fmt.Sprintf("length of axis %d of %s is not a pure integer expression: depends on instructions %v and reductions %v", err.Axis, err.Node, err.DependsOn, err.Reductions)
}

// ReductionNameCollisionError is returned when a generated reduction variable
// name is already used in an expression context.
type ReductionNameCollisionError struct {
	Name string
}

func (err *ReductionNameCollisionError) Error() string {
	return fmt.Sprintf("reduction variable %s already defined", err.Name)
}
