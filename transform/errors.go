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

	"github.com/gx-org/gxlower/array"
)

// UnsupportedNodeKindError is returned when a mapper has no handler
// for the kind of a node.
type UnsupportedNodeKindError struct {
	Mapper string
	Kind   array.Kind
}

func (err *UnsupportedNodeKindError) Error() string {
	return fmt.Sprintf("%s does not support nodes of kind %s", err.Mapper, err.Kind)
}

// ForeignObjectError is returned when a mapper is given a value
// that is not a node of a graph.
type ForeignObjectError struct {
	Mapper string
	Value  any
}

func (err *ForeignObjectError) Error() string {
	return fmt.Sprintf("%s cannot map %T: not an array", err.Mapper, err.Value)
}
