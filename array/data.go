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
	"slices"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
)

// Data is host data bound to a DataWrapper.
// Values are stored in row-major order, converted to float64.
type Data struct {
	Shape  *shape.Shape
	Values []float64
}

// NewData returns host data given its element type and axis lengths.
func NewData(dt dtype.DataType, dims []int, values []float64) (*Data, error) {
	sh := &shape.Shape{DType: dt, AxisLengths: slices.Clone(dims)}
	for i, dim := range dims {
		if dim < 0 {
			return nil, errors.Errorf("axis %d: negative length %d", i, dim)
		}
	}
	if len(values) != sh.Size() {
		return nil, errors.Errorf("shape %s requires %d values but got %d", sh, sh.Size(), len(values))
	}
	return &Data{Shape: sh, Values: values}, nil
}

// Zeros returns host data filled with zeros.
func Zeros(dt dtype.DataType, dims []int) *Data {
	sh := &shape.Shape{DType: dt, AxisLengths: slices.Clone(dims)}
	return &Data{Shape: sh, Values: make([]float64, sh.Size())}
}

// Offset returns the position of an element in Values.
func (d *Data) Offset(index []int64) (int, error) {
	dims := d.Shape.AxisLengths
	if len(index) != len(dims) {
		return 0, errors.Errorf("index %v does not match shape %s", index, d.Shape)
	}
	offset := 0
	for i, idx := range index {
		if idx < 0 || idx >= int64(dims[i]) {
			return 0, errors.Errorf("index %v out of bounds for shape %s", index, d.Shape)
		}
		offset = offset*dims[i] + int(idx)
	}
	return offset, nil
}

// At returns the element at a given index.
func (d *Data) At(index []int64) (float64, error) {
	offset, err := d.Offset(index)
	if err != nil {
		return 0, err
	}
	return d.Values[offset], nil
}

// Set an element at a given index.
func (d *Data) Set(index []int64, val float64) error {
	offset, err := d.Offset(index)
	if err != nil {
		return err
	}
	d.Values[offset] = val
	return nil
}

func (d *Data) String() string {
	return fmt.Sprintf("%s%v", d.Shape, d.Values)
}
