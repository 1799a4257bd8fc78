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

package array_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/gxlower/array"
)

func mustPlaceholder(t *testing.T, name string, shape array.Shape) *array.Placeholder {
	t.Helper()
	a, err := array.MakePlaceholder(name, shape, dtype.Float64)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestShapes(t *testing.T) {
	n, err := array.MakeSizeParam("n")
	if err != nil {
		t.Fatal(err)
	}
	x := mustPlaceholder(t, "x", array.Ints(2, 3))
	y := mustPlaceholder(t, "y", array.Shape{array.IntDim(3), array.ParamDim(n)})
	matmul, err := array.MatMul(x, y)
	if err != nil {
		t.Fatal(err)
	}
	stack, err := array.StackOf([]array.Array{x, x, x}, 1)
	if err != nil {
		t.Fatal(err)
	}
	concat, err := array.Concat([]array.Array{x, x}, 0)
	if err != nil {
		t.Fatal(err)
	}
	transpose, err := array.Transpose(y)
	if err != nil {
		t.Fatal(err)
	}
	slice, err := array.SliceOf(x, []int{1, 0}, []int{2, 2})
	if err != nil {
		t.Fatal(err)
	}
	reshape, err := array.ReshapeOf(x, array.Ints(6))
	if err != nil {
		t.Fatal(err)
	}
	roll, err := array.RollOf(x, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		a    array.Array
		want string
	}{
		{a: x, want: "(2, 3)"},
		{a: n, want: "()"},
		{a: matmul, want: "(2, n)"},
		{a: stack, want: "(2, 3, 3)"},
		{a: concat, want: "(4, 3)"},
		{a: transpose, want: "(n, 3)"},
		{a: slice, want: "(1, 2)"},
		{a: reshape, want: "(6)"},
		{a: roll, want: "(2, 3)"},
	}
	for i, test := range tests {
		got := test.a.Shape().String()
		if got != test.want {
			t.Errorf("test %d: %s: got shape %s but want %s", i, test.a.Kind(), got, test.want)
		}
	}
}

func TestInvalidNodes(t *testing.T) {
	x := mustPlaceholder(t, "x", array.Ints(2, 3))
	y := mustPlaceholder(t, "y", array.Ints(2, 3))
	tests := []struct {
		name string
		err  func() error
	}{
		{
			name: "matmul contraction",
			err: func() error {
				_, err := array.MatMul(x, y)
				return err
			},
		},
		{
			name: "stack axis",
			err: func() error {
				_, err := array.StackOf([]array.Array{x, y}, 3)
				return err
			},
		},
		{
			name: "stack empty",
			err: func() error {
				_, err := array.StackOf(nil, 0)
				return err
			},
		},
		{
			name: "permutation",
			err: func() error {
				_, err := array.Permute(x, []int{0, 0})
				return err
			},
		},
		{
			name: "slice bounds",
			err: func() error {
				_, err := array.SliceOf(x, []int{0, 0}, []int{3, 3})
				return err
			},
		},
		{
			name: "reshape size",
			err: func() error {
				_, err := array.ReshapeOf(x, array.Ints(5))
				return err
			},
		},
		{
			name: "roll axis",
			err: func() error {
				_, err := array.RollOf(x, 1, 2)
				return err
			},
		},
		{
			name: "placeholder name",
			err: func() error {
				_, err := array.MakePlaceholder("", array.Ints(1), dtype.Float64)
				return err
			},
		},
	}
	for _, test := range tests {
		if err := test.err(); err == nil {
			t.Errorf("%s: expected an error but got nil", test.name)
		}
	}
}

func TestElementwise(t *testing.T) {
	x := mustPlaceholder(t, "x", array.Ints(2, 2))
	tests := []struct {
		x, y any
		want string
	}{
		{x: x, y: 42, want: "(_in0[_0, _1] + 42.0)"},
		{x: 2, y: x, want: "(2.0 * _in0[_0, _1])"},
		{x: x, y: x, want: "(_in0[_0, _1] - _in1[_0, _1])"},
	}
	ops := []func(x, y any) (*array.IndexLambda, error){array.Add, array.Mul, array.Sub}
	for i, test := range tests {
		got, err := ops[i](test.x, test.y)
		if err != nil {
			t.Errorf("test %d: %v", i, err)
			continue
		}
		if got.Expr.String() != test.want {
			t.Errorf("test %d: got %s but want %s", i, got.Expr, test.want)
		}
		if !array.SameShape(got.Shape(), x.Shape()) {
			t.Errorf("test %d: got shape %s but want %s", i, got.Shape(), x.Shape())
		}
	}
	if _, err := array.Add(1, 2); err == nil {
		t.Errorf("expected an error when adding two constants")
	}
	other := mustPlaceholder(t, "other", array.Ints(3))
	if _, err := array.Add(x, other); err == nil {
		t.Errorf("expected an error when adding arrays of different shapes")
	}
}

func TestNamespace(t *testing.T) {
	n, err := array.MakeSizeParam("n")
	if err != nil {
		t.Fatal(err)
	}
	x := mustPlaceholder(t, "x", array.Shape{array.ParamDim(n)})
	data, err := array.NewData(dtype.Float64, []int{3}, []float64{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	w, err := array.NewDataWrapper("w", data, array.Shape{array.ParamDim(n)})
	if err != nil {
		t.Fatal(err)
	}
	sum, err := array.Add(x, w)
	if err != nil {
		t.Fatal(err)
	}
	dict, err := array.DictOf("out", sum)
	if err != nil {
		t.Fatal(err)
	}
	ns, err := dict.Namespace()
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for name := range ns.Items().Keys() {
		got = append(got, name)
	}
	want := []string{"n", "w", "x"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected namespace: (-want +got):\n%s", diff)
	}
	if found, ok := ns.Find("n"); !ok || found != array.Array(n) {
		t.Errorf("got %v but want %v", found, n)
	}

}

func TestNamespaceSharedNames(t *testing.T) {
	data, err := array.NewData(dtype.Float64, []int{2}, []float64{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	otherData, err := array.NewData(dtype.Float64, []int{2}, []float64{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	wrap := func(name string, data *array.Data) array.Array {
		w, err := array.MakeDataWrapper(name, data)
		if err != nil {
			t.Fatal(err)
		}
		return w
	}
	placeholder := func(name string, shape array.Shape, dt dtype.DataType, tags ...string) array.Array {
		x, err := array.MakePlaceholder(name, shape, dt, tags...)
		if err != nil {
			t.Fatal(err)
		}
		return x
	}
	tests := []struct {
		name    string
		x, y    array.Array
		wantErr bool
	}{
		{
			name: "equal placeholders",
			x:    placeholder("x", array.Ints(2), dtype.Float64),
			y:    placeholder("x", array.Ints(2), dtype.Float64),
		},
		{
			name: "data wrappers sharing data",
			x:    wrap("w", data),
			y:    wrap("w", data),
		},
		{
			name:    "data wrappers with different data",
			x:       wrap("w", data),
			y:       wrap("w", otherData),
			wantErr: true,
		},
		{
			name:    "different shapes",
			x:       placeholder("x", array.Ints(2), dtype.Float64),
			y:       placeholder("x", array.Ints(3), dtype.Float64),
			wantErr: true,
		},
		{
			name:    "different data types",
			x:       placeholder("x", array.Ints(2), dtype.Float64),
			y:       placeholder("x", array.Ints(2), dtype.Float32),
			wantErr: true,
		},
		{
			name:    "different tags",
			x:       placeholder("x", array.Ints(2), dtype.Float64),
			y:       placeholder("x", array.Ints(2), dtype.Float64, "batch"),
			wantErr: true,
		},
		{
			name:    "different kinds",
			x:       placeholder("x", array.Ints(2), dtype.Float64),
			y:       wrap("x", data),
			wantErr: true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dict := array.NewDict()
			if err := dict.Add("a", test.x); err != nil {
				t.Fatal(err)
			}
			if err := dict.Add("b", test.y); err != nil {
				t.Fatal(err)
			}
			ns, err := dict.Namespace()
			if test.wantErr {
				if err == nil {
					t.Errorf("expected an error for two different inputs sharing a name")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if ns.Len() != 1 {
				t.Errorf("got %d inputs but want 1", ns.Len())
			}
		})
	}
}

func TestData(t *testing.T) {
	data, err := array.NewData(dtype.Float32, []int{2, 3}, []float64{0, 1, 2, 3, 4, 5})
	if err != nil {
		t.Fatal(err)
	}
	got, err := data.At([]int64{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("got %v but want %v", got, 5)
	}
	if _, err := data.At([]int64{2, 0}); err == nil {
		t.Errorf("expected an out of bounds error")
	}
	if _, err := array.NewData(dtype.Float32, []int{2}, []float64{1}); err == nil {
		t.Errorf("expected an error for a mismatched number of values")
	}
}
