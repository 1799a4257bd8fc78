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

package domain_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/gx-org/gxlower/base/ordered"
	"github.com/gx-org/gxlower/domain"
	"github.com/gx-org/gxlower/scalar"
)

func TestSymbolicShape(t *testing.T) {
	set, err := domain.Build([]string{"_0", "_1"}, []scalar.Expr{scalar.Int(5), scalar.V("n")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"n"}, set.Params()); diff != "" {
		t.Errorf("unexpected parameters: (-want +got):\n%s", diff)
	}
	got, err := set.Count(scalar.Bindings{"n": 3})
	if err != nil {
		t.Fatal(err)
	}
	if got != 15 {
		t.Errorf("got %d points but want %d", got, 15)
	}
	want := "[n] -> { [_0, _1] : 0 <= _0 < 5 and 0 <= _1 < n }"
	if set.String() != want {
		t.Errorf("got %s but want %s", set.String(), want)
	}
}

func TestReductions(t *testing.T) {
	reductions := ordered.NewMap[string, domain.Bound]()
	reductions.Store("_r0", domain.Bound{Lower: scalar.Int(0), Upper: scalar.V("m")})
	set, err := domain.Build([]string{"_0"}, []scalar.Expr{scalar.Int(2)}, reductions)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"_0", "_r0"}, set.Dims()); diff != "" {
		t.Errorf("unexpected dimensions: (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"m"}, set.Params()); diff != "" {
		t.Errorf("unexpected parameters: (-want +got):\n%s", diff)
	}
	var points [][2]int64
	err = set.Enumerate([]string{"_0", "_r0"}, scalar.Bindings{"m": 2}, func(p scalar.Bindings) error {
		points = append(points, [2]int64{p["_0"], p["_r0"]})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := [][2]int64{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	if diff := cmp.Diff(want, points); diff != "" {
		t.Errorf("unexpected points: (-want +got):\n%s", diff)
	}
}

func TestEmptyDomain(t *testing.T) {
	set, err := domain.Build(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := set.Count(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("got %d points but want 1", got)
	}
	set, err = domain.Build([]string{"i"}, []scalar.Expr{scalar.Int(0)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := set.Count(nil); got != 0 {
		t.Errorf("got %d points but want 0", got)
	}
}

func TestShapeMismatch(t *testing.T) {
	_, err := domain.Build([]string{"_0"}, []scalar.Expr{scalar.Int(2), scalar.Int(3)}, nil)
	var mismatch *domain.ShapeMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("got error %v but want a ShapeMismatchError", err)
	}
	if len(mismatch.Names) != 1 || len(mismatch.Shape) != 2 {
		t.Errorf("got %d names and %d axes but want 1 and 2", len(mismatch.Names), len(mismatch.Shape))
	}
}

func TestMissingParameter(t *testing.T) {
	set, err := domain.Build([]string{"i"}, []scalar.Expr{scalar.V("n")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := set.Count(nil); err == nil {
		t.Errorf("expected an error when n is not bound")
	}
}
