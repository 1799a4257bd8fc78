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

package kernel_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/gxlower/base/ordered"
	"github.com/gx-org/gxlower/domain"
	"github.com/gx-org/gxlower/kernel"
	"github.com/gx-org/gxlower/scalar"
)

// matVec returns a kernel computing out[i] = sum(a[i, r] * x[r]) for a of shape (n, 3).
func matVec(t *testing.T) *kernel.Kernel {
	t.Helper()
	reductions := ordered.NewMap[string, domain.Bound]()
	reductions.Store("r", domain.Bound{Lower: scalar.Int(0), Upper: scalar.Int(3)})
	dom, err := domain.Build([]string{"i"}, []scalar.Expr{scalar.V("n")}, reductions)
	if err != nil {
		t.Fatal(err)
	}
	body := scalar.Mul(scalar.Index("a", scalar.V("i"), scalar.V("r")), scalar.Index("x", scalar.V("r")))
	return kernel.New("matvec").
		WithArgs(
			&kernel.ValueArg{Name: "n", DType: dtype.Int64},
			&kernel.GlobalArg{Name: "a", Shape: []scalar.Expr{scalar.V("n"), scalar.Int(3)}, DType: dtype.Float64},
			&kernel.GlobalArg{Name: "x", Shape: []scalar.Expr{scalar.Int(3)}, DType: dtype.Float64},
			&kernel.GlobalArg{Name: "out", Shape: []scalar.Expr{scalar.V("n")}, DType: dtype.Float64, IsOutput: true},
		).
		WithDomains(dom).
		WithInstructions(&kernel.Assignment{
			ID:           "out_store",
			Assignee:     scalar.Index("out", scalar.V("i")),
			Expr:         scalar.SumOver([]string{"r"}, body),
			WithinInames: []string{"i"},
		})
}

func TestValidKernel(t *testing.T) {
	k := matVec(t)
	if err := k.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	s := k.String()
	for _, want := range []string{
		"kernel matvec {",
		"order=C output",
		"[n] -> { [i, r] : 0 <= i < n and 0 <= r < 3 }",
		"out[i] = sum([r], (a[i, r] * x[r])) {id=out_store, within=[i], dep=[]}",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("%q not found in:\n%s", want, s)
		}
	}
}

func TestFunctionalUpdate(t *testing.T) {
	k := matVec(t)
	temp := &kernel.Temporary{Name: "tmp", DType: dtype.Float64, Shape: []scalar.Expr{scalar.Int(2)}}
	withTemp := k.WithTemporaries(temp)
	if _, ok := k.Temporary("tmp"); ok {
		t.Errorf("WithTemporaries modified its receiver")
	}
	if got, ok := withTemp.Temporary("tmp"); !ok || got != temp {
		t.Errorf("got %v but want %v", got, temp)
	}
	gen := withTemp.VarNameGenerator()
	for _, name := range []string{"a", "x", "n", "out", "tmp", "i", "r"} {
		if !gen.IsTaken(name) {
			t.Errorf("name %s is not reserved", name)
		}
	}
	if got := withTemp.InstructionIDGenerator().Name("out_store"); got != "out_store_0" {
		t.Errorf("got %s but want out_store_0", got)
	}
}

func TestInvalidKernel(t *testing.T) {
	dom, err := domain.Build([]string{"i"}, []scalar.Expr{scalar.V("m")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	k := kernel.New("invalid").
		WithArgs(
			&kernel.GlobalArg{Name: "a", Shape: []scalar.Expr{scalar.Int(2)}, DType: dtype.Float64},
			&kernel.GlobalArg{Name: "a", Shape: []scalar.Expr{scalar.Int(2)}, DType: dtype.Float64},
		).
		WithDomains(dom).
		WithInstructions(
			&kernel.Assignment{
				ID:           "insn",
				Assignee:     scalar.Index("a", scalar.V("i")),
				Expr:         scalar.Index("b", scalar.V("i")),
				WithinInames: []string{"i"},
				DependsOn:    []string{"unknown"},
			},
			&kernel.Assignment{
				ID:       "insn",
				Assignee: scalar.V("c"),
				Expr:     scalar.Int(0),
			},
		)
	err = k.Validate()
	if err == nil {
		t.Fatal("expected an error")
	}
	// Duplicated argument, domain parameter m not an argument, duplicated
	// identifier, unknown dependency, a is not an output, undefined b,
	// c is not an output, undefined c.
	if got, want := len(multierr.Errors(err)), 8; got != want {
		t.Errorf("got %d errors but want %d:\n%v", got, want, err)
	}
}

func tempNames(k *kernel.Kernel) []string {
	var names []string
	for _, temp := range k.Temporaries() {
		names = append(names, temp.Name)
	}
	return names
}

func TestForkedKernels(t *testing.T) {
	newTemp := func(name string) *kernel.Temporary {
		return &kernel.Temporary{Name: name, DType: dtype.Float64, Shape: []scalar.Expr{scalar.Int(2)}}
	}
	base := matVec(t).WithTemporaries(newTemp("t0"))
	left := base.WithTemporaries(newTemp("t1"))
	right := base.WithTemporaries(newTemp("t2"))
	leftMore := left.WithTemporaries(newTemp("t3"))
	tests := []struct {
		k       *kernel.Kernel
		want    []string
		missing []string
	}{
		{k: base, want: []string{"t0"}, missing: []string{"t1", "t2", "t3"}},
		{k: left, want: []string{"t0", "t1"}, missing: []string{"t2", "t3"}},
		{k: right, want: []string{"t0", "t2"}, missing: []string{"t1", "t3"}},
		{k: leftMore, want: []string{"t0", "t1", "t3"}, missing: []string{"t2"}},
	}
	for i, test := range tests {
		got := tempNames(test.k)
		if !cmp.Equal(got, test.want) {
			t.Errorf("test %d: got %v but want %v", i, got, test.want)
		}
		for _, name := range test.want {
			if temp, ok := test.k.Temporary(name); !ok || temp.Name != name {
				t.Errorf("test %d: temporary %s not found", i, name)
			}
		}
		for _, name := range test.missing {
			if _, ok := test.k.Temporary(name); ok {
				t.Errorf("test %d: unexpected temporary %s", i, name)
			}
		}
		if err := test.k.Validate(); err != nil {
			t.Errorf("test %d: unexpected error: %v", i, err)
		}
	}
	insn := &kernel.Assignment{ID: "extra", Assignee: scalar.Index("t1", scalar.Int(0)), Expr: scalar.Int(0)}
	withInsn := left.WithInstructions(insn)
	if got, want := len(left.Instructions()), 1; got != want {
		t.Errorf("got %d instructions but want %d", got, want)
	}
	if _, ok := left.Instruction("extra"); ok {
		t.Errorf("WithInstructions modified its receiver")
	}
	if got, ok := withInsn.Instruction("extra"); !ok || got != insn {
		t.Errorf("got %v but want %v", got, insn)
	}
}

func TestDuplicateTemporary(t *testing.T) {
	first := &kernel.Temporary{Name: "tmp", DType: dtype.Float64, Shape: []scalar.Expr{scalar.Int(2)}}
	second := &kernel.Temporary{Name: "tmp", DType: dtype.Int64, Shape: []scalar.Expr{scalar.Int(3)}}
	k := matVec(t).WithTemporaries(first).WithTemporaries(second)
	if got, ok := k.Temporary("tmp"); !ok || got != first {
		t.Errorf("got %v but want %v", got, first)
	}
	err := k.Validate()
	if err == nil {
		t.Fatal("expected an error")
	}
	if got, want := err.Error(), "temporary tmp defined more than once"; !strings.Contains(got, want) {
		t.Errorf("got %q but want an error containing %q", got, want)
	}
}
