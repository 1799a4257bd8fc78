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

package codegen_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/gxlower/array"
	"github.com/gx-org/gxlower/base/ordered"
	"github.com/gx-org/gxlower/codegen"
	"github.com/gx-org/gxlower/domain"
	"github.com/gx-org/gxlower/kernel"
	"github.com/gx-org/gxlower/scalar"
	"github.com/gx-org/gxlower/transform"
)

func must[T any](t *testing.T) func(T, error) T {
	return func(v T, err error) T {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return v
	}
}

func newData(t *testing.T, dims []int, values ...float64) *array.Data {
	t.Helper()
	return must[*array.Data](t)(array.NewData(dtype.Float64, dims, values))
}

// partitionGraph returns stack([x@x.T, 2*x, 42+x])+55.
func partitionGraph(t *testing.T, x array.Array) array.Array {
	transposed := must[*array.AxisPermutation](t)(array.Transpose(x))
	matmul := must[*array.MatrixProduct](t)(array.MatMul(x, transposed))
	twice := must[*array.IndexLambda](t)(array.Mul(2, x))
	plus := must[*array.IndexLambda](t)(array.Add(42, x))
	stack := must[*array.Stack](t)(array.StackOf([]array.Array{matmul, twice, plus}, 0))
	return must[*array.IndexLambda](t)(array.Add(stack, 55))
}

func run(t *testing.T, a array.Array, inputs map[string]*array.Data) []float64 {
	t.Helper()
	prog, err := codegen.GenerateKernelForArray(a)
	if err != nil {
		t.Fatal(err)
	}
	outputs, err := prog.Run(inputs)
	if err != nil {
		t.Fatalf("%v\nkernel:\n%s", err, prog.Kernel)
	}
	out, ok := outputs[codegen.DefaultOutputName]
	if !ok {
		t.Fatalf("output %s not found", codegen.DefaultOutputName)
	}
	return out.Values
}

func TestEndToEnd(t *testing.T) {
	data := newData(t, []int{2, 2}, 1, 2, 3, 4)
	x := must[*array.DataWrapper](t)(array.MakeDataWrapper("x", data))
	got := run(t, partitionGraph(t, x), nil)
	want := []float64{
		// x@x.T + 55
		5 + 55, 11 + 55,
		11 + 55, 25 + 55,
		// 2*x + 55
		2 + 55, 4 + 55,
		6 + 55, 8 + 55,
		// 42+x + 55
		43 + 55, 44 + 55,
		45 + 55, 46 + 55,
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("unexpected output: (-want +got):\n%s", diff)
	}
}

func TestRemapping(t *testing.T) {
	x := must[*array.Placeholder](t)(array.MakePlaceholder("x", array.Ints(2, 3), dtype.Float64))
	y := must[*array.Placeholder](t)(array.MakePlaceholder("y", array.Ints(1, 3), dtype.Float64))
	inputs := map[string]*array.Data{
		"x": newData(t, []int{2, 3}, 0, 1, 2, 3, 4, 5),
		"y": newData(t, []int{1, 3}, 6, 7, 8),
	}
	tests := []struct {
		name string
		a    array.Array
		want []float64
	}{
		{
			name: "roll",
			a:    must[*array.Roll](t)(array.RollOf(x, 1, 1)),
			want: []float64{2, 0, 1, 5, 3, 4},
		},
		{
			name: "negative roll",
			a:    must[*array.Roll](t)(array.RollOf(x, -1, 0)),
			want: []float64{3, 4, 5, 0, 1, 2},
		},
		{
			name: "transpose",
			a:    must[*array.AxisPermutation](t)(array.Transpose(x)),
			want: []float64{0, 3, 1, 4, 2, 5},
		},
		{
			name: "slice",
			a:    must[*array.Slice](t)(array.SliceOf(x, []int{0, 1}, []int{2, 3})),
			want: []float64{1, 2, 4, 5},
		},
		{
			name: "reshape",
			a:    must[*array.Reshape](t)(array.ReshapeOf(x, array.Ints(3, 2))),
			want: []float64{0, 1, 2, 3, 4, 5},
		},
		{
			name: "reshape of transpose",
			a: must[*array.Reshape](t)(array.ReshapeOf(
				must[*array.AxisPermutation](t)(array.Transpose(x)),
				array.Ints(6))),
			want: []float64{0, 3, 1, 4, 2, 5},
		},
		{
			name: "concatenate",
			a:    must[*array.Concatenate](t)(array.Concat([]array.Array{x, y}, 0)),
			want: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
		},
		{
			name: "stack along last axis",
			a:    must[*array.Stack](t)(array.StackOf([]array.Array{x, x}, 2)),
			want: []float64{0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := run(t, test.a, inputs)
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("unexpected output: (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSymbolicShape(t *testing.T) {
	n := must[*array.SizeParam](t)(array.MakeSizeParam("n"))
	x := must[*array.Placeholder](t)(array.MakePlaceholder("x", array.Shape{array.ParamDim(n)}, dtype.Float64))
	rolled := must[*array.Roll](t)(array.RollOf(x, 1, 0))
	sum := must[*array.IndexLambda](t)(array.Add(rolled, 1))
	prog, err := codegen.GenerateKernelForArray(sum)
	if err != nil {
		t.Fatal(err)
	}
	arg, ok := prog.Kernel.Arg("n")
	if _, isValue := arg.(*kernel.ValueArg); !ok || !isValue {
		t.Errorf("got argument %v but want a value argument n", arg)
	}
	outputs, err := prog.Run(map[string]*array.Data{
		"n": newData(t, nil, 3),
		"x": newData(t, []int{3}, 1, 2, 3),
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{4, 2, 3}
	if diff := cmp.Diff(want, outputs[codegen.DefaultOutputName].Values); diff != "" {
		t.Errorf("unexpected output: (-want +got):\n%s", diff)
	}
}

type lowerCounter struct {
	lowered map[array.Kind]int
	emitted []string
}

func (c *lowerCounter) Lowered(node array.Array, _ codegen.Result) {
	c.lowered[node.Kind()]++
}

func (c *lowerCounter) Emitted(insn *kernel.Assignment) {
	c.emitted = append(c.emitted, insn.ID)
}

func TestLoweredOnce(t *testing.T) {
	x := must[*array.Placeholder](t)(array.MakePlaceholder("x", array.Ints(2, 2), dtype.Float64))
	product := func() array.Array {
		return must[*array.MatrixProduct](t)(array.MatMul(x, x))
	}
	shared := product()
	// The same product twice and a structurally equal product.
	sum := must[*array.IndexLambda](t)(array.Add(shared, shared))
	sum = must[*array.IndexLambda](t)(array.Add(sum, product()))
	counter := &lowerCounter{lowered: make(map[array.Kind]int)}
	if _, err := codegen.GenerateKernelForArray(sum, codegen.WithTracer{Tracer: counter}); err != nil {
		t.Fatal(err)
	}
	if got := counter.lowered[array.MatrixProductKind]; got != 1 {
		t.Errorf("matrix product lowered %d times but want 1", got)
	}
	if got := counter.lowered[array.PlaceholderKind]; got != 1 {
		t.Errorf("placeholder lowered %d times but want 1", got)
	}
	want := []string{"matmul_store", "_pt_out_store"}
	if diff := cmp.Diff(want, counter.emitted); diff != "" {
		t.Errorf("unexpected instructions: (-want +got):\n%s", diff)
	}
}

func TestOutputsAreStored(t *testing.T) {
	x := must[*array.Placeholder](t)(array.MakePlaceholder("x", array.Ints(2, 2), dtype.Float64))
	outputs := array.NewDict()
	for name, a := range map[string]array.Array{
		"graph":     partitionGraph(t, x),
		"transpose": must[*array.AxisPermutation](t)(array.Transpose(x)),
		"identity":  x,
	} {
		if err := outputs.Add(name, a); err != nil {
			t.Fatal(err)
		}
	}
	prog, err := codegen.GenerateKernel(outputs, codegen.WithKernelName{Name: "partition"})
	if err != nil {
		t.Fatal(err)
	}
	if prog.Kernel.Name() != "partition" {
		t.Errorf("got kernel name %s but want partition", prog.Kernel.Name())
	}
	for _, name := range outputs.Names() {
		arg, ok := prog.Kernel.Arg(name)
		if !ok {
			t.Errorf("no argument for output %s", name)
			continue
		}
		global, ok := arg.(*kernel.GlobalArg)
		if !ok || !global.IsOutput {
			t.Errorf("argument %s is not an output argument", arg)
		}
		if _, ok := prog.Kernel.Instruction(name + "_store"); !ok {
			t.Errorf("no instruction storing %s", name)
		}
	}
}

func TestBoundArguments(t *testing.T) {
	data := newData(t, []int{2}, 1, 2)
	w := must[*array.DataWrapper](t)(array.MakeDataWrapper("w", data))
	x := must[*array.Placeholder](t)(array.MakePlaceholder("x", array.Ints(2), dtype.Float64))
	sum := must[*array.IndexLambda](t)(array.Add(w, x))
	prog, err := codegen.GenerateKernelForArray(sum)
	if err != nil {
		t.Fatal(err)
	}
	if got := prog.BoundArguments["w"]; got != data {
		t.Errorf("got bound argument %v but want %v", got, data)
	}
	if _, ok := prog.BoundArguments["x"]; ok {
		t.Errorf("placeholder x should not be bound")
	}
	if _, err := prog.Run(map[string]*array.Data{"w": data}); err == nil {
		t.Errorf("expected an error when passing a bound argument")
	}
}

func TestUnsupportedNodeKind(t *testing.T) {
	x := must[*array.Placeholder](t)(array.MakePlaceholder("x", array.Ints(2), dtype.Float64))
	send := must[*array.DistributedSend](t)(array.Send(x, 1, "tag"))
	_, err := codegen.GenerateKernelForArray(send)
	var kindErr *transform.UnsupportedNodeKindError
	if !errors.As(err, &kindErr) {
		t.Fatalf("got error %v but want an UnsupportedNodeKindError", err)
	}
	if kindErr.Kind != array.DistributedSendKind {
		t.Errorf("got kind %s but want %s", kindErr.Kind, array.DistributedSendKind)
	}
}

func TestSymbolicShapeViolation(t *testing.T) {
	v := must[*array.Placeholder](t)(array.MakePlaceholder("v", array.Ints(3), dtype.Float64))
	dot := must[*array.MatrixProduct](t)(array.MatMul(v, v))
	y := must[*array.Placeholder](t)(array.MakePlaceholder("y", array.Shape{array.ParamDim(dot)}, dtype.Float64))
	_, err := codegen.GenerateKernelForArray(y)
	var shapeErr *codegen.SymbolicShapeViolationError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("got error %v but want a SymbolicShapeViolationError", err)
	}
	if shapeErr.Axis != 0 || len(shapeErr.DependsOn) != 1 {
		t.Errorf("got axis %d and dependencies %v but want axis 0 and one dependency", shapeErr.Axis, shapeErr.DependsOn)
	}
}

type unknownOption struct{}

func (unknownOption) OptionName() string { return "unknown" }

func TestOptions(t *testing.T) {
	x := must[*array.Placeholder](t)(array.MakePlaceholder("x", array.Ints(2), dtype.Float64))
	if _, err := codegen.GenerateKernelForArray(x, unknownOption{}); err == nil {
		t.Errorf("expected an error for an unknown option")
	}
	if _, err := codegen.GenerateKernelForArray(x, codegen.WithKernelName{}); err == nil {
		t.Errorf("expected an error for an empty kernel name")
	}
	if _, err := codegen.GenerateKernelForArray(x, codegen.WithValidation{Enable: false}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOutputNameClash(t *testing.T) {
	x := must[*array.Placeholder](t)(array.MakePlaceholder("x", array.Ints(2), dtype.Float64))
	outputs := must[*array.DictOfNamedArrays](t)(array.DictOf("x", x))
	if _, err := codegen.GenerateKernel(outputs); err == nil {
		t.Errorf("expected an error when an output has the name of an input")
	}
}

func sumOverRow(n int) *codegen.InlinedResult {
	bounds := ordered.NewMap[string, domain.Bound]()
	bounds.Store("_r0", domain.Bound{Lower: scalar.Int(0), Upper: scalar.Int(n)})
	return &codegen.InlinedResult{
		Expr:            scalar.SumOver([]string{"_r0"}, scalar.Index("a", scalar.V("_0"), scalar.V("_r0"))),
		ReductionBounds: bounds,
	}
}

func TestReductionsAreDisjoint(t *testing.T) {
	ctx := codegen.NewExprContext(nil, nil)
	indices := []scalar.Expr{scalar.V("i")}
	x := must[scalar.Expr](t)(sumOverRow(3).ToExpression(indices, ctx))
	y := must[scalar.Expr](t)(sumOverRow(4).ToExpression(indices, ctx))
	got := []string{x.String(), y.String()}
	want := []string{
		scalar.SumOver([]string{"_r0"}, scalar.Index("a", scalar.V("i"), scalar.V("_r0"))).String(),
		scalar.SumOver([]string{"_r1"}, scalar.Index("a", scalar.V("i"), scalar.V("_r1"))).String(),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected expressions: (-want +got):\n%s", diff)
	}
	if got := ctx.ReductionBounds.Size(); got != 2 {
		t.Errorf("got %d reduction variables but want 2", got)
	}
	upper, ok := ctx.ReductionBounds.Load("_r1")
	if !ok || upper.Upper != scalar.Expr(scalar.Int(4)) {
		t.Errorf("got bound %v for _r1 but want an upper bound of 4", upper)
	}
}

func TestReductionNameCollision(t *testing.T) {
	ctx := codegen.NewExprContext(nil, nil)
	ctx.ReductionBounds.Store("_r1", domain.Bound{Lower: scalar.Int(0), Upper: scalar.Int(2)})
	inlined := sumOverRow(3)
	inlined.ReductionBounds.Store("_r5", domain.Bound{Lower: scalar.Int(0), Upper: scalar.Int(2)})
	_, err := inlined.ToExpression(nil, ctx)
	var collision *codegen.ReductionNameCollisionError
	if !errors.As(err, &collision) {
		t.Fatalf("got error %v but want a ReductionNameCollisionError", err)
	}
	if collision.Name != "_r1" {
		t.Errorf("got collision on %s but want _r1", collision.Name)
	}
}

func TestStructurallyEqualInputs(t *testing.T) {
	x1 := must[*array.Placeholder](t)(array.MakePlaceholder("x", array.Ints(2), dtype.Float64))
	x2 := must[*array.Placeholder](t)(array.MakePlaceholder("x", array.Ints(2), dtype.Float64))
	sum := must[*array.IndexLambda](t)(array.Add(x1, x2))
	prog, err := codegen.GenerateKernelForArray(sum)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(prog.Kernel.Args()); got != 2 {
		t.Errorf("got %d arguments but want 2: one input and one output", got)
	}
	outputs, err := prog.Run(map[string]*array.Data{"x": newData(t, []int{2}, 1, 2)})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{2, 4}, outputs[codegen.DefaultOutputName].Values); diff != "" {
		t.Errorf("unexpected output: (-want +got):\n%s", diff)
	}
}

func TestGraphAndItsCopy(t *testing.T) {
	x := must[*array.Placeholder](t)(array.MakePlaceholder("x", array.Ints(2, 2), dtype.Float64))
	graph := partitionGraph(t, x)
	graphCopy := must[array.Array](t)(transform.NewCopyMapper(nil).Copy(graph))
	outputs := array.NewDict()
	if err := outputs.Add("a", graph); err != nil {
		t.Fatal(err)
	}
	if err := outputs.Add("b", graphCopy); err != nil {
		t.Fatal(err)
	}
	counter := &lowerCounter{lowered: make(map[array.Kind]int)}
	prog, err := codegen.GenerateKernel(outputs, codegen.WithTracer{Tracer: counter})
	if err != nil {
		t.Fatal(err)
	}
	if got := counter.lowered[array.MatrixProductKind]; got != 1 {
		t.Errorf("matrix product lowered %d times but want 1", got)
	}
	got, err := prog.Run(map[string]*array.Data{"x": newData(t, []int{2, 2}, 1, 2, 3, 4)})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got["a"].Values, got["b"].Values); diff != "" {
		t.Errorf("the copy computes different values: (-graph +copy):\n%s", diff)
	}
}
