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
	"slices"

	"github.com/gx-org/gxlower/array"
	"github.com/gx-org/gxlower/base/ordered"
	"github.com/gx-org/gxlower/domain"
	"github.com/gx-org/gxlower/kernel"
	"github.com/gx-org/gxlower/scalar"
	"github.com/gx-org/gxlower/transform"
)

// codeGenMapper lowers nodes into a kernel.
// Nodes without a rule (distributed communications) are not supported.
type codeGenMapper struct {
	state *State
}

const codeGenMapperName = "CodeGenMapper"

var (
	_ transform.PlaceholderMapper[Result]     = (*codeGenMapper)(nil)
	_ transform.DataWrapperMapper[Result]     = (*codeGenMapper)(nil)
	_ transform.SizeParamMapper[Result]       = (*codeGenMapper)(nil)
	_ transform.IndexLambdaMapper[Result]     = (*codeGenMapper)(nil)
	_ transform.MatrixProductMapper[Result]   = (*codeGenMapper)(nil)
	_ transform.StackMapper[Result]           = (*codeGenMapper)(nil)
	_ transform.ConcatenateMapper[Result]     = (*codeGenMapper)(nil)
	_ transform.RollMapper[Result]            = (*codeGenMapper)(nil)
	_ transform.AxisPermutationMapper[Result] = (*codeGenMapper)(nil)
	_ transform.SliceMapper[Result]           = (*codeGenMapper)(nil)
	_ transform.ReshapeMapper[Result]         = (*codeGenMapper)(nil)
)

func (m *codeGenMapper) done(a array.Array) bool {
	_, ok := m.state.Result(a)
	return ok
}

func (m *codeGenMapper) visit(a array.Array) error {
	r, err := transform.Dispatch[Result](codeGenMapperName, m, a)
	if err != nil {
		return err
	}
	m.state.results[m.state.interner.ID(a)] = r
	m.state.opts.lowered(a, r)
	return nil
}

// rec returns the result of a node.
// Operands are lowered before their parents such that, when a rule runs,
// the results of its operands are already available.
func (m *codeGenMapper) rec(a array.Array) (Result, error) {
	if r, ok := m.state.Result(a); ok {
		return r, nil
	}
	if err := transform.PostOrder(a, m.done, m.visit); err != nil {
		return nil, err
	}
	r, _ := m.state.Result(a)
	return r, nil
}

func (m *codeGenMapper) mapInput(name string, a array.Array) (Result, error) {
	shape, err := m.state.shape(a)
	if err != nil {
		return nil, err
	}
	m.state.UpdateKernel(m.state.Kernel().WithArgs(&kernel.GlobalArg{
		Name:  name,
		Shape: shape,
		DType: a.DType(),
	}))
	return &StoredResult{Name: name}, nil
}

// MapPlaceholder declares an input argument.
func (m *codeGenMapper) MapPlaceholder(a *array.Placeholder) (Result, error) {
	return m.mapInput(a.Name, a)
}

// MapDataWrapper declares an input argument. Its value is bound by the program.
func (m *codeGenMapper) MapDataWrapper(a *array.DataWrapper) (Result, error) {
	return m.mapInput(a.Name, a)
}

// MapSizeParam declares a scalar argument.
func (m *codeGenMapper) MapSizeParam(a *array.SizeParam) (Result, error) {
	m.state.UpdateKernel(m.state.Kernel().WithArgs(&kernel.ValueArg{
		Name:  a.Name,
		DType: a.DType(),
	}))
	return &StoredResult{Name: a.Name}, nil
}

// MapMatrixProduct stores the product in a temporary.
func (m *codeGenMapper) MapMatrixProduct(a *array.MatrixProduct) (Result, error) {
	x1, err := m.rec(a.X1)
	if err != nil {
		return nil, err
	}
	x2, err := m.rec(a.X2)
	if err != nil {
		return nil, err
	}
	contraction, err := m.state.dim(a.X2, 0)
	if err != nil {
		return nil, err
	}
	const reduction = "_r0"
	ctx := NewExprContext(m.state, nil)
	ctx.ReductionBounds.Store(reduction, domain.Bound{Lower: scalar.Int(0), Upper: contraction})

	ndim1, ndim2 := array.NDim(a.X1), array.NDim(a.X2)
	x1Indices := make([]scalar.Expr, ndim1)
	for i := range ndim1 - 1 {
		x1Indices[i] = scalar.V(array.IndexName(i))
	}
	x1Indices[ndim1-1] = scalar.V(reduction)
	x2Indices := make([]scalar.Expr, ndim2)
	x2Indices[0] = scalar.V(reduction)
	for i := 1; i < ndim2; i++ {
		x2Indices[i] = scalar.V(array.IndexName(i + ndim1 - 2))
	}

	lhs, err := x1.ToExpression(x1Indices, ctx)
	if err != nil {
		return nil, err
	}
	rhs, err := x2.ToExpression(x2Indices, ctx)
	if err != nil {
		return nil, err
	}
	product := scalar.SumOver([]string{reduction}, scalar.Mul(lhs, rhs))

	name := m.state.VarNames.Name("matmul")
	id, err := AddStore(name, a, inlinedFromContext(product, ctx), m.state, true)
	if err != nil {
		return nil, err
	}
	return &StoredResult{Name: name, DependsOn: []string{id}}, nil
}

// constituent is the lowering of one array of a stack or a concatenation.
type constituent struct {
	expr       scalar.Expr
	dependsOn  []string
	reductions *ordered.Map[string, domain.Bound]
}

func (m *codeGenMapper) lowerConstituent(outName string, a array.Array, indices []scalar.Expr) (*constituent, error) {
	r, err := m.rec(a)
	if err != nil {
		return nil, err
	}
	ctx := NewExprContext(m.state, nil)
	expr, err := r.ToExpression(indices, ctx)
	if err != nil {
		return nil, err
	}
	expr = RenameReductions(expr, ctx, func(old string) string {
		return m.state.VarNames.Name(outName + old)
	})
	return &constituent{
		expr:       expr,
		dependsOn:  ctx.DependsOn(),
		reductions: ctx.ReductionBounds,
	}, nil
}

func mergeDependencies(deps ...[]string) []string {
	var all []string
	for _, dep := range deps {
		all = append(all, dep...)
	}
	slices.Sort(all)
	return slices.Compact(all)
}

// MapStack stores every array of the stack in a temporary.
// Instructions are chained in the order of the arrays.
func (m *codeGenMapper) MapStack(a *array.Stack) (Result, error) {
	outName := m.state.VarNames.Name("stack")
	shape, err := m.state.shape(a)
	if err != nil {
		return nil, err
	}
	temp := temporaryFor(outName, a, shape)

	ndim := array.NDim(a)
	inames := make([]string, 0, ndim-1)
	for j := range ndim - 1 {
		axis := j
		if j >= a.Axis {
			axis++
		}
		inames = append(inames, m.state.VarNames.Name(fmt.Sprintf("%s_dim%d", outName, axis)))
	}
	indices := scalar.Vars(inames...)

	reductions := ordered.NewMap[string, domain.Bound]()
	var dependsOn []string
	var insns []*kernel.Assignment
	for i, arr := range a.Arrays {
		c, err := m.lowerConstituent(outName, arr, indices)
		if err != nil {
			return nil, err
		}
		for name, bound := range c.reductions.Iter() {
			reductions.Store(name, bound)
		}
		assigneeIndices := slices.Insert(slices.Clone(indices), a.Axis, scalar.Expr(scalar.Int(i)))
		id := m.state.InsnIDs.Name(fmt.Sprintf("%s_%d", outName, i))
		insns = append(insns, &kernel.Assignment{
			ID:           id,
			Assignee:     scalar.Index(outName, assigneeIndices...),
			Expr:         c.expr,
			WithinInames: inames,
			DependsOn:    mergeDependencies(c.dependsOn, dependsOn),
		})
		dependsOn = []string{id}
	}
	dom, err := BuildDomain(m.state, inames, a.Arrays[0], reductions)
	if err != nil {
		return nil, err
	}
	m.state.UpdateKernel(m.state.Kernel().
		WithTemporaries(temp).
		WithDomains(dom).
		WithInstructions(insns...))
	m.state.opts.emitted(insns...)
	return &StoredResult{Name: outName, DependsOn: dependsOn}, nil
}

// MapConcatenate stores every array of the concatenation in a temporary.
// Every array has its own domain. Instructions are chained in the order of the arrays.
func (m *codeGenMapper) MapConcatenate(a *array.Concatenate) (Result, error) {
	outName := m.state.VarNames.Name("concat")
	shape, err := m.state.shape(a)
	if err != nil {
		return nil, err
	}
	temp := temporaryFor(outName, a, shape)

	var dependsOn []string
	var insns []*kernel.Assignment
	var doms []*domain.Set
	offset := 0
	for i, arr := range a.Arrays {
		inames := make([]string, array.NDim(arr))
		for d := range inames {
			inames[d] = m.state.VarNames.Name(fmt.Sprintf("%s_dim%d", outName, d))
		}
		indices := scalar.Vars(inames...)
		c, err := m.lowerConstituent(outName, arr, indices)
		if err != nil {
			return nil, err
		}
		dom, err := BuildDomain(m.state, inames, arr, c.reductions)
		if err != nil {
			return nil, err
		}
		doms = append(doms, dom)
		assigneeIndices := slices.Clone(indices)
		if offset > 0 {
			assigneeIndices[a.Axis] = scalar.Add(assigneeIndices[a.Axis], scalar.Int(offset))
		}
		id := m.state.InsnIDs.Name(fmt.Sprintf("%s_%d", outName, i))
		insns = append(insns, &kernel.Assignment{
			ID:           id,
			Assignee:     scalar.Index(outName, assigneeIndices...),
			Expr:         c.expr,
			WithinInames: inames,
			DependsOn:    mergeDependencies(c.dependsOn, dependsOn),
		})
		dependsOn = []string{id}
		offset += arr.Shape()[a.Axis].Size
	}
	m.state.UpdateKernel(m.state.Kernel().
		WithTemporaries(temp).
		WithDomains(doms...).
		WithInstructions(insns...))
	m.state.opts.emitted(insns...)
	return &StoredResult{Name: outName, DependsOn: dependsOn}, nil
}

// remap returns the operand of a node read at remapped indices.
func (m *codeGenMapper) remap(operand array.Array, indices []scalar.Expr) (Result, error) {
	r, err := m.rec(operand)
	if err != nil {
		return nil, err
	}
	ctx := NewExprContext(m.state, nil)
	expr, err := r.ToExpression(indices, ctx)
	if err != nil {
		return nil, err
	}
	return inlinedFromContext(expr, ctx), nil
}

// MapRoll inlines the operand read at shifted indices.
func (m *codeGenMapper) MapRoll(a *array.Roll) (Result, error) {
	n, err := m.state.dim(a, a.Axis)
	if err != nil {
		return nil, err
	}
	indices := array.IndexVars(array.NDim(a))
	indices[a.Axis] = scalar.Mod(scalar.Sub(indices[a.Axis], scalar.Int(a.Shift)), n)
	return m.remap(a.Array, indices)
}

// MapAxisPermutation inlines the operand read at permuted indices.
func (m *codeGenMapper) MapAxisPermutation(a *array.AxisPermutation) (Result, error) {
	indices := make([]scalar.Expr, array.NDim(a))
	for from, to := range a.Axes {
		indices[to] = scalar.V(array.IndexName(from))
	}
	return m.remap(a.Array, indices)
}

// MapSlice inlines the operand read at offset indices.
func (m *codeGenMapper) MapSlice(a *array.Slice) (Result, error) {
	indices := array.IndexVars(array.NDim(a))
	for d, start := range a.Starts {
		if start != 0 {
			indices[d] = scalar.Add(indices[d], scalar.Int(start))
		}
	}
	return m.remap(a.Array, indices)
}

// MapReshape inlines the operand read at the row-major position
// of the element in the new shape.
func (m *codeGenMapper) MapReshape(a *array.Reshape) (Result, error) {
	newDims, _ := a.Shape().Sizes()
	oldDims, _ := a.Array.Shape().Sizes()
	var flat scalar.Expr = scalar.Int(0)
	for d, size := range newDims {
		index := scalar.V(array.IndexName(d))
		if d == 0 {
			flat = index
			continue
		}
		flat = scalar.Add(scalar.Mul(flat, scalar.Int(size)), index)
	}
	indices := make([]scalar.Expr, len(oldDims))
	stride := 1
	for d := len(oldDims) - 1; d >= 0; d-- {
		index := flat
		if stride != 1 {
			index = scalar.FloorDiv(index, scalar.Int(stride))
		}
		if d > 0 {
			index = scalar.Mod(index, scalar.Int(oldDims[d]))
		}
		indices[d] = index
		stride *= oldDims[d]
	}
	return m.remap(a.Array, indices)
}

// MapIndexLambda inlines the expression of the node.
// The bindings of the node shadow the namespace while lowering the expression.
func (m *codeGenMapper) MapIndexLambda(a *array.IndexLambda) (Result, error) {
	ctx := NewExprContext(m.state, a.Bindings)
	expr, err := m.splice(a.Expr, ctx)
	if err != nil {
		return nil, err
	}
	return inlinedFromContext(expr, ctx), nil
}
