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

// Package exec runs kernels on the host.
//
// The executor is a reference implementation: it evaluates every
// instruction element by element, in an order respecting the dependencies
// between instructions.
package exec

import (
	"math"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/gxlower/array"
	"github.com/gx-org/gxlower/domain"
	"github.com/gx-org/gxlower/kernel"
	"github.com/gx-org/gxlower/scalar"
)

type executor struct {
	k       *kernel.Kernel
	params  scalar.Bindings
	buffers map[string]*array.Data
	outputs map[string]*array.Data
}

// Run executes a kernel given its inputs and returns its outputs.
// Value arguments are passed as zero-dimensional data.
func Run(k *kernel.Kernel, inputs map[string]*array.Data) (map[string]*array.Data, error) {
	ex := &executor{
		k:       k,
		params:  make(scalar.Bindings),
		buffers: make(map[string]*array.Data),
		outputs: make(map[string]*array.Data),
	}
	if err := ex.bindArgs(inputs); err != nil {
		return nil, err
	}
	for _, temp := range k.Temporaries() {
		data, err := ex.allocate(temp.DType, temp.Shape)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot allocate temporary %s", temp.Name)
		}
		ex.buffers[temp.Name] = data
	}
	order, err := schedule(k.Instructions())
	if err != nil {
		return nil, err
	}
	for _, insn := range order {
		if err := ex.run(insn); err != nil {
			return nil, errors.Wrapf(err, "instruction %s", insn.ID)
		}
	}
	return ex.outputs, nil
}

func (ex *executor) bindArgs(inputs map[string]*array.Data) error {
	// Bind value arguments first: shapes of global arguments refer to them.
	for _, arg := range ex.k.Args() {
		value, ok := arg.(*kernel.ValueArg)
		if !ok {
			continue
		}
		data, ok := inputs[value.Name]
		if !ok {
			return errors.Errorf("missing value for argument %s", value.Name)
		}
		if len(data.Values) != 1 || len(data.Shape.AxisLengths) != 0 {
			return errors.Errorf("argument %s requires a scalar but got %s", value.Name, data)
		}
		v := data.Values[0]
		if v != math.Trunc(v) {
			return errors.Errorf("argument %s requires an integer but got %v", value.Name, v)
		}
		ex.params[value.Name] = int64(v)
		ex.buffers[value.Name] = data
	}
	for _, arg := range ex.k.Args() {
		global, ok := arg.(*kernel.GlobalArg)
		if !ok {
			continue
		}
		dims, err := ex.dims(global.Shape)
		if err != nil {
			return errors.Wrapf(err, "argument %s", global.Name)
		}
		if global.IsOutput {
			data := array.Zeros(global.DType, dims)
			ex.buffers[global.Name] = data
			ex.outputs[global.Name] = data
			continue
		}
		data, ok := inputs[global.Name]
		if !ok {
			return errors.Errorf("missing value for argument %s", global.Name)
		}
		if !sameDims(dims, data.Shape.AxisLengths) {
			return errors.Errorf("argument %s has shape %v but got data of shape %s", global.Name, dims, data.Shape)
		}
		ex.buffers[global.Name] = data
	}
	return nil
}

func sameDims(x, y []int) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func (ex *executor) dims(shape []scalar.Expr) ([]int, error) {
	dims := make([]int, len(shape))
	for i, dim := range shape {
		v, err := scalar.EvalInt(dim, ex.params)
		if err != nil {
			return nil, errors.Wrapf(err, "axis %d", i)
		}
		dims[i] = int(v)
	}
	return dims, nil
}

func (ex *executor) allocate(dt dtype.DataType, shape []scalar.Expr) (*array.Data, error) {
	dims, err := ex.dims(shape)
	if err != nil {
		return nil, err
	}
	return array.Zeros(dt, dims), nil
}

// schedule orders instructions such that every instruction comes after
// its dependencies. Independent instructions keep their insertion order.
func schedule(insns []*kernel.Assignment) ([]*kernel.Assignment, error) {
	index := make(map[string]int, len(insns))
	for i, insn := range insns {
		index[insn.ID] = i
	}
	pending := make([]int, len(insns))
	users := make([][]int, len(insns))
	for i, insn := range insns {
		for _, dep := range insn.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, errors.Errorf("instruction %s depends on unknown instruction %s", insn.ID, dep)
			}
			pending[i]++
			users[j] = append(users[j], i)
		}
	}
	done := make([]bool, len(insns))
	order := make([]*kernel.Assignment, 0, len(insns))
	for len(order) < len(insns) {
		next := -1
		for i := range insns {
			if !done[i] && pending[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, errors.Errorf("cyclic dependencies between instructions")
		}
		done[next] = true
		order = append(order, insns[next])
		for _, user := range users[next] {
			pending[user]--
		}
	}
	return order, nil
}

type env struct {
	ex    *executor
	dom   *domain.Set
	point scalar.Bindings
}

var _ scalar.Env = (*env)(nil)

func (e *env) Value(name string) (float64, error) {
	if v, ok := e.point[name]; ok {
		return float64(v), nil
	}
	if buf, ok := e.ex.buffers[name]; ok {
		if len(buf.Shape.AxisLengths) != 0 {
			return 0, errors.Errorf("array %s used without an index", name)
		}
		return buf.Values[0], nil
	}
	return 0, errors.Errorf("undefined variable %s", name)
}

func (e *env) Element(name string, index []int64) (float64, error) {
	buf, ok := e.ex.buffers[name]
	if !ok {
		return 0, errors.Errorf("undefined array %s", name)
	}
	return buf.At(index)
}

func (e *env) Range(iname string) (lo, hi int64, err error) {
	dom := e.dom
	if !dom.Has(iname) {
		var ok bool
		if dom, ok = e.ex.k.DomainFor([]string{iname}); !ok {
			return 0, 0, errors.Errorf("no domain for reduction variable %s", iname)
		}
	}
	return dom.Range(iname, e.ex.params)
}

func (ex *executor) run(insn *kernel.Assignment) error {
	dom, ok := ex.k.DomainFor(insn.WithinInames)
	if !ok && len(insn.WithinInames) > 0 {
		return errors.Errorf("no domain for index variables %v", insn.WithinInames)
	}
	if !ok {
		var err error
		if dom, err = domain.Build(nil, nil, nil); err != nil {
			return err
		}
	}
	target, ok := ex.buffers[insn.AssigneeName()]
	if !ok {
		return errors.Errorf("undefined array %s", insn.AssigneeName())
	}
	return dom.Enumerate(insn.WithinInames, ex.params, func(point scalar.Bindings) error {
		e := &env{ex: ex, dom: dom, point: point}
		val, err := scalar.Eval(insn.Expr, e)
		if err != nil {
			return err
		}
		var index []int64
		if sub, ok := insn.Assignee.(scalar.Subscript); ok {
			index = make([]int64, len(sub.Index))
			for i, x := range sub.Index {
				if index[i], err = scalar.EvalInt(x, e); err != nil {
					return err
				}
			}
		}
		return target.Set(index, val)
	})
}
