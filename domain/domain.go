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

// Package domain builds the iteration domains of kernel instructions.
//
// A domain is a basic integer set: every set dimension ranges over a
// half-open interval whose bounds are scalar expressions of the
// domain parameters.
package domain

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/gx-org/gxlower/base/ordered"
	"github.com/gx-org/gxlower/scalar"
)

// Bound is the half-open interval [Lower, Upper) of a set dimension.
type Bound struct {
	Lower, Upper scalar.Expr
}

func (b Bound) String() string {
	return fmt.Sprintf("[%s, %s)", b.Lower, b.Upper)
}

// ShapeMismatchError is returned when the number of axis names
// does not match the number of axes of a shape.
type ShapeMismatchError struct {
	Names []string
	Shape []scalar.Expr
}

func (err *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%d axis names %v for a shape with %d axes", len(err.Names), err.Names, len(err.Shape))
}

// Set is a basic integer set.
type Set struct {
	dims   []string
	bounds map[string]Bound
	params []string
}

// Build returns the domain iterating over a shape, with one set dimension
// per axis name and one per reduction variable.
//
// The axis dimensions range over [0, shape[i]). Free variables of the
// bounds that are not set dimensions are the parameters of the domain.
func Build(names []string, shape []scalar.Expr, reductions *ordered.Map[string, Bound]) (*Set, error) {
	if len(names) != len(shape) {
		return nil, &ShapeMismatchError{Names: slices.Clone(names), Shape: slices.Clone(shape)}
	}
	s := &Set{bounds: make(map[string]Bound)}
	add := func(name string, bound Bound) error {
		if _, exists := s.bounds[name]; exists {
			return errors.Errorf("dimension %s defined more than once", name)
		}
		s.dims = append(s.dims, name)
		s.bounds[name] = bound
		return nil
	}
	for i, name := range names {
		if err := add(name, Bound{Lower: scalar.Int(0), Upper: shape[i]}); err != nil {
			return nil, err
		}
	}
	for name, bound := range reductions.Iter() {
		if err := add(name, bound); err != nil {
			return nil, err
		}
	}
	params := make(map[string]bool)
	for _, bound := range s.bounds {
		for _, v := range scalar.FreeVariables(bound.Lower) {
			params[v] = true
		}
		for _, v := range scalar.FreeVariables(bound.Upper) {
			params[v] = true
		}
	}
	for _, dim := range s.dims {
		delete(params, dim)
	}
	s.params = slices.Sorted(maps.Keys(params))
	return s, nil
}

// Dims returns the set dimensions in order.
func (s *Set) Dims() []string {
	return slices.Clone(s.dims)
}

// Params returns the parameters of the domain, sorted by name.
func (s *Set) Params() []string {
	return slices.Clone(s.params)
}

// Bound returns the bound of a set dimension.
func (s *Set) Bound(dim string) (Bound, bool) {
	b, ok := s.bounds[dim]
	return b, ok
}

// Has returns true if the domain has a given set dimension.
func (s *Set) Has(dim string) bool {
	_, ok := s.bounds[dim]
	return ok
}

// Range evaluates the bound of a dimension.
func (s *Set) Range(dim string, env scalar.Env) (lo, hi int64, err error) {
	b, ok := s.bounds[dim]
	if !ok {
		return 0, 0, errors.Errorf("dimension %s not in domain %s", dim, s)
	}
	if lo, err = scalar.EvalInt(b.Lower, env); err != nil {
		return 0, 0, errors.Wrapf(err, "cannot evaluate the lower bound of %s", dim)
	}
	if hi, err = scalar.EvalInt(b.Upper, env); err != nil {
		return 0, 0, errors.Wrapf(err, "cannot evaluate the upper bound of %s", dim)
	}
	return lo, hi, nil
}

// Enumerate calls f on every point of the projection of the domain
// on a subset of its dimensions, in lexicographic order.
// The bindings given to f include the parameters and are reused between calls.
func (s *Set) Enumerate(dims []string, params scalar.Bindings, f func(scalar.Bindings) error) error {
	point := maps.Clone(params)
	if point == nil {
		point = make(scalar.Bindings)
	}
	ranges := make([][2]int64, len(dims))
	for i, dim := range dims {
		lo, hi, err := s.Range(dim, params)
		if err != nil {
			return err
		}
		if hi <= lo {
			return nil
		}
		ranges[i] = [2]int64{lo, hi}
		point[dim] = lo
	}
	for {
		if err := f(point); err != nil {
			return err
		}
		i := len(dims) - 1
		for ; i >= 0; i-- {
			point[dims[i]]++
			if point[dims[i]] < ranges[i][1] {
				break
			}
			point[dims[i]] = ranges[i][0]
		}
		if i < 0 {
			return nil
		}
	}
}

// Count returns the number of points of the domain given the values of its parameters.
func (s *Set) Count(params scalar.Bindings) (int64, error) {
	var n int64
	err := s.Enumerate(s.dims, params, func(scalar.Bindings) error {
		n++
		return nil
	})
	return n, err
}

func (s *Set) String() string {
	var constraints []string
	for _, dim := range s.dims {
		b := s.bounds[dim]
		constraints = append(constraints, fmt.Sprintf("%s <= %s < %s", b.Lower, dim, b.Upper))
	}
	return fmt.Sprintf("[%s] -> { [%s] : %s }",
		strings.Join(s.params, ", "),
		strings.Join(s.dims, ", "),
		strings.Join(constraints, " and "))
}
