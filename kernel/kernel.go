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

// Package kernel defines a flat kernel program: arguments, temporaries,
// iteration domains, and assignment instructions.
//
// A kernel is a value: every With method returns a new kernel and leaves
// its receiver unchanged.
package kernel

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gx-org/backend/dtype"
	gxfmt "github.com/gx-org/gxlower/base/fmt"
	"github.com/gx-org/gxlower/base/stringseq"
	"github.com/gx-org/gxlower/base/uname"
	"github.com/gx-org/gxlower/domain"
	"github.com/gx-org/gxlower/scalar"
)

type (
	// Arg is an argument of a kernel.
	Arg interface {
		fmt.Stringer
		// ArgName returns the name of the argument.
		ArgName() string
		arg()
	}

	// GlobalArg is an array argument stored in global memory.
	GlobalArg struct {
		Name  string
		Shape []scalar.Expr
		DType dtype.DataType
		// IsOutput is true if the kernel writes the argument.
		IsOutput bool
	}

	// ValueArg is a scalar argument passed by value.
	ValueArg struct {
		Name  string
		DType dtype.DataType
	}
)

var (
	_ Arg = (*GlobalArg)(nil)
	_ Arg = (*ValueArg)(nil)
)

func (*GlobalArg) arg() {}

// ArgName returns the name of the argument.
func (a *GlobalArg) ArgName() string { return a.Name }

func shapeString(shape []scalar.Expr) string {
	ss := make([]string, len(shape))
	for i, dim := range shape {
		ss[i] = dim.String()
	}
	return "(" + strings.Join(ss, ", ") + ")"
}

func (a *GlobalArg) String() string {
	kind := "input"
	if a.IsOutput {
		kind = "output"
	}
	return fmt.Sprintf("%s: %s%s order=C %s", a.Name, a.DType, shapeString(a.Shape), kind)
}

func (*ValueArg) arg() {}

// ArgName returns the name of the argument.
func (a *ValueArg) ArgName() string { return a.Name }

func (a *ValueArg) String() string {
	return fmt.Sprintf("%s: %s value", a.Name, a.DType)
}

// AddressSpace of a temporary.
type AddressSpace int

const (
	// AddressSpaceAuto lets the code generator choose where to store the temporary.
	AddressSpaceAuto AddressSpace = iota
	// AddressSpaceGlobal stores the temporary in global memory.
	AddressSpaceGlobal
)

func (as AddressSpace) String() string {
	if as == AddressSpaceGlobal {
		return "global"
	}
	return "auto"
}

// Temporary is an array allocated by the kernel.
type Temporary struct {
	Name         string
	DType        dtype.DataType
	Shape        []scalar.Expr
	AddressSpace AddressSpace
}

func (t *Temporary) String() string {
	return fmt.Sprintf("%s: %s%s %s", t.Name, t.DType, shapeString(t.Shape), t.AddressSpace)
}

// Assignment stores the value of an expression into an array element.
type Assignment struct {
	ID string
	// Assignee is a Var for zero-dimensional arrays, a Subscript otherwise.
	Assignee scalar.Expr
	Expr     scalar.Expr
	// WithinInames are the index variables the instruction iterates over.
	WithinInames []string
	// DependsOn lists the identifiers of the instructions that must run before.
	DependsOn []string
}

// AssigneeName returns the name of the array written by the instruction.
func (a *Assignment) AssigneeName() string {
	switch x := a.Assignee.(type) {
	case scalar.Var:
		return x.Name
	case scalar.Subscript:
		return x.Aggregate.Name
	}
	return ""
}

func (a *Assignment) String() string {
	return fmt.Sprintf("%s = %s {id=%s, within=[%s], dep=[%s]}",
		a.Assignee, a.Expr, a.ID,
		strings.Join(a.WithinInames, ","),
		strings.Join(a.DependsOn, ":"))
}

// Kernel is a flat program.
type Kernel struct {
	name        string
	args        log[Arg]
	temporaries log[*Temporary]
	domains     log[*domain.Set]
	insns       log[*Assignment]
}

// New returns an empty kernel.
func New(name string) *Kernel {
	return &Kernel{
		name:        name,
		args:        newLog(Arg.ArgName),
		temporaries: newLog(func(t *Temporary) string { return t.Name }),
		domains:     newLog[*domain.Set](nil),
		insns:       newLog(func(a *Assignment) string { return a.ID }),
	}
}

func (k *Kernel) with(update func(r *Kernel)) *Kernel {
	r := *k
	update(&r)
	return &r
}

// Name of the kernel.
func (k *Kernel) Name() string {
	return k.name
}

// WithArgs returns a new kernel with additional arguments.
func (k *Kernel) WithArgs(args ...Arg) *Kernel {
	return k.with(func(r *Kernel) { r.args = r.args.append(args...) })
}

// WithTemporaries returns a new kernel with additional temporaries.
// Lookups by name return the first temporary declared with that name.
func (k *Kernel) WithTemporaries(temps ...*Temporary) *Kernel {
	return k.with(func(r *Kernel) { r.temporaries = r.temporaries.append(temps...) })
}

// WithDomains returns a new kernel with additional iteration domains.
func (k *Kernel) WithDomains(domains ...*domain.Set) *Kernel {
	return k.with(func(r *Kernel) { r.domains = r.domains.append(domains...) })
}

// WithInstructions returns a new kernel with additional instructions.
func (k *Kernel) WithInstructions(insns ...*Assignment) *Kernel {
	return k.with(func(r *Kernel) { r.insns = r.insns.append(insns...) })
}

// Args returns the arguments of the kernel in declaration order.
func (k *Kernel) Args() []Arg {
	return slices.Clone(k.args.items())
}

// Arg returns an argument given its name.
func (k *Kernel) Arg(name string) (Arg, bool) {
	return k.args.find(name)
}

// Temporaries returns the temporaries of the kernel in declaration order.
func (k *Kernel) Temporaries() []*Temporary {
	return slices.Clone(k.temporaries.items())
}

// Temporary returns a temporary given its name.
func (k *Kernel) Temporary(name string) (*Temporary, bool) {
	return k.temporaries.find(name)
}

// Domains returns the iteration domains of the kernel.
func (k *Kernel) Domains() []*domain.Set {
	return slices.Clone(k.domains.items())
}

// Instructions returns the instructions of the kernel in insertion order.
func (k *Kernel) Instructions() []*Assignment {
	return slices.Clone(k.insns.items())
}

// Instruction returns an instruction given its identifier.
func (k *Kernel) Instruction(id string) (*Assignment, bool) {
	return k.insns.find(id)
}

// DomainFor returns the first domain containing all the given index variables.
func (k *Kernel) DomainFor(inames []string) (*domain.Set, bool) {
	for _, dom := range k.domains.items() {
		if !slices.ContainsFunc(inames, func(iname string) bool { return !dom.Has(iname) }) {
			return dom, true
		}
	}
	return nil, false
}

// VarNameGenerator returns a generator of names not used by the kernel
// for arguments, temporaries, or index variables.
func (k *Kernel) VarNameGenerator() *uname.Unique {
	gen := uname.New()
	for _, arg := range k.args.items() {
		gen.Register(arg.ArgName())
	}
	for _, temp := range k.temporaries.items() {
		gen.Register(temp.Name)
	}
	for _, dom := range k.domains.items() {
		gen.Register(dom.Dims()...)
	}
	return gen
}

// InstructionIDGenerator returns a generator of instruction identifiers
// not used by the kernel.
func (k *Kernel) InstructionIDGenerator() *uname.Unique {
	gen := uname.New()
	for _, insn := range k.insns.items() {
		gen.Register(insn.ID)
	}
	return gen
}

func (k *Kernel) String() string {
	var s strings.Builder
	fmt.Fprintf(&s, "kernel %s {\n", k.name)
	section := func(title string, body string) {
		if body == "" {
			return
		}
		s.WriteString(gxfmt.Indent(title + ":\n"))
		s.WriteString(gxfmt.Indent(gxfmt.Indent(body + "\n")))
	}
	section("arguments", stringseq.JoinStringer(slices.Values(k.args.items()), "\n"))
	section("temporaries", stringseq.JoinStringer(slices.Values(k.temporaries.items()), "\n"))
	section("domains", stringseq.JoinStringer(slices.Values(k.domains.items()), "\n"))
	section("instructions", stringseq.JoinStringer(slices.Values(k.insns.items()), "\n"))
	s.WriteString("}")
	return s.String()
}
