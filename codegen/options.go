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
	"github.com/pkg/errors"
	"github.com/gx-org/gxlower/array"
	"github.com/gx-org/gxlower/kernel"
)

type (
	// Option configures the generation of a kernel.
	Option interface {
		// OptionName returns the name of the option for error messages.
		OptionName() string
	}

	// Tracer is notified of the progress of the lowering.
	Tracer interface {
		// Lowered is called once for every node lowered by a rule.
		Lowered(node array.Array, result Result)
		// Emitted is called once for every instruction added to the kernel.
		Emitted(insn *kernel.Assignment)
	}

	// WithTracer sets a tracer.
	WithTracer struct {
		Tracer Tracer
	}

	// WithKernelName sets the name of the generated kernel.
	WithKernelName struct {
		Name string
	}

	// WithValidation enables or disables the validation of the generated kernel.
	// Validation is enabled by default.
	WithValidation struct {
		Enable bool
	}
)

// OptionName returns the name of the option.
func (WithTracer) OptionName() string { return "tracer" }

// OptionName returns the name of the option.
func (WithKernelName) OptionName() string { return "kernel name" }

// OptionName returns the name of the option.
func (WithValidation) OptionName() string { return "validation" }

const defaultKernelName = "lowered_kernel"

type options struct {
	tracer     Tracer
	kernelName string
	validate   bool
}

func processOptions(opts []Option) (*options, error) {
	o := &options{
		kernelName: defaultKernelName,
		validate:   true,
	}
	for _, opt := range opts {
		switch optT := opt.(type) {
		case WithTracer:
			o.tracer = optT.Tracer
		case WithKernelName:
			if optT.Name == "" {
				return nil, errors.Errorf("kernel name cannot be empty")
			}
			o.kernelName = optT.Name
		case WithValidation:
			o.validate = optT.Enable
		default:
			return nil, errors.Errorf("option of type %T not supported", optT)
		}
	}
	return o, nil
}

func (o *options) lowered(node array.Array, result Result) {
	if o.tracer == nil {
		return
	}
	o.tracer.Lowered(node, result)
}

func (o *options) emitted(insns ...*kernel.Assignment) {
	if o.tracer == nil {
		return
	}
	for _, insn := range insns {
		o.tracer.Emitted(insn)
	}
}
