// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package sparse

import (
	"github.com/born-ml/sparse/internal/algo/acc"
	"github.com/born-ml/sparse/internal/algo/host"
	"github.com/born-ml/sparse/internal/container"
	"github.com/born-ml/sparse/internal/engine"
	"github.com/born-ml/sparse/internal/types"

	// Software accelerator registration.
	_ "github.com/born-ml/sparse/internal/backend/cpu"
)

// Element is a constraint for container element types:
// int32, uint32, float32 and float64.
type Element = types.Element

// Type describes an element type at runtime.
type Type = types.Type

// Element type descriptors.
var (
	Int32   = types.Int32
	Uint32  = types.Uint32
	Float32 = types.Float32
	Float64 = types.Float64
)

// Library owns the accelerator, program cache, executor registry and dispatcher.
type Library = engine.Library

// Config is the library configuration.
type Config = engine.Config

// Option configures a Library.
type Option = engine.Option

// EnvAccelerator is the environment variable selecting the accelerator.
const EnvAccelerator = engine.EnvAccelerator

// Options.
var (
	// WithAccelerator selects an accelerator by config string, e.g. "cpu:wgs=32".
	WithAccelerator = engine.WithAccelerator
	// WithNoAcceleration disables the accelerator.
	WithNoAcceleration = engine.WithNoAcceleration
	// WithWorkgroupSize overrides the accelerator workgroup size.
	WithWorkgroupSize = engine.WithWorkgroupSize
	// WithQueues overrides the number of accelerator queues.
	WithQueues = engine.WithQueues
	// WithRegistrar adds executors next to the built-in ones.
	WithRegistrar = engine.WithRegistrar
)

// New creates a library with the built-in host and accelerator executors.
func New(opts ...Option) (*Library, error) {
	all := append([]Option{
		engine.WithRegistrar(host.RegisterAll),
		engine.WithRegistrar(acc.RegisterAll),
	}, opts...)
	return engine.New(all...)
}

// Status classifies the outcome of a dispatch.
type Status = engine.Status

// Statuses.
const (
	StatusOk              = engine.StatusOk
	StatusError           = engine.StatusError
	StatusNotImplemented  = engine.StatusNotImplemented
	StatusInvalidArgument = engine.StatusInvalidArgument
	StatusNoAcceleration  = engine.StatusNoAcceleration
)

// Error is an error carrying a Status.
type Error = engine.Error

// StatusOf classifies err. A nil error is StatusOk.
func StatusOf(err error) Status { return engine.StatusOf(err) }

// Dispatch executes task on lib and consumes it.
func Dispatch(lib *Library, task Task) error { return lib.Dispatcher().Dispatch(task) }

// Vector is a typed vector of fixed size.
type Vector[T Element] = container.Vector[T]

// Matrix is a typed sparse matrix.
type Matrix[T Element] = container.Matrix[T]

// Scalar is a typed host scalar.
type Scalar[T Element] = container.Scalar[T]

// Container errors.
var (
	ErrNoAccelerator = container.ErrNoAccelerator
	ErrReleased      = container.ErrReleased
	ErrOutOfRange    = container.ErrOutOfRange
	ErrShape         = container.ErrShape
)

// NewVector creates a vector of n elements on the library accelerator.
func NewVector[T Element](lib *Library, n int) *Vector[T] {
	return container.NewVector[T](n, lib.Accelerator())
}

// NewMatrix creates an empty rows x cols matrix on the library accelerator.
func NewMatrix[T Element](lib *Library, rows, cols int) *Matrix[T] {
	return container.NewMatrix[T](rows, cols, lib.Accelerator())
}

// NewScalar creates a scalar holding v.
func NewScalar[T Element](v T) *Scalar[T] {
	return container.NewScalar(v)
}
