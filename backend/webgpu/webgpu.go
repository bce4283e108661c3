//go:build windows

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU accelerator: WGSL kernels on the GPU.
//
// Importing the package registers the "webgpu" accelerator:
//
//	import (
//	    "github.com/born-ml/sparse"
//	    _ "github.com/born-ml/sparse/backend/webgpu"
//	)
//
//	func main() {
//	    lib, err := sparse.New(sparse.WithAccelerator("webgpu"))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer lib.Release()
//	}
//
// float64 kernels are not available in WGSL; pin float64 tasks to the host.
package webgpu

import (
	internalwebgpu "github.com/born-ml/sparse/internal/backend/webgpu"
)

// Name is the accelerator name of the WebGPU device.
const Name = internalwebgpu.Name

// Device is the WebGPU accelerator.
type Device = internalwebgpu.Device

// Config configures the WebGPU accelerator.
type Config = internalwebgpu.Config

// DefaultConfig returns the default configuration.
func DefaultConfig() Config { return internalwebgpu.DefaultConfig() }

// New creates a WebGPU accelerator.
//
// Returns an error if WebGPU initialization fails (e.g., no compatible GPU).
func New(cfg Config) (*Device, error) { return internalwebgpu.New(cfg) }

// IsAvailable checks if WebGPU is available on the current system.
//
// Useful for graceful fallback to the software accelerator:
//
//	name := "cpu"
//	if webgpu.IsAvailable() {
//	    name = webgpu.Name
//	}
func IsAvailable() bool { return internalwebgpu.IsAvailable() }
