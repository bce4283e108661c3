// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the software accelerator: an accelerator device that
// runs kernels as Go functions, work-group by work-group across all cores.
//
// The device registers itself as "cpu" and is the default accelerator of
// sparse.New. Use this package to create one directly or to inspect its
// command counters:
//
//	dev := cpu.New(cpu.Config{WorkgroupSize: 32, Queues: 2})
//	defer dev.Release()
//	fmt.Println(dev.Description(), dev.Stats().Kernels)
package cpu

import (
	internalcpu "github.com/born-ml/sparse/internal/backend/cpu"
)

// Name is the accelerator name of the software device.
const Name = internalcpu.Name

// Device is the software accelerator.
type Device = internalcpu.Device

// Config configures the software accelerator.
type Config = internalcpu.Config

// Stats counts the commands executed by a device.
type Stats = internalcpu.Stats

// DefaultConfig returns the default configuration for this machine.
func DefaultConfig() Config { return internalcpu.DefaultConfig() }

// New creates a software accelerator. Zero fields of cfg take their defaults.
func New(cfg Config) *Device { return internalcpu.New(cfg) }
