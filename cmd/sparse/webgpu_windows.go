//go:build windows

package main

// Registers the webgpu accelerator.
import _ "github.com/born-ml/sparse/backend/webgpu"
