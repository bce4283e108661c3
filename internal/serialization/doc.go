// Package serialization provides the native .spm snapshot format for sparse matrices.
//
// The .spm format stores a matrix in compressed sparse row form so that it can
// be loaded without conversion:
//
//	Format Structure:
//	  [4 bytes: Magic "SPMX"]
//	  [4 bytes: Version (uint32 LE)]
//	  [4 bytes: Flags (uint32 LE)]
//	  [4 bytes: Reserved]
//	  [8 bytes: Header Size (uint64 LE)]
//	  [8 bytes: Data Size (uint64 LE)]
//	  [32 bytes: SHA-256 of the data section]
//	  [Header: JSON metadata, padded to 64 bytes]
//	  [Sections "ap", "aj", "ax": raw little-endian arrays, 64-byte aligned]
//
// Example usage:
//
//	// Save a matrix
//	if err := serialization.WriteFile("graph.spm", m, nil); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Load it again, memory-mapped
//	r, err := serialization.Open("graph.spm")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//	m, err := serialization.Load[float32](r, acc)
package serialization
