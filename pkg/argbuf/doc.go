// Package argbuf builds compute-kernel launch-argument buffers.
//
// A buffer is a single contiguous byte region: a fixed header describing the
// node and its section table, followed by tiling records, a flat address
// table replicated per lane, an optional atomic (cleanup) address table and
// the descriptor and payload regions of dynamic input/output groups.
//
// Building one is a fixed sequence: Compile a Layout, allocate it with
// NewBuffer, bind every lane's addresses, Seal, Relocate to the address the
// bytes are copied to, then RedirectTilingAddresses. Pointers into the buffer
// are kept as section-relative Refs and only turned into absolute addresses
// against a base, so a relocated copy never carries stale pointers.
package argbuf
