package core

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is the cache line size assumed for padding hot shared
// structures. It follows golang.org/x/sys/cpu, which uses 64 bytes on most
// platforms and 128 bytes where adjacent-line prefetch makes that necessary.
const CacheLineSize = int(unsafe.Sizeof(cpu.CacheLinePad{}))

// cacheLinePad separates independently contended fields.
type cacheLinePad = cpu.CacheLinePad
