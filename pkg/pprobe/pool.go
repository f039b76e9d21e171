package pprobe

import "github.com/colega/zeropool"

// probeSlabPool recycles the backing arrays the decoder allocates
// DecodedProbe values from, mirroring the slice-recycling idiom the
// teacher package uses for its own decode-time scratch buffers
// (zeropool.Pool[[]int64] / zeropool.Pool[[]uint32]). The zero value of
// zeropool.Pool is itself usable — Get returns the zero value (nil) when
// the pool is empty, which is exactly the "allocate on first use" slab
// behavior we want here.
var probeSlabPool zeropool.Pool[[]DecodedProbe]

const probeSlabSize = 512

func newProbeSlab() []DecodedProbe {
	s := probeSlabPool.Get()
	if cap(s) < probeSlabSize {
		s = make([]DecodedProbe, 0, probeSlabSize)
	}
	return s[:0]
}

// probeArena allocates DecodedProbe values in contiguous, pool-recycled
// slabs, so decoding a probe section with many probes costs a handful of
// large allocations rather than one per probe. Pointers returned by
// alloc remain valid until release is called.
type probeArena struct {
	slabs [][]DecodedProbe
}

func newProbeArena() *probeArena {
	return &probeArena{slabs: [][]DecodedProbe{newProbeSlab()}}
}

func (a *probeArena) alloc() *DecodedProbe {
	last := len(a.slabs) - 1
	if len(a.slabs[last]) == cap(a.slabs[last]) {
		a.slabs = append(a.slabs, newProbeSlab())
		last++
	}
	a.slabs[last] = append(a.slabs[last], DecodedProbe{})
	return &a.slabs[last][len(a.slabs[last])-1]
}

// release returns every slab to probeSlabPool. The decoder (and every
// *DecodedProbe it ever returned) must not be used afterwards.
func (a *probeArena) release() {
	for _, s := range a.slabs {
		probeSlabPool.Put(s[:0])
	}
	a.slabs = nil
}
