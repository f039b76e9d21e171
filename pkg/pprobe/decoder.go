package pprobe

import "fmt"

// FrameLocation names one entry of a reconstructed inline context: the
// name of the function that did the inlining, and the callsite probe
// index at which it inlined its callee (or, for the leaf entry, the
// probe's own function and index).
type FrameLocation struct {
	FuncName []byte
	Index    uint32
}

// Decoder parses a descriptor section into a GUID→FuncDesc map and a
// probe section into a decoded inline forest plus an address index, and
// answers context-reconstruction queries against them. Descriptor-map
// build and probe-section build are sequential phases; once both have
// returned, query methods are read-only and safe for concurrent use.
type Decoder struct {
	funcDescs map[uint64]FuncDesc
	root      *DecodedInlineTreeNode
	addrIndex AddressIndex
	arena     *probeArena
}

// NewDecoder returns a Decoder with empty maps, ready for BuildFuncDescMap
// and BuildAddressIndex.
func NewDecoder() *Decoder {
	return &Decoder{
		funcDescs: make(map[uint64]FuncDesc),
		root:      &DecodedInlineTreeNode{Children: make(map[InlineSite]*DecodedInlineTreeNode)},
		addrIndex: make(AddressIndex),
		arena:     newProbeArena(),
	}
}

// BuildFuncDescMap parses the descriptor-section wire format (spec §6)
// into the decoder's GUID→FuncDesc map. data is borrowed: FuncDesc.Name
// slices alias it directly, so the caller must keep it alive for the
// decoder's lifetime. On failure the map is left partially populated and
// must be discarded by the caller; there is no partial-recovery path.
func (d *Decoder) BuildFuncDescMap(data []byte) error {
	c := NewCursor(data)
	for !c.Done() {
		guid, err := c.ReadFixedU64()
		if err != nil {
			return err
		}
		hash, err := c.ReadFixedU64()
		if err != nil {
			return err
		}
		nameSize, err := c.ReadULEB128(32)
		if err != nil {
			return err
		}
		name, err := c.ReadString(int(nameSize))
		if err != nil {
			return err
		}
		// Last-writer-wins on duplicate GUIDs, per spec §4.5.
		d.funcDescs[guid] = FuncDesc{GUID: guid, Hash: hash, Name: name}
	}
	if !c.Done() {
		return fmt.Errorf("%w: descriptor section", ErrResidualBytes)
	}
	return nil
}

// FuncDesc looks up a function descriptor by GUID.
func (d *Decoder) FuncDesc(guid uint64) (FuncDesc, bool) {
	fd, ok := d.funcDescs[guid]
	return fd, ok
}

// BuildAddressIndex parses the probe-section wire format (spec §6) into
// the decoder's inline forest and address index. When filter is non-empty,
// only top-level function bodies whose GUID is in filter (and everything
// inlined into them) are retained; filtered-out bodies are still fully
// consumed from the stream so that the shared last_addr cursor and byte
// offsets stay aligned with the encoder's output (spec §8, property 4).
func (d *Decoder) BuildAddressIndex(data []byte, filter map[uint64]bool) error {
	c := NewCursor(data)
	var lastAddr uint64
	for !c.Done() {
		if err := d.buildRecord(c, d.root, &lastAddr, filter); err != nil {
			return err
		}
	}
	if !c.Done() {
		return fmt.Errorf("%w: probe section", ErrResidualBytes)
	}
	return nil
}

// buildRecord decodes one FUNCTION_BODY record rooted at cur (possibly nil
// when the top-level GUID was filtered out) and recurses into its
// NUM_INLINED inlinees.
func (d *Decoder) buildRecord(c *Cursor, cur *DecodedInlineTreeNode, lastAddr *uint64, filter map[uint64]bool) error {
	var index uint32
	isTop := cur == d.root
	if isTop {
		// Sequential id for the top-level function; never read from
		// the stream (spec §9, open question).
		index = uint32(len(cur.Children))
	} else {
		v, err := c.ReadULEB128(32)
		if err != nil {
			return err
		}
		index = uint32(v)
	}

	guid, err := c.ReadFixedU64()
	if err != nil {
		return err
	}

	if isTop && len(filter) > 0 && !filter[guid] {
		cur = nil
	}

	if cur != nil {
		cur = cur.getOrAddChild(InlineSite{CallsiteIndex: index, GUID: guid})
		cur.GUID = guid
	}

	nprobes, err := c.ReadULEB128(32)
	if err != nil {
		return err
	}
	ninlinees, err := c.ReadULEB128(32)
	if err != nil {
		return err
	}

	for i := uint64(0); i < nprobes; i++ {
		pIndex, err := c.ReadULEB128(32)
		if err != nil {
			return err
		}
		value, err := c.ReadFixedU8()
		if err != nil {
			return err
		}
		kind := ProbeKind(value & 0x0F)
		attr := ProbeAttribute((value >> 4) & 0x07)

		var addr uint64
		if value>>7 == 1 {
			offset, err := c.ReadSLEB128(64)
			if err != nil {
				return err
			}
			addr = *lastAddr + uint64(offset)
		} else {
			a, err := c.ReadFixedI64()
			if err != nil {
				return err
			}
			addr = uint64(a)
		}

		if cur != nil {
			probe := d.arena.alloc()
			*probe = DecodedProbe{
				Address:    addr,
				GUID:       cur.GUID,
				Index:      uint32(pIndex),
				Kind:       kind,
				Attributes: attr,
				InlineTree: cur,
			}
			d.addrIndex[addr] = append(d.addrIndex[addr], probe)
			cur.Probes = append(cur.Probes, probe)
		}
		*lastAddr = addr
	}

	for i := uint64(0); i < ninlinees; i++ {
		if err := d.buildRecord(c, cur, lastAddr, filter); err != nil {
			return err
		}
	}
	return nil
}

// ProbesAtAddress returns the probes decoded at addr, in parse order.
func (d *Decoder) ProbesAtAddress(addr uint64) []*DecodedProbe {
	return d.addrIndex[addr]
}

// CallProbeAtAddress returns the unique call-kind (direct or indirect)
// probe at addr, or nil if there is none. Callers are expected to invoke
// this only on addresses known to be callsites; more than one call-kind
// probe at an address is a contract violation the decoder does not
// itself detect (spec §4.5).
func (d *Decoder) CallProbeAtAddress(addr uint64) *DecodedProbe {
	for _, p := range d.addrIndex[addr] {
		if p.Kind.IsCall() {
			return p
		}
	}
	return nil
}

// InlineContextForProbe walks probe.InlineTree upward to the first
// ancestor without an inline site, collecting (caller function name,
// callsite index) pairs in caller→callee order. When includeLeaf is true,
// the probe's own (function name, index) is appended last.
func (d *Decoder) InlineContextForProbe(probe *DecodedProbe, includeLeaf bool) ([]FrameLocation, error) {
	var frames []FrameLocation
	cur := probe.InlineTree
	for cur.hasInlineSite() {
		fd, ok := d.FuncDesc(cur.Parent.GUID)
		if !ok {
			return nil, fmt.Errorf("no function descriptor for GUID %#x", cur.Parent.GUID)
		}
		frames = append(frames, FrameLocation{FuncName: fd.Name, Index: cur.InlineSite.CallsiteIndex})
		cur = cur.Parent
	}
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
	if includeLeaf {
		fd, ok := d.FuncDesc(probe.GUID)
		if !ok {
			return nil, fmt.Errorf("no function descriptor for GUID %#x", probe.GUID)
		}
		frames = append(frames, FrameLocation{FuncName: fd.Name, Index: probe.Index})
	}
	return frames, nil
}

// Release returns the decoder's internal probe arena to the shared pool.
// The decoder, and every *DecodedProbe it has handed out, must not be used
// after calling Release.
func (d *Decoder) Release() {
	d.arena.release()
}

// InlinerDescForProbe returns the descriptor of the function that inlined
// probe's owning function, or false if probe belongs to a top-level
// function (no inliner).
func (d *Decoder) InlinerDescForProbe(probe *DecodedProbe) (FuncDesc, bool) {
	node := probe.InlineTree
	if !node.hasInlineSite() {
		return FuncDesc{}, false
	}
	return d.FuncDesc(node.Parent.GUID)
}
