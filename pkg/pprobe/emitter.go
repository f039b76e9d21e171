package pprobe

import "github.com/grafana/dskit/multierror"

// SectionKey is an opaque output-section identifier. The object-file
// collaborator decides which physical section (including comdat groups)
// each key resolves to; the core only uses it to keep independent inline
// trees — and independent LastProbe cursors — apart.
type SectionKey string

// SectionSwitcher resolves a SectionKey to the ObjectStreamer that should
// receive that section's bytes. A real backend switches the underlying
// object-file section before returning; MemorySectionSwitcher (below)
// keeps everything in one buffer per key for testing.
type SectionSwitcher interface {
	SectionStreamer(key SectionKey) ObjectStreamer
}

// SectionSet groups probes by output section; each section owns an
// independent inline tree and, at emission time, an independent LastProbe
// cursor (spec §4.4: "reset per section").
type SectionSet struct {
	trees map[SectionKey]*InlineTreeNode
}

func NewSectionSet() *SectionSet {
	return &SectionSet{trees: make(map[SectionKey]*InlineTreeNode)}
}

// AddProbe inserts probe, under the given inline stack, into the tree for
// the named output section, creating it on first use.
func (s *SectionSet) AddProbe(key SectionKey, probe Probe, stack []InlineFrame) {
	t, ok := s.trees[key]
	if !ok {
		t = NewInlineTree()
		s.trees[key] = t
	}
	t.AddProbe(probe, stack)
}

// Tree returns the section's inline tree, or nil if no probe has been
// added to it yet.
func (s *SectionSet) Tree(key SectionKey) *InlineTreeNode { return s.trees[key] }

// Emit walks every section's tree in deterministic order and streams it
// through the switcher. Re-emitting the same SectionSet twice against two
// streamers with identical semantics produces byte-identical output
// (spec §8, property 3), since children are always visited in ascending
// (callsite_index, guid) order and probes in insertion order.
func (s *SectionSet) Emit(sw SectionSwitcher) error {
	var errs multierror.MultiError
	for key, tree := range s.trees {
		st := sw.SectionStreamer(key)
		var last *Probe
		if err := emitNode(st, tree, &last); err != nil {
			errs.Add(err)
		}
	}
	return errs.Err()
}

// emitNode performs the pre-order-header/post-order-children walk
// described in spec §4.4. last is the LastProbe cursor, which persists
// across the entire section walk (not merely within one node).
func emitNode(s ObjectStreamer, n *InlineTreeNode, last **Probe) error {
	if n.GUID != 0 {
		s.EmitUint64(n.GUID)
		s.EmitULEB128(uint64(len(n.Probes)))
		s.EmitULEB128(uint64(len(n.Children)))
		for i := range n.Probes {
			p := &n.Probes[i]
			if err := p.emit(s, *last); err != nil {
				return err
			}
			*last = p
		}
	}

	for _, child := range n.sortedChildren() {
		if n.GUID != 0 {
			// Root emits no header of its own, so its children's
			// callsite indices (all 0) need not be written; every
			// other node must write the child's inline-site index
			// before recursing into it.
			s.EmitULEB128(uint64(child.site.CallsiteIndex))
		}
		if err := emitNode(s, child.node, last); err != nil {
			return err
		}
	}
	return nil
}

// MemorySectionSwitcher keeps one MemoryStreamer per SectionKey, useful
// for tests and the reference CLI where no real object file exists.
type MemorySectionSwitcher struct {
	streamers map[SectionKey]*MemoryStreamer
}

func NewMemorySectionSwitcher() *MemorySectionSwitcher {
	return &MemorySectionSwitcher{streamers: make(map[SectionKey]*MemoryStreamer)}
}

func (m *MemorySectionSwitcher) SectionStreamer(key SectionKey) ObjectStreamer {
	st, ok := m.streamers[key]
	if !ok {
		st = NewMemoryStreamer()
		m.streamers[key] = st
	}
	return st
}

func (m *MemorySectionSwitcher) Bytes(key SectionKey) []byte {
	if st, ok := m.streamers[key]; ok {
		return st.Bytes()
	}
	return nil
}
