package pprobe

// InlineSite is the ordered pair (callsite probe index, callee GUID) that
// uniquely keys a child under a parent tree node.
type InlineSite struct {
	CallsiteIndex uint32
	GUID          uint64
}

// Less orders inline sites by callsite index first, then GUID, matching
// the deterministic child-traversal order the emitter requires.
func (s InlineSite) Less(o InlineSite) bool {
	if s.CallsiteIndex != o.CallsiteIndex {
		return s.CallsiteIndex < o.CallsiteIndex
	}
	return s.GUID < o.GUID
}

// InlineTreeNode is one node of the encoder-side inline tri-tree: it
// groups probes by the function and inlining context they belong to.
// GUID is 0 only for the synthetic root.
type InlineTreeNode struct {
	GUID     uint64
	Probes   []Probe
	Children map[InlineSite]*InlineTreeNode
}

// NewInlineTree returns an empty synthetic root node.
func NewInlineTree() *InlineTreeNode {
	return &InlineTreeNode{Children: make(map[InlineSite]*InlineTreeNode)}
}

func (n *InlineTreeNode) isRoot() bool { return n.GUID == 0 && len(n.Probes) == 0 }

func (n *InlineTreeNode) getOrAddChild(site InlineSite) *InlineTreeNode {
	if c, ok := n.Children[site]; ok {
		return c
	}
	c := &InlineTreeNode{GUID: site.GUID, Children: make(map[InlineSite]*InlineTreeNode)}
	n.Children[site] = c
	return c
}

// InlineFrame is one entry of an inline stack: fn inlined the next frame
// (or the probe's own function, for the last entry) at CallsiteIndex.
type InlineFrame struct {
	CallsiteIndex uint32
	GUID          uint64
}

// AddProbe inserts probe into the tree according to its inline stack, read
// outermost-to-innermost. Must only be called on the root node. An empty
// stack means the probe belongs to a top-level function; the tree always
// installs a (0, guid) edge under root for top-level functions. That 0
// index is never written to the stream: the decoder recognises top-level
// bodies by their position directly under its root and numbers them
// sequentially.
func (n *InlineTreeNode) AddProbe(probe Probe, stack []InlineFrame) {
	var top InlineSite
	if len(stack) == 0 {
		top = InlineSite{CallsiteIndex: 0, GUID: probe.GUID}
	} else {
		top = InlineSite{CallsiteIndex: 0, GUID: stack[0].GUID}
	}
	cur := n.getOrAddChild(top)

	if len(stack) > 0 {
		index := stack[0].CallsiteIndex
		for _, frame := range stack[1:] {
			cur = cur.getOrAddChild(InlineSite{CallsiteIndex: index, GUID: frame.GUID})
			index = frame.CallsiteIndex
		}
		cur = cur.getOrAddChild(InlineSite{CallsiteIndex: index, GUID: probe.GUID})
	}

	cur.Probes = append(cur.Probes, probe)
}

// inlineChild pairs a child node with the InlineSite it was installed
// under, since a node does not otherwise know its own key in the parent.
type inlineChild struct {
	site InlineSite
	node *InlineTreeNode
}

// sortedChildren returns the node's children ordered by ascending
// InlineSite, the order the emitter must walk them in to be deterministic.
func (n *InlineTreeNode) sortedChildren() []inlineChild {
	out := make([]inlineChild, 0, len(n.Children))
	for s, c := range n.Children {
		out = append(out, inlineChild{site: s, node: c})
	}
	// Small trees dominate (one per function); insertion sort avoids
	// pulling in sort.Slice's reflection overhead for the common case.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].site.Less(out[j-1].site); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
