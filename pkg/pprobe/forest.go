package pprobe

// FuncDesc is a decoded function descriptor: the GUID/hash/name triple the
// descriptor section carries for each function. Name aliases the
// descriptor-section byte buffer the caller supplied to
// Decoder.BuildFuncDescMap;
// its encoding is unspecified (spec §9: "do not assume UTF-8 validity").
type FuncDesc struct {
	GUID uint64
	Hash uint64
	Name []byte
}

func (d FuncDesc) String() string {
	return string(d.Name)
}

// DecodedInlineTreeNode is one node of the decoded inline forest: a
// function body (top-level or inlined), its inline site (how it was
// reached from its parent), a non-owning parent back-reference, its
// children, and non-owning pointers to the probes decoded in it.
//
// Parent back-pointers never own their target: children live in the
// parent's Children map, and probes live in the decoder's probe arena
// (the address index holds pointers to them as well).
// This keeps the forest a simple tree of owned children plus a cheap
// upward walk for context reconstruction, without reference cycles.
type DecodedInlineTreeNode struct {
	GUID       uint64
	InlineSite InlineSite
	Parent     *DecodedInlineTreeNode
	Children   map[InlineSite]*DecodedInlineTreeNode
	Probes     []*DecodedProbe
}

// hasInlineSite reports whether the node was reached via a real inlining
// edge. The synthetic root, and (by convention) every top-level function
// node, report false — spec §3: "absent/zero for synthetic root and ...
// for top-level functions".
func (n *DecodedInlineTreeNode) hasInlineSite() bool {
	return n.Parent != nil && n.Parent.Parent != nil
}

func (n *DecodedInlineTreeNode) getOrAddChild(site InlineSite) *DecodedInlineTreeNode {
	if c, ok := n.Children[site]; ok {
		return c
	}
	c := &DecodedInlineTreeNode{
		InlineSite: site,
		Parent:     n,
		Children:   make(map[InlineSite]*DecodedInlineTreeNode),
	}
	n.Children[site] = c
	return c
}

// DecodedProbe is a fully reconstructed probe: an absolute address, the
// identifying (guid, index, kind, attributes) tuple, and a non-owning
// reference to the inline-tree node that produced it.
type DecodedProbe struct {
	Address    uint64
	GUID       uint64
	Index      uint32
	Kind       ProbeKind
	Attributes ProbeAttribute
	InlineTree *DecodedInlineTreeNode
}

// AddressIndex maps an absolute address to the ordered (parse-order) list
// of probes located there. At most one call-kind probe may exist per
// address (spec §3, §8 property 6).
type AddressIndex map[uint64][]*DecodedProbe
