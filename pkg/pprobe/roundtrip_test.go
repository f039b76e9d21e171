package pprobe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// S1 (minimal): one top-level function guid=0xAAAA, one Block probe
// index=1, attr=0, label at absolute address 0x1000.
func TestRoundTrip_S1_Minimal(t *testing.T) {
	const guid = 0xAAAA
	sections := NewSectionSet()
	sections.AddProbe("text", Probe{
		Index: 1,
		Kind:  ProbeKindBlock,
		Label: ConstLabel(0x1000),
		GUID:  guid,
	}, nil)

	sw := NewMemorySectionSwitcher()
	require.NoError(t, sections.Emit(sw))

	want := []byte{
		0xAA, 0xAA, 0, 0, 0, 0, 0, 0, // GUID LE u64
		0x01,                         // NPROBES uleb
		0x00,                         // NUM_INLINED uleb
		0x01,                         // probe INDEX uleb
		0x00,                         // PACKED: delta=0 attr=0 kind=Block(0)
		0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // ADDRESS i64 LE
	}
	require.Equal(t, want, sw.Bytes("text"))

	d := NewDecoder()
	require.NoError(t, d.BuildAddressIndex(sw.Bytes("text"), nil))
	defer d.Release()

	probes := d.ProbesAtAddress(0x1000)
	require.Len(t, probes, 1)
	require.Equal(t, uint64(0x1000), probes[0].Address)
	require.Equal(t, uint64(guid), probes[0].GUID)
	require.Equal(t, uint32(1), probes[0].Index)
	require.Equal(t, ProbeKindBlock, probes[0].Kind)
}

// S2 (delta): same function, two probes at addresses 0x1000 and 0x1005.
func TestRoundTrip_S2_Delta(t *testing.T) {
	const guid = 0xAAAA
	sections := NewSectionSet()
	sections.AddProbe("text", Probe{Index: 1, Kind: ProbeKindBlock, Label: ConstLabel(0x1000), GUID: guid}, nil)
	sections.AddProbe("text", Probe{Index: 2, Kind: ProbeKindBlock, Label: ConstLabel(0x1005), GUID: guid}, nil)

	sw := NewMemorySectionSwitcher()
	require.NoError(t, sections.Emit(sw))

	b := sw.Bytes("text")
	// Second probe must be delta-encoded with SLEB128(+5) == single byte 0x05.
	require.Equal(t, byte(0x05), b[len(b)-1])
	require.Equal(t, byte(0x80), b[len(b)-2]&0x80) // delta flag set

	d := NewDecoder()
	require.NoError(t, d.BuildAddressIndex(b, nil))
	defer d.Release()

	require.Len(t, d.ProbesAtAddress(0x1000), 1)
	require.Len(t, d.ProbesAtAddress(0x1005), 1)
	require.Equal(t, uint32(2), d.ProbesAtAddress(0x1005)[0].Index)
}

// S3 (inlining): top-level A containing DirectCall probe index 7; inlined
// B at callsite probe index 7 containing Block probe index 1.
func TestRoundTrip_S3_Inlining(t *testing.T) {
	const guidA, guidB = 0xA, 0xB
	sections := NewSectionSet()
	sections.AddProbe("text", Probe{Index: 7, Kind: ProbeKindDirectCall, Label: ConstLabel(0x2000), GUID: guidA}, nil)
	sections.AddProbe("text", Probe{Index: 1, Kind: ProbeKindBlock, Label: ConstLabel(0x2010), GUID: guidB},
		[]InlineFrame{{CallsiteIndex: 7, GUID: guidA}})

	sw := NewMemorySectionSwitcher()
	require.NoError(t, sections.Emit(sw))

	d := NewDecoder()
	require.NoError(t, d.BuildFuncDescMap(descBytes(t, guidA, "A", guidB, "B")))
	require.NoError(t, d.BuildAddressIndex(sw.Bytes("text"), nil))
	defer d.Release()

	bProbes := d.ProbesAtAddress(0x2010)
	require.Len(t, bProbes, 1)
	bProbe := bProbes[0]
	require.Equal(t, uint64(guidB), bProbe.GUID)

	ctxNoLeaf, err := d.InlineContextForProbe(bProbe, false)
	require.NoError(t, err)
	require.Equal(t, []FrameLocation{{FuncName: []byte("A"), Index: 7}}, ctxNoLeaf)

	ctxLeaf, err := d.InlineContextForProbe(bProbe, true)
	require.NoError(t, err)
	require.Equal(t, []FrameLocation{
		{FuncName: []byte("A"), Index: 7},
		{FuncName: []byte("B"), Index: 1},
	}, ctxLeaf)

	aProbes := d.ProbesAtAddress(0x2000)
	require.Len(t, aProbes, 1)
	aCtx, err := d.InlineContextForProbe(aProbes[0], false)
	require.NoError(t, err)
	require.Empty(t, aCtx)

	inliner, ok := d.InlinerDescForProbe(bProbe)
	require.True(t, ok)
	require.Equal(t, []byte("A"), inliner.Name)

	_, ok = d.InlinerDescForProbe(aProbes[0])
	require.False(t, ok, "a top-level function has no inliner")
}

// S4 (filter): two top-level functions G1, G2; decoding with filter {G2}
// produces an index whose every probe traces up to G2.
func TestRoundTrip_S4_Filter(t *testing.T) {
	const g1, g2 = 0x1, 0x2
	sections := NewSectionSet()
	sections.AddProbe("text", Probe{Index: 1, Kind: ProbeKindBlock, Label: ConstLabel(0x100), GUID: g1}, nil)
	sections.AddProbe("text", Probe{Index: 1, Kind: ProbeKindBlock, Label: ConstLabel(0x200), GUID: g2}, nil)

	sw := NewMemorySectionSwitcher()
	require.NoError(t, sections.Emit(sw))
	raw := sw.Bytes("text")

	d := NewDecoder()
	require.NoError(t, d.BuildAddressIndex(raw, map[uint64]bool{g2: true}))
	defer d.Release()

	require.Empty(t, d.ProbesAtAddress(0x100))
	probes := d.ProbesAtAddress(0x200)
	require.Len(t, probes, 1)
	require.Equal(t, uint64(g2), probes[0].GUID)
}

// S5 (truncation): truncating the input to any shorter non-empty prefix
// causes the build to fail.
func TestRoundTrip_S5_Truncation(t *testing.T) {
	sections := NewSectionSet()
	sections.AddProbe("text", Probe{Index: 1, Kind: ProbeKindBlock, Label: ConstLabel(0x1000), GUID: 0xAAAA}, nil)
	sections.AddProbe("text", Probe{Index: 2, Kind: ProbeKindBlock, Label: ConstLabel(0x1005), GUID: 0xAAAA}, nil)

	sw := NewMemorySectionSwitcher()
	require.NoError(t, sections.Emit(sw))
	full := sw.Bytes("text")

	// n==0 (an empty section) is a legitimate decode of zero records, not
	// a truncation; every other prefix cuts a record in half.
	for n := 1; n < len(full); n++ {
		d := NewDecoder()
		err := d.BuildAddressIndex(full[:n], nil)
		require.Error(t, err, "truncated to %d bytes should fail", n)
		d.Release()
	}
}

// S6 (determinism): inserting the same probes in two different orders
// that collapse to the same tree produces byte-identical emission.
func TestRoundTrip_S6_Determinism(t *testing.T) {
	// Each probe lands in a distinct tree node (two top-level functions
	// plus one nested under the first), so permuting the insertion order
	// never reorders probes *within* a node — only the sorted child walk
	// determines emission order, which is what this test is pinning down.
	build := func(order []int) []byte {
		probes := []Probe{
			{Index: 1, Kind: ProbeKindBlock, Label: ConstLabel(0x1000), GUID: 0xA},
			{Index: 1, Kind: ProbeKindBlock, Label: ConstLabel(0x4000), GUID: 0xC},
			{Index: 1, Kind: ProbeKindBlock, Label: ConstLabel(0x3000), GUID: 0xB},
		}
		stacks := [][]InlineFrame{nil, nil, {{CallsiteIndex: 2, GUID: 0xA}}}

		sections := NewSectionSet()
		for _, i := range order {
			sections.AddProbe("text", probes[i], stacks[i])
		}
		sw := NewMemorySectionSwitcher()
		require.NoError(t, sections.Emit(sw))
		return sw.Bytes("text")
	}

	a := build([]int{0, 1, 2})
	b := build([]int{2, 1, 0})
	require.Equal(t, a, b)

	// Building and emitting the same tree again is also byte-identical.
	c := build([]int{0, 1, 2})
	require.Equal(t, a, c)
}

// Call-probe uniqueness (quantified property 6).
func TestCallProbeAtAddress_Uniqueness(t *testing.T) {
	sections := NewSectionSet()
	sections.AddProbe("text", Probe{Index: 1, Kind: ProbeKindBlock, Label: ConstLabel(0x1000), GUID: 0xA}, nil)
	sections.AddProbe("text", Probe{Index: 2, Kind: ProbeKindDirectCall, Label: ConstLabel(0x1000), GUID: 0xA}, nil)

	sw := NewMemorySectionSwitcher()
	require.NoError(t, sections.Emit(sw))

	d := NewDecoder()
	require.NoError(t, d.BuildAddressIndex(sw.Bytes("text"), nil))
	defer d.Release()

	cp := d.CallProbeAtAddress(0x1000)
	require.NotNil(t, cp)
	require.Equal(t, uint32(2), cp.Index)
	require.Equal(t, ProbeKindDirectCall, cp.Kind)
}

// EncodeViolation: a probe with an out-of-range kind or attribute bitset
// fails emission with ErrEncodeViolation rather than panicking.
func TestEmit_EncodeViolation(t *testing.T) {
	sections := NewSectionSet()
	sections.AddProbe("text", Probe{
		Index: 1,
		Kind:  ProbeKind(maxProbeKind + 1),
		Label: ConstLabel(0x1000),
		GUID:  0xA,
	}, nil)

	err := sections.Emit(NewMemorySectionSwitcher())
	require.ErrorIs(t, err, ErrEncodeViolation)

	sections = NewSectionSet()
	sections.AddProbe("text", Probe{
		Index:      1,
		Kind:       ProbeKindBlock,
		Attributes: ProbeAttribute(maxProbeAttrs + 1),
		Label:      ConstLabel(0x1000),
		GUID:       0xA,
	}, nil)

	err = sections.Emit(NewMemorySectionSwitcher())
	require.ErrorIs(t, err, ErrEncodeViolation)
}

func descBytes(t *testing.T, pairs ...any) []byte {
	t.Helper()
	require.Equal(t, 0, len(pairs)%2)
	var buf []byte
	for i := 0; i < len(pairs); i += 2 {
		guid := uint64(pairs[i].(int))
		name := pairs[i+1].(string)
		var b [8]byte
		putLE64(b[:], guid)
		buf = append(buf, b[:]...)
		putLE64(b[:], 0) // hash
		buf = append(buf, b[:]...)
		buf = PutULEB128(buf, uint64(len(name)))
		buf = append(buf, name...)
	}
	return buf
}
