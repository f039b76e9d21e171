package pprobe

import "fmt"

// ProbeKind distinguishes what kind of instrumentation point a probe marks.
// Interpretation beyond emission/decoding belongs to downstream profiling
// tools; the core only needs to round-trip the value.
type ProbeKind uint8

const (
	ProbeKindBlock ProbeKind = iota
	ProbeKindIndirectCall
	ProbeKindDirectCall
)

func (k ProbeKind) String() string {
	switch k {
	case ProbeKindBlock:
		return "Block"
	case ProbeKindIndirectCall:
		return "IndirectCall"
	case ProbeKindDirectCall:
		return "DirectCall"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// IsCall reports whether the probe marks a call site (direct or indirect).
func (k ProbeKind) IsCall() bool {
	return k == ProbeKindIndirectCall || k == ProbeKindDirectCall
}

// ProbeAttribute is a bitset of flags describing how a probe behaves.
type ProbeAttribute uint8

const (
	AttributeTailCall ProbeAttribute = 1 << iota
	AttributeDangling
)

const (
	maxProbeKind  = 0xF
	maxProbeAttrs = 0x7
)

// Label is an opaque reference to a code address, fixed up by the object
// writer. The core never dereferences a concrete address directly; it asks
// the label (or the ObjectStreamer, for pairs of labels) to resolve it.
type Label interface {
	// Address returns the label's address if it is already known to be
	// an absolute constant. ok is false when the address can only be
	// determined by the object writer at link/relocation time.
	Address() (addr uint64, ok bool)
}

// ConstLabel is a Label with a statically known absolute address, useful
// for tests and for callers that have already resolved their code
// addresses (e.g. a JIT emitting directly into memory).
type ConstLabel uint64

func (c ConstLabel) Address() (uint64, bool) { return uint64(c), true }

// Probe is one instrumentation point: a function-local index, a kind, a
// bitset of attributes, a code-address label, and the GUID of the
// function it originates from.
type Probe struct {
	Index      uint32
	Kind       ProbeKind
	Attributes ProbeAttribute
	Label      Label
	GUID       uint64
}

// validate enforces the wire-format bit-width invariants on Kind and
// Attributes. Violating them is a programming error on the caller's part
// (the probe was built with an out-of-range value), not a property of
// untrusted input, so it is reported the same way other encode-time
// mistakes are: a structured error the caller can check, rather than a
// panic.
func (p *Probe) validate() error {
	if uint8(p.Kind) > maxProbeKind {
		return fmt.Errorf("%w: probe %d has type %d > %d", ErrEncodeViolation, p.Index, p.Kind, maxProbeKind)
	}
	if uint8(p.Attributes) > maxProbeAttrs {
		return fmt.Errorf("%w: probe %d has attributes %#x > %#x", ErrEncodeViolation, p.Index, p.Attributes, maxProbeAttrs)
	}
	return nil
}

// emit writes the probe's on-wire layout to the streamer, given the
// previous probe emitted in the same section walk (nil for the first
// probe of a section). Only that first probe carries an absolute address;
// every later probe in the section walk, across GUID groups, is a signed
// delta from its predecessor.
func (p *Probe) emit(s ObjectStreamer, prev *Probe) error {
	if err := p.validate(); err != nil {
		return err
	}
	s.EmitULEB128(uint64(p.Index))

	packed := uint8(p.Kind) | uint8(p.Attributes)<<4
	if prev != nil {
		packed |= 0x80
	}
	s.EmitUint8(packed)

	if prev == nil {
		s.EmitSymbolValue(p.Label, 8)
		return nil
	}
	delta, folded := s.EmitSymbolDiff(p.Label, prev.Label)
	if folded {
		s.EmitSLEB128(delta)
	} else {
		s.EnqueueFixup(AddressDeltaFixup{Current: p.Label, Previous: prev.Label})
	}
	return nil
}
