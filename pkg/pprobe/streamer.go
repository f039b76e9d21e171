package pprobe

import "encoding/binary"

// ObjectStreamer is the external collaborator spec'd out of the core's
// scope: the object-file writer that knows how to switch sections and
// emit symbol-relative bytes. The emitter (component 4) only ever talks
// to probes and trees through this contract; it never touches an
// io.Writer or a real assembler directly.
type ObjectStreamer interface {
	EmitULEB128(v uint64)
	EmitSLEB128(v int64)
	EmitUint8(v uint8)
	EmitUint64(v uint64)

	// EmitSymbolValue emits label as an absolute, symbolic code address
	// of the given pointer size.
	EmitSymbolValue(label Label, size int)

	// EmitSymbolDiff attempts to fold a-b to a compile-time constant.
	// When it can, delta is that constant and folded is true. When it
	// cannot (e.g. a and b live in sections whose relative layout isn't
	// known yet), folded is false and the caller is expected to call
	// EnqueueFixup instead of emitting anything for this probe's address
	// field.
	EmitSymbolDiff(a, b Label) (delta int64, folded bool)

	// EnqueueFixup records a deferred relocation fragment the object
	// writer will resolve once final addresses are known.
	EnqueueFixup(f AddressDeltaFixup)
}

// AddressDeltaFixup is a deferred address-delta fragment: the object
// writer resolves Current-Previous once both addresses are fixed and
// patches the emitted bytes (or emits a relocation) accordingly. The core
// never interprets its contents further than carrying it to the streamer.
type AddressDeltaFixup struct {
	Current  Label
	Previous Label
}

// MemoryStreamer is a minimal ObjectStreamer that writes straight into a
// byte buffer and folds every symbol difference it can resolve via
// Label.Address. It has no notion of sections or relocations beyond a
// single contiguous buffer, which is enough to drive round-trip tests and
// the reference CLI without a real assembler backend.
type MemoryStreamer struct {
	buf     []byte
	Fixups  []AddressDeltaFixup
	Written int
}

func NewMemoryStreamer() *MemoryStreamer {
	return &MemoryStreamer{}
}

func (m *MemoryStreamer) Bytes() []byte { return m.buf }

func (m *MemoryStreamer) Reset() {
	m.buf = m.buf[:0]
	m.Fixups = m.Fixups[:0]
	m.Written = 0
}

func (m *MemoryStreamer) EmitULEB128(v uint64) {
	m.buf = PutULEB128(m.buf, v)
}

func (m *MemoryStreamer) EmitSLEB128(v int64) {
	m.buf = PutSLEB128(m.buf, v)
}

func (m *MemoryStreamer) EmitUint8(v uint8) {
	m.buf = append(m.buf, v)
}

func (m *MemoryStreamer) EmitUint64(v uint64) {
	var b [8]byte
	putLE64(b[:], v)
	m.buf = append(m.buf, b[:]...)
}

func (m *MemoryStreamer) EmitSymbolValue(label Label, size int) {
	addr, _ := label.Address()
	switch size {
	case 8:
		m.EmitUint64(addr)
	default:
		var b [8]byte
		putLE64(b[:], addr)
		m.buf = append(m.buf, b[:size]...)
	}
}

func (m *MemoryStreamer) EmitSymbolDiff(a, b Label) (int64, bool) {
	aAddr, aOK := a.Address()
	bAddr, bOK := b.Address()
	if !aOK || !bOK {
		return 0, false
	}
	return int64(aAddr) - int64(bAddr), true
}

func (m *MemoryStreamer) EnqueueFixup(f AddressDeltaFixup) {
	m.Fixups = append(m.Fixups, f)
}

func putLE64(b []byte, v uint64) {
	binary.LittleEndian.PutUint64(b, v)
}
