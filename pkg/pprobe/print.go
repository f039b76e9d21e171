package pprobe

import (
	"fmt"
	"io"
	"sort"
)

// WriteFuncDescs writes two lines per function descriptor (GUID and name,
// then hash), ordered by
// ascending GUID for determinism — the original implementation sorts
// before printing for exactly this reason (its GUID2FuncDescMap is a hash
// map with no stable iteration order).
func (d *Decoder) WriteFuncDescs(w io.Writer) error {
	guids := make([]uint64, 0, len(d.funcDescs))
	for g := range d.funcDescs {
		guids = append(guids, g)
	}
	sort.Slice(guids, func(i, j int) bool { return guids[i] < guids[j] })
	for _, g := range guids {
		fd := d.funcDescs[g]
		if _, err := fmt.Fprintf(w, "GUID: %d Name: %s\nHash: %d\n", fd.GUID, fd.Name, fd.Hash); err != nil {
			return err
		}
	}
	return nil
}

// WriteProbe prints one decoded probe, optionally resolving its GUID to a
// function name and always including its reconstructed inline context.
func (d *Decoder) WriteProbe(w io.Writer, p *DecodedProbe, showName bool) error {
	fmt.Fprint(w, "FUNC: ")
	if showName {
		fd, ok := d.FuncDesc(p.GUID)
		if ok {
			fmt.Fprintf(w, "%s ", fd.Name)
		} else {
			fmt.Fprintf(w, "%#x ", p.GUID)
		}
	} else {
		fmt.Fprintf(w, "%d ", p.GUID)
	}
	fmt.Fprintf(w, "Index: %d  Type: %s  ", p.Index, p.Kind)

	if fd, ok := d.InlinerDescForProbe(p); ok {
		fmt.Fprintf(w, "Inliner: %s  ", fd.Name)
	}

	ctx, err := d.InlineContextForProbe(p, false)
	if err != nil {
		return err
	}
	if len(ctx) > 0 {
		fmt.Fprint(w, "Inlined: @ ")
		for i, f := range ctx {
			if i > 0 {
				fmt.Fprint(w, " @ ")
			}
			fmt.Fprintf(w, "%s:%d", f.FuncName, f.Index)
		}
	}
	_, err = fmt.Fprintln(w)
	return err
}

// WriteProbesAtAddress prints every probe decoded at addr, in parse order.
func (d *Decoder) WriteProbesAtAddress(w io.Writer, addr uint64) error {
	for _, p := range d.addrIndex[addr] {
		fmt.Fprint(w, " [Probe]:\t")
		if err := d.WriteProbe(w, p, true); err != nil {
			return err
		}
	}
	return nil
}

// WriteAllProbes prints every decoded probe, grouped by ascending address.
func (d *Decoder) WriteAllProbes(w io.Writer) error {
	addrs := make([]uint64, 0, len(d.addrIndex))
	for a := range d.addrIndex {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	for _, a := range addrs {
		fmt.Fprintf(w, "Address:\t%d\n", a)
		if err := d.WriteProbesAtAddress(w, a); err != nil {
			return err
		}
	}
	return nil
}
