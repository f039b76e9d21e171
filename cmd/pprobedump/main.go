// Command pprobedump is a reference CLI over pkg/pprobe: it loads a
// descriptor-section file and one or more probe-section files from disk and
// prints their decoded contents, the way MCPseudoProbeDecoder's print
// helpers do for llvm-profdata-style tooling.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/probetrace/pprobe/pkg/pprobe"
)

var cfg struct {
	verbose bool
	dump    struct {
		descriptorsFile string
		probesFiles     []string
		filterGUID      string
		filterFunc      string
	}
}

var (
	consoleOutput = os.Stderr
	logger        = log.NewLogfmtLogger(consoleOutput)
)

func main() {
	app := kingpin.New(filepath.Base(os.Args[0]), "Inspect pseudo-probe descriptor and probe sections.").UsageWriter(os.Stdout)
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("false").BoolVar(&cfg.verbose)

	dumpCmd := app.Command("dump", "Decode and print a pseudo-probe section.")

	descriptorsCmd := dumpCmd.Command("descriptors", "Print the function descriptor table.")
	descriptorsCmd.Arg("descriptors-file", "Path to a descriptor-section file.").Required().ExistingFileVar(&cfg.dump.descriptorsFile)

	probesCmd := dumpCmd.Command("probes", "Print decoded probes, grouped by address.")
	probesCmd.Arg("descriptors-file", "Path to a descriptor-section file.").Required().ExistingFileVar(&cfg.dump.descriptorsFile)
	probesCmd.Arg("probes-file", "Path to one or more probe-section files.").Required().ExistingFilesVar(&cfg.dump.probesFiles)
	probesCmd.Flag("filter-guid", "Comma-separated list of GUIDs to keep (default: all).").StringVar(&cfg.dump.filterGUID)
	probesCmd.Flag("filter-func", "Comma-separated list of mangled function names to keep, each hashed to a GUID with pprobe.ComputeGUID (xxhash64).").StringVar(&cfg.dump.filterFunc)

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	var logLevel level.Option = level.AllowInfo()
	if cfg.verbose {
		logLevel = level.AllowDebug()
	}
	logger = level.NewFilter(logger, logLevel)

	var err error
	switch cmd {
	case descriptorsCmd.FullCommand():
		err = runDescriptors()
	case probesCmd.FullCommand():
		err = runProbes()
	}
	if err != nil {
		level.Error(logger).Log("msg", "command failed", "err", err)
		os.Exit(1)
	}
}

func runDescriptors() error {
	data, err := os.ReadFile(cfg.dump.descriptorsFile)
	if err != nil {
		return err
	}
	level.Debug(logger).Log("msg", "loaded descriptor section", "bytes", humanize.Bytes(uint64(len(data))))

	d := pprobe.NewDecoder()
	defer d.Release()
	if err := d.BuildFuncDescMap(data); err != nil {
		return fmt.Errorf("decoding %s: %w", cfg.dump.descriptorsFile, err)
	}
	return d.WriteFuncDescs(os.Stdout)
}

func runProbes() error {
	descData, err := os.ReadFile(cfg.dump.descriptorsFile)
	if err != nil {
		return err
	}

	filter, err := parseGUIDFilter(cfg.dump.filterGUID)
	if err != nil {
		return err
	}
	for _, name := range splitNonEmpty(cfg.dump.filterFunc) {
		if filter == nil {
			filter = make(map[uint64]bool)
		}
		filter[pprobe.ComputeGUID(name)] = true
	}

	probeData := make([][]byte, len(cfg.dump.probesFiles))
	var g errgroup.Group
	for i, path := range cfg.dump.probesFiles {
		i, path := i, path
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			level.Debug(logger).Log("msg", "loaded probe section", "file", path, "bytes", humanize.Bytes(uint64(len(data))))
			probeData[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	d := pprobe.NewDecoder()
	defer d.Release()
	if err := d.BuildFuncDescMap(descData); err != nil {
		return fmt.Errorf("decoding %s: %w", cfg.dump.descriptorsFile, err)
	}
	for i, data := range probeData {
		if err := d.BuildAddressIndex(data, filter); err != nil {
			return fmt.Errorf("decoding %s: %w", cfg.dump.probesFiles[i], err)
		}
	}
	return d.WriteAllProbes(os.Stdout)
}

// parseGUIDFilter turns a comma-separated list of decimal or 0x-prefixed
// hex GUIDs into the map BuildAddressIndex expects. An empty string means
// no filtering.
func parseGUIDFilter(s string) (map[uint64]bool, error) {
	toks := splitNonEmpty(s)
	if len(toks) == 0 {
		return nil, nil
	}
	filter := make(map[uint64]bool)
	for _, tok := range toks {
		v, err := strconv.ParseUint(tok, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --filter-guid value %q: %w", tok, err)
		}
		filter[v] = true
	}
	return filter, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
