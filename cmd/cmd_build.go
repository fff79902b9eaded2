// cmd_build.go - Bau von Binaerdateien aus ARPA
// Hauptfunktionen: BuildHandler, parseModelType, configFromFlags
package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/7blacky7/ngramlm/format"
	"github.com/7blacky7/ngramlm/fs/lmfile"
	"github.com/7blacky7/ngramlm/lm"
)

// newBuildCmd - Erstellt den build Command
func newBuildCmd() *cobra.Command {
	buildCmd := &cobra.Command{
		Use:   "build [flags] [probing|trie] INPUT.arpa OUTPUT",
		Short: "Convert an ARPA file to a binary model",
		Long: `Convert an ARPA file to a binary model.

The type defaults to probing. Quantization (-q, -b) and pointer
compression (-a) apply to the trie only.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: BuildHandler,
	}

	addModelFlags(buildCmd.Flags())
	addBuildFlags(buildCmd.Flags())

	return buildCmd
}

// addBuildFlags - Flags, die nur den Bau aus ARPA betreffen
func addBuildFlags(fs *pflag.FlagSet) {
	fs.Float32P("unk", "u", -100, "Log10 probability of <unk> if the ARPA file lacks it")
	fs.BoolP("silent-markers", "s", false, "Do not fail when <s> or </s> is missing")
	fs.BoolP("allow-positive", "i", false, "Treat positive log probabilities as 0 instead of failing")
	fs.StringP("temp-prefix", "T", "", "Prefix or directory for temporary sort files")
	fs.StringP("sort-memory", "S", "", "Memory for sorting, e.g. 512M, 2G or 80% (default from NGRAMLM_SORT_MEMORY)")
	fs.Bool("no-vocab", false, "Do not store the vocabulary strings in the binary file")
}

// addModelFlags - Flags, die Groesse und Layout des Modells bestimmen
func addModelFlags(fs *pflag.FlagSet) {
	fs.Float32P("probing-multiplier", "p", 0, "Space multiplier for probing hash tables, > 1.0 (default from NGRAMLM_PROBING_MULTIPLIER)")
	fs.Uint8P("prob-bits", "q", 0, "Quantize probabilities to this many bits (trie only)")
	fs.Uint8P("backoff-bits", "b", 0, "Quantize backoffs to this many bits, requires -q")
	fs.Uint8P("array-bits", "a", 0, "Compress trie pointers, storing at most this many high bits in an array")
}

// parseModelType - Leitet den Modelltyp aus Name und Flags ab
func parseModelType(name string, fs *pflag.FlagSet) (lmfile.ModelType, error) {
	var t lmfile.ModelType
	switch name {
	case "", "probing":
		t = lmfile.HashProbing
	case "trie":
		t = lmfile.Trie
	default:
		return 0, fmt.Errorf("unknown model type %q, expected probing or trie", name)
	}

	quant := fs.Changed("prob-bits")
	array := fs.Changed("array-bits")
	if fs.Changed("backoff-bits") && !quant {
		return 0, errors.New("-b requires -q")
	}
	if t == lmfile.HashProbing {
		if quant || array {
			return 0, errors.New("quantization and pointer compression need the trie type")
		}
		return t, nil
	}

	if quant {
		t += lmfile.QuantAdd
	}
	if array {
		t += lmfile.ArrayAdd
	}
	return t, nil
}

// configFromFlags - Ueberschreibt DefaultConfig mit gesetzten Flags
func configFromFlags(fs *pflag.FlagSet) (lm.Config, error) {
	cfg := lm.DefaultConfig()

	if fs.Changed("probing-multiplier") {
		cfg.ProbingMultiplier, _ = fs.GetFloat32("probing-multiplier")
	}
	if fs.Changed("prob-bits") {
		cfg.ProbBits, _ = fs.GetUint8("prob-bits")
		// ohne -b gilt dieselbe Breite
		cfg.BackoffBits = cfg.ProbBits
	}
	if fs.Changed("backoff-bits") {
		cfg.BackoffBits, _ = fs.GetUint8("backoff-bits")
	}
	if fs.Changed("array-bits") {
		cfg.ArrayBits, _ = fs.GetUint8("array-bits")
	}

	if fs.Lookup("unk") != nil {
		cfg.UnknownMissingLogProb, _ = fs.GetFloat32("unk")
	}
	if silent, _ := fs.GetBool("silent-markers"); silent {
		cfg.SentenceMarkerMissing = lm.Silent
	}
	if allow, _ := fs.GetBool("allow-positive"); allow {
		cfg.PositiveLogProbability = lm.Silent
	}
	if prefix, _ := fs.GetString("temp-prefix"); prefix != "" {
		cfg.TempPrefix = prefix
	}
	if s, _ := fs.GetString("sort-memory"); s != "" {
		n, err := format.ParseBytes(s, totalMemory())
		if err != nil {
			return cfg, fmt.Errorf("-S: %w", err)
		}
		cfg.SortMemory = n
	}
	if noVocab, _ := fs.GetBool("no-vocab"); noVocab {
		cfg.IncludeVocab = false
	}
	return cfg, nil
}

// BuildHandler - Baut die Binaerdatei
func BuildHandler(cmd *cobra.Command, args []string) error {
	var typeName string
	if len(args) == 3 {
		typeName, args = args[0], args[1:]
	}

	t, err := parseModelType(typeName, cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := configFromFlags(cmd.Flags())
	if err != nil {
		return err
	}

	start := time.Now()
	if err := lm.BuildBinary(cmd.Context(), args[0], args[1], t, cfg); err != nil {
		return err
	}

	var size string
	if n, err := fileSize(args[1]); err == nil {
		size = format.HumanBytes(n)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %s) in %s\n", args[1], t, size, time.Since(start).Round(time.Millisecond))
	return nil
}
