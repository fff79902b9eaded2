// MODUL: cmd_test
// ZWECK: CLI-Commands ueber NewCLI mit gesetzten Argumenten und Ausgabe-Puffer
// INPUT: lm/testdata/test.arpa
// OUTPUT: Testergebnisse
// NEBENEFFEKTE: Schreibt Binaerdateien in t.TempDir()
// ABHAENGIGKEITEN: testify, cobra
package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/ngramlm/fs/lmfile"
	"github.com/7blacky7/ngramlm/lm"
)

const fixture = "../lm/testdata/test.arpa"

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("NGRAMLM_TMPDIR", t.TempDir())

	var out bytes.Buffer
	c := NewCLI()
	c.SetArgs(args)
	c.SetOut(&out)
	c.SetErr(&out)
	c.SetIn(strings.NewReader(stdin))
	err := c.Execute()
	return out.String(), err
}

func TestBuildAndClassify(t *testing.T) {
	tests := []struct {
		args []string
		want lmfile.ModelType
	}{
		{nil, lmfile.HashProbing},
		{[]string{"probing"}, lmfile.HashProbing},
		{[]string{"trie"}, lmfile.Trie},
		{[]string{"-q", "8", "trie"}, lmfile.QuantTrie},
		{[]string{"-a", "22", "trie"}, lmfile.ArrayTrie},
		{[]string{"-q", "8", "-b", "6", "-a", "10", "trie"}, lmfile.QuantArrayTrie},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "model.bin")
			args := append(append([]string{"build"}, tt.args...), fixture, out)

			stdout, err := run(t, "", args...)
			require.NoError(t, err)
			assert.Contains(t, stdout, "wrote "+out)

			stdout, err = run(t, "", "classify", out)
			require.NoError(t, err)
			assert.Equal(t, tt.want.String()+"\n", stdout)
		})
	}
}

func TestClassifyARPA(t *testing.T) {
	stdout, err := run(t, "", "classify", fixture)
	require.NoError(t, err)
	assert.Equal(t, "ARPA\n", stdout)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		err  string
	}{
		{"unknown type", []string{"hash"}, "unknown model type"},
		{"backoff without prob", []string{"-b", "4", "trie"}, "-b requires -q"},
		{"quantized probing", []string{"-q", "8", "probing"}, "need the trie type"},
		{"bad sort memory", []string{"-S", "lots"}, "-S"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "model.bin")
			args := append(append([]string{"build"}, tt.args...), fixture, out)
			_, err := run(t, "", args...)
			assert.ErrorContains(t, err, tt.err)
		})
	}
}

func TestConfigFromFlags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(*testing.T, lm.Config)
	}{
		{
			name: "shorthands",
			args: []string{"-q", "5", "-p", "2.5", "-s", "-i", "-S", "2M", "-T", "/tmp/sort", "--unk=-42"},
			check: func(t *testing.T, cfg lm.Config) {
				assert.Equal(t, uint8(5), cfg.ProbBits)
				assert.Equal(t, uint8(5), cfg.BackoffBits)
				assert.InDelta(t, 2.5, cfg.ProbingMultiplier, 1e-6)
				assert.Equal(t, lm.Silent, cfg.SentenceMarkerMissing)
				assert.Equal(t, lm.Silent, cfg.PositiveLogProbability)
				assert.Equal(t, uint64(2<<20), cfg.SortMemory)
				assert.Equal(t, "/tmp/sort", cfg.TempPrefix)
				assert.InDelta(t, -42, cfg.UnknownMissingLogProb, 1e-6)
				assert.True(t, cfg.IncludeVocab)
			},
		},
		{
			name: "long names",
			args: []string{"--prob-bits", "6", "--backoff-bits", "4", "--silent-markers", "--sort-memory", "1M", "--no-vocab"},
			check: func(t *testing.T, cfg lm.Config) {
				assert.Equal(t, uint8(6), cfg.ProbBits)
				assert.Equal(t, uint8(4), cfg.BackoffBits)
				assert.Equal(t, lm.Silent, cfg.SentenceMarkerMissing)
				assert.Equal(t, lm.ThrowUp, cfg.PositiveLogProbability)
				assert.Equal(t, uint64(1<<20), cfg.SortMemory)
				assert.False(t, cfg.IncludeVocab)
			},
		},
		{
			name: "defaults",
			check: func(t *testing.T, cfg lm.Config) {
				assert.Equal(t, lm.ThrowUp, cfg.SentenceMarkerMissing)
				assert.InDelta(t, -100, cfg.UnknownMissingLogProb, 1e-6)
				assert.True(t, cfg.IncludeVocab)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			addModelFlags(fs)
			addBuildFlags(fs)
			require.NoError(t, fs.Parse(tt.args))

			cfg, err := configFromFlags(fs)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestEstimate(t *testing.T) {
	stdout, err := run(t, "", "estimate", fixture)
	require.NoError(t, err)
	assert.Contains(t, stdout, "counts: [6 5 3]")
	for _, typ := range []lmfile.ModelType{lmfile.HashProbing, lmfile.Trie, lmfile.QuantTrie, lmfile.ArrayTrie, lmfile.QuantArrayTrie} {
		assert.Contains(t, stdout, typ.String())
	}
}

func TestQuery(t *testing.T) {
	out := filepath.Join(t.TempDir(), "model.bin")
	_, err := run(t, "", "build", "trie", fixture, out)
	require.NoError(t, err)

	for _, model := range []string{out, fixture} {
		stdout, err := run(t, "a b c\nzzz\n", "query", model)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(stdout), "\n")
		require.GreaterOrEqual(t, len(lines), 2)
		assert.Contains(t, lines[0], "a=")
		assert.Contains(t, lines[0], "</s>=")
		assert.Contains(t, lines[0], "OOV: 0")
		assert.Contains(t, lines[1], "zzz=0 1 -1")
		assert.Contains(t, lines[1], "OOV: 1")
		assert.Contains(t, stdout, "Tokens:\t6")
		assert.Contains(t, stdout, "OOVs:\t1")
	}
}

func TestQueryNull(t *testing.T) {
	stdout, err := run(t, "a\n", "query", "--null", "--verbose", "sentence", fixture)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "Total: -0.6 OOV: 0\n"), stdout)
	assert.Contains(t, stdout, "Tokens:\t1")
}

func TestQueryRequiresModel(t *testing.T) {
	_, err := run(t, "", "query")
	assert.ErrorContains(t, err, "model file is required")
}
