// MODUL: build_test
// ZWECK: Fehlerfaelle beim Bau aus ARPA-Dateien und Konfigurationspruefung
// INPUT: Kleine ARPA-Texte, in t.TempDir() geschrieben
// OUTPUT: Testergebnisse
// NEBENEFFEKTE: Schreibt ARPA- und Binaerdateien im Temp-Verzeichnis
// ABHAENGIGKEITEN: testify
// HINWEISE: Jeder Fall laeuft fuer Hash-Modell und Trie
package lm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/ngramlm/fs/lmfile"
)

func writeARPA(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.arpa")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

// arpaText baut eine ARPA-Datei aus Abschnitten, die Anzahlen werden gezaehlt
func arpaText(t *testing.T, sections ...[]string) string {
	t.Helper()
	lines := []string{`\data\`}
	for i, s := range sections {
		lines = append(lines, "ngram "+strconv.Itoa(i+1)+"="+strconv.Itoa(len(s)))
	}
	for i, s := range sections {
		lines = append(lines, "", `\`+strconv.Itoa(i+1)+"-grams:")
		lines = append(lines, s...)
	}
	lines = append(lines, "", `\end\`)
	return writeARPA(t, lines...)
}

var basicUnigrams = []string{
	"-1.0\t<unk>",
	"-0.5\t<s>\t-0.3",
	"-0.8\t</s>",
	"-0.6\ta\t-0.2",
	"-0.7\tb\t-0.4",
}

func buildAll(t *testing.T, path string, cfg Config) map[lmfile.ModelType]error {
	t.Helper()
	errs := map[lmfile.ModelType]error{}
	for _, typ := range []lmfile.ModelType{lmfile.HashProbing, lmfile.Trie} {
		m, err := Construct(context.Background(), path, typ, cfg)
		if err == nil {
			m.Close()
		}
		errs[typ] = err
	}
	return errs
}

func TestMissingUnknown(t *testing.T) {
	path := arpaText(t,
		[]string{"-0.5\t<s>\t-0.3", "-0.8\t</s>", "-0.6\ta\t-0.2"},
		[]string{"-0.3\t<s> a", "-0.4\ta </s>"},
	)

	t.Run("complain", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.UnknownMissing = Complain
		cfg.UnknownMissingLogProb = -42
		for _, typ := range []lmfile.ModelType{lmfile.HashProbing, lmfile.Trie} {
			m, err := Construct(context.Background(), path, typ, cfg)
			require.NoError(t, err, typ.String())

			// <unk> zaehlt mit
			assert.Equal(t, uint64(4), m.Counts()[0])
			assert.Equal(t, WordIndex(4), m.Vocabulary().Bound())
			ret, state := Score(m, m.NullContextState(), "zzz")
			assert.InDelta(t, -42, ret.Prob, 1e-6)
			assert.Equal(t, uint8(0), state.Length)
			m.Close()
		}
	})

	t.Run("throw up", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.UnknownMissing = ThrowUp
		for typ, err := range buildAll(t, path, cfg) {
			var fe *FormatError
			require.ErrorAs(t, err, &fe, typ.String())
			assert.Contains(t, fe.Msg, "<unk>")
		}
	})
}

func TestMissingSentenceMarker(t *testing.T) {
	path := arpaText(t,
		[]string{"-1.0\t<unk>", "-0.8\t</s>", "-0.6\ta\t-0.2"},
		[]string{"-0.4\ta </s>"},
	)

	cfg := testConfig(t)
	for typ, err := range buildAll(t, path, cfg) {
		var fe *FormatError
		require.ErrorAs(t, err, &fe, typ.String())
		assert.Contains(t, fe.Msg, "<s>")
	}

	cfg.SentenceMarkerMissing = Silent
	for typ, err := range buildAll(t, path, cfg) {
		assert.NoError(t, err, typ.String())
	}
}

func TestPositiveLogProbability(t *testing.T) {
	path := arpaText(t,
		basicUnigrams,
		[]string{"0.5\t<s> a", "-0.4\ta b"},
	)

	cfg := testConfig(t)
	for typ, err := range buildAll(t, path, cfg) {
		var fe *FormatError
		require.ErrorAs(t, err, &fe, typ.String())
		assert.Contains(t, fe.Msg, "positive log probability")
	}

	cfg.PositiveLogProbability = Silent
	for _, typ := range []lmfile.ModelType{lmfile.HashProbing, lmfile.Trie} {
		m, err := Construct(context.Background(), path, typ, cfg)
		require.NoError(t, err)
		ret, _ := Score(m, m.BeginSentenceState(), "a")
		assert.Equal(t, float32(0), ret.Prob, typ.String())
		m.Close()
	}
}

func TestDuplicateNgram(t *testing.T) {
	path := arpaText(t,
		basicUnigrams,
		[]string{"-0.3\t<s> a", "-0.4\ta b", "-0.2\t<s> a"},
	)
	_, err := Construct(context.Background(), path, lmfile.Trie, testConfig(t))
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Msg, "duplicate 2-gram")
	assert.Contains(t, fe.Msg, "<s> a")
}

func TestMissingContext(t *testing.T) {
	// "a b" fehlt, ist aber Kontext von "a b a"
	path := arpaText(t,
		basicUnigrams,
		[]string{"-0.3\t<s> a\t-0.1", "-0.4\tb a"},
		[]string{"-0.2\ta b a"},
	)

	errs := buildAll(t, path, testConfig(t))

	var fe *FormatError
	require.ErrorAs(t, errs[lmfile.Trie], &fe)
	assert.Contains(t, fe.Msg, `context "a b"`)

	require.ErrorAs(t, errs[lmfile.HashProbing], &fe)
	assert.Contains(t, fe.Msg, "context of every 3-gram")
}

func TestUnigramOnly(t *testing.T) {
	path := arpaText(t, basicUnigrams)
	for typ, err := range buildAll(t, path, testConfig(t)) {
		var fe *FormatError
		require.ErrorAs(t, err, &fe, typ.String())
		assert.Contains(t, fe.Msg, "bigram")
	}
}

func TestTruncatedARPA(t *testing.T) {
	path := writeARPA(t, `\data\`, "ngram 1=5", "ngram 2=2", "", `\1-grams:`,
		"-1.0\t<unk>", "-0.5\t<s>\t-0.3", "-0.8\t</s>", "-0.6\ta\t-0.2", "-0.7\tb\t-0.4",
		"", `\2-grams:`, "-0.3\t<s> a")

	for typ, err := range buildAll(t, path, testConfig(t)) {
		assert.ErrorContains(t, err, "unexpected end of file", typ.String())
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		typ    lmfile.ModelType
		modify func(*Config)
	}{
		{"multiplier", lmfile.HashProbing, func(c *Config) { c.ProbingMultiplier = 1.0 }},
		{"prob bits zero", lmfile.QuantTrie, func(c *Config) { c.ProbBits = 0 }},
		{"backoff bits too large", lmfile.QuantTrie, func(c *Config) { c.BackoffBits = 26 }},
		{"backoff bits one", lmfile.QuantArrayTrie, func(c *Config) { c.BackoffBits = 1 }},
		{"sorted hash", lmfile.HashSorted, func(*Config) {}},
		{"array cost", lmfile.ArrayTrie, func(c *Config) { c.BhikshaEntryCost = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.modify(&cfg)

			out := filepath.Join(t.TempDir(), "model.bin")
			err := BuildBinary(context.Background(), fixture, out, tt.typ, cfg)
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)

			// geprueft wird vor jeglichem I/O
			_, statErr := os.Stat(out)
			assert.True(t, errors.Is(statErr, os.ErrNotExist))
		})
	}

	cfg := testConfig(t)
	cfg.ProbBits = 0
	assert.NoError(t, cfg.Validate(lmfile.Trie), "bits only matter for quantized tries")
}

func TestTwoBitBackoffs(t *testing.T) {
	cfg := testConfig(t)
	cfg.BackoffBits = 2

	m, err := Construct(context.Background(), fixture, lmfile.QuantTrie, cfg)
	require.NoError(t, err)
	defer m.Close()

	// Bigramm-Backoffs -0.25, -0.15, -0.05 landen in zwei Buckets: -0.25 und -0.1
	total, scores := ScoreSentence(m, []string{"a", "b", "c"}, true, true)
	require.Len(t, scores, 4)
	assert.InDelta(t, -0.35+-0.1, scores[3].Prob, 1e-5)
	assert.InDelta(t, -0.97, total, 1e-4)
}

func TestHashedOverflow(t *testing.T) {
	// drei Trigramme ohne Bigramm-Suffix: die Platzhalter passen nicht in die Tabelle
	path := arpaText(t,
		[]string{"-1.0\t<unk>", "-0.5\t<s>\t-0.3", "-0.8\t</s>", "-0.6\ta\t-0.2", "-0.7\tb\t-0.4", "-0.7\tc\t-0.4", "-0.7\td\t-0.4"},
		[]string{"-0.3\ta b\t-0.1"},
		[]string{"-0.2\ta b a", "-0.2\ta b c", "-0.2\ta b d"},
	)

	cfg := testConfig(t)
	cfg.ProbingMultiplier = 1.01
	_, err := Construct(context.Background(), path, lmfile.HashProbing, cfg)
	require.Error(t, err)
	assert.ErrorContains(t, err, "probing multiplier")

	// der Trie zaehlt Platzhalter vorher
	m, err := Construct(context.Background(), path, lmfile.Trie, cfg)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, []uint64{7, 4, 3}, m.Counts())
}

func TestInterruptedBuildIsRejected(t *testing.T) {
	path := writeARPA(t, `\data\`, "ngram 1=5", "ngram 2=1", "", `\1-grams:`,
		"-1.0\t<unk>", "-0.5\t<s>\t-0.3", "-0.8\t</s>", "-0.6\ta\t-0.2", "-0.7\tb\t-0.4",
		"", `\2-grams:`, "-0.3\t<s> a", "", "garbage")

	out := filepath.Join(t.TempDir(), "model.bin")
	require.Error(t, BuildBinary(context.Background(), path, out, lmfile.Trie, testConfig(t)))

	_, err := Load(out, testConfig(t))
	assert.ErrorIs(t, err, lmfile.ErrIncomplete)
}

func TestCanceledBuild(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Construct(ctx, fixture, lmfile.Trie, testConfig(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEstimate(t *testing.T) {
	cfg := testConfig(t)
	estimates := Estimate([]uint64{5, 5, 3}, cfg)
	require.Len(t, estimates, 5)

	for _, e := range estimates {
		assert.Greater(t, e.Bytes, lmfile.TotalHeaderSize(3))
	}

	// die Schaetzung entspricht der Dateigroesse ohne Woerter, solange keine Platzhalter entstehen
	path := arpaText(t, basicUnigrams, []string{"-0.3\t<s> a\t-0.1", "-0.4\ta b"}, []string{"-0.2\t<s> a b"})
	cfg.IncludeVocab = false
	for _, e := range Estimate([]uint64{4, 2, 1}, cfg) {
		out := filepath.Join(t.TempDir(), "model.bin")
		require.NoError(t, BuildBinary(context.Background(), path, out, e.Type, cfg), e.Type.String())
		fi, err := os.Stat(out)
		require.NoError(t, err)
		assert.Equal(t, int64(e.Bytes), fi.Size(), e.Type.String())
	}
}
