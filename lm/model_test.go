// MODUL: model_test
// ZWECK: Bewertung mit allen Modelltypen, gebaut im Speicher und als Datei
// INPUT: testdata/test.arpa (Ordnung 3, ein Platzhalter-Bigramm "a c")
// OUTPUT: Testergebnisse
// NEBENEFFEKTE: Schreibt Binaerdateien nach t.TempDir()
// ABHAENGIGKEITEN: testify, go-cmp
// HINWEISE: Erwartete Werte sind von Hand aus der ARPA-Datei berechnet
package lm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/ngramlm/fs/lmfile"
)

const fixture = "testdata/test.arpa"

var allTypes = []lmfile.ModelType{
	lmfile.HashProbing,
	lmfile.Trie,
	lmfile.QuantTrie,
	lmfile.ArrayTrie,
	lmfile.QuantArrayTrie,
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ProbingMultiplier = 1.5
	cfg.TempPrefix = t.TempDir()
	cfg.SortMemory = minSortMemory
	cfg.LoadMethod = lmfile.Lazy
	cfg.BhikshaEntryCost = 64
	return cfg
}

// buildModels gibt pro Typ ein Modell aus dem Speicher und eins aus einer Datei zurueck
func buildModels(t *testing.T, typ lmfile.ModelType) map[string]*Model {
	t.Helper()
	cfg := testConfig(t)

	mem, err := Construct(context.Background(), fixture, typ, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, BuildBinary(context.Background(), fixture, path, typ, cfg))
	file, err := Load(path, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { file.Close() })

	return map[string]*Model{"memory": mem, "file": file}
}

type scored struct {
	word   string
	prob   float32
	length uint8
}

var sentences = []struct {
	name  string
	bos   bool
	steps []scored
}{
	{
		name: "full sentence",
		bos:  true,
		steps: []scored{
			{"a", -0.3, 2},
			{"b", -0.1, 3},
			{"c", -0.12, 3},
			{"</s>", -0.35 + -0.05, 2},
		},
	},
	{
		name:  "trigram over a blank",
		bos:   true,
		steps: []scored{{"a", -0.3, 2}, {"c", -0.08, 3}},
	},
	{
		name:  "blank bigram",
		steps: []scored{{"a", -0.6, 1}, {"c", -0.9 + -0.2, 2}},
	},
	{
		name:  "backoff to unigram",
		steps: []scored{{"b", -0.7, 1}, {"</s>", -0.8 + -0.4, 1}},
	},
	{
		name:  "unknown word",
		steps: []scored{{"zzz", -1.0, 1}, {"a", -0.6, 1}},
	},
}

func TestFullScore(t *testing.T) {
	for _, typ := range allTypes {
		for where, m := range buildModels(t, typ) {
			t.Run(typ.String()+"/"+where, func(t *testing.T) {
				assert.Equal(t, 3, m.Order())
				assert.Equal(t, typ, m.ModelType())

				for _, s := range sentences {
					state := m.NullContextState()
					if s.bos {
						state = m.BeginSentenceState()
					}
					for _, step := range s.steps {
						var ret FullScoreReturn
						ret, state = Score(m, state, step.word)
						assert.InDelta(t, step.prob, ret.Prob, 1e-5, "%s: %s", s.name, step.word)
						assert.Equal(t, step.length, ret.NgramLength, "%s: %s", s.name, step.word)
						assert.LessOrEqual(t, int(state.Length), m.Order()-1)
					}
				}
			})
		}
	}
}

func TestCounts(t *testing.T) {
	want := map[lmfile.ModelType][]uint64{
		lmfile.HashProbing: {6, 5, 3},
		lmfile.Trie:        {6, 6, 3},
		lmfile.QuantTrie:   {6, 6, 3},
		lmfile.ArrayTrie:   {6, 6, 3},
	}
	for typ, counts := range want {
		for where, m := range buildModels(t, typ) {
			t.Run(typ.String()+"/"+where, func(t *testing.T) {
				if diff := cmp.Diff(counts, m.Counts()); diff != "" {
					t.Errorf("counts mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func TestScoreSentence(t *testing.T) {
	for _, typ := range allTypes {
		m := buildModels(t, typ)["file"]
		t.Run(typ.String(), func(t *testing.T) {
			total, words := ScoreSentence(m, []string{"a", "b", "c"}, true, true)
			assert.InDelta(t, -0.3+-0.1+-0.12+-0.4, total, 1e-5)
			require.Len(t, words, 4)
			assert.Equal(t, "</s>", words[3].Word)
			assert.Equal(t, m.Vocabulary().EndSentence(), words[3].ID)
		})
	}
}

func TestStatelessMatchesStateful(t *testing.T) {
	contexts := [][]string{
		{},
		{"<s>"},
		{"<s>", "a"},
		{"a", "b"},
		{"b", "c"},
		{"c"},
		{"zzz", "a"},
		{"<s>", "a", "b", "c"},
	}
	words := []string{"a", "b", "c", "</s>", "zzz"}

	for _, typ := range allTypes {
		m := buildModels(t, typ)["memory"]
		vocab := m.Vocabulary()
		t.Run(typ.String(), func(t *testing.T) {
			for _, context := range contexts {
				// neuestes Wort zuerst
				ids := make([]WordIndex, len(context))
				for i, w := range context {
					ids[len(context)-1-i] = vocab.Index(w)
				}
				state := m.GetState(ids)
				assert.LessOrEqual(t, int(state.Length), m.Order()-1)

				for _, w := range words {
					want, wantState := m.FullScore(state, vocab.Index(w))
					got, gotState := m.FullScoreForgotState(ids, vocab.Index(w))
					assert.InDelta(t, want.Prob, got.Prob, 1e-5, "%v %s", context, w)
					assert.Equal(t, want.NgramLength, got.NgramLength, "%v %s", context, w)
					assert.True(t, wantState.Equal(gotState), "%v %s", context, w)

					assert.InDelta(t, got.Prob, ScoreStateless(m, context, w).Prob, 1e-6)
				}
			}
		})
	}
}

func TestGetState(t *testing.T) {
	m := buildModels(t, lmfile.Trie)["memory"]
	vocab := m.Vocabulary()
	a, b := vocab.Index("a"), vocab.Index("b")

	// Zustand nach "a b" aus dem leeren Kontext
	state := m.NullContextState()
	_, state = m.Score(state, a)
	_, state = m.Score(state, b)

	got := m.GetState([]WordIndex{b, a})
	assert.True(t, state.Equal(got))
	assert.Equal(t, state.Hash(), got.Hash())
	assert.Equal(t, uint8(2), got.Length)
	assert.InDelta(t, -0.4, got.Backoff[0], 1e-6)
	assert.InDelta(t, -0.25, got.Backoff[1], 1e-6)

	// </s> setzt nichts fort
	assert.Equal(t, uint8(0), m.GetState([]WordIndex{vocab.EndSentence()}).Length)
	assert.Equal(t, uint8(0), m.GetState(nil).Length)
}

func TestBeginSentenceState(t *testing.T) {
	for _, typ := range allTypes {
		m := buildModels(t, typ)["file"]
		state := m.BeginSentenceState()
		assert.Equal(t, uint8(1), state.Length)
		assert.Equal(t, m.Vocabulary().BeginSentence(), state.Words[0])
		assert.InDelta(t, -0.3, state.Backoff[0], 1e-6)
	}
}

func TestOutOfVocabularyIDs(t *testing.T) {
	m := buildModels(t, lmfile.HashProbing)["memory"]
	bound := m.Vocabulary().Bound()

	unk, _ := m.FullScore(m.NullContextState(), 0)
	outside, state := m.FullScore(m.NullContextState(), bound+7)
	assert.Equal(t, unk, outside)
	assert.Equal(t, WordIndex(0), state.Words[0])

	forgot, _ := m.FullScoreForgotState([]WordIndex{bound + 1, bound + 2}, bound+3)
	assert.InDelta(t, -1.0, forgot.Prob, 1e-6)
}

func TestStateEqual(t *testing.T) {
	a := State{Words: [MaxOrder - 1]WordIndex{1, 2, 9}, Length: 2}
	b := State{Words: [MaxOrder - 1]WordIndex{1, 2, 7}, Length: 2, Backoff: [MaxOrder - 1]float32{-1}}
	c := State{Words: [MaxOrder - 1]WordIndex{1, 3}, Length: 2}

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(State{Words: a.Words, Length: 1}))
}

func TestEnumerateVocab(t *testing.T) {
	for _, typ := range []lmfile.ModelType{lmfile.HashProbing, lmfile.Trie} {
		t.Run(typ.String(), func(t *testing.T) {
			cfg := testConfig(t)
			path := filepath.Join(t.TempDir(), "model.bin")
			require.NoError(t, BuildBinary(context.Background(), fixture, path, typ, cfg))

			got := map[string]WordIndex{}
			cfg.EnumerateVocab = EnumerateVocabFunc(func(id WordIndex, word string) { got[word] = id })
			m, err := Load(path, cfg)
			require.NoError(t, err)
			defer m.Close()

			require.Len(t, got, 6)
			for word, id := range got {
				assert.Equal(t, m.Vocabulary().Index(word), id, word)
			}
			assert.Equal(t, WordIndex(0), got["<unk>"])
		})
	}
}

func TestEnumerateWithoutStrings(t *testing.T) {
	cfg := testConfig(t)
	cfg.IncludeVocab = false
	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, BuildBinary(context.Background(), fixture, path, lmfile.Trie, cfg))

	cfg.EnumerateVocab = EnumerateVocabFunc(func(WordIndex, string) {})
	_, err := Load(path, cfg)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, path, fe.Path)
}

func TestLoadMethods(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, BuildBinary(context.Background(), fixture, path, lmfile.QuantArrayTrie, cfg))

	for _, method := range []lmfile.LoadMethod{lmfile.Lazy, lmfile.Populate, lmfile.Read} {
		t.Run(method.String(), func(t *testing.T) {
			cfg.LoadMethod = method
			m, err := Load(path, cfg)
			require.NoError(t, err)
			defer m.Close()

			ret, _ := Score(m, m.BeginSentenceState(), "a")
			assert.InDelta(t, -0.3, ret.Prob, 1e-5)
		})
	}
}

func TestClassify(t *testing.T) {
	typ, binary, err := Classify(fixture)
	require.NoError(t, err)
	assert.False(t, binary)
	assert.Equal(t, lmfile.ModelType(0), typ)

	for _, want := range allTypes {
		path := filepath.Join(t.TempDir(), "model.bin")
		require.NoError(t, BuildBinary(context.Background(), fixture, path, want, testConfig(t)))

		// zweimal, Classify veraendert nichts
		for range 2 {
			typ, binary, err := Classify(path)
			require.NoError(t, err)
			assert.True(t, binary)
			assert.Equal(t, want, typ)
		}
	}
}

func TestConstructTypeMismatch(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, BuildBinary(context.Background(), fixture, path, lmfile.Trie, cfg))

	_, err := Construct(context.Background(), path, lmfile.HashProbing, cfg)
	var mismatch *lmfile.ModelTypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, lmfile.HashProbing, mismatch.Expected)
	assert.Equal(t, lmfile.Trie, mismatch.Found)
}
