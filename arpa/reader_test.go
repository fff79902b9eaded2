// MODUL: reader_test
// ZWECK: Lesen von ARPA-Dateien inklusive Kompression und Fehlerzeilen
// INPUT: ARPA-Texte aus Strings, gzip im Speicher
// OUTPUT: Testergebnisse
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: testify, go-cmp
package arpa

import (
	"bytes"
	"compress/gzip"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const small = `junk before the header

\data\
ngram 1=3
ngram 2=1

\1-grams:
-1.0	<unk>
-0.5	<s>	-0.25
-inf	</s>

\2-grams:
-0.3	<s> </s>

\end\
`

func readSmall(t *testing.T, r *Reader) {
	t.Helper()

	counts, err := r.ReadCounts()
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 1}, counts)

	require.NoError(t, r.ReadHeader(1))
	var got []Entry
	for range counts[0] {
		e, err := r.ReadNGram(1)
		require.NoError(t, err)
		e.Words = append([]string(nil), e.Words...)
		got = append(got, e)
	}

	want := []Entry{
		{Prob: -1.0, Words: []string{"<unk>"}},
		{Prob: -0.5, Words: []string{"<s>"}, Backoff: -0.25, HasBackoff: true},
		{Prob: float32(math.Inf(-1)), Words: []string{"</s>"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unigrams mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, r.ReadHeader(2))
	e, err := r.ReadNGram(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"<s>", "</s>"}, e.Words)
	assert.False(t, e.HasBackoff)

	require.NoError(t, r.ReadEnd())
}

func TestReader(t *testing.T) {
	r, err := NewReader(strings.NewReader(small), "small.arpa")
	require.NoError(t, err)
	readSmall(t, r)
	assert.Equal(t, "small.arpa", r.Name())
	require.NoError(t, r.Close())
}

func TestReaderGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := io.WriteString(zw, small)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	r, err := NewReader(&buf, "small.arpa.gz")
	require.NoError(t, err)
	readSmall(t, r)
	require.NoError(t, r.Close())
}

func TestReaderByteOrderMark(t *testing.T) {
	r, err := NewReader(strings.NewReader("\ufeff"+small), "bom.arpa")
	require.NoError(t, err)
	readSmall(t, r)
}

func TestReaderWindowsLineEndings(t *testing.T) {
	r, err := NewReader(strings.NewReader(strings.ReplaceAll(small, "\n", "\r\n")), "crlf.arpa")
	require.NoError(t, err)
	readSmall(t, r)
}

func TestReadCountsErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		msg   string
	}{
		{"no data", "nothing here\n", `\data\`},
		{"no sections", "\\data\\\nngram 1=2\n", "first n-gram section"},
		{"bad prefix", "\\data\\\nunigram 1=2\n\n", `does not begin with "ngram "`},
		{"missing equals", "\\data\\\nngram 1 2\n\n", "expected ="},
		{"gap", "\\data\\\nngram 1=2\nngram 3=1\n\n", "consecutive"},
		{"bad count", "\\data\\\nngram 1=x\n\n", "bad count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(strings.NewReader(tt.input), "bad.arpa")
			require.NoError(t, err)
			_, err = r.ReadCounts()
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, pe.Msg, tt.msg)
		})
	}
}

func TestReadNGramErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		msg  string
	}{
		{"too few fields", "-0.5 a", "expected a 2-gram"},
		{"too many fields", "-0.5 a b -0.1 x", "expected a 2-gram"},
		{"bad probability", "abc a b", "bad probability"},
		{"bad backoff", "-0.5 a b x", "bad backoff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(strings.NewReader(tt.line+"\n"), "bad.arpa")
			require.NoError(t, err)
			_, err = r.ReadNGram(2)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, pe.Msg, tt.msg)
			assert.Equal(t, 1, pe.LineNumber)
		})
	}
}

func TestReadHeaderMismatch(t *testing.T) {
	r, err := NewReader(strings.NewReader("\n\\2-grams:\n"), "bad.arpa")
	require.NoError(t, err)
	err = r.ReadHeader(1)
	assert.ErrorContains(t, err, `expected \1-grams:`)
	assert.ErrorContains(t, err, "line 2")
}

func TestReadEndTrailing(t *testing.T) {
	r, err := NewReader(strings.NewReader("\\end\\\n\nmore\n"), "bad.arpa")
	require.NoError(t, err)
	assert.ErrorContains(t, r.ReadEnd(), `trailing line "more"`)

	r, err = NewReader(strings.NewReader(""), "bad.arpa")
	require.NoError(t, err)
	assert.ErrorContains(t, r.ReadEnd(), "unexpected end of file")
}
