// build.go - Bau eines Modells aus einer ARPA-Datei
//
// Dieses Modul enthaelt:
// - BuildBinary: ARPA -> Binaerdatei
// - Construct: Laedt eine Binaerdatei oder baut aus ARPA im Speicher
// - buildModel: Gemeinsamer Ablauf fuer beide Backends
// - Estimate: Speicherbedarf aller Modelltypen fuer eine ARPA-Datei
package lm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/7blacky7/ngramlm/arpa"
	"github.com/7blacky7/ngramlm/fs/lmfile"
)

// BuildBinary baut aus arpaPath eine Binaerdatei outPath vom Typ t
func BuildBinary(ctx context.Context, arpaPath, outPath string, t lmfile.ModelType, cfg Config) error {
	if outPath == "" {
		return &ConfigError{Msg: "missing output path"}
	}
	m, err := buildModel(ctx, arpaPath, outPath, t, &cfg)
	if err != nil {
		return err
	}
	return m.Close()
}

// Construct laedt path, wenn es eine Binaerdatei vom Typ t ist, und baut
// das Modell sonst aus der ARPA-Datei im Speicher
func Construct(ctx context.Context, path string, t lmfile.ModelType, cfg Config) (*Model, error) {
	binary, err := lmfile.IsBinary(path)
	if err != nil {
		return nil, err
	}
	if !binary {
		return buildModel(ctx, path, "", t, &cfg)
	}

	m, err := Load(path, cfg)
	if err != nil {
		return nil, err
	}
	if err := m.header.MatchCheck(path, t); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// buildModel liest arpaPath und baut das Modell in outPath oder im Speicher
func buildModel(ctx context.Context, arpaPath, outPath string, t lmfile.ModelType, cfg *Config) (*Model, error) {
	if err := cfg.Validate(t); err != nil {
		return nil, err
	}

	r, err := arpa.Open(arpaPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	start := time.Now()
	counts, err := r.ReadCounts()
	if err != nil {
		return nil, err
	}
	if len(counts) < 2 {
		return nil, &FormatError{Path: arpaPath, Msg: "this implementation assumes at least a bigram model"}
	}
	if len(counts) > MaxOrder {
		return nil, &FormatError{Path: arpaPath, Msg: fmt.Sprintf("this model has order %d but the maximum supported order is %d", len(counts), MaxOrder)}
	}

	warn := &positiveProbWarn{action: cfg.PositiveLogProbability}
	words, weights, sawUnk, err := readUnigrams(r, counts[0], cfg, warn)
	if err != nil {
		return nil, err
	}
	if !sawUnk {
		counts[0]++
	}

	backing, err := lmfile.Create(outPath, len(counts), vocabRegionSize(t, counts[0], cfg.ProbingMultiplier))
	if err != nil {
		return nil, err
	}
	m, err := buildSearch(ctx, r, backing, counts, words, weights, sawUnk, t, cfg, warn)
	if err != nil {
		backing.Close()
		return nil, withPath(err, arpaPath)
	}

	slog.Info("built language model", "arpa", arpaPath, "type", t.String(), "counts", m.header.Counts, "elapsed", time.Since(start).Round(time.Millisecond))
	return m, nil
}

// readUnigrams liest den Abschnitt \1-grams:. Index 0 ist <unk>, die
// weiteren Eintraege folgen in Dateireihenfolge.
func readUnigrams(r *arpa.Reader, count uint64, cfg *Config, warn *positiveProbWarn) ([]string, []ProbBackoff, bool, error) {
	if err := r.ReadHeader(1); err != nil {
		return nil, nil, false, err
	}

	words := make([]string, 1, count+1)
	weights := make([]ProbBackoff, 1, count+2)
	words[0] = "<unk>"
	weights[0] = ProbBackoff{Prob: cfg.UnknownMissingLogProb, Backoff: noExtensionBackoff}

	sawUnk := false
	for range count {
		e, err := r.ReadNGram(1)
		if err != nil {
			return nil, nil, false, err
		}
		w, err := readWeights(e, warn, r)
		if err != nil {
			return nil, nil, false, err
		}

		if isUnknownHash(hashWord(e.Words[0])) {
			if sawUnk {
				return nil, nil, false, &FormatError{Path: r.Name(), Msg: fmt.Sprintf("line %d: <unk> appears more than once", r.LineNumber())}
			}
			sawUnk = true
			weights[0] = w
			continue
		}
		words = append(words, e.Words[0])
		weights = append(weights, w)
	}
	return words, weights, sawUnk, nil
}

func buildSearch(ctx context.Context, r *arpa.Reader, backing *lmfile.Backing, counts []uint64, words []string, weights []ProbBackoff, sawUnk bool, t lmfile.ModelType, cfg *Config, warn *positiveProbWarn) (*Model, error) {
	vb, err := newVocabBuilder(t.IsTrie(), backing.Vocab(), counts[0]-1, true)
	if err != nil {
		return nil, err
	}
	for _, word := range words[1:] {
		if _, err := vb.insert(word); err != nil {
			return nil, err
		}
	}
	vocab, err := vb.finish(weights[:counts[0]])
	if err != nil {
		return nil, &FormatError{Msg: err.Error()}
	}
	if err := checkSpecials(cfg, vocab, sawUnk); err != nil {
		return nil, err
	}

	var s search
	if t.IsTrie() {
		// Abschluss-Eintrag hinter dem letzten Unigramm
		unigrams := append(weights[:counts[0]], ProbBackoff{})
		if s, err = buildTrie(ctx, r, counts, vocab, vb.words, unigrams, cfg, trieParamsFromConfig(t, cfg), backing, warn); err != nil {
			return nil, err
		}
	} else {
		region, err := backing.GrowForSearch(hashedSize(counts, cfg.ProbingMultiplier))
		if err != nil {
			return nil, err
		}
		h, err := setupHashed(region, counts, cfg.ProbingMultiplier)
		if err != nil {
			return nil, err
		}
		copy(h.unigrams, weights[:counts[0]])
		if err := buildHashed(r, counts, vocab, h, warn); err != nil {
			return nil, err
		}
		s = h
	}

	if err := r.ReadEnd(); err != nil {
		return nil, err
	}

	params := lmfile.Params{
		Order:             len(counts),
		ProbingMultiplier: cfg.ProbingMultiplier,
		ModelType:         t,
		HasVocabulary:     cfg.IncludeVocab && backing.Path() != "",
	}
	if params.HasVocabulary {
		if err := backing.AppendWords(func(w io.Writer) error { return writeWords(w, vb.words) }); err != nil {
			return nil, err
		}
	}
	if err := backing.Finish(params, counts); err != nil {
		return nil, err
	}

	if cfg.EnumerateVocab != nil {
		for id, word := range vb.words {
			cfg.EnumerateVocab.Add(WordIndex(id), word)
		}
	}
	return newModel(backing, lmfile.Header{Params: params, Counts: counts}, vocab, s), nil
}

// =============================================================================
// Speicherbedarf
// =============================================================================

// SizeEstimate ist der Speicherbedarf eines Modelltyps
type SizeEstimate struct {
	Type  lmfile.ModelType
	Bytes uint64
}

// Estimate berechnet den Speicherbedarf fuer jeden Modelltyp aus den Anzahlen
// einer ARPA-Datei. Platzhalter beim Trie sind nicht enthalten.
func Estimate(counts []uint64, cfg Config) []SizeEstimate {
	counts = append([]uint64(nil), counts...)
	// <unk> ist immer dabei
	counts[0]++

	types := []lmfile.ModelType{lmfile.HashProbing, lmfile.Trie, lmfile.QuantTrie, lmfile.ArrayTrie, lmfile.QuantArrayTrie}
	estimates := make([]SizeEstimate, 0, len(types))
	for _, t := range types {
		p := trieParamsFromConfig(t, &cfg)
		size := lmfile.TotalHeaderSize(len(counts)) +
			vocabRegionSize(t, counts[0], cfg.ProbingMultiplier) +
			searchRegionSize(t, counts, cfg.ProbingMultiplier, p)
		estimates = append(estimates, SizeEstimate{Type: t, Bytes: size})
	}
	return estimates
}
