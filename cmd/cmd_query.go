// cmd_query.go - Bewertung von Saetzen aus stdin
// Hauptfunktionen: QueryHandler, queryLocal, queryRemote, printSentence
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/7blacky7/ngramlm/api"
	"github.com/7blacky7/ngramlm/fs/lmfile"
	"github.com/7blacky7/ngramlm/lm"
)

// newQueryCmd - Erstellt den query Command
func newQueryCmd() *cobra.Command {
	queryCmd := &cobra.Command{
		Use:   "query [MODEL]",
		Short: "Score sentences read from stdin, one per line",
		Long: `Score sentences read from stdin, one per line.

MODEL is a binary file or an ARPA file, which is loaded into memory first.
With --remote the sentences go to a running "ngramlm serve" instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: QueryHandler,
	}

	queryCmd.Flags().BoolP("null", "n", false, "Do not wrap sentences in <s> and </s>")
	queryCmd.Flags().StringP("verbose", "v", "word", "Output level: summary, sentence or word")
	queryCmd.Flags().Bool("remote", false, "Score with the server at NGRAMLM_HOST")
	queryCmd.Flags().String("type", "probing", "Model type when MODEL is an ARPA file: probing or trie")

	return queryCmd
}

// scoredWord ist eine Zeile der Ausgabe, lokal oder vom Server
type scoredWord struct {
	word        string
	id          uint32
	prob        float32
	ngramLength uint8
}

// queryStats sammelt Werte ueber alle Saetze
type queryStats struct {
	total, totalNoOOV float64
	tokens, oov       int
}

// QueryHandler - Liest Saetze und gibt ihre Bewertungen aus
func QueryHandler(cmd *cobra.Command, args []string) error {
	null, _ := cmd.Flags().GetBool("null")
	verbose, _ := cmd.Flags().GetString("verbose")
	switch verbose {
	case "summary", "sentence", "word":
	default:
		return fmt.Errorf("unknown output level %q", verbose)
	}

	var score func(words []string) ([]scoredWord, error)
	if remote, _ := cmd.Flags().GetBool("remote"); remote {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return err
		}
		if err := client.Heartbeat(cmd.Context()); err != nil {
			return fmt.Errorf("could not connect to the server: %w", err)
		}
		score = func(words []string) ([]scoredWord, error) {
			return queryRemote(cmd, client, words, !null)
		}
	} else {
		if len(args) == 0 {
			return errors.New("a model file is required without --remote")
		}
		m, err := loadModel(cmd, args[0])
		if err != nil {
			return err
		}
		defer m.Close()
		score = func(words []string) ([]scoredWord, error) {
			return queryLocal(m, words, !null), nil
		}
	}

	in := cmd.InOrStdin()
	out := cmd.OutOrStdout()
	interactive := false
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		interactive = true
	}

	var stats queryStats
	start := time.Now()
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		if interactive {
			fmt.Fprint(out, ">>> ")
		}
		if !sc.Scan() {
			break
		}

		words := strings.Fields(sc.Text())
		scores, err := score(words)
		if err != nil {
			return err
		}
		printSentence(out, scores, verbose, &stats)
	}
	if err := sc.Err(); err != nil {
		return err
	}

	if interactive {
		fmt.Fprintln(out)
	}
	printSummary(out, &stats, time.Since(start))
	return nil
}

// loadModel - Laedt eine Binaerdatei oder baut das Modell aus ARPA im Speicher
func loadModel(cmd *cobra.Command, path string) (*lm.Model, error) {
	cfg := lm.DefaultConfig()
	t, binary, err := lm.Classify(path)
	if err != nil {
		return nil, err
	}
	if binary {
		return lm.Load(path, cfg)
	}

	typeName, _ := cmd.Flags().GetString("type")
	switch typeName {
	case "probing":
		t = lmfile.HashProbing
	case "trie":
		t = lmfile.Trie
	default:
		return nil, fmt.Errorf("unknown model type %q, expected probing or trie", typeName)
	}
	return lm.Construct(cmd.Context(), path, t, cfg)
}

func queryLocal(m *lm.Model, words []string, wrap bool) []scoredWord {
	_, scores := lm.ScoreSentence(m, words, wrap, wrap)
	out := make([]scoredWord, len(scores))
	for i, s := range scores {
		out[i] = scoredWord{word: s.Word, id: s.ID, prob: s.Prob, ngramLength: s.NgramLength}
	}
	return out
}

func queryRemote(cmd *cobra.Command, client *api.Client, words []string, wrap bool) ([]scoredWord, error) {
	// leere Zeilen ohne </s> lehnt der Server ab
	if len(words) == 0 && !wrap {
		return nil, nil
	}

	resp, err := client.Score(cmd.Context(), &api.ScoreRequest{Sentence: strings.Join(words, " "), BOS: &wrap, EOS: &wrap})
	if err != nil {
		return nil, err
	}

	out := make([]scoredWord, len(resp.Words))
	for i, w := range resp.Words {
		out[i] = scoredWord{word: w.Word, id: w.ID, prob: w.Prob, ngramLength: w.NgramLength}
	}
	return out, nil
}

// printSentence - Gibt einen Satz aus und zaehlt ihn in stats
func printSentence(w io.Writer, scores []scoredWord, verbose string, stats *queryStats) {
	var total float32
	oov := 0
	for _, s := range scores {
		if verbose == "word" {
			fmt.Fprintf(w, "%s=%d %d %g\t", s.word, s.id, s.ngramLength, s.prob)
		}
		total += s.prob
		stats.tokens++
		if s.id == 0 {
			oov++
		} else {
			stats.totalNoOOV += float64(s.prob)
		}
	}
	stats.total += float64(total)
	stats.oov += oov

	if verbose != "summary" {
		fmt.Fprintf(w, "Total: %g OOV: %d\n", total, oov)
	}
}

// printSummary - Perplexitaet ueber alle Saetze
func printSummary(w io.Writer, stats *queryStats, elapsed time.Duration) {
	perplexity := func(total float64, tokens int) float64 {
		if tokens == 0 {
			return math.NaN()
		}
		return math.Pow(10, -total/float64(tokens))
	}

	fmt.Fprintf(w, "Perplexity including OOVs:\t%g\n", perplexity(stats.total, stats.tokens))
	fmt.Fprintf(w, "Perplexity excluding OOVs:\t%g\n", perplexity(stats.totalNoOOV, stats.tokens-stats.oov))
	fmt.Fprintf(w, "OOVs:\t%d\n", stats.oov)
	fmt.Fprintf(w, "Tokens:\t%d\n", stats.tokens)
	fmt.Fprintf(w, "Elapsed:\t%s\n", elapsed.Round(time.Microsecond))
}
