package lm

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/7blacky7/ngramlm/arpa"
)

// positiveProbWarn meldet positive Log-Wahrscheinlichkeiten nur einmal
type positiveProbWarn struct {
	action WarningAction
	warned bool
}

func (p *positiveProbWarn) check(prob float32, r *arpa.Reader, words []string) error {
	if p.action == Silent || p.warned {
		return nil
	}
	p.warned = true

	msg := fmt.Sprintf("there are positive log probabilities (e.g. %q with %g) in %s, treating them as 0", strings.Join(words, " "), prob, r.Name())
	if p.action == ThrowUp {
		return &FormatError{Path: r.Name(), Msg: fmt.Sprintf("line %d: positive log probability %g for %q, build with -i to substitute 0", r.LineNumber(), prob, strings.Join(words, " "))}
	}
	slog.Warn(msg, "line", r.LineNumber())
	return nil
}

// readWeights uebernimmt Prob und Backoff einer ARPA-Zeile. Ein fehlender
// oder verschwindender Backoff wird zu -0.0 (keine Fortsetzung).
func readWeights(e arpa.Entry, warn *positiveProbWarn, r *arpa.Reader) (ProbBackoff, error) {
	w := ProbBackoff{Prob: e.Prob, Backoff: noExtensionBackoff}
	if w.Prob > 0 {
		if err := warn.check(w.Prob, r, e.Words); err != nil {
			return w, err
		}
		w.Prob = 0
	}
	if e.HasBackoff && e.Backoff != 0 {
		w.Backoff = e.Backoff
	}
	return w, nil
}
