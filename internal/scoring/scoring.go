// Package scoring classifies candidates with weighted boolean signals.
//
// A Table lists signals with integer weights, a minimum score and a margin.
// Classify picks the best-scoring candidate and reports whether it clears
// the threshold and beats the runner-up by the margin.
package scoring

import (
	"fmt"
	"sort"
	"strings"
)

// Signal is a named predicate over a candidate. Weights may be negative.
type Signal[C any] struct {
	Name   string
	Weight int
	Match  func(C) bool
}

// Table is an immutable set of signals plus decision parameters.
type Table[C any] struct {
	Name      string
	Signals   []Signal[C]
	Threshold int
	Margin    float64
}

// Outcome is the decision reached by Classify.
type Outcome int

const (
	NoCandidates Outcome = iota
	NotFound
	Ambiguous
	Found
)

func (o Outcome) String() string {
	switch o {
	case NoCandidates:
		return "no_candidates"
	case NotFound:
		return "not_found"
	case Ambiguous:
		return "ambiguous"
	case Found:
		return "found"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MarshalText lets outcomes appear by name in JSON and YAML reports.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is the outcome of one classification.
type Result struct {
	Index       int // winning candidate, -1 unless Found
	Leader      int // highest-scoring candidate whatever the outcome, -1 without candidates
	BestScore   int
	SecondScore int
	Matched     []string // signals matched by the best candidate, in table order
	Outcome     Outcome
	Scores      []int // per-candidate scores
}

// Score returns the total weight of matching signals and their names.
func (t Table[C]) Score(c C) (int, []string) {
	score := 0
	var matched []string
	for _, s := range t.Signals {
		if s.Match(c) {
			score += s.Weight
			matched = append(matched, s.Name)
		}
	}
	return score, matched
}

// Classify scores every candidate once and decides:
//
//   - no candidates: NoCandidates
//   - best < Threshold: NotFound
//   - second > 0 and best < second*Margin: Ambiguous
//   - otherwise Found
//
// Ties keep the earlier candidate; the tying score becomes the second score.
func Classify[C any](candidates []C, table Table[C]) Result {
	res := Result{Index: -1, Leader: -1}
	if len(candidates) == 0 {
		res.Outcome = NoCandidates
		return res
	}

	res.Scores = make([]int, len(candidates))
	best, second := -1, 0
	var bestMatched []string
	for i, c := range candidates {
		score, matched := table.Score(c)
		res.Scores[i] = score
		switch {
		case best < 0:
			best, res.BestScore, bestMatched = i, score, matched
		case score > res.BestScore:
			second = res.BestScore
			best, res.BestScore, bestMatched = i, score, matched
		case score > second:
			second = score
		}
	}
	res.Leader = best
	if len(candidates) > 1 {
		res.SecondScore = second
	}

	switch {
	case res.BestScore < table.Threshold:
		res.Outcome = NotFound
	case res.SecondScore > 0 && float64(res.BestScore) < float64(res.SecondScore)*table.Margin:
		res.Outcome = Ambiguous
	default:
		res.Outcome = Found
		res.Index = best
		res.Matched = bestMatched
	}
	return res
}

// WithOverrides returns a copy of the table with replaced weights and,
// when non-nil, a replaced threshold and margin. Unknown signal names are
// an error so that typos in configuration do not pass silently.
func (t Table[C]) WithOverrides(weights map[string]int, threshold *int, margin *float64) (Table[C], error) {
	out := t
	out.Signals = append([]Signal[C](nil), t.Signals...)

	index := make(map[string]int, len(out.Signals))
	for i, s := range out.Signals {
		index[s.Name] = i
	}

	var unknown []string
	for name, w := range weights {
		i, ok := index[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		out.Signals[i].Weight = w
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return t, fmt.Errorf("table %s: unknown signals: %s", t.Name, strings.Join(unknown, ", "))
	}

	if threshold != nil {
		out.Threshold = *threshold
	}
	if margin != nil {
		if *margin < 1 {
			return t, fmt.Errorf("table %s: margin must be >= 1, got %v", t.Name, *margin)
		}
		out.Margin = *margin
	}
	return out, nil
}

// SignalNames lists the signal names in table order.
func (t Table[C]) SignalNames() []string {
	names := make([]string, len(t.Signals))
	for i, s := range t.Signals {
		names[i] = s.Name
	}
	return names
}
