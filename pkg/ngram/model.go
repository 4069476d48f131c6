package ngram

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Sentinel pads the start of every sequence so early positions have a full
// history. It is assumed never to appear in real input.
const Sentinel = '~'

var (
	// ErrInvalidOrder is returned when an order less than 1 is supplied.
	ErrInvalidOrder = errors.New("ngram: order must be positive")
	// ErrNilModel is returned when generation is attempted without a model.
	ErrNilModel = errors.New("ngram: nil language model")
	// ErrInvalidLength is returned when a negative output length is requested.
	ErrInvalidLength = errors.New("ngram: length must not be negative")
	// ErrUnsupportedVersion is returned when importing an export of an unknown format version.
	ErrUnsupportedVersion = errors.New("ngram: unsupported export version")
)

// Distribution maps a next character to the number of times it was observed
// after a given history.
type Distribution map[rune]int

// Total returns the sum of all counts in the distribution.
func (d Distribution) Total() int {
	var total int
	for _, c := range d {
		total += c
	}
	return total
}

// LanguageModel maps a history string to the distribution of characters that
// followed it. Histories of different lengths never collide, so the length of
// a key identifies the order it was trained at. The empty history holds the
// unigram distribution.
//
// A LanguageModel is built once by Train and is read-only afterwards.
type LanguageModel map[string]Distribution

// ModelStats holds aggregated statistics for a single model.
type ModelStats struct {
	Histories      int         // The number of distinct histories.
	Transitions    int         // The number of unique history->char links.
	TotalFrequency int         // The sum of all counts.
	PerOrder       map[int]int // History count keyed by history length.
}

// Stats walks the model and returns its aggregated statistics.
func (m LanguageModel) Stats() ModelStats {
	stats := ModelStats{PerOrder: make(map[int]int)}
	for history, dist := range m {
		stats.Histories++
		stats.PerOrder[utf8.RuneCountInString(history)]++
		stats.Transitions += len(dist)
		stats.TotalFrequency += dist.Total()
	}
	return stats
}

// Validate checks the structural invariants of a trained model: every history
// is at most order runes long and every count is at least 1.
func (m LanguageModel) Validate(order int) error {
	if m == nil {
		return ErrNilModel
	}
	for history, dist := range m {
		if n := utf8.RuneCountInString(history); n > order {
			return fmt.Errorf("history %q has length %d, exceeding order %d", history, n, order)
		}
		for c, count := range dist {
			if count < 1 {
				return fmt.Errorf("history %q has non-positive count %d for %q", history, count, c)
			}
		}
	}
	return nil
}

// Prune returns a copy of the model without transitions whose count is less
// than or equal to minFreq. Histories left with no transitions are dropped.
// Padding histories (the empty history and those made only of Sentinel) are
// never pruned: they hold the fallback unigram and the only way from the start
// of a sequence into real text.
func (m LanguageModel) Prune(minFreq int) LanguageModel {
	pruned := make(LanguageModel, len(m))
	for history, dist := range m {
		keepAll := isPadding(history)
		kept := make(Distribution, len(dist))
		for c, count := range dist {
			if count > minFreq || keepAll {
				kept[c] = count
			}
		}
		if len(kept) > 0 {
			pruned[history] = kept
		}
	}
	return pruned
}

// isPadding reports whether history consists only of Sentinel runes. The
// empty history counts as padding.
func isPadding(history string) bool {
	return strings.Trim(history, string(Sentinel)) == ""
}

// lastRunes returns the trailing n runes of s, or all of s when it is shorter.
func lastRunes(s []rune, n int) string {
	if n <= 0 {
		return ""
	}
	if n > len(s) {
		n = len(s)
	}
	return string(s[len(s)-n:])
}
