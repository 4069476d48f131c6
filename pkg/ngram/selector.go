package ngram

import (
	"math/rand/v2"
	"slices"
	"sync"
)

// Selector picks one character from a non-empty candidate distribution.
// It returns false if there is nothing to choose from.
type Selector interface {
	Select(Candidates) (rune, bool)
}

// sortedRunes returns the candidate characters in ascending order, which is the
// iteration order every selector uses.
func sortedRunes(c Candidates) []rune {
	runes := make([]rune, 0, len(c))
	for r := range c {
		runes = append(runes, r)
	}
	slices.Sort(runes)
	return runes
}

// ArgMax deterministically selects the highest scoring character. Ties go to
// the lowest character.
type ArgMax struct{}

// Select implements Selector.
func (ArgMax) Select(c Candidates) (rune, bool) {
	var best rune
	bestScore := -1.0
	found := false
	for _, r := range sortedRunes(c) {
		if score := c[r]; !found || score > bestScore {
			best, bestScore, found = r, score, true
		}
	}
	return best, found
}

// WeightedRandom samples a character with probability proportional to its score.
// It is safe for concurrent use.
type WeightedRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewWeightedRandom returns a WeightedRandom whose sequence of choices is
// fully determined by seed.
func NewWeightedRandom(seed uint64) *WeightedRandom {
	return &WeightedRandom{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Select implements Selector.
func (w *WeightedRandom) Select(c Candidates) (rune, bool) {
	runes := sortedRunes(c)
	if len(runes) == 0 {
		return 0, false
	}
	var total float64
	for _, r := range runes {
		total += c[r]
	}
	if total <= 0 {
		return ArgMax{}.Select(c)
	}

	w.mu.Lock()
	choice := w.rng.Float64() * total
	w.mu.Unlock()

	for _, r := range runes {
		choice -= c[r]
		if choice < 0 {
			return r, true
		}
	}
	// Float rounding can leave a sliver past the last weight.
	return runes[len(runes)-1], true
}
