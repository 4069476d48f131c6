package ngram

import "math"

// DefaultDiscount is the per-step penalty applied by stupid backoff.
const DefaultDiscount = 0.4

// Candidates maps a possible next character to its score. Scores are
// relative weights and need not sum to 1.
type Candidates map[rune]float64

// Ranker scores the characters that may follow a history at a given order.
// An empty result means the history is unseen at that order and the caller
// should retry at a lower one.
type Ranker interface {
	Rank(model LanguageModel, history string, modelOrder, order int) Candidates
}

// StupidBackoff ranks candidates by their count relative to the total mass of
// the next-shorter history, discounted by Discount for every step the order
// sits below modelOrder.
type StupidBackoff struct {
	Discount float64
}

// Rank implements Ranker.
func (s StupidBackoff) Rank(model LanguageModel, history string, modelOrder, order int) Candidates {
	runes := []rune(history)
	dist, ok := model[lastRunes(runes, order)]
	if !ok || len(dist) == 0 {
		return nil
	}

	denominator := dist.Total()
	if order > 0 {
		if lesser, ok := model[lastRunes(runes, order-1)]; ok {
			if t := lesser.Total(); t > 0 {
				denominator = t
			}
		}
	}

	lambda := math.Pow(s.Discount, float64(modelOrder-order))
	candidates := make(Candidates, len(dist))
	for c, count := range dist {
		candidates[c] = lambda * float64(count) / float64(denominator)
	}
	return candidates
}

// Rank scores the candidates for history at order using stupid backoff with
// the default discount.
func Rank(model LanguageModel, history string, modelOrder, order int) Candidates {
	return StupidBackoff{Discount: DefaultDiscount}.Rank(model, history, modelOrder, order)
}
