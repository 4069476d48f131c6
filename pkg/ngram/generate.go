package ngram

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Generator produces text from a trained LanguageModel. It holds the ranking
// and selection strategies; the model itself is passed to each call, so one
// Generator can serve any number of models concurrently.
type Generator struct {
	ranker   Ranker
	selector Selector
	logger   *slog.Logger
}

// GenerateOption is a function that configures a Generator.
type GenerateOption func(*Generator)

// WithSelector sets the character selection policy.
// Default: ArgMax
func WithSelector(s Selector) GenerateOption {
	return func(g *Generator) {
		if s != nil {
			g.selector = s
		}
	}
}

// WithRanker sets the ranking strategy.
// Default: StupidBackoff with DefaultDiscount
func WithRanker(r Ranker) GenerateOption {
	return func(g *Generator) {
		if r != nil {
			g.ranker = r
		}
	}
}

// WithLogger sets the logger for the Generator. By default, all logs are discarded.
func WithLogger(logger *slog.Logger) GenerateOption {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGenerator creates a Generator with default settings, which can be
// overridden by providing one or more GenerateOption functions.
func NewGenerator(opts ...GenerateOption) *Generator {
	g := &Generator{
		ranker:   StupidBackoff{Discount: DefaultDiscount},
		selector: ArgMax{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces text for positions 0 through length inclusive. Positions
// covered by seed are copied from it verbatim; every later position is ranked
// starting at modelOrder and backing off one order at a time until some
// candidate is found. A position for which even order 0 has no candidates
// produces nothing and leaves the history unchanged.
func (g *Generator) Generate(model LanguageModel, modelOrder, length int, seed string) (string, error) {
	var builder strings.Builder
	err := g.run(context.Background(), model, modelOrder, length, seed, func(r rune) bool {
		builder.WriteRune(r)
		return true
	})
	if err != nil {
		return "", err
	}
	return builder.String(), nil
}

// GenerateStream behaves like Generate but delivers characters on a channel as
// they are produced. The channel is closed once generation completes or ctx is
// cancelled. Argument errors are returned before any goroutine is started.
func (g *Generator) GenerateStream(ctx context.Context, model LanguageModel, modelOrder, length int, seed string) (<-chan rune, error) {
	if err := checkArgs(model, modelOrder, length); err != nil {
		return nil, err
	}

	out := make(chan rune)
	go func() {
		defer close(out)
		_ = g.run(ctx, model, modelOrder, length, seed, func(r rune) bool {
			select {
			case <-ctx.Done():
				g.logger.DebugContext(ctx, "Generation stream cancelled by context")
				return false
			case out <- r:
				return true
			}
		})
	}()
	return out, nil
}

func checkArgs(model LanguageModel, modelOrder, length int) error {
	if model == nil {
		return ErrNilModel
	}
	if modelOrder <= 0 {
		return ErrInvalidOrder
	}
	if length < 0 {
		return ErrInvalidLength
	}
	return nil
}

// run contains the main generation loop. emit returns false to stop early.
func (g *Generator) run(ctx context.Context, model LanguageModel, modelOrder, length int, seed string, emit func(rune) bool) error {
	if err := checkArgs(model, modelOrder, length); err != nil {
		return err
	}

	seedRunes := []rune(seed)
	history := []rune(strings.Repeat(string(Sentinel), modelOrder))
	skipped := 0

	for i := 0; i <= length; i++ {
		var next rune
		if i < len(seedRunes) {
			next = seedRunes[i]
		} else {
			var ok bool
			next, ok = g.nextRune(model, string(history), modelOrder)
			if !ok {
				skipped++
				g.logger.DebugContext(ctx, "Backoff exhausted, no character produced",
					slog.Int("position", i),
					slog.String("history", string(history)),
				)
				continue
			}
		}

		if !emit(next) {
			return ctx.Err()
		}
		// Slide the window, keeping it exactly modelOrder long.
		history = append(history[1:], next)
	}

	g.logger.DebugContext(ctx, "Generation completed",
		slog.Int("model_order", modelOrder),
		slog.Int("length", length),
		slog.Int("seeded", min(len(seedRunes), length+1)),
		slog.Int("skipped", skipped),
	)
	return nil
}

// nextRune runs the backoff loop from modelOrder down to 0 and selects a
// character from the first non-empty candidate set. Sentinel is padding, not
// text, so it is never produced.
func (g *Generator) nextRune(model LanguageModel, history string, modelOrder int) (rune, bool) {
	for order := modelOrder; order >= 0; order-- {
		candidates := withoutSentinel(g.ranker.Rank(model, history, modelOrder, order))
		if len(candidates) > 0 {
			return g.selector.Select(candidates)
		}
	}
	return 0, false
}

// withoutSentinel returns c minus the Sentinel candidate. c itself is not
// modified, since a Ranker may hand out shared maps.
func withoutSentinel(c Candidates) Candidates {
	if _, ok := c[Sentinel]; !ok {
		return c
	}
	filtered := make(Candidates, len(c)-1)
	for r, score := range c {
		if r != Sentinel {
			filtered[r] = score
		}
	}
	return filtered
}
