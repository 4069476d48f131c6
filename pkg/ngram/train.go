package ngram

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// trainOptions Is used by Train to configure default options.
type trainOptions struct {
	concurrency int
	logger      *slog.Logger
}

// TrainOption is a function that configures training parameters.
type TrainOption func(*trainOptions)

// WithConcurrency bounds how many per-order scans run at once. A value of 1
// runs them sequentially; 0 or less runs one goroutine per order.
func WithConcurrency(n int) TrainOption {
	return func(o *trainOptions) { o.concurrency = n }
}

// WithTrainLogger sets the logger used while training. By default, all logs are discarded.
func WithTrainLogger(logger *slog.Logger) TrainOption {
	return func(o *trainOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Train builds a LanguageModel from raw text. For every order from 1 up to
// order it scans the padded text and counts which character followed each
// history of that length. The scans are independent and run concurrently;
// their tables are merged only once every scan has finished.
//
// If ctx is cancelled before all scans complete, Train returns ctx.Err() and
// no model.
func Train(ctx context.Context, raw string, order int, opts ...TrainOption) (LanguageModel, error) {
	if order <= 0 {
		return nil, ErrInvalidOrder
	}

	options := &trainOptions{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(options)
	}

	start := time.Now()
	text := []rune(Prepare(raw, order))
	// The scan bound uses the maximum order for every table so that all orders
	// see the same number of positions.
	total := len(text) - order

	tables := make([]LanguageModel, order)
	g, gctx := errgroup.WithContext(ctx)
	if options.concurrency > 0 {
		g.SetLimit(options.concurrency)
	}
	for n := 1; n <= order; n++ {
		g.Go(func() error {
			table, err := trainOrder(gctx, text, total, n)
			if err != nil {
				return err
			}
			options.logger.DebugContext(ctx, "Order scan completed",
				slog.Int("order", n),
				slog.Int("histories", len(table)),
			)
			tables[n-1] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	model := merge(tables)

	options.logger.InfoContext(ctx, "Training completed",
		slog.Int("order", order),
		slog.Int("positions", total+1),
		slog.Int("histories", len(model)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return model, nil
}

// trainOrder counts, for every position up to total, the character following
// the history of length n that starts there.
func trainOrder(ctx context.Context, text []rune, total, n int) (LanguageModel, error) {
	// checkEvery sets how many positions are scanned between cancellation checks.
	const checkEvery = 4096

	table := make(LanguageModel)
	for i := 0; i <= total; i++ {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		last := min(i+n, len(text)-1)
		if last-i < n {
			// The clamp at the end of the text shortened this window, so it is
			// the observation order n-1 records at the same position.
			continue
		}
		history := string(text[i:last])
		dist, ok := table[history]
		if !ok {
			dist = make(Distribution)
			table[history] = dist
		}
		dist[text[last]]++
	}
	return table, nil
}

// merge unions the per-order tables and derives the unigram distribution
// stored under the empty history from the order-1 table.
func merge(tables []LanguageModel) LanguageModel {
	size := 1
	for _, t := range tables {
		size += len(t)
	}
	model := make(LanguageModel, size)
	for _, t := range tables {
		for history, dist := range t {
			model[history] = dist
		}
	}

	unigram := make(Distribution)
	if len(tables) > 0 {
		for _, dist := range tables[0] {
			for c, count := range dist {
				unigram[c] += count
			}
		}
	}
	if len(unigram) > 0 {
		model[""] = unigram
	}
	return model
}
