// Package classify runs review classification as concurrent batches over a
// similarity retriever and an LLM categorizer. Results stay aligned with the
// submitted items regardless of batch scheduling or retries.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/tkohari/reviewkit/internal/llm"
	"github.com/tkohari/reviewkit/internal/models"
)

// Retriever supplies formatted nearest-neighbour lines for a slice of
// review texts.
type Retriever interface {
	RetrieveSimilar(ctx context.Context, texts []string, topK int) ([][]string, error)
}

// ProgressFunc receives processed and total item counts as batches finish.
type ProgressFunc func(processed, total int)

// Options tune batch size and retry behaviour.
type Options struct {
	// BatchSize is the number of reviews sent per model call.
	BatchSize int
	// MaxConcurrent caps batches in flight at once.
	MaxConcurrent int
	// MaxAttempts is the number of retries a failed batch gets after its
	// initial attempt before its reviews are marked unclassifiable.
	MaxAttempts int
	// TopK is the number of similar reviews retrieved per input.
	TopK int
}

// Summary reports run accounting for the export workbook and logs.
type Summary struct {
	// Batches is the number of batches the items were split into.
	Batches int
	// Succeeded counts batch attempts that produced results.
	Succeeded int
	// FailedAttempts counts every batch attempt that errored, including
	// attempts that later succeeded on retry.
	FailedAttempts int
	// AvgReviewLength is the mean rune length of non-empty review texts.
	AvgReviewLength float64
}

// Engine classifies review items against one industry vocabulary.
type Engine struct {
	categorizer llm.Categorizer
	retriever   Retriever
	vocabulary  []string
	opts        Options
	logger      *slog.Logger
}

// NewEngine creates a classification engine bound to one retriever and
// category vocabulary. A nil retriever runs classification without
// similarity context.
func NewEngine(categorizer llm.Categorizer, retriever Retriever, vocabulary []string, opts Options, logger *slog.Logger) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 20
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	return &Engine{
		categorizer: categorizer,
		retriever:   retriever,
		vocabulary:  vocabulary,
		opts:        opts,
		logger:      logger,
	}
}

// batch is a contiguous run of items; start is the offset of its first item
// in the results slice.
type batch struct {
	start int
	items []models.Item
}

type retryEntry struct {
	batch        batch
	attemptsLeft int
}

// retryUnit scales retry delays; tests shrink it.
var retryUnit = time.Second

// Run classifies all items and returns results in submission order. A batch
// that keeps failing after retries yields N/A categories for its reviews
// instead of failing the run; Run itself errors only on cancellation or a
// fatal provider error.
func (e *Engine) Run(ctx context.Context, items []models.Item, progress ProgressFunc) ([]models.BatchResult, Summary, error) {
	results := make([]models.BatchResult, len(items))
	for i, item := range items {
		results[i] = models.BatchResult{ID: item.ID, Text: item.Text}
	}

	summary := Summary{AvgReviewLength: avgLength(items)}
	if len(items) == 0 {
		return results, summary, nil
	}

	batches := splitBatches(items, e.opts.BatchSize)
	summary.Batches = len(batches)
	e.logger.Info("classification started",
		"items", len(items),
		"batches", len(batches),
		"batch_size", e.opts.BatchSize,
		"max_concurrent", e.opts.MaxConcurrent)

	sem := semaphore.NewWeighted(int64(e.opts.MaxConcurrent))
	runOne := func(ctx context.Context, b batch) error {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer sem.Release(1)
		return e.classifyBatch(ctx, b, results)
	}

	var (
		mu        sync.Mutex
		retries   []retryEntry
		processed int
	)
	report := func(n int) {
		mu.Lock()
		processed += n
		p := processed
		mu.Unlock()
		if progress != nil {
			progress(p, len(items))
		}
	}

	var wg sync.WaitGroup
	for _, b := range batches {
		wg.Add(1)
		go func(b batch) {
			defer wg.Done()
			if err := runOne(ctx, b); err != nil {
				e.logger.Warn("batch failed, queued for retry",
					"start", b.start, "size", len(b.items), "error", err)
				mu.Lock()
				summary.FailedAttempts++
				retries = append(retries, retryEntry{batch: b, attemptsLeft: e.opts.MaxAttempts})
				mu.Unlock()
				return
			}
			mu.Lock()
			summary.Succeeded++
			mu.Unlock()
			report(len(b.items))
		}(b)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, summary, err
	}

	// Failed batches retry one at a time with exponential delays. A batch
	// out of attempts gets N/A for all its reviews.
	for len(retries) > 0 {
		entry := retries[0]
		retries = retries[1:]

		if entry.attemptsLeft <= 0 {
			e.logger.Error("batch exhausted retries, marking unclassified",
				"start", entry.batch.start, "size", len(entry.batch.items))
			e.fillUnclassified(entry.batch, results)
			report(len(entry.batch.items))
			continue
		}

		delay := time.Duration(1<<(e.opts.MaxAttempts-entry.attemptsLeft)) * retryUnit
		e.logger.Info("retrying batch",
			"start", entry.batch.start, "attempts_left", entry.attemptsLeft, "delay", delay)
		select {
		case <-ctx.Done():
			return nil, summary, ctx.Err()
		case <-time.After(delay):
		}

		if err := runOne(ctx, entry.batch); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, summary, ctxErr
			}
			summary.FailedAttempts++
			retries = append(retries, retryEntry{batch: entry.batch, attemptsLeft: entry.attemptsLeft - 1})
			continue
		}
		summary.Succeeded++
		report(len(entry.batch.items))
	}

	e.logger.Info("classification finished",
		"items", len(items),
		"succeeded_batches", summary.Succeeded,
		"failed_attempts", summary.FailedAttempts)
	return results, summary, nil
}

// classifyBatch fills the result slots for one batch. Empty reviews get N/A
// without touching the retriever or the model; everything else is classified
// in a single model call.
func (e *Engine) classifyBatch(ctx context.Context, b batch, results []models.BatchResult) error {
	positions := make([]int, 0, len(b.items))
	texts := make([]string, 0, len(b.items))
	for i, item := range b.items {
		pos := b.start + i
		if strings.TrimSpace(item.Text) == "" {
			results[pos].Categories = []string{models.CategoryNA}
			continue
		}
		positions = append(positions, pos)
		texts = append(texts, item.Text)
	}
	if len(texts) == 0 {
		return nil
	}

	// Without a retriever the reviews are classified on their own text.
	similar := make([][]string, len(texts))
	if e.retriever != nil {
		var err error
		similar, err = e.retriever.RetrieveSimilar(ctx, texts, e.opts.TopK)
		if err != nil {
			return fmt.Errorf("retrieve similar reviews: %w", err)
		}
	}

	reviews := make([]llm.ReviewInput, len(texts))
	for i, text := range texts {
		reviews[i] = llm.ReviewInput{Text: text, Similar: similar[i]}
	}
	categories, err := e.categorizer.ClassifyBatch(ctx, reviews, e.vocabulary)
	if err != nil {
		return err
	}

	for i, pos := range positions {
		results[pos].SimilarReviews = similar[i]
		results[pos].Categories = categories[i]
	}
	return nil
}

func (e *Engine) fillUnclassified(b batch, results []models.BatchResult) {
	for i := range b.items {
		pos := b.start + i
		if results[pos].Categories == nil {
			results[pos].Categories = []string{models.CategoryNA}
		}
	}
}

func splitBatches(items []models.Item, size int) []batch {
	batches := make([]batch, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, batch{start: start, items: items[start:end]})
	}
	return batches
}

func avgLength(items []models.Item) float64 {
	var total, count int
	for _, item := range items {
		if strings.TrimSpace(item.Text) == "" {
			continue
		}
		total += utf8.RuneCountInString(item.Text)
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}
