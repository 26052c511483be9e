package classify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkohari/reviewkit/internal/llm"
	"github.com/tkohari/reviewkit/internal/models"
)

type fakeRetriever struct {
	mu    sync.Mutex
	lines []string
	err   error
	calls int
}

func (f *fakeRetriever) RetrieveSimilar(ctx context.Context, texts []string, topK int) ([][]string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]string, len(texts))
	for i := range texts {
		out[i] = f.lines
	}
	return out, nil
}

// fakeCategorizer labels every review with category and can fail its first
// N calls to exercise the retry queue.
type fakeCategorizer struct {
	mu        sync.Mutex
	category  string
	failFirst int
	calls     int
	seenTexts []string
}

func (f *fakeCategorizer) ClassifyBatch(ctx context.Context, reviews []llm.ReviewInput, vocabulary []string) ([][]string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	for _, r := range reviews {
		f.seenTexts = append(f.seenTexts, r.Text)
	}
	f.mu.Unlock()

	if call <= f.failFirst {
		return nil, errors.New("model overloaded")
	}
	out := make([][]string, len(reviews))
	for i := range reviews {
		out[i] = []string{f.category}
	}
	return out, nil
}

func (f *fakeCategorizer) Usage() llm.UsageStats { return llm.UsageStats{} }

func (f *fakeCategorizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func shrinkRetryDelays(t *testing.T) {
	t.Helper()
	old := retryUnit
	retryUnit = time.Millisecond
	t.Cleanup(func() { retryUnit = old })
}

func makeItems(n int) []models.Item {
	items := make([]models.Item, n)
	for i := range items {
		items[i] = models.Item{ID: fmt.Sprintf("r%d", i), Text: fmt.Sprintf("review text %d", i)}
	}
	return items
}

func TestRunKeepsSubmissionOrder(t *testing.T) {
	cat := &fakeCategorizer{category: "service"}
	ret := &fakeRetriever{lines: []string{"1. close match (categories: service)"}}
	engine := NewEngine(cat, ret, []string{"service", "price"},
		Options{BatchSize: 10, MaxConcurrent: 4}, testLogger())

	items := makeItems(45)
	results, summary, err := engine.Run(context.Background(), items, nil)
	require.NoError(t, err)

	require.Len(t, results, 45)
	for i, res := range results {
		assert.Equal(t, items[i].ID, res.ID)
		assert.Equal(t, items[i].Text, res.Text)
		assert.Equal(t, []string{"service"}, res.Categories)
		assert.Equal(t, ret.lines, res.SimilarReviews)
	}
	assert.Equal(t, 5, summary.Batches)
	assert.Equal(t, 5, summary.Succeeded)
	assert.Equal(t, 0, summary.FailedAttempts)
}

func TestRunEmptyReviewsSkipModel(t *testing.T) {
	cat := &fakeCategorizer{category: "price"}
	ret := &fakeRetriever{lines: []string{"1. neighbour"}}
	engine := NewEngine(cat, ret, []string{"price"}, Options{BatchSize: 10}, testLogger())

	items := []models.Item{
		{ID: "a", Text: "too expensive"},
		{ID: "b", Text: ""},
		{ID: "c", Text: "   "},
		{ID: "d", Text: "good value"},
	}
	results, _, err := engine.Run(context.Background(), items, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"price"}, results[0].Categories)
	assert.Equal(t, []string{models.CategoryNA}, results[1].Categories)
	assert.Nil(t, results[1].SimilarReviews)
	assert.Equal(t, []string{models.CategoryNA}, results[2].Categories)
	assert.Equal(t, []string{"price"}, results[3].Categories)

	// Only non-empty reviews ever reach the model
	assert.ElementsMatch(t, []string{"too expensive", "good value"}, cat.seenTexts)
}

func TestRunAllEmptyNeedsNoModelCall(t *testing.T) {
	cat := &fakeCategorizer{category: "price"}
	ret := &fakeRetriever{}
	engine := NewEngine(cat, ret, []string{"price"}, Options{BatchSize: 10}, testLogger())

	results, _, err := engine.Run(context.Background(),
		[]models.Item{{ID: "a"}, {ID: "b", Text: " "}}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{models.CategoryNA}, results[0].Categories)
	assert.Equal(t, []string{models.CategoryNA}, results[1].Categories)
	assert.Equal(t, 0, cat.callCount())
	assert.Equal(t, 0, ret.calls)
}

func TestRunRetriesFailedBatch(t *testing.T) {
	shrinkRetryDelays(t)
	cat := &fakeCategorizer{category: "quality", failFirst: 1}
	ret := &fakeRetriever{lines: []string{"1. neighbour"}}
	engine := NewEngine(cat, ret, []string{"quality"},
		Options{BatchSize: 10, MaxAttempts: 3}, testLogger())

	results, summary, err := engine.Run(context.Background(), makeItems(5), nil)
	require.NoError(t, err)

	for _, res := range results {
		assert.Equal(t, []string{"quality"}, res.Categories)
	}
	assert.Equal(t, 2, cat.callCount())
	assert.Equal(t, 1, summary.FailedAttempts)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestRunExhaustedBatchMarkedUnclassified(t *testing.T) {
	shrinkRetryDelays(t)
	cat := &fakeCategorizer{category: "quality", failFirst: 100}
	ret := &fakeRetriever{lines: []string{"1. neighbour"}}
	engine := NewEngine(cat, ret, []string{"quality"},
		Options{BatchSize: 10, MaxAttempts: 2}, testLogger())

	var last [2]int
	results, summary, err := engine.Run(context.Background(), makeItems(5),
		func(processed, total int) { last = [2]int{processed, total} })
	require.NoError(t, err)

	for _, res := range results {
		assert.Equal(t, []string{models.CategoryNA}, res.Categories)
	}
	// Initial attempt plus two retries
	assert.Equal(t, 3, cat.callCount())
	assert.Equal(t, 3, summary.FailedAttempts)
	assert.Equal(t, 0, summary.Succeeded)
	// Unclassifiable items still count as processed
	assert.Equal(t, [2]int{5, 5}, last)
}

func TestRunRetrieverErrorGoesThroughRetryQueue(t *testing.T) {
	shrinkRetryDelays(t)
	cat := &fakeCategorizer{category: "quality"}
	ret := &fakeRetriever{err: errors.New("index unavailable")}
	engine := NewEngine(cat, ret, []string{"quality"},
		Options{BatchSize: 10, MaxAttempts: 2}, testLogger())

	results, summary, err := engine.Run(context.Background(), makeItems(3), nil)
	require.NoError(t, err)

	for _, res := range results {
		assert.Equal(t, []string{models.CategoryNA}, res.Categories)
	}
	assert.Equal(t, 0, cat.callCount())
	assert.Equal(t, 3, summary.FailedAttempts)
}

func TestRunWithoutRetriever(t *testing.T) {
	cat := &fakeCategorizer{category: "service"}
	engine := NewEngine(cat, nil, []string{"service"}, Options{BatchSize: 10}, testLogger())

	results, _, err := engine.Run(context.Background(), makeItems(3), nil)
	require.NoError(t, err)

	for _, res := range results {
		assert.Equal(t, []string{"service"}, res.Categories)
		assert.Empty(t, res.SimilarReviews)
	}
	assert.Equal(t, 1, cat.callCount())
}

func TestRunCancelledContext(t *testing.T) {
	cat := &fakeCategorizer{category: "quality"}
	ret := &fakeRetriever{lines: []string{"1. neighbour"}}
	engine := NewEngine(cat, ret, []string{"quality"}, Options{BatchSize: 2}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := engine.Run(ctx, makeItems(10), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunNoItems(t *testing.T) {
	engine := NewEngine(&fakeCategorizer{}, &fakeRetriever{}, nil, Options{}, testLogger())

	results, summary, err := engine.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, summary.Batches)
}

func TestSplitBatches(t *testing.T) {
	tests := []struct {
		name   string
		items  int
		size   int
		counts []int
	}{
		{"exact multiple", 40, 20, []int{20, 20}},
		{"remainder", 45, 20, []int{20, 20, 5}},
		{"single short batch", 5, 20, []int{5}},
		{"size one", 3, 1, []int{1, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := splitBatches(makeItems(tt.items), tt.size)
			require.Len(t, batches, len(tt.counts))
			offset := 0
			for i, b := range batches {
				assert.Equal(t, tt.counts[i], len(b.items))
				assert.Equal(t, offset, b.start)
				offset += len(b.items)
			}
		})
	}
}

func TestAvgLength(t *testing.T) {
	items := []models.Item{
		{Text: "abcd"},
		{Text: ""},
		{Text: "ab"},
		{Text: "   "},
	}
	assert.InDelta(t, 3.0, avgLength(items), 0.001)
	assert.Equal(t, 0.0, avgLength(nil))
}
