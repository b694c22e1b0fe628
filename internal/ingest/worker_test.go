package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/soumithganji/DineLytics/internal/catalog"
	"github.com/soumithganji/DineLytics/internal/retrieval"
	"github.com/soumithganji/DineLytics/internal/storage"
)

type mockItems struct {
	items []catalog.Item
	err   error
}

func (m *mockItems) AllItems(context.Context) ([]catalog.Item, error) {
	return m.items, m.err
}

type mockEmbedder struct {
	batches [][]string
	embedFn func(texts []string) ([][]float32, error)
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batches = append(m.batches, texts)
	if m.embedFn != nil {
		return m.embedFn(texts)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// resetRunAfter makes a backed-off job immediately claimable.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	_, err := store.DB().Exec(`UPDATE jobs SET run_after = '1970-01-01T00:00:00.000000Z' WHERE id = ?`, jobID)
	if err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func jobStatus(t *testing.T, store *storage.Store, id string) (string, int) {
	t.Helper()
	job, err := store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return job.Status, job.Attempts
}

var sampleItems = []catalog.Item{
	{Name: "Margherita Pizza", Source: catalog.SourceProduct},
	{Name: "Pepperoni Pizza", Source: catalog.SourceProduct},
	{Name: "Garlic Knots", Source: catalog.SourceOrderItem},
}

func TestIndexCatalog_BatchesAndUpserts(t *testing.T) {
	store := openTestStore(t)
	vectors := retrieval.NewSQLiteStore(store.DB())
	emb := &mockEmbedder{}
	ix := NewIndexer(&mockItems{items: sampleItems}, emb, vectors, 2)

	ctx := context.Background()
	n, err := ix.IndexCatalog(ctx)
	if err != nil {
		t.Fatalf("IndexCatalog: %v", err)
	}
	if n != 3 {
		t.Errorf("written = %d, want 3", n)
	}
	want := [][]string{{"Margherita Pizza", "Pepperoni Pizza"}, {"Garlic Knots"}}
	if diff := cmp.Diff(want, emb.batches); diff != "" {
		t.Errorf("batches mismatch (-want +got):\n%s", diff)
	}

	// Re-indexing replaces rather than duplicates.
	if _, err := ix.IndexCatalog(ctx); err != nil {
		t.Fatalf("second IndexCatalog: %v", err)
	}
	count, err := vectors.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	hits, err := vectors.Search(ctx, []float32{12, 1}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Name != "Garlic Knots" || hits[0].Source != retrieval.SourceOrderItem {
		t.Errorf("hits = %+v", hits)
	}
	if hits[0].ID != retrieval.ItemID("Garlic Knots") {
		t.Errorf("id = %q, want deterministic item id", hits[0].ID)
	}
}

func TestIndexCatalog_ListError(t *testing.T) {
	ix := NewIndexer(&mockItems{err: errors.New("server selection timeout")}, &mockEmbedder{}, retrieval.NewSQLiteStore(openTestStore(t).DB()), 0)
	if _, err := ix.IndexCatalog(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnqueue(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := Enqueue(ctx, store, "manual")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Type != JobIndexCatalog || job.PayloadJSON != `{"reason":"manual"}` || job.Status != storage.JobPending {
		t.Errorf("job = %+v", job)
	}
}

func TestWorker_ProcessesJob(t *testing.T) {
	store := openTestStore(t)
	vectors := retrieval.NewSQLiteStore(store.DB())
	ctx := context.Background()
	id, err := Enqueue(ctx, store, "test")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	w := NewWorker(store, NewIndexer(&mockItems{items: sampleItems}, &mockEmbedder{}, vectors, 0), 0)
	didWork, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}
	if status, _ := jobStatus(t, store, id); status != storage.JobCompleted {
		t.Errorf("status = %q, want completed", status)
	}
	if n, _ := vectors.Count(ctx); n != 3 {
		t.Errorf("count = %d, want 3", n)
	}

	didWork, err = w.RunOnce(ctx)
	if err != nil || didWork {
		t.Errorf("RunOnce on empty queue = %v, %v; want false, nil", didWork, err)
	}
}

func TestWorker_RetryOnFailure(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	id, _ := Enqueue(ctx, store, "retry")

	var calls atomic.Int32
	emb := &mockEmbedder{embedFn: func(texts []string) ([][]float32, error) {
		n := calls.Add(1)
		if n <= 2 {
			return nil, fmt.Errorf("transient error %d", n)
		}
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{0.1, 0.2}
		}
		return out, nil
	}}
	w := NewWorker(store, NewIndexer(&mockItems{items: sampleItems}, emb, retrieval.NewSQLiteStore(store.DB()), 0), 0)

	// 1st attempt fails and stays retryable.
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce 1 error: %v", err)
	}
	if status, attempts := jobStatus(t, store, id); status != storage.JobPending || attempts != 1 {
		t.Errorf("after 1st fail: status=%q attempts=%d, want pending/1", status, attempts)
	}

	resetRunAfter(t, store, id)
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce 2 error: %v", err)
	}
	if _, attempts := jobStatus(t, store, id); attempts != 2 {
		t.Errorf("after 2nd fail: attempts=%d, want 2", attempts)
	}

	resetRunAfter(t, store, id)
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce 3 error: %v", err)
	}
	if status, _ := jobStatus(t, store, id); status != storage.JobCompleted {
		t.Errorf("after 3rd attempt: status=%q, want completed", status)
	}
}

func TestWorker_MaxRetriesExceeded(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	id, _ := Enqueue(ctx, store, "fail")

	w := NewWorker(store, NewIndexer(&mockItems{err: errors.New("permanent error")}, &mockEmbedder{}, retrieval.NewSQLiteStore(store.DB()), 0), 0)
	for i := 1; i <= 3; i++ {
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce %d error: %v", i, err)
		}
		if !didWork {
			t.Fatalf("RunOnce %d returned false", i)
		}
		if i < 3 {
			resetRunAfter(t, store, id)
		}
	}

	if status, _ := jobStatus(t, store, id); status != storage.JobFailed {
		t.Errorf("final status = %q, want %q", status, storage.JobFailed)
	}
}

func TestWorker_BadPayload(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.EnqueueJob(ctx, storage.Job{ID: "bad", Type: JobIndexCatalog, PayloadJSON: "{not json", MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	w := NewWorker(store, NewIndexer(&mockItems{items: sampleItems}, &mockEmbedder{}, retrieval.NewSQLiteStore(store.DB()), 0), 0)
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if status, _ := jobStatus(t, store, "bad"); status != storage.JobFailed {
		t.Errorf("status = %q, want failed", status)
	}
}
