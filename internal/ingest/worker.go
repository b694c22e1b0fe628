// Package ingest builds the item-name vector index from the catalog, either
// directly or through index_catalog jobs on the SQLite job queue.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/soumithganji/DineLytics/internal/catalog"
	"github.com/soumithganji/DineLytics/internal/retrieval"
	"github.com/soumithganji/DineLytics/internal/storage"
)

// JobIndexCatalog is the job type that rebuilds the item index.
const JobIndexCatalog = "index_catalog"

const defaultBatchSize = 64

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// JobEnqueuer adds jobs to the queue.
type JobEnqueuer interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
}

// ItemLister lists every item name in the catalog.
type ItemLister interface {
	AllItems(ctx context.Context) ([]catalog.Item, error)
}

// BatchEmbedder generates embeddings for several texts, in input order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorUpserter writes records into the item index.
type VectorUpserter interface {
	Upsert(ctx context.Context, records []retrieval.Record) error
}

// Indexer embeds catalog item names into the vector index.
type Indexer struct {
	items     ItemLister
	embedder  BatchEmbedder
	vectors   VectorUpserter
	batchSize int
}

// NewIndexer creates an Indexer. If batchSize is <= 0, it defaults to 64.
func NewIndexer(items ItemLister, embedder BatchEmbedder, vectors VectorUpserter, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Indexer{items: items, embedder: embedder, vectors: vectors, batchSize: batchSize}
}

// IndexCatalog embeds every product and order line-item name and upserts
// them, a batch at a time. Record IDs are derived from the name, so running
// it again refreshes vectors instead of duplicating them. It returns the
// number of names written.
func (ix *Indexer) IndexCatalog(ctx context.Context) (int, error) {
	items, err := ix.items.AllItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing catalog items: %w", err)
	}
	slog.Info("indexing catalog", "items", len(items))

	written := 0
	for start := 0; start < len(items); start += ix.batchSize {
		batch := items[start:min(start+ix.batchSize, len(items))]
		names := make([]string, len(batch))
		for i, it := range batch {
			names[i] = it.Name
		}

		vecs, err := ix.embedder.EmbedBatch(ctx, names)
		if err != nil {
			return written, fmt.Errorf("embedding items %d-%d: %w", start, start+len(batch), err)
		}

		now := time.Now().UTC()
		recs := make([]retrieval.Record, len(batch))
		for i, it := range batch {
			recs[i] = retrieval.Record{
				ID:        retrieval.ItemID(it.Name),
				Name:      it.Name,
				Source:    recordSource(it.Source),
				Embedding: vecs[i],
				UpdatedAt: now,
			}
		}
		if err := ix.vectors.Upsert(ctx, recs); err != nil {
			return written, fmt.Errorf("writing item vectors: %w", err)
		}
		written += len(recs)
		slog.Debug("indexed batch", "written", written, "total", len(items))
	}
	return written, nil
}

func recordSource(src string) string {
	if src == catalog.SourceOrderItem {
		return retrieval.SourceOrderItem
	}
	return retrieval.SourceProduct
}

type indexPayload struct {
	Reason string `json:"reason,omitempty"`
}

// Enqueue queues an index_catalog job and returns its ID.
func Enqueue(ctx context.Context, q JobEnqueuer, reason string) (string, error) {
	payload, err := json.Marshal(indexPayload{Reason: reason})
	if err != nil {
		return "", err
	}
	job := storage.Job{
		ID:          uuid.NewString(),
		Type:        JobIndexCatalog,
		PayloadJSON: string(payload),
	}
	if err := q.EnqueueJob(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// Worker processes index_catalog jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	indexer *Indexer
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, indexer *Indexer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		indexer: indexer,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single index_catalog job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{JobIndexCatalog})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload indexPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	n, err := w.indexer.IndexCatalog(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("catalog indexed", "job_id", job.ID, "reason", payload.Reason, "items", n)
	return nil
}
