package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEnqueueAndClaimJob(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.EnqueueJob(ctx, Job{ID: "job-1", Type: "index_catalog", PayloadJSON: `{"full":true}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	job, err := s.ClaimNextJob(ctx, []string{"index_catalog"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil {
		t.Fatal("ClaimNextJob returned nil, want a job")
	}
	if job.ID != "job-1" || job.Status != JobRunning || job.PayloadJSON != `{"full":true}` {
		t.Errorf("claimed job = %+v", job)
	}
	if job.MaxAttempts != defaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", job.MaxAttempts, defaultMaxAttempts)
	}

	again, err := s.ClaimNextJob(ctx, []string{"index_catalog"})
	if err != nil {
		t.Fatalf("second ClaimNextJob: %v", err)
	}
	if again != nil {
		t.Errorf("second claim returned %+v, want nil", again)
	}
}

func TestClaimNextJob_FiltersType(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.EnqueueJob(ctx, Job{ID: "other", Type: "something_else"})

	job, err := s.ClaimNextJob(ctx, []string{"index_catalog"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job != nil {
		t.Errorf("claimed %+v, want nil", job)
	}
	if job, _ := s.ClaimNextJob(ctx, nil); job != nil {
		t.Errorf("claim with no types returned %+v", job)
	}
}

func TestClaimNextJob_RespectRunAfter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.EnqueueJob(ctx, Job{ID: "later", Type: "index_catalog", RunAfter: time.Now().Add(time.Hour)})

	job, err := s.ClaimNextJob(ctx, []string{"index_catalog"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job != nil {
		t.Errorf("claimed future job %+v", job)
	}
}

func TestCompleteJob(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.EnqueueJob(ctx, Job{ID: "j", Type: "index_catalog"})
	s.ClaimNextJob(ctx, []string{"index_catalog"})

	if err := s.CompleteJob(ctx, "j"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	got, err := s.GetJob(ctx, "j")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != JobCompleted {
		t.Errorf("status = %q, want %q", got.Status, JobCompleted)
	}
	if err := s.CompleteJob(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteJob(missing) = %v, want ErrNotFound", err)
	}
}

func TestFailJob_SetsBackoff(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.EnqueueJob(ctx, Job{ID: "j", Type: "index_catalog"})
	s.ClaimNextJob(ctx, []string{"index_catalog"})

	before := time.Now()
	if err := s.FailJob(ctx, "j", "mongo unreachable"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	got, err := s.GetJob(ctx, "j")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != JobPending || got.Attempts != 1 || got.LastError != "mongo unreachable" {
		t.Errorf("job after failure = %+v", got)
	}
	// First retry waits 2^1 seconds.
	if got.RunAfter.Before(before.Add(2*time.Second - 100*time.Millisecond)) {
		t.Errorf("run_after = %v, want about 2s after %v", got.RunAfter, before)
	}
}

func TestFailJob_MaxAttempts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.EnqueueJob(ctx, Job{ID: "j", Type: "index_catalog", MaxAttempts: 1})

	if err := s.FailJob(ctx, "j", "boom"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	got, _ := s.GetJob(ctx, "j")
	if got.Status != JobFailed {
		t.Errorf("status = %q, want %q", got.Status, JobFailed)
	}
	if err := s.FailJob(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FailJob(missing) = %v, want ErrNotFound", err)
	}
}
