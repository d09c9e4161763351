package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/platewise/backend/internal/analysis"
	"github.com/platewise/backend/internal/models"
)

func TestSnapshotEnforcesOwnership(t *testing.T) {
	repo := NewInMemoryRecordRepository()
	notifier := NewNotifier(repo)
	rec := newTestRecord(t, repo)

	snap, err := notifier.Snapshot(rec.ID, 1)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.ID != rec.ID || snap.State != analysis.StateIdle {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}
	if !snap.Settled() {
		t.Error("Idle record should be settled")
	}

	if _, err := notifier.Snapshot(rec.ID, 2); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Foreign owner should get not-found, got %v", err)
	}
}

func TestSnapshotReportsInFlightStates(t *testing.T) {
	repo := NewInMemoryRecordRepository()
	notifier := NewNotifier(repo)
	rec := newTestRecord(t, repo)

	for _, state := range []analysis.State{analysis.StatePredicting, analysis.StateAnalyzing} {
		if err := repo.UpdateStatus(rec.ID, state, ""); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
		snap, err := notifier.Snapshot(rec.ID, 1)
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if snap.Settled() {
			t.Errorf("State '%s' should not be settled", state)
		}
	}
}

func TestSnapshotIsImmuneToLaterCommits(t *testing.T) {
	repo := NewInMemoryRecordRepository()
	notifier := NewNotifier(repo)
	orch := NewOrchestrator(repo, scriptedAnalyzer(), stubImageStore{})
	rec := newTestRecord(t, repo)

	if err := orch.Predict(context.Background(), rec.ID); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	snap, err := notifier.Snapshot(rec.ID, 1)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	confirm(t, orch, rec.ID)

	if len(snap.Iterations) != 1 || snap.CurrentIteration != 1 {
		t.Errorf("Earlier snapshot must not observe later commits: %+v", snap)
	}

	fresh, err := notifier.Snapshot(rec.ID, 1)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(fresh.Iterations) != 2 || fresh.CurrentIteration != 2 {
		t.Errorf("Fresh snapshot should see the new iteration: %+v", fresh)
	}
}

func TestHistoryLimitAndOrder(t *testing.T) {
	repo := NewInMemoryRecordRepository()
	notifier := NewNotifier(repo)
	orch := NewOrchestrator(repo, scriptedAnalyzer(), stubImageStore{})
	rec := newTestRecord(t, repo)

	if err := orch.Predict(context.Background(), rec.ID); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	confirm(t, orch, rec.ID)
	if err := orch.Reanalyze(context.Background(), rec.ID); err != nil {
		t.Fatalf("Reanalyze failed: %v", err)
	}

	iterations, err := notifier.History(rec.ID, 1, 2)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(iterations) != 2 {
		t.Fatalf("Expected 2 iterations with limit 2, got %d", len(iterations))
	}
	if iterations[0].Number != 3 || iterations[1].Number != 2 {
		t.Errorf("Expected iterations [3, 2], got [%d, %d]", iterations[0].Number, iterations[1].Number)
	}
}

func TestSnapshotAdaptsLegacyRecord(t *testing.T) {
	repo := NewInMemoryRecordRepository()
	notifier := NewNotifier(repo)

	legacy := []byte(`{"dish_name": "Chicken Biryani", "calories_kcal": 650, "protein_g": 32, "healthiness_score": 6}`)
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	rec := &models.AnalysisRecord{
		OwnerID:    1,
		ImageKey:   "biryani.jpg",
		Status:     string(analysis.StateIdle),
		History:    legacy,
		TargetDate: &date,
	}
	if err := repo.Create(rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	snap, err := notifier.Snapshot(rec.ID, 1)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap.Iterations) != 1 || snap.CurrentIteration != 1 {
		t.Fatalf("Expected legacy record adapted to one iteration, got %+v", snap)
	}
	iter := snap.Iterations[0]
	if iter.Result.Kind != analysis.ResultFull {
		t.Errorf("Expected full result, got '%s'", iter.Result.Kind)
	}
	if iter.Metadata.SelectedDishName != "Chicken Biryani" {
		t.Errorf("Expected legacy dish name, got '%s'", iter.Metadata.SelectedDishName)
	}

	// The stored document is untouched; adaptation happens on read only.
	stored, err := repo.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(stored.History) != string(legacy) {
		t.Error("Legacy history document must not be rewritten on read")
	}
}
