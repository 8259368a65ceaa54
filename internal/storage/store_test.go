package storage

import (
	"context"
	"testing"

	"flintsim/internal/model"
)

type resettableStore interface {
	Store
	Resetter
}

func testRun(id, createdAt string) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: CurrentVersion(),
		ID:              id,
		CreatedAtUTC:    createdAt,
		Scape:           "forage",
		Agent:           "forager",
		Episodes:        2,
		MeanReturn:      -50,
	}
}

func testEpisodes(runID string) []model.EpisodeRecord {
	return []model.EpisodeRecord{
		{VersionedRecord: CurrentVersion(), RunID: runID, Index: 1, Seed: 11, Steps: 20, TotalReward: -60, Terminal: true},
		{VersionedRecord: CurrentVersion(), RunID: runID, Index: 0, Seed: 10, Steps: 25, TotalReward: -40, Terminal: true},
	}
}

// exerciseStore runs the behaviour every backend shares against an
// initialized store.
func exerciseStore(t *testing.T, store resettableStore) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing run, ok=%t err=%v", ok, err)
	}

	runs := []model.RunRecord{
		testRun("run-a", "2026-01-01T00:00:00Z"),
		testRun("run-b", "2026-01-02T00:00:00Z"),
		testRun("run-c", "2026-01-02T00:00:00Z"),
	}
	for _, run := range runs {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}

	loaded, ok, err := store.GetRun(ctx, "run-a")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%t err=%v", ok, err)
	}
	if loaded != runs[0] {
		t.Fatalf("unexpected run: %+v", loaded)
	}

	listed, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(listed) != 3 || listed[0].ID != "run-c" || listed[1].ID != "run-b" || listed[2].ID != "run-a" {
		t.Fatalf("unexpected run order: %+v", listed)
	}
	limited, err := store.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("list runs limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "run-c" {
		t.Fatalf("unexpected limited runs: %+v", limited)
	}

	updated := runs[0]
	updated.MeanReturn = 10
	if err := store.SaveRun(ctx, updated); err != nil {
		t.Fatalf("update run: %v", err)
	}
	loaded, _, err = store.GetRun(ctx, "run-a")
	if err != nil || loaded.MeanReturn != 10 {
		t.Fatalf("expected updated run, got %+v err=%v", loaded, err)
	}

	if err := store.SaveEpisodes(ctx, "run-a", testEpisodes("run-a")); err != nil {
		t.Fatalf("save episodes: %v", err)
	}
	episodes, ok, err := store.GetEpisodes(ctx, "run-a")
	if err != nil || !ok {
		t.Fatalf("get episodes: ok=%t err=%v", ok, err)
	}
	if len(episodes) != 2 || episodes[0].Index != 0 || episodes[1].Index != 1 || episodes[1].TotalReward != -60 {
		t.Fatalf("unexpected episodes: %+v", episodes)
	}
	if _, ok, err := store.GetEpisodes(ctx, "run-b"); err != nil || ok {
		t.Fatalf("expected no episodes for run-b, ok=%t err=%v", ok, err)
	}

	summary := model.ScapeSummary{VersionedRecord: CurrentVersion(), Name: "forage", BestReturn: -40, Runs: 3}
	if err := store.SaveScapeSummary(ctx, summary); err != nil {
		t.Fatalf("save summary: %v", err)
	}
	summary.Runs = 4
	if err := store.SaveScapeSummary(ctx, summary); err != nil {
		t.Fatalf("update summary: %v", err)
	}
	gotSummary, ok, err := store.GetScapeSummary(ctx, "forage")
	if err != nil || !ok || gotSummary != summary {
		t.Fatalf("unexpected summary %+v ok=%t err=%v", gotSummary, ok, err)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	listed, err = store.ListRuns(ctx, 0)
	if err != nil || len(listed) != 0 {
		t.Fatalf("expected empty store after reset, runs=%+v err=%v", listed, err)
	}
	if _, ok, _ := store.GetScapeSummary(ctx, "forage"); ok {
		t.Fatal("expected summary cleared by reset")
	}
}
