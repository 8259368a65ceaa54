package storage

import (
	"errors"
	"testing"

	"flintsim/internal/forage"
	"flintsim/internal/model"
)

func TestDecodeRunPayload(t *testing.T) {
	payload := []byte(`{
		"schema_version": 1,
		"codec_version": 1,
		"id": "run-fixture",
		"created_at_utc": "2026-01-02T03:04:05Z",
		"scape": "forage",
		"agent": "forager",
		"seed": 7,
		"episodes": 3,
		"max_steps": 1000,
		"mean_return": -40.5,
		"terminal_count": 3,
		"environment": {"width": 100, "height": 100, "food_per_step": 5}
	}`)

	run, err := DecodeRun(payload)
	if err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.ID != "run-fixture" || run.Agent != "forager" || run.Seed != 7 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.Environment.Width != 100 || run.Environment.FoodPerStep != 5 {
		t.Fatalf("unexpected environment: %+v", run.Environment)
	}
}

func TestEncodeDecodeRunKeepsEnvironment(t *testing.T) {
	cfg := forage.DefaultConfig()
	cfg.Seed = 99
	in := model.RunRecord{
		VersionedRecord: CurrentVersion(),
		ID:              "run-1",
		Scape:           "forage",
		Agent:           "random",
		Episodes:        2,
		BestReturn:      12.5,
		Environment:     cfg,
	}
	data, err := EncodeRun(in)
	if err != nil {
		t.Fatalf("encode run: %v", err)
	}
	out, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if out != in {
		t.Fatalf("run changed through codec: in=%+v out=%+v", in, out)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	stale := []byte(`{"schema_version": 0, "codec_version": 1, "run_id": "r", "index": 0}`)
	if _, err := DecodeEpisode(stale); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}

	future := []byte(`{"schema_version": 1, "codec_version": 2, "name": "forage"}`)
	if _, err := DecodeScapeSummary(future); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}

	if _, err := DecodeRun([]byte(`{not json`)); err == nil {
		t.Fatal("expected decode error")
	}
}
