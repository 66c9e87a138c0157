package repository

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/speech-sdk/internal/config"
	"github.com/RubachokBoss/speech-sdk/internal/database"
	"github.com/RubachokBoss/speech-sdk/internal/models"
	"github.com/RubachokBoss/speech-sdk/pkg/events"
)

func newTestHistory(t *testing.T) HistoryRepository {
	t.Helper()
	cfg := config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "history.db"),
	}

	migrator, err := database.NewMigrator(cfg)
	if err != nil {
		t.Fatalf("migrator: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	repo := NewHistoryRepository(db, zerolog.Nop())
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func event(token string, stage events.Stage, at time.Time) events.TaskEvent {
	return events.TaskEvent{
		Session:     token,
		Kind:        "recognition",
		Stage:       stage,
		ChallengeID: "choice-1",
		Timestamp:   at,
	}
}

func TestHistory_FoldsLifecycle(t *testing.T) {
	repo := newTestHistory(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := repo.Record(ctx, event("s-1", events.StageStarted, start)); err != nil {
		t.Fatalf("started: %v", err)
	}

	progress := event("s-1", events.StageProgress, start.Add(time.Second))
	progress.RemoteID = "remote-1"
	progress.Step = "choice.init_challenge"
	if err := repo.Record(ctx, progress); err != nil {
		t.Fatalf("progress: %v", err)
	}

	completed := event("s-1", events.StageCompleted, start.Add(3*time.Second))
	completed.Result = map[string]any{"recognised": "yes"}
	completed.AudioFormat = "audio/wave"
	if err := repo.Record(ctx, completed); err != nil {
		t.Fatalf("completed: %v", err)
	}
	if err := repo.SetAudioKey(ctx, "s-1", "2026/03/s-1.wav"); err != nil {
		t.Fatalf("audio key: %v", err)
	}

	rec, err := repo.GetBySession(ctx, "s-1")
	if err != nil || rec == nil {
		t.Fatalf("get: %v, %v", rec, err)
	}
	if rec.Stage != string(events.StageCompleted) || rec.RemoteID != "remote-1" || rec.Step != "choice.init_challenge" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.Finished() || !rec.StartedAt.Equal(start) {
		t.Fatalf("unexpected timestamps %+v", rec)
	}
	if rec.AudioKey != "2026/03/s-1.wav" || rec.AudioFormat != "audio/wave" {
		t.Fatalf("unexpected audio fields %+v", rec)
	}

	var result map[string]string
	if err := json.Unmarshal(rec.Result, &result); err != nil || result["recognised"] != "yes" {
		t.Fatalf("unexpected result %s: %v", rec.Result, err)
	}
}

func TestHistory_GetMissing(t *testing.T) {
	repo := newTestHistory(t)

	rec, err := repo.GetBySession(context.Background(), "nope")
	if err != nil || rec != nil {
		t.Fatalf("expected nil record, got %+v, %v", rec, err)
	}
	if err := repo.SetAudioKey(context.Background(), "nope", "k"); err == nil {
		t.Fatalf("expected an error for an unknown session")
	}
}

func TestHistory_ListFiltersAndPages(t *testing.T) {
	repo := newTestHistory(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, token := range []string{"a", "b", "c"} {
		e := event(token, events.StageStarted, start.Add(time.Duration(i)*time.Minute))
		if token == "c" {
			e.Kind = "analysis"
		}
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("record %s: %v", token, err)
		}
	}
	failed := event("a", events.StageFailed, start.Add(time.Hour))
	failed.Error = "choice.write refused"
	if err := repo.Record(ctx, failed); err != nil {
		t.Fatalf("failed: %v", err)
	}

	page, err := repo.List(ctx, models.HistoryFilter{Kind: "recognition"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 2 || page.Items[0].Token != "b" {
		t.Fatalf("unexpected page %+v", page)
	}

	page, err = repo.List(ctx, models.HistoryFilter{Stage: "failed"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if page.Total != 1 || page.Items[0].Error != "choice.write refused" {
		t.Fatalf("unexpected failed page %+v", page)
	}

	page, err = repo.List(ctx, models.HistoryFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("list paged: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 1 || page.Items[0].Token != "b" {
		t.Fatalf("unexpected paged result %+v", page)
	}
}
