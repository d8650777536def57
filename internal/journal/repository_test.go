package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/holter-node/internal/infrastructure/config"
	"github.com/nerrad567/holter-node/internal/infrastructure/database"
	"github.com/nerrad567/holter-node/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.JournalConfig{
		Path:    filepath.Join(t.TempDir(), "journal.db"),
		WALMode: true,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	repo := NewSQLiteRepository(db.DB)
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return repo
}

func TestStartBoot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if repo.BootID() != "" {
		t.Fatal("BootID() set before StartBoot")
	}

	boot, err := repo.StartBoot(ctx, "esp32_holter", "1.0.0")
	if err != nil {
		t.Fatalf("StartBoot() error = %v", err)
	}
	if boot.ID == "" || repo.BootID() != boot.ID {
		t.Errorf("BootID() = %q, boot.ID = %q", repo.BootID(), boot.ID)
	}

	boots, err := repo.ListBoots(ctx, 10)
	if err != nil {
		t.Fatalf("ListBoots() error = %v", err)
	}
	if len(boots) != 1 || boots[0].ThingName != "esp32_holter" || boots[0].Version != "1.0.0" {
		t.Errorf("ListBoots() = %+v", boots)
	}
	if boots[0].EndedAt != nil {
		t.Error("EndedAt set on open boot")
	}
}

func TestRecordBeforeBoot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.RecordEvent(ctx, EventWiFiConnected, "", 0); !errors.Is(err, ErrNoBoot) {
		t.Errorf("RecordEvent() error = %v, want ErrNoBoot", err)
	}
	if err := repo.RecordMessage(ctx, DirectionIn, "esp32/sub", []byte("x")); !errors.Is(err, ErrNoBoot) {
		t.Errorf("RecordMessage() error = %v, want ErrNoBoot", err)
	}
	if err := repo.EndBoot(ctx, "shutdown"); !errors.Is(err, ErrNoBoot) {
		t.Errorf("EndBoot() error = %v, want ErrNoBoot", err)
	}
}

func TestRecordAndListEvents(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.StartBoot(ctx, "esp32_holter", "dev"); err != nil {
		t.Fatalf("StartBoot() error = %v", err)
	}

	for i := 1; i <= 3; i++ {
		if err := repo.RecordEvent(ctx, EventBrokerConnectFailed, "connection refused", i); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
	}
	if err := repo.RecordEvent(ctx, EventBrokerConnected, "", 4); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}

	all, err := repo.ListEvents(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("ListEvents() returned %d, want 4", len(all))
	}
	if all[0].Kind != EventBrokerConnected || all[0].Attempt != 4 {
		t.Errorf("newest event = %+v, want broker_connected attempt 4", all[0])
	}

	failed, err := repo.ListEvents(ctx, Filter{Kind: EventBrokerConnectFailed, Limit: 2})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(failed) != 2 {
		t.Fatalf("filtered ListEvents() returned %d, want 2", len(failed))
	}
	if failed[0].Attempt != 3 || failed[0].Detail != "connection refused" {
		t.Errorf("filtered newest = %+v", failed[0])
	}
	if failed[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not parsed")
	}
}

func TestRecordAndListMessages(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	boot, err := repo.StartBoot(ctx, "esp32_holter", "dev")
	if err != nil {
		t.Fatalf("StartBoot() error = %v", err)
	}

	if err := repo.RecordMessage(ctx, DirectionOut, "esp32/pub", []byte(`{"message": "Hello from ESP32"}`)); err != nil {
		t.Fatalf("RecordMessage() error = %v", err)
	}
	if err := repo.RecordMessage(ctx, DirectionIn, "esp32/sub", nil); err != nil {
		t.Fatalf("RecordMessage() nil payload error = %v", err)
	}

	msgs, err := repo.ListMessages(ctx, Filter{BootID: boot.ID})
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("ListMessages() returned %d, want 2", len(msgs))
	}
	if msgs[0].Direction != DirectionIn || msgs[0].Payload != "" {
		t.Errorf("newest message = %+v", msgs[0])
	}
	if msgs[1].Direction != DirectionOut || msgs[1].Payload != `{"message": "Hello from ESP32"}` {
		t.Errorf("oldest message = %+v", msgs[1])
	}
}

func TestEndBoot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.StartBoot(ctx, "esp32_holter", "dev"); err != nil {
		t.Fatalf("StartBoot() error = %v", err)
	}
	if err := repo.EndBoot(ctx, "broker_connect_exhausted"); err != nil {
		t.Fatalf("EndBoot() error = %v", err)
	}

	boots, err := repo.ListBoots(ctx, 1)
	if err != nil {
		t.Fatalf("ListBoots() error = %v", err)
	}
	if boots[0].EndedAt == nil || boots[0].EndReason != "broker_connect_exhausted" {
		t.Errorf("boot = %+v, want ended with reason", boots[0])
	}
}

func TestPruneBoots(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		boot, err := repo.StartBoot(ctx, "esp32_holter", "dev")
		if err != nil {
			t.Fatalf("StartBoot() error = %v", err)
		}
		if err := repo.RecordEvent(ctx, EventWiFiConnected, "", 1); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
		ids = append(ids, boot.ID)
	}

	n, err := repo.PruneBoots(ctx, 2)
	if err != nil {
		t.Fatalf("PruneBoots() error = %v", err)
	}
	if n != 2 {
		t.Errorf("PruneBoots() deleted %d, want 2", n)
	}

	boots, err := repo.ListBoots(ctx, 10)
	if err != nil {
		t.Fatalf("ListBoots() error = %v", err)
	}
	if len(boots) != 2 || boots[0].ID != ids[3] || boots[1].ID != ids[2] {
		t.Errorf("remaining boots = %+v, want the two newest", boots)
	}

	events, err := repo.ListEvents(ctx, Filter{BootID: ids[0]})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events of pruned boot = %d, want 0 (cascade)", len(events))
	}
}

func TestListBoots_SubSecondOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 1, 9, 0, 5, 0, time.UTC)
	offsets := []time.Duration{
		0,
		100 * time.Millisecond,
		120 * time.Millisecond,
		500 * time.Millisecond,
	}

	var ids []string
	for _, off := range offsets {
		repo.now = func() time.Time { return base.Add(off) }
		boot, err := repo.StartBoot(ctx, "esp32_holter", "dev")
		if err != nil {
			t.Fatalf("StartBoot() error = %v", err)
		}
		ids = append(ids, boot.ID)
	}

	boots, err := repo.ListBoots(ctx, 10)
	if err != nil {
		t.Fatalf("ListBoots() error = %v", err)
	}
	if len(boots) != len(ids) {
		t.Fatalf("ListBoots() returned %d boots, want %d", len(boots), len(ids))
	}
	for i, b := range boots {
		want := ids[len(ids)-1-i]
		if b.ID != want {
			t.Errorf("boots[%d] started %v, want the boot started at %v", i, b.StartedAt, base.Add(offsets[len(ids)-1-i]))
		}
	}
	if !boots[0].StartedAt.Equal(base.Add(500 * time.Millisecond)) {
		t.Errorf("newest StartedAt = %v, want round trip of %v", boots[0].StartedAt, base.Add(500*time.Millisecond))
	}

	n, err := repo.PruneBoots(ctx, 1)
	if err != nil {
		t.Fatalf("PruneBoots() error = %v", err)
	}
	if n != 3 {
		t.Errorf("PruneBoots() deleted %d, want 3", n)
	}
	boots, err = repo.ListBoots(ctx, 10)
	if err != nil {
		t.Fatalf("ListBoots() error = %v", err)
	}
	if len(boots) != 1 || boots[0].ID != ids[3] {
		t.Errorf("remaining boots = %+v, want the newest", boots)
	}
}

func TestFilterLimit(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, defaultLimit},
		{-5, defaultLimit},
		{10, 10},
		{maxLimit + 1, maxLimit},
	}
	for _, tt := range tests {
		if got := (Filter{Limit: tt.in}).limit(); got != tt.want {
			t.Errorf("Filter{Limit: %d}.limit() = %d, want %d", tt.in, got, tt.want)
		}
	}
}
