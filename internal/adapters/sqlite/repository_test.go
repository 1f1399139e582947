package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/atvirokodosprendimai/pmsbridge/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
	"github.com/atvirokodosprendimai/pmsbridge/migrations"
)

func openTestDB(t *testing.T) *gormsqlite.DB {
	t.Helper()
	db, err := gormsqlite.Open(filepath.Join(t.TempDir(), "test.sqlite"), nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	sqlDB, err := db.WriteSQLDB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	if err := migrations.Up(context.Background(), sqlDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	sqlDB, err := db.WriteSQLDB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	if err := migrations.Up(ctx, sqlDB); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	v, err := migrations.Version(ctx, sqlDB)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 1 {
		t.Fatalf("expected schema version 1, got %d", v)
	}
}

func TestAPIKeyRepositoryUpsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewAPIKeyRepository(openTestDB(t))

	if _, err := repo.FindByTokenHash(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	created := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	if err := repo.Upsert(ctx, domain.APIKey{TokenHash: "h1", TenantID: "tenant-a", Name: "agent", Active: true, CreatedAt: created}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Upsert(ctx, domain.APIKey{TokenHash: "h1", TenantID: "tenant-a", Name: "agent-renamed", Active: false, CreatedAt: created.Add(time.Hour)}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	key, err := repo.FindByTokenHash(ctx, "h1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	want := domain.APIKey{TokenHash: "h1", TenantID: "tenant-a", Name: "agent-renamed", Active: false, CreatedAt: created}
	if diff := cmp.Diff(want, key); diff != "" {
		t.Fatalf("api key mismatch (-want +got):\n%s", diff)
	}
}

func TestToolCallRepositoryRecordAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewToolCallRepository(openTestDB(t))

	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	calls := []domain.ToolCall{
		{
			ID: "c1", TenantID: "tenant-a", Operation: "search_units", Outcome: domain.OutcomeOK,
			ParamsJSON: []byte(`{"page":0}`), UpstreamStatus: 200, Duration: 120 * time.Millisecond, CreatedAt: base,
		},
		{
			ID: "c2", TenantID: "tenant-a", Operation: "create_housekeeping_work_order", Outcome: domain.OutcomeRejected,
			Violations: []domain.Violation{{Field: "_", Code: domain.CodeMutuallyExclusive, Message: "unit_reference: only one"}},
			Error:      "1 validation error: unit_reference: only one", CreatedAt: base.Add(time.Minute),
		},
		{
			ID: "c3", TenantID: "tenant-a", Operation: "search_units", Outcome: domain.OutcomeUpstreamError,
			UpstreamStatus: 503, Error: "pms api returned status 503", CreatedAt: base.Add(2 * time.Minute),
		},
		{ID: "c4", TenantID: "tenant-b", Operation: "search_units", Outcome: domain.OutcomeOK, CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, c := range calls {
		if err := repo.Record(ctx, c); err != nil {
			t.Fatalf("record %s: %v", c.ID, err)
		}
	}

	all, err := repo.List(ctx, domain.ToolCallFilter{TenantID: "tenant-a", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for _, c := range all {
		ids = append(ids, c.ID)
	}
	if diff := cmp.Diff([]string{"c3", "c2", "c1"}, ids); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}

	rejected := all[1]
	if len(rejected.Violations) != 1 || rejected.Violations[0].Code != domain.CodeMutuallyExclusive {
		t.Fatalf("violations not round-tripped: %+v", rejected.Violations)
	}
	ok := all[2]
	if string(ok.ParamsJSON) != `{"page":0}` || ok.Duration != 120*time.Millisecond || !ok.CreatedAt.Equal(base) {
		t.Fatalf("unexpected ok row %+v", ok)
	}

	filtered, err := repo.List(ctx, domain.ToolCallFilter{TenantID: "tenant-a", Operation: "search_units", Outcome: domain.OutcomeUpstreamError})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != "c3" || filtered[0].UpstreamStatus != 503 {
		t.Fatalf("unexpected filtered rows %+v", filtered)
	}

	after, err := repo.List(ctx, domain.ToolCallFilter{TenantID: "tenant-a", After: base.Add(30 * time.Second), Limit: 1})
	if err != nil {
		t.Fatalf("after list: %v", err)
	}
	if len(after) != 1 || after[0].ID != "c3" {
		t.Fatalf("unexpected rows after cursor %+v", after)
	}
}

func TestToolCallRepositoryRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := NewToolCallRepository(openTestDB(t))
	call := domain.ToolCall{ID: "dup", TenantID: "t", Operation: "get_unit", Outcome: domain.OutcomeOK}
	if err := repo.Record(ctx, call); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := repo.Record(ctx, call); err == nil {
		t.Fatal("expected duplicate id to fail")
	}
}
