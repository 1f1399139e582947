package gormsqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildDSNIncludesPerConnectionPragmas(t *testing.T) {
	reader := buildDSN("./db.sqlite", true)
	writer := buildDSN("./db.sqlite", false)

	checks := []string{
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_pragma=trusted_schema(OFF)",
	}
	for _, c := range checks {
		if !strings.Contains(reader, c) {
			t.Fatalf("reader dsn missing %q: %s", c, reader)
		}
		if !strings.Contains(writer, c) {
			t.Fatalf("writer dsn missing %q: %s", c, writer)
		}
	}

	if !strings.Contains(reader, "_pragma=query_only(1)") {
		t.Fatalf("reader dsn missing query_only(1): %s", reader)
	}
	if !strings.Contains(writer, "_pragma=query_only(0)") {
		t.Fatalf("writer dsn missing query_only(0): %s", writer)
	}
	if !strings.HasPrefix(reader, "file:./db.sqlite?") {
		t.Fatalf("unexpected dsn prefix: %s", reader)
	}
	if got := buildDSN("file:x.sqlite?cache=shared", false); !strings.HasPrefix(got, "file:x.sqlite?cache=shared&_pragma=") {
		t.Fatalf("existing query not preserved: %s", got)
	}
}

func TestOpenReaderIsQueryOnly(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "bridge.sqlite"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.WriteTX(ctx, func(tx *Tx) error {
		return tx.Exec("CREATE TABLE probe (id INTEGER PRIMARY KEY)").Error
	}); err != nil {
		t.Fatalf("writer create: %v", err)
	}
	if err := db.ReadTX(ctx, func(tx *Tx) error {
		return tx.Exec("INSERT INTO probe (id) VALUES (1)").Error
	}); err == nil {
		t.Fatal("reader should refuse writes")
	}
}
