package migrate

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("create table a(id text); insert into a values ('x;y'); ")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.Contains(stmts[1], "'x;y'") {
		t.Fatalf("semicolon inside a string literal must not split: %q", stmts[1])
	}
}

func TestSplitStatementsKeepsTrailingFragment(t *testing.T) {
	stmts := splitStatements("select 1")
	if len(stmts) != 1 || strings.TrimSpace(stmts[0]) != "select 1" {
		t.Fatalf("unexpected statements: %q", stmts)
	}
}

func TestCollectSQLOrdersLexically(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.up.sql", "0001_a.up.sql", "0001_a.down.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("select 1;"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	files, err := collectSQL(dir, ".up.sql")
	if err != nil {
		t.Fatalf("collectSQL: %v", err)
	}
	if len(files) != 2 || files[0].Base != "0001_a.up.sql" || files[1].Base != "0002_b.up.sql" {
		t.Fatalf("unexpected files: %+v", files)
	}
}

func TestCollectSQLMissingDir(t *testing.T) {
	files, err := collectSQL(filepath.Join(t.TempDir(), "nope"), ".up.sql")
	if err != nil || files != nil {
		t.Fatalf("missing dir must be quiet: files=%v err=%v", files, err)
	}
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	writeFile("0001_init.up.sql", "create table t(id text);")
	writeFile("0002_more.up.sql", "alter table t add column v text;")

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`create table if not exists schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.up.sql"))

	// Only the second file is pending.
	mock.ExpectBegin()
	mock.ExpectExec(`alter table t add column v text`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta(`insert into schema_migrations(name, applied_at)`)).
		WithArgs("0002_more.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewManager(db, dir).Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDownRequiresMatchingFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "0001_init.up.sql"), []byte("create table t(id text);"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`create table if not exists schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name from schema_migrations order by applied_at asc`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.up.sql"))

	err = NewManager(db, dir).Down(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing down migration") {
		t.Fatalf("expected a missing-down error, got %v", err)
	}
}

func TestWithTableOverride(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`create table if not exists custom_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name from custom_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	m := NewManager(db, "", WithTable("custom_migrations"))
	if err := m.Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
