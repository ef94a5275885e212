package db

import (
	"strings"
	"testing"

	"expensetracker/pkg/config"
)

func TestDSN(t *testing.T) {
	cfg := config.DBConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "expenses"}
	if got := DSN(cfg); got != "postgres://u:p@db:5432/expenses?sslmode=disable" {
		t.Errorf("unexpected dsn %q", got)
	}

	cfg.SSLMode = "require"
	if got := DSN(cfg); !strings.HasSuffix(got, "sslmode=require") {
		t.Errorf("expected sslmode=require, got %q", got)
	}
}

func TestTruncateSQL(t *testing.T) {
	if got := truncateSQL(""); got != "unknown" {
		t.Errorf("expected unknown, got %q", got)
	}
	long := strings.Repeat("x", 250)
	got := truncateSQL(long)
	if len(got) != 203 || !strings.HasSuffix(got, "...") {
		t.Errorf("expected 200 chars + ellipsis, got len %d", len(got))
	}
}
