package migrate

import (
	"errors"
	"os"
	"testing"
)

func TestRun_EmptyDSN(t *testing.T) {
	for _, dsn := range []string{"", "   "} {
		if err := Run(dsn, "up"); !errors.Is(err, ErrNoDSN) {
			t.Errorf("Run(%q) err = %v, want ErrNoDSN", dsn, err)
		}
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, direction := range []string{"", "invalid", "UP", "Up", "both"} {
		t.Run(direction, func(t *testing.T) {
			if err := Run("postgres://localhost/test", direction); err == nil {
				t.Errorf("Run with direction %q should return error", direction)
			}
		})
	}
}

func TestRun_InvalidDSN(t *testing.T) {
	for _, dsn := range []string{"invalid-dsn", "://localhost/test", "postgres://localhost with spaces/test"} {
		if err := Run(dsn, "up"); err == nil {
			t.Errorf("Run with invalid DSN %q should return error", dsn)
		}
	}
}

func TestRun_UpIsIdempotent(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	if err := Run(dsn, "up"); err != nil {
		t.Fatalf("first up: %v", err)
	}
	if err := Run(dsn, "up"); err != nil {
		t.Fatalf("second up should be a no-op: %v", err)
	}
	v, dirty, err := Version(dsn)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v < 2 || dirty {
		t.Errorf("Version = %d dirty=%v, want >= 2 clean", v, dirty)
	}
}
