package device

import (
	"os"
	"testing"
)

func TestPostgres(t *testing.T) {
	if os.Getenv("PG_HOST") == "" {
		t.Skip("PG_HOST not set; skipping postgres device test")
	}

	d, err := OpenPostgresEnv("device test", 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer d.Close()

	if err := d.DropTable(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.EnsureTable(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testDevice(t, d)
}
