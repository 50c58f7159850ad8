package ledger

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/rs/zerolog"
)

const (
	testPort     = 15433
	testDB       = "resubmittest"
	testUser     = "postgres"
	testPassword = "postgres"
)

// Starting Postgres downloads binaries, so it is opt-in
func startPostgres(t *testing.T) string {
	t.Helper()
	if os.Getenv("RESUBMIT_PG_TESTS") != "1" {
		t.Skip("set RESUBMIT_PG_TESTS=1 to run Postgres tests")
	}

	pg := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(uint32(testPort)).
			Database(testDB).
			Username(testUser).
			Password(testPassword).
			Version(embeddedpostgres.V16).
			RuntimePath(t.TempDir()).
			StartTimeout(30 * time.Second),
	)
	if err := pg.Start(); err != nil {
		t.Fatalf("failed to start embedded postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := pg.Stop(); err != nil {
			t.Logf("failed to stop embedded postgres: %v", err)
		}
	})

	return fmt.Sprintf("postgresql://%s:%s@localhost:%d/%s?sslmode=disable",
		testUser, testPassword, testPort, testDB)
}

func TestLedger_Postgres(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	exerciseLedger(t, func() Store {
		s, err := NewPostgresStore(ctx, dsn, zerolog.Nop())
		if err != nil {
			t.Fatalf("NewPostgresStore: %v", err)
		}
		return s
	})

	// The table rejects rewrites
	s, err := NewPostgresStore(ctx, dsn, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()
	if _, err := s.pool.Exec(ctx, "UPDATE resubmit.decisions SET eligibility = 'eligible'"); err == nil {
		t.Error("UPDATE on decision log succeeded")
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM resubmit.decisions"); err == nil {
		t.Error("DELETE on decision log succeeded")
	}
}
