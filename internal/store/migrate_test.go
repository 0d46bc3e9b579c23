package store

import (
	"testing"

	config "example.com/socialfeed/internal/init"
)

func TestPgxMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/feed?sslmode=disable": "pgx5://u:p@db:5432/feed?sslmode=disable",
		"postgresql://db/feed":                        "pgx5://db/feed",
		"pgx5://db/feed":                              "pgx5://db/feed",
	}
	for in, want := range cases {
		if got := pgxMigrateURL(in); got != want {
			t.Fatalf("pgxMigrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSourceURL(t *testing.T) {
	cfg := &config.Config{MigrationsDir: "./migrations"}
	if got := sourceURL(cfg, "cassandra"); got != "file://migrations/cassandra" {
		t.Fatalf("unexpected source url %q", got)
	}
}

func TestMigrate_UnknownDriver(t *testing.T) {
	if err := Migrate(&config.Config{StoreDriver: "sqlite"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
