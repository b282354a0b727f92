package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations lists embedded migration files in apply order (001 -> 002 -> ...).
func Migrations() ([]string, error) {
	files, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// Migrate applies every embedded migration. All statements are idempotent,
// so running it on each start is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	files, err := Migrations()
	if err != nil {
		return err
	}
	for _, file := range files {
		b, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err = pool.Exec(mctx, string(b))
		cancel()
		if err != nil {
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
		log.Info("migration applied", slog.String("file", file))
	}
	return nil
}
