package persist

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

// versionTable keeps the mapper's schema version apart from other tools
// sharing the database.
const versionTable = "nightfall_schema_version"

// migrate brings the world and visit tables up to date and returns the
// resulting schema version.
func migrate(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger) (int64, error) {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(schemaFS)
	goose.SetTableName(versionTable)
	if err := goose.SetDialect("postgres"); err != nil {
		return 0, fmt.Errorf("set dialect: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	before, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return before, fmt.Errorf("migrate schema: %w", err)
	}
	after, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return before, fmt.Errorf("schema version: %w", err)
	}
	if after != before {
		log.Info("資料庫結構已更新", zap.Int64("from", before), zap.Int64("to", after))
	}
	return after, nil
}
