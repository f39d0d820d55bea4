// Package sqlitetest opens throwaway in-memory sqlite databases carrying the
// same tables as the postgres migrations, for repository and service tests.
package sqlitetest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/grundyhq/grundy-backend/pkg/db/schema"
)

// Open returns an isolated in-memory database with the schema applied. The
// pool is pinned to one connection so every query sees the same memory db.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := schema.ApplySQLite(conn); err != nil {
		t.Fatalf("%v", err)
	}
	return conn
}
