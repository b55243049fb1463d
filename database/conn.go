/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

var (
	globalDB   *bun.DB
	globalDBMu sync.RWMutex
)

// GetDB returns the global Bun database instance, or nil before InitDB.
func GetDB() *bun.DB {
	globalDBMu.RLock()
	defer globalDBMu.RUnlock()
	return globalDB
}

// InitDB opens the database described by cfg, installs it as the global
// instance and records cfg as the global configuration.
func InitDB(ctx context.Context, cfg *Config) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	db, err := Open(ctx, &cfg.ConnectionConfig, GetLogger())
	if err != nil {
		return nil, err
	}
	SetConfig(cfg)
	globalDBMu.Lock()
	globalDB = db
	globalDBMu.Unlock()
	return db, nil
}

// CloseDB closes the global database connection.
func CloseDB() error {
	globalDBMu.Lock()
	defer globalDBMu.Unlock()
	if globalDB == nil {
		return nil
	}
	err := globalDB.Close()
	globalDB = nil
	return err
}

// Open creates a Bun database for cfg, configures its pool and query hooks,
// and verifies the connection with a ping.
func Open(ctx context.Context, cfg *ConnectionConfig, logger Logger) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}

	var sqlDB *sql.DB
	var db *bun.DB
	var err error
	switch cfg.Type {
	case "mysql":
		sqlDB, db, err = createMySQLConnection(cfg)
	case "postgres", "postgresql":
		sqlDB, db, err = createPostgreSQLConnection(cfg)
	case "sqlite", "sqlite3":
		sqlDB, db, err = createSQLiteConnection(cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s, supported types: [mysql postgres sqlite]", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	configureConnectionPool(sqlDB, cfg)

	if cfg.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if cfg.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(cfg.SlowQueryTime, logger))
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctxTimeout); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database connection test failed: %w", err)
	}

	if logger != nil {
		logger.Info("Database connected successfully", "type", cfg.Type, "host", cfg.Host, "dbname", cfg.DBName)
	}
	return db, nil
}

func createMySQLConnection(cfg *ConnectionConfig) (*sql.DB, *bun.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%s&readTimeout=%s&writeTimeout=%s",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.ConnectTimeout,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
	)

	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, bun.NewDB(sqlDB, mysqldialect.New()), nil
}

func createPostgreSQLConnection(cfg *ConnectionConfig) (*sql.DB, *bun.DB, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		sslMode,
		int(cfg.ConnectTimeout.Seconds()),
	)

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, bun.NewDB(sqlDB, pgdialect.New()), nil
}

func createSQLiteConnection(cfg *ConnectionConfig) (*sql.DB, *bun.DB, error) {
	sqlDB, err := sql.Open(sqliteshim.ShimName, sqliteDSN(cfg.DBName))
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, bun.NewDB(sqlDB, sqlitedialect.New()), nil
}

// sqliteDSN maps a database name to a file DSN. In-memory and file: URIs are
// passed through unchanged.
func sqliteDSN(name string) string {
	switch {
	case name == "" || name == ":memory:":
		return "file::memory:?cache=shared"
	case strings.HasPrefix(name, "file:"), strings.HasSuffix(name, ".db"):
		return name
	default:
		return fmt.Sprintf("%s.db", name)
	}
}

func configureConnectionPool(sqlDB *sql.DB, cfg *ConnectionConfig) {
	if sqlDB == nil {
		return
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}
