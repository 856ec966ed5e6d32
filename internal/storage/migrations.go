package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
			CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY,
				applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE IF NOT EXISTS products (
				source TEXT NOT NULL,
				source_product_id TEXT NOT NULL,
				title TEXT,
				url TEXT,
				analysis_status TEXT NOT NULL DEFAULT 'PENDING',
				review_count INTEGER NOT NULL DEFAULT 0,
				registered_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (source, source_product_id)
			);

			CREATE INDEX IF NOT EXISTS idx_products_status ON products(analysis_status);
		`,
	},
	{
		Version: 2,
		Name:    "add_reviews_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS reviews (
				review_id INTEGER PRIMARY KEY AUTOINCREMENT,
				source TEXT NOT NULL,
				source_product_id TEXT NOT NULL,
				reviewer TEXT,
				rating REAL,
				content TEXT NOT NULL,
				review_at TIMESTAMP NOT NULL,
				collected_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (source, source_product_id)
					REFERENCES products(source, source_product_id) ON DELETE CASCADE
			);

			CREATE INDEX IF NOT EXISTS idx_reviews_product ON reviews(source, source_product_id);
			CREATE INDEX IF NOT EXISTS idx_reviews_dedup ON reviews(source, source_product_id, reviewer, review_at);
		`,
	},
	{
		Version: 3,
		Name:    "add_analysis_jobs",
		SQL: `
			CREATE TABLE IF NOT EXISTS analysis_jobs (
				id TEXT PRIMARY KEY,
				source TEXT NOT NULL,
				source_product_id TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'PENDING',
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX IF NOT EXISTS idx_analysis_jobs_product
				ON analysis_jobs(source, source_product_id, created_at DESC);
		`,
	},
	{
		Version: 4,
		Name:    "add_analysis_results",
		SQL: `
			CREATE TABLE IF NOT EXISTS analysis_result (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				job_id TEXT NOT NULL UNIQUE REFERENCES analysis_jobs(id),
				total_reviews INTEGER NOT NULL DEFAULT 0,
				sentiment_json TEXT,
				aspects_json TEXT,
				keywords_json TEXT,
				issues_json TEXT,
				trend_json TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE IF NOT EXISTS insight_result (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				job_id TEXT NOT NULL UNIQUE REFERENCES analysis_jobs(id),
				summary TEXT NOT NULL,
				insights_json TEXT,
				metadata_json TEXT,
				evidence_ids_json TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
		`,
	},
}

// RunMigrations applies all pending migrations to the database
func RunMigrations(db *sql.DB) error {
	// Ensure schema_version table exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Apply pending migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		slog.Info("applying migration", "version", migration.Version, "name", migration.Name)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
