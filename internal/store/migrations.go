package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Invocations table - the durable work queue
		`CREATE TABLE IF NOT EXISTS invocations (
			id TEXT PRIMARY KEY,
			plugin_name TEXT NOT NULL,
			action TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			config TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL CHECK(status IN ('pending', 'running', 'completed', 'failed')),
			attempt INTEGER NOT NULL DEFAULT 0,
			not_before DATETIME,
			last_error TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Results table - one row per finished invocation
		`CREATE TABLE IF NOT EXISTS results (
			invocation_id TEXT PRIMARY KEY REFERENCES invocations(id) ON DELETE CASCADE,
			success INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			data TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			finished_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Indexes for queue scans
		`CREATE INDEX IF NOT EXISTS idx_invocations_status ON invocations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_invocations_status_created ON invocations(status, created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
