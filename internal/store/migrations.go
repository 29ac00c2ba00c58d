package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per alert episode, from notification until re-arm
		`CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			frame INTEGER NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 0,
			notify_error TEXT NOT NULL DEFAULT '',
			acknowledged_at DATETIME,
			rearmed_at DATETIME
		)`,

		// Audit trail of transitions within an episode
		`CREATE TABLE IF NOT EXISTS episode_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			episode_id TEXT NOT NULL REFERENCES episodes(id) ON DELETE CASCADE,
			kind TEXT NOT NULL CHECK(kind IN ('alerted', 'acknowledged', 'rearmed')),
			at DATETIME NOT NULL
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_episodes_started_at ON episodes(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_episode_events_episode_id ON episode_events(episode_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
