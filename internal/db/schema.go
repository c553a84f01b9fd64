package db

// migrations are applied in order; the index plus one is stored in PRAGMA user_version.
// Append new migrations, never edit applied ones.
var migrations = []string{
	// 1: persistent tier behind the in-memory lookup cache
	`
CREATE TABLE IF NOT EXISTS response_cache (
  cache_key TEXT PRIMARY KEY,
  channel TEXT NOT NULL,
  payload BLOB NOT NULL,
  fetched_at INTEGER NOT NULL,
  ttl_seconds INTEGER NOT NULL,
  expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_response_cache_expires ON response_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_response_cache_channel ON response_cache(channel);
`,
}
