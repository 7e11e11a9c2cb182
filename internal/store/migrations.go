package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS image_cache (
	notification_id TEXT PRIMARY KEY,
	source_url      TEXT NOT NULL,
	path            TEXT NOT NULL,
	size_bytes      INTEGER NOT NULL DEFAULT 0,
	fetched_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS presented_alerts (
	notification_id TEXT PRIMARY KEY,
	title           TEXT NOT NULL DEFAULT '',
	presented_at    DATETIME NOT NULL
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_presented_alerts_presented_at ON presented_alerts(presented_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
