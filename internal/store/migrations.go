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

CREATE TABLE IF NOT EXISTS notifications (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL DEFAULT '',
	message        TEXT NOT NULL DEFAULT '',
	type           TEXT NOT NULL,
	category       TEXT NOT NULL DEFAULT '',
	priority       TEXT NOT NULL DEFAULT 'medium',
	created_at     DATETIME NOT NULL,
	read           INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
	read_at        DATETIME,
	link           TEXT NOT NULL DEFAULT '',
	source_version INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tombstones (
	id             TEXT PRIMARY KEY,
	source_version INTEGER NOT NULL,
	expires_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_notifications_read ON notifications(read);

CREATE INDEX IF NOT EXISTS idx_tombstones_expires_at ON tombstones(expires_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
