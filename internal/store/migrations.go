package store

type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered schema history. Append only.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create failover state",
		SQL: `
			CREATE TABLE failover_state (
				id          INTEGER PRIMARY KEY CHECK (id = 1),
				snapshot    TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			);

			CREATE TABLE failover_blocks (
				slot_kind     TEXT NOT NULL,
				slot_id       TEXT NOT NULL,
				blocked_until TEXT NOT NULL,
				failure_count INTEGER NOT NULL DEFAULT 0,
				permanent     INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (slot_kind, slot_id)
			);
		`,
	},
	{
		Version: 2,
		Name:    "create thread status",
		SQL: `
			CREATE TABLE threads (
				thread_id   TEXT PRIMARY KEY,
				active      INTEGER NOT NULL DEFAULT 0,
				state       TEXT NOT NULL DEFAULT '',
				model       TEXT NOT NULL DEFAULT '',
				attempts    INTEGER NOT NULL DEFAULT 0,
				turn_id     TEXT NOT NULL DEFAULT '',
				updated_at  TEXT NOT NULL
			);

			CREATE INDEX idx_threads_active ON threads (active);
		`,
	},
}
