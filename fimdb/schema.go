package fimdb

const tableFileEntry = "file_entry"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS file_entry (
		path        TEXT PRIMARY KEY,
		mode        TEXT NOT NULL DEFAULT 'scheduled',
		size        INTEGER NOT NULL DEFAULT 0,
		perm        TEXT NOT NULL DEFAULT '',
		attributes  TEXT NOT NULL DEFAULT '',
		uid         TEXT NOT NULL DEFAULT '',
		gid         TEXT NOT NULL DEFAULT '',
		user_name   TEXT NOT NULL DEFAULT '',
		group_name  TEXT NOT NULL DEFAULT '',
		inode       INTEGER NOT NULL DEFAULT 0,
		dev         INTEGER NOT NULL DEFAULT 0,
		mtime       INTEGER NOT NULL DEFAULT 0,
		hash_md5    TEXT NOT NULL DEFAULT '',
		hash_sha1   TEXT NOT NULL DEFAULT '',
		hash_sha256 TEXT NOT NULL DEFAULT '',
		last_event  INTEGER NOT NULL DEFAULT 0,
		scanned     INTEGER NOT NULL DEFAULT 0,
		checksum    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS file_entry_scanned ON file_entry(scanned)`,
	`CREATE INDEX IF NOT EXISTS file_entry_inode ON file_entry(inode, dev)`,
}
