package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS collections (
    kind                 TEXT PRIMARY KEY,
    payload              BLOB NOT NULL,
    saved_at             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_cursors (
    cursor_key           TEXT PRIMARY KEY,
    last_sync            TEXT NOT NULL
);
`
