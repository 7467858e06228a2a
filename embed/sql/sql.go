package sql

import _ "embed"

// Schema is the full SQLite schema, applied idempotently on open.
//
//go:embed schema.sql
var Schema string
