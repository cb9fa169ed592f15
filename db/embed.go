// Package db provides embedded database schema and seed files.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// Seed contains the fixed sample rows loaded by cmd/seed-db and reused by
// the integration test suite.
//
//go:embed seed/seed.sql
var Seed string
