// Package migrations generates and loads the SQL migration files that feed
// the migrate package. Each .sql file is one migration: the file name
// (without extension) is the migration ID, and an optional "-- depends:"
// header names the migrations it depends on. Tenant and shared migrations
// live in separate directories and load into separate graphs.
package migrations
