// Package config provides environment-driven configuration for the
// settlement service: application settings, PostgreSQL connection factories
// for the supported drivers (pgx.Pool, sql.DB, sqlx.DB) with pre-configured
// pool tuning, and OpenTelemetry provider setup.
//
// This package is part of the shell (infrastructure) layer.
package config
