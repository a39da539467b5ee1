// Package stores keeps a local journal of provisioning runs in SQLite.
// Each run and every step result it produced is recorded, so the CLI can
// show history and the outcome of the last run on a host.
package stores
