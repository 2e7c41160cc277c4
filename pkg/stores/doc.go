// Package stores provides the persistence layer for Gantry run records.
// It includes SQLite-based storage with WAL mode, connection pooling, and
// CRUD operations for runs, phase transitions, output bindings, and events.
package stores
