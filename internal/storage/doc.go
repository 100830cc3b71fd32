// Package storage is the embedded, tenant-partitioned data layer.
//
// All state lives in an in-memory SQLite database. Every committed unit of
// work is followed by a full serialization of the database image, which is
// written through the configured snapshot store and counted by the backup
// manager. On open the image is loaded, migrated to the current schema and
// seeded with reference data.
package storage
