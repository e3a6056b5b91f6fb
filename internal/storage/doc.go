// Package storage is the parent of the engine's on-disk storage
// components: badgerkv (the ordered embedded KV engine backing every
// document, index, and log write) and snapshotenc (authenticated
// encryption for badgerkv snapshot backups at rest).
package storage
