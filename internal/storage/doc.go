// Package storage provides the durable state shared by every page context
// on one profile.
//
// It currently holds:
//   - The permanent ignore list (an array of error signatures)
//   - Pinned-notification snapshots, keyed per origin (opaque JSON blobs)
//
// Contexts learn about changes made elsewhere through Watch, which fires on
// any write to the underlying files (or, for the memory driver, on any save
// through the same Store value).
package storage
