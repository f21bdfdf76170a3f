// Package bolt implements engine.Engine on bbolt.
//
// Layout:
//   - One file per database name: <dir>/<escaped name>.bolt
//   - Bucket "__meta" holds the schema version and the record compression flag
//   - One bucket per object store, named t:<table>
//
// Keys are encoded so bbolt's byte ordering matches value.CompareKeys for
// numbers and ASCII strings (see keys.go).
//
// bbolt allows one read-write transaction at a time per file. A goroutine
// must not hold a read-only transaction while it waits for a read-write one
// on the same database.
package bolt
