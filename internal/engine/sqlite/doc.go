// Package sqlite implements engine.Engine on SQLite.
//
// Layout:
//   - One database file per database name: <dir>/<escaped name>.db
//   - Schema version stored in PRAGMA user_version (0 = never upgraded)
//   - One SQL table per object store, named t_<table>, with an untyped
//     primary key column "id" and a BLOB column "record"
//
// # Keys
//
// The id column has no declared type, so keys keep their storage class:
// Int binds as INTEGER, Float as REAL, String as TEXT. SQLite orders numbers
// before text and compares numbers numerically, which matches
// value.CompareKeys. Text compares by UTF-8 bytes; this differs from UTF-16
// ordering only between supplementary-plane characters and U+E000-U+FFFF.
//
// # Database Configuration
//
//   - WAL mode: readers run concurrently with the single writer
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - Writer pool: one connection, BEGIN IMMEDIATE, so read-write
//     transactions are serialized in-process and never fail on lock upgrade
//   - Reader pool: deferred transactions for read-only work
package sqlite
