// Package store is the client-side handle over a versioned, transactional
// object store (an engine.Engine).
//
// A Store hides schema versions from callers. Every operation runs the open
// protocol:
//
//  1. Probe the Engine for the database's stored version and adopt it
//  2. Bump the working version by one when a forced upgrade is requested
//  3. Open at the working version; the upgrade callback creates the table
//  4. If the table is still missing, close and retry once with a forced
//     upgrade; a second miss is fatal (ErrTableMissing inside a StorageError)
//  5. Any Engine open error is returned as a StorageError without retry
//
// Each operation then runs in its own Transaction, which owns its engine
// connection and releases it when the transaction settles.
//
// # Errors
//
// Engine failures surface as *StorageError. Construction fails with
// ErrUnsupportedEnvironment when the Engine capability is absent. The only
// retry is the single forced upgrade above.
package store
