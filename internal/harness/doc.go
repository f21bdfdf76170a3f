// Package harness runs table-operation scenarios against a Store and
// records a deterministic trace of what happened.
//
// A scenario is a YAML file listing set/get/scan steps with optional
// expectations, plus assertions over the final database:
//
//	name: ann_then_bob
//	description: Replacing a record keeps one entry per key
//	steps:
//	  - op: set
//	    table: users
//	    key: 1
//	    value: {name: Ann}
//	  - op: get
//	    table: users
//	    key: 1
//	    expect:
//	      found: true
//	      value: {name: Ann}
//	assertions:
//	  - type: version
//	    version: 1
//
// YAML integers are Int keys, quoted strings are String keys.
//
// The trace interleaves operations with the schema upgrades they caused.
// It contains no timestamps or engine-specific text, so every Engine
// produces the same bytes for the same scenario and traces can be compared
// against golden files.
package harness
