// Package value provides the sealed value model stored in tables.
//
// This package imports nothing internal. Every other internal package builds on
// it, so it stays the foundational layer.
//
// Key design constraints:
//   - Value is sealed: only Null, String, Int, Float, Bool, Array and Object implement it
//   - Key is the subset of Value usable as a primary key: String, Int, Float
//   - Keys order numbers before strings, strings by UTF-16 code units
//   - Clone never shares mutable memory with its argument
package value
