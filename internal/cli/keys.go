package cli

import (
	"github.com/roach88/tablestore/internal/store"
	"github.com/roach88/tablestore/internal/value"
)

// parseKey converts a command-line key. Integer literals become Int keys
// unless asString is set.
func parseKey(s string, asString bool) value.Key {
	if asString {
		return value.String(s)
	}
	return value.ParseKey(s)
}

// keyPath renders table/key for messages.
func keyPath(table string, key value.Key) string {
	return table + "/" + value.FormatKey(key)
}

// reported returns handlers that leave error reporting to the command.
// The store would otherwise log unhandled errors as well.
func reported[T any](opts *RootOptions) store.Handlers[T] {
	return store.Handlers[T]{
		OnError: func(err error) {
			opts.Logger.Debug("operation failed", "error", err)
		},
	}
}
