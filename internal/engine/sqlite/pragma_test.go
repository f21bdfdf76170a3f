package sqlite

import (
	"database/sql"
	"fmt"
)

// verifyPragma checks that a pragma is set to the expected value.
func verifyPragma(db *sql.DB, name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
