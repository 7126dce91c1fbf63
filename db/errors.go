package db

import (
	"strings"

	"github.com/teranos/exemplar/errors"
)

// ErrDatabaseClosed marks work attempted after the usage database was closed.
var ErrDatabaseClosed = errors.New("database is closed")

// closedMessage is what database/sql reports for a closed *sql.DB.
const closedMessage = "database is closed"

// IsDatabaseClosed reports whether err comes from a closed database, either
// marked with ErrDatabaseClosed or returned unwrapped by database/sql.
func IsDatabaseClosed(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrDatabaseClosed):
		return true
	default:
		return strings.Contains(err.Error(), closedMessage)
	}
}
