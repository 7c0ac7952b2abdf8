package repository

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect selects placeholder style and duplicate-key decoding.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Rebind rewrites `?` placeholders into `$1, $2, ...` for Postgres. Queries
// in this package never contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// uniqueViolation reports whether err is a duplicate-key error and, if so,
// the constraint or message text naming the offending column.
func uniqueViolation(err error) (string, bool) {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		// "Duplicate entry 'v' for key 'users.uq_users_username'": the entry
		// value is user input, only the key name is trusted.
		msg := myErr.Message
		if i := strings.LastIndex(msg, "for key"); i >= 0 {
			msg = msg[i:]
		}
		return msg, true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
		strings.Contains(liteErr.Error(), "UNIQUE") {
		return liteErr.Error(), true
	}
	return "", false
}

// mapUniqueViolation translates a duplicate-key error into the matching
// sentinel; other errors are returned unchanged.
func mapUniqueViolation(err error) error {
	detail, ok := uniqueViolation(err)
	if !ok {
		return err
	}
	detail = strings.ToLower(detail)
	switch {
	case strings.Contains(detail, "username"):
		return ErrUsernameExists
	case strings.Contains(detail, "email"):
		return ErrEmailExists
	case strings.Contains(detail, "nickname"):
		return ErrNicknameExists
	default:
		return ErrConflict
	}
}
