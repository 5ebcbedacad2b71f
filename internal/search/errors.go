package search

import (
	"errors"
	"fmt"
)

// QueryParseError is raised for malformed structured query input: an
// unknown operator or field, a disallowed operator for a field, an
// ambiguous node, an unparseable value. It comes from untrusted
// input, so callers surface it as an invalid-input response rather
// than treating it as a program error.
type QueryParseError struct {
	Detail string
}

func (e *QueryParseError) Error() string {
	return e.Detail
}

func parseErrorf(format string, args ...any) *QueryParseError {
	return &QueryParseError{Detail: fmt.Sprintf(format, args...)}
}

// IsQueryParseError reports whether err is a QueryParseError.
func IsQueryParseError(err error) bool {
	var qpe *QueryParseError
	return errors.As(err, &qpe)
}

// ErrDatabasePagination is returned when sort-key pagination is asked
// to modify a relational query. This pagination strategy only exists
// for the search backend; reaching for it anywhere else is a
// programming error.
var ErrDatabasePagination = errors.New("sort-key pagination cannot modify a database query")
