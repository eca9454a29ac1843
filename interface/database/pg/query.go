package pg

import (
	"fmt"
	"strings"
)

// whereClause accumulates the conditions of a query and their positional parameters
type whereClause struct {
	conditions []string
	params     []interface{}
}

// equal adds "column = $n"
func (w *whereClause) equal(column string, value interface{}) {
	w.params = append(w.params, value)
	w.conditions = append(w.conditions, fmt.Sprintf("%s = $%d", column, len(w.params)))
}

// match adds a condition on a user pattern:
// "*" matches any sequence, "?" any character, a "(?i)" suffix makes the match case-insensitive.
// A pattern without wildcard is an equality.
func (w *whereClause) match(column, pattern string) {
	insensitive := strings.HasSuffix(pattern, "(?i)")
	pattern = strings.TrimSuffix(pattern, "(?i)")
	like, wildcard := likePattern(pattern)
	switch {
	case insensitive:
		w.params = append(w.params, like)
		w.conditions = append(w.conditions, fmt.Sprintf("%s ILIKE $%d", column, len(w.params)))
	case wildcard:
		w.params = append(w.params, like)
		w.conditions = append(w.conditions, fmt.Sprintf("%s LIKE $%d", column, len(w.params)))
	default:
		w.equal(column, pattern)
	}
}

func (w whereClause) String() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conditions, " AND ")
}

// likePattern escapes the LIKE special characters of s and translates the wildcards
func likePattern(s string) (string, bool) {
	var sb strings.Builder
	wildcard := false
	for _, c := range s {
		switch c {
		case '\\', '%', '_':
			sb.WriteRune('\\')
			sb.WriteRune(c)
		case '*':
			sb.WriteRune('%')
			wildcard = true
		case '?':
			sb.WriteRune('_')
			wildcard = true
		default:
			sb.WriteRune(c)
		}
	}
	return sb.String(), wildcard
}

func pagination(page, limit int) string {
	switch {
	case limit <= 0:
		return ""
	case page > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, page*limit)
	default:
		return fmt.Sprintf(" LIMIT %d", limit)
	}
}
