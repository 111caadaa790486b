// Package query defines the typed request filter, the predicate builder
// that turns it into parameterized SQL, and the shared error taxonomy.
package query

import (
	"strings"
	"time"
)

// DateLayout is the only accepted layout for filter dates.
const DateLayout = "2006-01-02"

// secondsPerDay-1: an end date is inclusive through 23:59:59.
const endOfDayOffset = 86399

// Filter is a normalized set of optional predicates over the post
// corpus. Zero-valued fields are ignored; set fields combine with AND.
// A zero Filter matches every post.
type Filter struct {
	Keyword   string // case-insensitive substring over title OR body
	Community string
	Author    string
	Domain    string
	StartDate string // YYYY-MM-DD, inclusive
	EndDate   string // YYYY-MM-DD, inclusive through end of day
}

// IsZero reports whether no predicate is set.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Predicate is a conjunctive boolean SQL fragment with positional
// placeholders and the matching ordered argument list.
type Predicate struct {
	Expr string
	Args []interface{}
}

// Predicate compiles the filter into a WHERE fragment. String
// comparisons are case-insensitive; the keyword term is a substring
// match against title OR body. An empty filter compiles to the
// tautology "1=1" so callers never interpolate an empty clause.
func (f Filter) Predicate() (Predicate, error) {
	var conds []string
	var args []interface{}

	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		conds = append(conds, "(LOWER(title) LIKE '%' || LOWER(?) || '%' OR LOWER(body) LIKE '%' || LOWER(?) || '%')")
		args = append(args, kw, kw)
	}
	if f.Community != "" {
		conds = append(conds, "LOWER(community) = LOWER(?)")
		args = append(args, f.Community)
	}
	if f.Author != "" {
		conds = append(conds, "LOWER(author) = LOWER(?)")
		args = append(args, f.Author)
	}
	if f.Domain != "" {
		conds = append(conds, "LOWER(domain) = LOWER(?)")
		args = append(args, f.Domain)
	}
	if f.StartDate != "" {
		t, err := time.Parse(DateLayout, f.StartDate)
		if err != nil {
			return Predicate{}, Validationf("start_date", "%q does not match YYYY-MM-DD", f.StartDate)
		}
		conds = append(conds, "created_utc >= ?")
		args = append(args, t.UTC().Unix())
	}
	if f.EndDate != "" {
		t, err := time.Parse(DateLayout, f.EndDate)
		if err != nil {
			return Predicate{}, Validationf("end_date", "%q does not match YYYY-MM-DD", f.EndDate)
		}
		conds = append(conds, "created_utc <= ?")
		args = append(args, t.UTC().Unix()+endOfDayOffset)
	}

	if len(conds) == 0 {
		return Predicate{Expr: "1=1"}, nil
	}
	return Predicate{Expr: strings.Join(conds, " AND "), Args: args}, nil
}
