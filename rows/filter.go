package rows

import (
	"fmt"
	"strings"

	"github.com/eclipticdb/ecliptic/datastore"
	"github.com/eclipticdb/ecliptic/fault"
)

// Filter is one conjunct of a row predicate.
type Filter struct {
	Column string `json:"column"`
	Op     string `json:"op"`
	Value  any    `json:"value,omitempty"`
}

var comparisonOps = map[string]string{
	"eq":   "=",
	"neq":  "!=",
	"lt":   "<",
	"lte":  "<=",
	"gt":   ">",
	"gte":  ">=",
	"like": "LIKE",
}

// buildWhere renders the filters as an AND-joined WHERE clause with bind
// arguments. An empty filter list renders as no clause at all.
func buildWhere(t datastore.Table, filters []Filter) (string, []any, *fault.Entry) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	parts := make([]string, 0, len(filters))
	var args []any
	for _, f := range filters {
		col, ok := t.Columns[f.Column]
		if !ok && f.Column != RowKey {
			return "", nil, fault.Input("rows.filter.column", "unknown filter column").
				WithParams(map[string]any{"column": f.Column})
		}

		ident := fmt.Sprintf("%q", f.Column)
		if f.Column == RowKey {
			ident = "_rowid_"
			col.DBType = datastore.TypeInteger
		}

		if op, ok := comparisonOps[f.Op]; ok {
			parts = append(parts, fmt.Sprintf("%s %s ?", ident, op))
			args = append(args, coerce(col, f.Value))
			continue
		}

		switch f.Op {
		case "in":
			vals, ok := f.Value.([]any)
			if !ok || len(vals) == 0 {
				return "", nil, fault.Input("rows.filter.in", "in filter requires a non-empty list")
			}
			parts = append(parts, fmt.Sprintf("%s IN (%s)", ident, placeholders(len(vals))))
			for _, v := range vals {
				args = append(args, coerce(col, v))
			}
		case "is_null":
			parts = append(parts, ident+" IS NULL")
		case "is_not_null":
			parts = append(parts, ident+" IS NOT NULL")
		default:
			return "", nil, fault.Input("rows.filter.op", "unknown filter operator").
				WithParams(map[string]any{"op": f.Op})
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}
