package permission

import (
	"io"
	"strconv"
	"strings"

	sqlp "github.com/rqlite/sql"
)

// Paginate rewrites a single SELECT statement so its LIMIT and OFFSET are the
// server-chosen values, replacing any the caller supplied. Statements other
// than SELECT pass through untouched; so does anything that fails to parse,
// since the checker has already denied it by then.
func Paginate(sqlStr string, limit, offset int64) string {
	p := sqlp.NewParser(strings.NewReader(sqlStr))
	stmt, err := p.ParseStatement()
	if err != nil {
		return sqlStr
	}
	if _, err := p.ParseStatement(); err != io.EOF {
		// more than one statement, leave it alone
		return sqlStr
	}

	sel, ok := stmt.(*sqlp.SelectStatement)
	if !ok {
		return sqlStr
	}

	sel.LimitExpr = &sqlp.NumberLit{Value: strconv.FormatInt(limit, 10)}
	if offset > 0 {
		sel.OffsetExpr = &sqlp.NumberLit{Value: strconv.FormatInt(offset, 10)}
	} else {
		sel.OffsetExpr = nil
	}
	return sel.String()
}
