package permission

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginateAddsLimit(t *testing.T) {
	out := Paginate(`SELECT title FROM notes`, 50, 0)
	assert.Contains(t, out, "LIMIT 50")
	assert.NotContains(t, out, "OFFSET")
}

func TestPaginateAddsOffset(t *testing.T) {
	out := Paginate(`SELECT title FROM notes`, 25, 100)
	assert.Contains(t, out, "LIMIT 25")
	assert.Contains(t, out, "OFFSET 100")
}

func TestPaginateReplacesCallerLimit(t *testing.T) {
	out := Paginate(`SELECT title FROM notes LIMIT 5000 OFFSET 9`, 50, 0)
	assert.Contains(t, out, "LIMIT 50")
	assert.False(t, strings.Contains(out, "5000"))
	assert.NotContains(t, out, "OFFSET")
}

func TestPaginateLeavesNonSelect(t *testing.T) {
	in := `UPDATE notes SET title = 'x'`
	assert.Equal(t, in, Paginate(in, 50, 0))

	in = `not sql at all`
	assert.Equal(t, in, Paginate(in, 50, 0))

	in = `SELECT 1; SELECT 2`
	assert.Equal(t, in, Paginate(in, 50, 0))
}
