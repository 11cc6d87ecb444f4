package fault

import "testing"

func TestMessageFallback(t *testing.T) {
	e := Input("row.update.filters", "update requires at least one filter").
		WithExternal("de", "Update erfordert mindestens einen Filter")

	if got := e.Message("de"); got != "Update erfordert mindestens einen Filter" {
		t.Errorf("de message = %q", got)
	}
	if got := e.Message("fr"); got != "update requires at least one filter" {
		t.Errorf("fr fallback = %q", got)
	}

	bare := &Entry{Code: "some.code"}
	if got := bare.Message("en"); got != "some.code" {
		t.Errorf("bare fallback = %q", got)
	}
}

func TestBuilderStatusAndLogPolicy(t *testing.T) {
	cases := []struct {
		entry     *Entry
		status    int
		shouldLog bool
	}{
		{Input("a", "x"), 400, false},
		{NotFound("b", "x"), 404, false},
		{Conflict("c", "x"), 409, false},
		{Denied("d", "x"), 403, false},
		{Engine("e", nil), 500, true},
		{Internal("f", nil), 500, true},
	}
	for _, c := range cases {
		if c.entry.Status != c.status {
			t.Errorf("%s: status = %d, want %d", c.entry.Code, c.entry.Status, c.status)
		}
		if c.entry.ShouldLog != c.shouldLog {
			t.Errorf("%s: shouldLog = %v, want %v", c.entry.Code, c.entry.ShouldLog, c.shouldLog)
		}
	}
}

func TestEngineKeepsCause(t *testing.T) {
	e := Engine("datastore.ddl", errTest("no such table: users"))
	if e.Internal != "no such table: users" {
		t.Errorf("internal = %q", e.Internal)
	}
	if got := e.Message("en"); got != "a database operation failed" {
		t.Errorf("external = %q", got)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
