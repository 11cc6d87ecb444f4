package catalog

import "context"

// LogEntry is one audit record. Denied agent queries and schema changes land
// here.
type LogEntry struct {
	OrganizationID string `json:"organization_id,omitempty"`
	MCPKeyID       string `json:"mcp_key_id,omitempty"`
	Kind           string `json:"kind"`
	Message        string `json:"message"`
}

// Audit queues an entry for the background writer. Never blocks the request
// path: when the buffer is full the entry is dropped and counted against the
// process log instead.
func (s *Store) Audit(e LogEntry) {
	select {
	case s.logCh <- e:
	default:
		s.log.Warnw("audit buffer full, entry dropped", "kind", e.Kind)
	}
}

func (s *Store) writeLogs() {
	defer close(s.done)
	for e := range s.logCh {
		_, err := s.db.Exec(
			`INSERT INTO log (organization_id, mcp_key_id, kind, message, created_at) VALUES (?, ?, ?, ?, ?)`,
			nullable(e.OrganizationID), nullable(e.MCPKeyID), e.Kind, e.Message, nowStr())
		if err != nil {
			s.log.Errorw("audit write failed", "error", err)
		}
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ListLogs returns the newest limit entries for an organization.
func (s *Store) ListLogs(ctx context.Context, orgID string, limit int) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(organization_id, ''), COALESCE(mcp_key_id, ''), kind, message
		FROM log WHERE organization_id = ? ORDER BY id DESC LIMIT ?`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := []LogEntry{}
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.OrganizationID, &e.MCPKeyID, &e.Kind, &e.Message); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
