package serv

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eclipticdb/ecliptic/catalog"
	"github.com/eclipticdb/ecliptic/datastore"
	"github.com/eclipticdb/ecliptic/fault"
	"github.com/eclipticdb/ecliptic/rows"
	"github.com/eclipticdb/ecliptic/schema"
)

type datastoreResponse struct {
	*catalog.Datastore
	Schema *datastore.Snapshot `json:"schema,omitempty"`
}

func (s *Service) listDatastoresHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())
	out, ferr := s.ctrl.ListDatastores(r.Context(), org.ID)
	if ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	s.renderJSON(w, http.StatusOK, map[string]any{"datastores": out})
}

func (s *Service) createDatastoreHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())
	var req struct {
		Name string `json:"name"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	ds, ferr := s.ctrl.CreateDatastore(r.Context(), org.ID, req.Name)
	if ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	s.renderJSON(w, http.StatusCreated, datastoreResponse{Datastore: ds})
}

func (s *Service) getDatastoreHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())
	ds, snap, ferr := s.ctrl.GetDatastore(r.Context(), org.ID, chi.URLParam(r, "datastore"))
	if ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	s.renderJSON(w, http.StatusOK, datastoreResponse{Datastore: ds, Schema: snap})
}

func (s *Service) renameDatastoreHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())
	var req struct {
		Name string `json:"name"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	if ferr := s.ctrl.RenameDatastore(r.Context(), org.ID, chi.URLParam(r, "datastore"), req.Name); ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) dropDatastoreHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())
	if ferr := s.ctrl.DropDatastore(r.Context(), org.ID, chi.URLParam(r, "datastore")); ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) schemaChangeHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.renderFault(w, r, fault.Input("api.body", "invalid request body"))
		return
	}
	op, ferr := schema.ParseOp(raw)
	if ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	snap, ferr := s.ctrl.ApplySchemaChange(r.Context(), org.ID, chi.URLParam(r, "datastore"), op)
	if ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	s.renderJSON(w, http.StatusOK, map[string]any{"schema": snap})
}

func (s *Service) getRowsHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())

	q := r.URL.Query()
	var sq rows.SelectQuery
	sq.Page, _ = strconv.Atoi(q.Get("page"))
	sq.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	sq.Offset, _ = strconv.Atoi(q.Get("offset"))
	if c := q.Get("columns"); c != "" {
		sq.Columns = strings.Split(c, ",")
	}
	if f := q.Get("filters"); f != "" {
		if err := json.Unmarshal([]byte(f), &sq.Filters); err != nil {
			s.renderFault(w, r, fault.Input("rows.filters", "invalid filters parameter"))
			return
		}
	}
	if so := q.Get("sort"); so != "" {
		if err := json.Unmarshal([]byte(so), &sq.Sort); err != nil {
			s.renderFault(w, r, fault.Input("rows.sort", "invalid sort parameter"))
			return
		}
	}

	out, hasMore, ferr := s.ctrl.GetTableData(r.Context(), org.ID,
		chi.URLParam(r, "datastore"), chi.URLParam(r, "table"), sq)
	if ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	pageSize, offset := sq.Window()
	s.renderJSON(w, http.StatusOK, map[string]any{
		"rows": out,
		"pagination": map[string]any{
			"page_size": pageSize,
			"offset":    offset,
			"has_more":  hasMore,
		},
	})
}

func (s *Service) insertRowsHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())
	var req struct {
		Rows []map[string]any `json:"rows"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	inserted, ferr := s.ctrl.InsertRows(r.Context(), org.ID,
		chi.URLParam(r, "datastore"), chi.URLParam(r, "table"), req.Rows)
	if ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	s.renderJSON(w, http.StatusCreated, map[string]any{"rows": inserted})
}

func (s *Service) updateRowsHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())
	var req struct {
		Set     map[string]any `json:"set"`
		Filters []rows.Filter  `json:"filters"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	out, ferr := s.ctrl.UpdateRows(r.Context(), org.ID,
		chi.URLParam(r, "datastore"), chi.URLParam(r, "table"), req.Set, req.Filters)
	if ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	s.renderJSON(w, http.StatusOK, map[string]any{"updated": len(out), "rows": out})
}

func (s *Service) deleteRowsHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())
	var req struct {
		Keys []int64 `json:"keys"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	n, ferr := s.ctrl.DeleteRows(r.Context(), org.ID,
		chi.URLParam(r, "datastore"), chi.URLParam(r, "table"), req.Keys)
	if ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	s.renderJSON(w, http.StatusOK, map[string]any{"deleted": n})
}
