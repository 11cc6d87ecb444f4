package serv

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eclipticdb/ecliptic/fault"
	"github.com/eclipticdb/ecliptic/permission"
)

func (s *Service) listKeysHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())
	ks, ferr := s.ctrl.ListMCPKeys(r.Context(), org.ID)
	if ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	s.renderJSON(w, http.StatusOK, map[string]any{"keys": ks})
}

func (s *Service) createKeyHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())
	var req struct {
		Name string `json:"name"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	k, ferr := s.ctrl.CreateMCPKey(r.Context(), org.ID, req.Name)
	if ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	s.renderJSON(w, http.StatusCreated, k)
}

func (s *Service) deleteKeyHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())
	if ferr := s.ctrl.DeleteMCPKey(r.Context(), org.ID, chi.URLParam(r, "key")); ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) listMappingsHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())
	ms, ferr := s.ctrl.ListMappings(r.Context(), org.ID, chi.URLParam(r, "key"))
	if ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	s.renderJSON(w, http.StatusOK, map[string]any{"mappings": ms})
}

func (s *Service) addMappingHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())
	var req struct {
		Target string `json:"target"`
		Action string `json:"action"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	m, ferr := s.ctrl.AddMapping(r.Context(), org.ID, chi.URLParam(r, "key"),
		req.Target, permission.Action(req.Action))
	if ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	s.renderJSON(w, http.StatusCreated, m)
}

func (s *Service) deleteMappingHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())
	if ferr := s.ctrl.DeleteMapping(r.Context(), org.ID, chi.URLParam(r, "mapping")); ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) permissionMetaHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())
	meta, ferr := s.ctrl.GetPermissionMeta(r.Context(), org.ID)
	if ferr != nil {
		s.renderFault(w, r, ferr)
		return
	}
	s.renderJSON(w, http.StatusOK, meta)
}

func (s *Service) listLogsHandler(w http.ResponseWriter, r *http.Request) {
	org := orgFrom(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	logs, err := s.cat.ListLogs(r.Context(), org.ID, limit)
	if err != nil {
		s.renderFault(w, r, fault.Engine("logs.list", err))
		return
	}
	s.renderJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
