package serv

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

const (
	healthRoute     = "/health"
	routeDatastores = "/api/v1/datastores"
	routeKeys       = "/api/v1/keys"
	routeMappings   = "/api/v1/mappings"
	routePermsMeta  = "/api/v1/permissions/meta"
	routeLogs       = "/api/v1/logs"
	routeMCP        = "/api/v1/mcp"
)

func (s *Service) routesHandler(r chi.Router) http.Handler {
	r.Get(healthRoute, s.healthCheckHandler().ServeHTTP)

	if !s.conf.MCP.Disable {
		mcpHandler := s.newMCPHTTPHandler()
		r.Handle(routeMCP, mcpHandler)
		r.Handle(routeMCP+"/*", mcpHandler)
	}

	if !s.conf.MCP.Only {
		s.apiRoutes(r)
	}

	var handler http.Handler = r
	if len(s.conf.AllowedOrigins) != 0 {
		allowedHeaders := s.conf.AllowedHeaders
		if len(allowedHeaders) == 0 {
			allowedHeaders = []string{
				"Content-Type", headerDevOrg, headerMCPKey, headerLocale,
			}
		}
		c := cors.New(cors.Options{
			AllowedOrigins:   s.conf.AllowedOrigins,
			AllowedHeaders:   allowedHeaders,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		})
		handler = c.Handler(handler)
	}
	return setServerHeader(handler)
}

func (s *Service) apiRoutes(r chi.Router) {
	r.Route(routeDatastores, func(r chi.Router) {
		r.Get("/", s.withOrg(s.listDatastoresHandler))
		r.Post("/", s.withOrg(s.createDatastoreHandler))

		r.Route("/{datastore}", func(r chi.Router) {
			r.Get("/", s.withOrg(s.getDatastoreHandler))
			r.Patch("/", s.withOrg(s.renameDatastoreHandler))
			r.Delete("/", s.withOrg(s.dropDatastoreHandler))
			r.Post("/schema", s.withOrg(s.schemaChangeHandler))

			r.Route("/tables/{table}", func(r chi.Router) {
				r.Get("/rows", s.withOrg(s.getRowsHandler))
				r.Post("/rows", s.withOrg(s.insertRowsHandler))
				r.Patch("/rows", s.withOrg(s.updateRowsHandler))
				r.Delete("/rows", s.withOrg(s.deleteRowsHandler))
			})
		})
	})

	r.Route(routeKeys, func(r chi.Router) {
		r.Get("/", s.withOrg(s.listKeysHandler))
		r.Post("/", s.withOrg(s.createKeyHandler))
		r.Delete("/{key}", s.withOrg(s.deleteKeyHandler))
		r.Get("/{key}/mappings", s.withOrg(s.listMappingsHandler))
		r.Post("/{key}/mappings", s.withOrg(s.addMappingHandler))
	})

	r.Delete(routeMappings+"/{mapping}", s.withOrg(s.deleteMappingHandler))
	r.Get(routePermsMeta, s.withOrg(s.permissionMetaHandler))
	r.Get(routeLogs, s.withOrg(s.listLogsHandler))
}
