package serv

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/eclipticdb/ecliptic/controller"
)

// mcpMarshalJSON marshals data to JSON without HTML escaping.
// Characters like < and & stay literal instead of becoming Unicode escapes,
// which keeps tool output readable for LLM clients.
func mcpMarshalJSON(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encode adds a trailing newline; trim it to match MarshalIndent behavior
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// mcpServer binds one authenticated key to an MCP tool surface. Every tool
// call runs under this identity's grants.
type mcpServer struct {
	srv     *server.MCPServer
	service *Service
	id      *controller.AgentIdentity
}

func (s *Service) newMCPServer(id *controller.AgentIdentity) *mcpServer {
	// Claude Desktop may prefix tool names with "server_name:" when calling
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(func(ctx context.Context, _ any, req *mcp.CallToolRequest) {
		if idx := strings.LastIndex(req.Params.Name, ":"); idx != -1 {
			req.Params.Name = req.Params.Name[idx+1:]
		}
	})

	mcpSrv := server.NewMCPServer(
		"ecliptic",
		version,
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
	)

	ms := &mcpServer{srv: mcpSrv, service: s, id: id}
	ms.registerTools()
	return ms
}

// newMCPHTTPHandler serves the MCP endpoint over stateless streamable HTTP.
// The key travels in the x-ecliptic-key header on every request.
func (s *Service) newMCPHTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ferr := s.ctrl.ResolveKey(r.Context(), r.Header.Get(headerMCPKey))
		if ferr != nil {
			s.renderFault(w, r, ferr)
			return
		}
		ms := s.newMCPServer(id)
		httpServer := server.NewStreamableHTTPServer(ms.srv, server.WithStateLess(true))
		httpServer.ServeHTTP(w, r)
	})
}

// RunMCPStdio runs the MCP server over stdio for desktop clients. The key
// comes from the ECLIPTIC_MCP_KEY environment variable, falling back to the
// mcp.key config value.
func (s *Service) RunMCPStdio(ctx context.Context) error {
	if s.conf.MCP.Disable {
		s.log.Warn("MCP is disabled in configuration")
	}

	key := os.Getenv("ECLIPTIC_MCP_KEY")
	if key == "" {
		key = s.conf.MCP.Key
	}

	id, ferr := s.ctrl.ResolveKey(ctx, key)
	if ferr != nil {
		return ferr
	}
	return server.ServeStdio(s.newMCPServer(id).srv)
}
