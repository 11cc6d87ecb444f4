package serv

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/eclipticdb/ecliptic/fault"
)

var mcpToolNames = []string{
	"datastore_list", "datastore_create", "datastore_rename",
	"datastore_drop", "table_list", "table_query",
}

// registerTools registers the agent tool surface. Every tool resolves
// against the key's grants; a missing grant comes back as a tool error, not
// a transport failure.
func (ms *mcpServer) registerTools() {
	ms.srv.AddTool(mcp.NewTool(
		"datastore_list",
		mcp.WithDescription("List the datastores this key can see. Returns id and name for each; "+
			"use the id with the other tools."),
		mcp.WithReadOnlyHintAnnotation(true),
	), ms.handleDatastoreList)

	ms.srv.AddTool(mcp.NewTool(
		"datastore_create",
		mcp.WithDescription("Create a new empty datastore. Requires the global datastore.create grant."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Display name for the new datastore, 1 to 64 characters"),
		),
	), ms.handleDatastoreCreate)

	ms.srv.AddTool(mcp.NewTool(
		"datastore_rename",
		mcp.WithDescription("Rename a datastore. The id never changes."),
		mcp.WithString("datastore",
			mcp.Required(),
			mcp.Description("Datastore id"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("New display name"),
		),
		mcp.WithIdempotentHintAnnotation(true),
	), ms.handleDatastoreRename)

	ms.srv.AddTool(mcp.NewTool(
		"datastore_drop",
		mcp.WithDescription("Permanently delete a datastore, its tables and all its data."),
		mcp.WithString("datastore",
			mcp.Required(),
			mcp.Description("Datastore id"),
		),
		mcp.WithDestructiveHintAnnotation(true),
	), ms.handleDatastoreDrop)

	ms.srv.AddTool(mcp.NewTool(
		"table_list",
		mcp.WithDescription("List the tables and columns visible to this key in a datastore. "+
			"Call this before table_query to learn the schema."),
		mcp.WithString("datastore",
			mcp.Required(),
			mcp.Description("Datastore id"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	), ms.handleTableList)

	ms.srv.AddTool(mcp.NewTool(
		"table_query",
		mcp.WithDescription("Run SQL against a datastore. Every statement is checked against this "+
			"key's grants before anything runs. SELECT results are paginated server-side; pass page "+
			"to fetch later pages. A schema change (CREATE TABLE, ALTER TABLE, DROP TABLE) must be "+
			"the only statement in the call."),
		mcp.WithString("datastore",
			mcp.Required(),
			mcp.Description("Datastore id"),
		),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("SQL to run. SELECT, INSERT, UPDATE, DELETE and table DDL are supported."),
		),
		mcp.WithNumber("page",
			mcp.Description("1-based page of SELECT results to return"),
		),
	), ms.handleTableQuery)
}

func (ms *mcpServer) toolError(ferr *fault.Entry) (*mcp.CallToolResult, error) {
	if ferr.ShouldLog {
		ms.service.log.Errorw("mcp: tool failed",
			"key", ms.id.Key.ID, "code", ferr.Code, "internal", ferr.Internal)
	}
	return mcp.NewToolResultError(ferr.Message(ms.service.conf.DefaultLocale)), nil
}

func (ms *mcpServer) toolJSON(v any) (*mcp.CallToolResult, error) {
	data, err := mcpMarshalJSON(v, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (ms *mcpServer) handleDatastoreList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, ferr := ms.service.ctrl.AgentListDatastores(ctx, ms.id)
	if ferr != nil {
		return ms.toolError(ferr)
	}
	return ms.toolJSON(map[string]any{"datastores": out})
}

func (ms *mcpServer) handleDatastoreCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	name, _ := args["name"].(string)
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	ds, ferr := ms.service.ctrl.AgentCreateDatastore(ctx, ms.id, name)
	if ferr != nil {
		return ms.toolError(ferr)
	}
	return ms.toolJSON(ds)
}

func (ms *mcpServer) handleDatastoreRename(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	dsID, _ := args["datastore"].(string)
	name, _ := args["name"].(string)
	if dsID == "" || name == "" {
		return mcp.NewToolResultError("datastore and name are required"), nil
	}

	if ferr := ms.service.ctrl.AgentRenameDatastore(ctx, ms.id, dsID, name); ferr != nil {
		return ms.toolError(ferr)
	}
	return ms.toolJSON(map[string]any{"renamed": dsID, "name": name})
}

func (ms *mcpServer) handleDatastoreDrop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	dsID, _ := args["datastore"].(string)
	if dsID == "" {
		return mcp.NewToolResultError("datastore is required"), nil
	}

	if ferr := ms.service.ctrl.AgentDropDatastore(ctx, ms.id, dsID); ferr != nil {
		return ms.toolError(ferr)
	}
	return ms.toolJSON(map[string]any{"dropped": dsID})
}

func (ms *mcpServer) handleTableList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	dsID, _ := args["datastore"].(string)
	if dsID == "" {
		return mcp.NewToolResultError("datastore is required"), nil
	}

	snap, ferr := ms.service.ctrl.AgentListTables(ctx, ms.id, dsID)
	if ferr != nil {
		return ms.toolError(ferr)
	}
	return ms.toolJSON(snap)
}

func (ms *mcpServer) handleTableQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	dsID, _ := args["datastore"].(string)
	sqlStr, _ := args["sql"].(string)
	if dsID == "" || sqlStr == "" {
		return mcp.NewToolResultError("datastore and sql are required"), nil
	}

	page := 1
	if p, ok := args["page"].(float64); ok && p >= 1 {
		page = int(p)
	}

	res, ferr := ms.service.ctrl.AgentQuery(ctx, ms.id, dsID, sqlStr, page, ms.service.conf.MCP.PageSize)
	if ferr != nil {
		return ms.toolError(ferr)
	}
	return ms.toolJSON(res)
}
