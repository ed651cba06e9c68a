package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/projdeck/internal/catalog"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Catalog *catalog.ViewModel
	Version string
}

// NewMCPServer creates an MCP server with all projdeck tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"projdeck",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("projdeck: local catalog of software projects with folder, editor and run-script launchers."),
		server.WithRecovery(),
	)

	idArg := mcp.WithNumber("id", mcp.Description("Project id"), mcp.Required())

	s.AddTool(
		mcp.NewTool("list_projects",
			mcp.WithDescription("List projects. By default only those passing the active language filter and search text."),
			mcp.WithBoolean("all", mcp.Description("Return the whole catalog, ignoring the filter")),
		),
		mcpListProjects(deps),
	)

	s.AddTool(
		mcp.NewTool("set_filter",
			mcp.WithDescription("Change the language filter and/or search text, then return the filtered list."),
			mcp.WithString("language", mcp.Description("Show only this language; empty string selects projects with no language")),
			mcp.WithBoolean("all_languages", mcp.Description("Clear the language filter")),
			mcp.WithString("search", mcp.Description("Case-insensitive text matched against name and description")),
		),
		mcpSetFilter(deps),
	)

	s.AddTool(
		mcp.NewTool("add_project",
			mcp.WithDescription("Add a project. Omitted fields keep placeholder values."),
			mcp.WithString("name", mcp.Description("Project name")),
			mcp.WithString("description", mcp.Description("Short description")),
			mcp.WithString("status", mcp.Description("Free-form status, e.g. active")),
			mcp.WithString("folder_path", mcp.Description("Absolute path of the project folder")),
			mcp.WithString("language", mcp.Description("Primary programming language")),
		),
		mcpAddProject(deps),
	)

	s.AddTool(
		mcp.NewTool("update_project",
			mcp.WithDescription("Set one field of a project. The change is saved immediately."),
			idArg,
			mcp.WithString("field", mcp.Description("One of name, description, status, folder_path, language"), mcp.Required()),
			mcp.WithString("value", mcp.Description("New value"), mcp.Required()),
		),
		mcpUpdateProject(deps),
	)

	s.AddTool(
		mcp.NewTool("remove_project",
			mcp.WithDescription("Delete a project from the catalog."),
			idArg,
		),
		mcpRemoveProject(deps),
	)

	s.AddTool(
		mcp.NewTool("save_projects",
			mcp.WithDescription("Write the whole catalog back to storage."),
		),
		mcpSaveProjects(deps),
	)

	s.AddTool(
		mcp.NewTool("open_folder",
			mcp.WithDescription("Open the project folder in the file manager."),
			idArg,
		),
		mcpLaunch(deps, "Opened folder", (*catalog.ViewModel).OpenFolder),
	)

	s.AddTool(
		mcp.NewTool("open_in_editor",
			mcp.WithDescription("Open the project folder in a code editor."),
			idArg,
		),
		mcpLaunch(deps, "Opened editor", (*catalog.ViewModel).OpenInEditor),
	)

	s.AddTool(
		mcp.NewTool("run_script",
			mcp.WithDescription("Start the project's run.sh (or run.bat on Windows)."),
			idArg,
		),
		mcpLaunch(deps, "Started script", (*catalog.ViewModel).RunScript),
	)

	s.AddResource(
		mcp.NewResource(
			"catalog://languages",
			"Languages",
			mcp.WithResourceDescription("Distinct languages in the catalog as a JSON array"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceLanguages(deps),
	)

	return s
}

func mcpListProjects(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list := deps.Catalog.Display()
		if req.GetBool("all", false) {
			list = deps.Catalog.Projects()
		}
		return mcpJSON(list), nil
	}
}

func mcpSetFilter(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		if req.GetBool("all_languages", false) {
			deps.Catalog.SetLanguageFilter(catalog.AllLanguages())
		} else if _, ok := args["language"]; ok {
			deps.Catalog.SetLanguageFilter(catalog.OnlyLanguage(req.GetString("language", "")))
		}
		if _, ok := args["search"]; ok {
			deps.Catalog.SetSearchQuery(req.GetString("search", ""))
		}

		return mcpJSON(map[string]any{
			"filter":   filterState(deps.Catalog),
			"projects": deps.Catalog.Display(),
		}), nil
	}
}

func mcpAddProject(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		fields := map[string]string{}
		for _, f := range catalog.TextFields {
			if _, ok := args[string(f)]; ok {
				fields[string(f)] = req.GetString(string(f), "")
			}
		}
		snap, err := deps.Catalog.AddWith(fields)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to add project: %v", err)), nil
		}
		return mcpJSON(snap), nil
	}
}

func mcpUpdateProject(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		field, err := req.RequireString("field")
		if err != nil {
			return mcpError("field is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		snap, err := deps.Catalog.SetFields(int64(id), map[string]string{field: value})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to update project: %v", err)), nil
		}
		return mcpJSON(snap), nil
	}
}

func mcpRemoveProject(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		if err := deps.Catalog.Remove(int64(id)); err != nil {
			return mcpError(fmt.Sprintf("failed to remove project: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Removed project %d", id)), nil
	}
}

func mcpSaveProjects(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := deps.Catalog.SaveAll(); err != nil {
			return mcpError(fmt.Sprintf("save failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Saved %d projects", len(deps.Catalog.Projects()))), nil
	}
}

func mcpLaunch(deps MCPDeps, done string, action func(*catalog.ViewModel, int64) error) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		if err := action(deps.Catalog, int64(id)); err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(fmt.Sprintf("%s for project %d", done, id)), nil
	}
}

func mcpResourceLanguages(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		langs := deps.Catalog.Languages()
		if langs == nil {
			langs = []string{}
		}
		b, err := json.Marshal(langs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal languages: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
