// Package mcp provides a Model Context Protocol server for mentor360's
// relationship memory.
//
// It exposes the memory pipeline (process, context, people, stats) as MCP
// tools over stdio transport, so a conversation frontend can consolidate
// mentions and pull relationship context per turn.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JonDuardo/mentor360-back/internal/consolidate"
	"github.com/JonDuardo/mentor360-back/internal/norm"
	"github.com/JonDuardo/mentor360-back/internal/recall"
	"github.com/JonDuardo/mentor360-back/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store   store.Store
	Engine  *consolidate.Engine
	Version string
}

// dbMu serializes all MCP tool calls that touch the database.
// The mcp-go library dispatches handlers concurrently via goroutines.
// SQLite (even with WAL) supports only one writer at a time, and two
// concurrent process calls for the same user could insert duplicate
// records; a global mutex keeps tool calls ordered.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with the mentor360 memory
// tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"mentor360",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerProcessTool(s, cfg.Engine, cfg.Store)
	registerContextTool(s, cfg.Store)
	registerPeopleTool(s, cfg.Store)
	registerStatsTool(s, cfg.Store)

	registerStatsResource(s, cfg.Store)

	return s
}

// --- Tools ---

func registerProcessTool(s *server.MCPServer, eng *consolidate.Engine, st store.Store) {
	tool := mcp.NewTool("memory_process",
		mcp.WithDescription("Process one user message through the relationship memory pipeline: extract person mentions, merge them into existing records or create new ones, and return the refreshed context block for this turn."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Owner of the relationship records"),
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The raw user message to process"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError("user_id is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcp.NewToolResultError("message is required"), nil
		}

		touched, err := eng.ProcessMentions(ctx, userID, message, time.Now().UTC())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("process error: %v", err)), nil
		}

		contextBlock, err := recall.SelectAndRender(ctx, st, userID, touched)
		if err != nil {
			// Consolidation already succeeded; context is best-effort.
			contextBlock = ""
		}

		result := map[string]interface{}{
			"touched": touched,
			"context": contextBlock,
			"message": fmt.Sprintf("Processed message, %d name(s) touched", len(touched)),
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerContextTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("memory_context",
		mcp.WithDescription("Render the relationship context block for a user: mentioned-now people first, then the most frequently and recently mentioned, bounded to a small limit. Ready to embed in a prompt."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Owner of the relationship records"),
		),
		mcp.WithString("mentioned",
			mcp.Description("Comma-separated names/aliases mentioned this turn (empty = none)"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum records to surface (default: %d, max: 10)", recall.DefaultLimit)),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError("user_id is required"), nil
		}

		var touched []string
		if m, err := req.RequireString("mentioned"); err == nil && m != "" {
			for _, part := range strings.Split(m, ",") {
				if part = strings.TrimSpace(part); part != "" {
					touched = append(touched, part)
				}
			}
		}

		limit := recall.DefaultLimit
		if l, err := req.RequireFloat("limit"); err == nil && l > 0 {
			limit = int(l)
			if limit > 10 {
				limit = 10
			}
		}

		records, err := recall.Select(ctx, st, userID, touched, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("context error: %v", err)), nil
		}
		if len(records) == 0 {
			return mcp.NewToolResultText("No relationship records for this user yet."), nil
		}

		return mcp.NewToolResultText(recall.Render(records)), nil
	})
}

func registerPeopleTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("memory_people",
		mcp.WithDescription("List a user's relationship records with aliases, mention bookkeeping, and compact profiles. Optionally filter by name or alias."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Owner of the relationship records"),
		),
		mcp.WithString("name",
			mcp.Description("Filter by name or alias (case/diacritic-insensitive)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError("user_id is required"), nil
		}

		records, err := st.QueryRecords(ctx, userID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("people error: %v", err)), nil
		}

		if name, err := req.RequireString("name"); err == nil && name != "" {
			records = filterByName(records, name)
		}

		if len(records) == 0 {
			return mcp.NewToolResultText("No matching relationship records."), nil
		}

		type personInfo struct {
			ID              int64    `json:"id"`
			RealName        string   `json:"real_name,omitempty"`
			RelationType    string   `json:"relation_type"`
			Aliases         []string `json:"aliases,omitempty"`
			MentionCount    int      `json:"mention_count"`
			LastMentionedAt string   `json:"last_mentioned_at"`
			CompactProfile  string   `json:"compact_profile,omitempty"`
		}
		infos := make([]personInfo, 0, len(records))
		for _, r := range records {
			infos = append(infos, personInfo{
				ID:              r.ID,
				RealName:        r.RealName,
				RelationType:    r.RelationType,
				Aliases:         r.Aliases,
				MentionCount:    r.MentionCount,
				LastMentionedAt: r.LastMentionedAt.Format(time.RFC3339),
				CompactProfile:  r.CompactProfile,
			})
		}

		data, _ := json.MarshalIndent(infos, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("memory_stats",
		mcp.WithDescription("Get relationship memory statistics: user count, record count, and storage size."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(stats, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// --- Resources ---

func registerStatsResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"mentor360://stats",
		"Memory Statistics",
		mcp.WithResourceDescription("Relationship memory statistics: user count, record count, and storage size."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting stats: %w", err)
		}

		data, _ := json.MarshalIndent(stats, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

// --- Helpers ---

func filterByName(records []*store.RelationshipRecord, name string) []*store.RelationshipRecord {
	var out []*store.RelationshipRecord
	for _, r := range records {
		if norm.Equal(r.RealName, name) {
			out = append(out, r)
			continue
		}
		for _, alias := range r.Aliases {
			if norm.Equal(alias, name) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
