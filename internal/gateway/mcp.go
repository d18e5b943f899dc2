package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/flemzord/substackulous/internal/assistant"
	"github.com/flemzord/substackulous/internal/history"
	"github.com/flemzord/substackulous/pkg/message"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// boundResult is the payload returned by the bound_history tool.
type boundResult struct {
	Messages message.Transcript `json:"messages"`
	Tokens   int                `json:"tokens"`
	Dropped  int                `json:"dropped"`
}

// newMCPHandler exposes operator tools over the MCP streamable HTTP
// transport. It is mounted behind admin auth.
func (g *Gateway) newMCPHandler() http.Handler {
	s := server.NewMCPServer("substackulous", g.version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("bound_history",
		mcp.WithDescription("Trim a transcript to the most recent messages that fit a token budget."),
		mcp.WithString("transcript",
			mcp.Required(),
			mcp.Description(`JSON array of messages, oldest first: [{"role":"user","content":"..."}]`),
		),
		mcp.WithNumber("max_tokens",
			mcp.Description("Token budget. Defaults to the configured chat history budget."),
		),
	), g.toolBoundHistory)

	s.AddTool(mcp.NewTool("generate_notes",
		mcp.WithDescription("Generate Substack Notes from a post, charged to the given user."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User whose credits pay for the generation.")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Post body.")),
		mcp.WithNumber("count", mcp.Description("Number of notes, 1 to 10.")),
		mcp.WithString("tone", mcp.Description("Tone of voice.")),
	), g.toolGenerateNotes)

	return server.NewStreamableHTTPServer(s, server.WithStateLess(true))
}

func (g *Gateway) toolBoundHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("transcript")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var transcript message.Transcript
	if err := json.Unmarshal([]byte(raw), &transcript); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid transcript: %v", err)), nil
	}

	budget := req.GetInt("max_tokens", g.svc().Budget())
	res := history.NewBounder(g.svc().Budget()).WithBudget(budget).BoundWithStats(transcript)

	out, err := json.Marshal(boundResult{Messages: res.Transcript, Tokens: res.Tokens, Dropped: res.Dropped})
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (g *Gateway) toolGenerateNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	notes, err := g.svc().GenerateNotes(ctx, userID, assistant.NotesRequest{
		Content: content,
		Count:   req.GetInt("count", 0),
		Tone:    req.GetString("tone", ""),
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return mcp.NewToolResultErrorFromErr("generate notes failed", err), nil
	}

	out, err := json.Marshal(notes)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}
