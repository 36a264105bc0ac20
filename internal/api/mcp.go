package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/feedbackdesk/internal/app"
	"github.com/kalambet/feedbackdesk/internal/auth"
	"github.com/kalambet/feedbackdesk/internal/form"
	"github.com/kalambet/feedbackdesk/internal/view"
)

// MCPDeps holds dependencies for the MCP server. Tool calls run
// concurrently, so each submit or edit gets its own form from NewForm.
type MCPDeps struct {
	App     *app.Orchestrator
	Auth    *auth.Controller
	NewForm func() *form.Controller
}

type confirmKey struct{}

// WithConfirmation marks ctx as carrying the caller's answer to a delete prompt.
func WithConfirmation(ctx context.Context, confirmed bool) context.Context {
	return context.WithValue(ctx, confirmKey{}, confirmed)
}

// ContextConfirmer answers confirmation prompts from the value stored by
// WithConfirmation. A context without one declines.
type ContextConfirmer struct{}

func (ContextConfirmer) Confirm(ctx context.Context, _ string) (bool, error) {
	ok, _ := ctx.Value(confirmKey{}).(bool)
	return ok, nil
}

// NewMCPServer creates an MCP server with all feedback tools registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"feedbackdesk",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("feedbackdesk: submit customer feedback and, as admin, review, edit and delete it."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("submit_feedback",
			mcp.WithDescription("Submit a new piece of customer feedback."),
			mcp.WithString("name", mcp.Description("Customer name (optional)")),
			mcp.WithString("email", mcp.Description("Customer email (optional)")),
			mcp.WithNumber("rating", mcp.Description("Rating from 1 to 5"), mcp.Required()),
			mcp.WithString("comments", mcp.Description("Comments, 10 to 1000 characters"), mcp.Required()),
		),
		mcpSubmitFeedback(deps),
	)

	s.AddTool(
		mcp.NewTool("list_feedback",
			mcp.WithDescription("List all submitted feedback. Requires an admin session."),
		),
		mcpListFeedback(deps),
	)

	s.AddTool(
		mcp.NewTool("average_rating",
			mcp.WithDescription("Return the overall average rating."),
		),
		mcpAverageRating(deps),
	)

	s.AddTool(
		mcp.NewTool("edit_feedback",
			mcp.WithDescription("Edit an existing feedback entry. Omitted fields keep their current value. Requires an admin session."),
			mcp.WithNumber("id", mcp.Description("Feedback ID"), mcp.Required()),
			mcp.WithString("name", mcp.Description("New customer name")),
			mcp.WithString("email", mcp.Description("New customer email")),
			mcp.WithNumber("rating", mcp.Description("New rating from 1 to 5")),
			mcp.WithString("comments", mcp.Description("New comments")),
		),
		mcpEditFeedback(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_feedback",
			mcp.WithDescription("Delete a feedback entry. Requires an admin session and confirm=true."),
			mcp.WithNumber("id", mcp.Description("Feedback ID"), mcp.Required()),
			mcp.WithBoolean("confirm", mcp.Description("Must be true to delete")),
		),
		mcpDeleteFeedback(deps),
	)

	return s
}

func mcpSubmitFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rating, err := req.RequireInt("rating")
		if err != nil {
			return mcpError("rating is required"), nil
		}
		comments, err := req.RequireString("comments")
		if err != nil {
			return mcpError("comments is required"), nil
		}

		f := deps.NewForm()
		f.Fill(form.Fields{
			Name:     req.GetString("name", ""),
			Email:    req.GetString("email", ""),
			Rating:   rating,
			Comments: comments,
		})
		return mcpSubmit(ctx, f)
	}
}

func mcpEditFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		rec, err := deps.App.RequestEdit(ctx, int64(id))
		if err != nil {
			if errors.Is(err, auth.ErrNotAdmin) {
				return mcpError(app.MsgEditNotAdmin), nil
			}
			return mcpError(fmt.Sprintf("%s %v", app.MsgEditFetchFailed, err)), nil
		}

		f := deps.NewForm()
		f.Edit(rec)
		fields := f.Fields()
		fields.Name = req.GetString("name", fields.Name)
		fields.Email = req.GetString("email", fields.Email)
		fields.Rating = req.GetInt("rating", fields.Rating)
		fields.Comments = req.GetString("comments", fields.Comments)
		f.Fill(fields)

		return mcpSubmit(ctx, f)
	}
}

func mcpSubmit(ctx context.Context, f *form.Controller) (*mcp.CallToolResult, error) {
	rec, err := f.Submit(ctx)
	if errors.Is(err, form.ErrInvalid) {
		return mcpError(fieldErrorText(f)), nil
	}
	if err != nil {
		msg := f.Error()
		if msg == "" {
			msg = err.Error()
		}
		return mcpError(msg), nil
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal feedback: %v", err)), nil
	}
	return mcpText(fmt.Sprintf("%s\n%s", f.Success(), b)), nil
}

func fieldErrorText(f *form.Controller) string {
	errs := f.FieldErrors()
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := []string{f.Error()}
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, errs[k]))
	}
	return strings.Join(lines, "\n")
}

func mcpListFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !deps.Auth.IsAdmin() {
			return mcpError("admin session required: run `feedbackdesk login` first"), nil
		}

		deps.App.Reload(ctx)
		if !deps.Auth.IsAdmin() {
			return mcpError("stored admin session was rejected: run `feedbackdesk login` again"), nil
		}

		b, err := json.Marshal(deps.App.Feedback())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal feedback: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAverageRating(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		deps.App.Reload(ctx)
		avg, ok := deps.App.Average()
		if !ok {
			return mcpError("average rating unavailable"), nil
		}
		return mcpText(view.FormatAverage(avg, ok)), nil
	}
}

func mcpDeleteFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		ctx = WithConfirmation(ctx, req.GetBool("confirm", false))
		err = deps.App.RequestDelete(ctx, int64(id))
		switch {
		case err == nil:
			return mcpText(app.MsgDeleted), nil
		case errors.Is(err, app.ErrDeclined):
			return mcpError(fmt.Sprintf("%s Call again with confirm=true.", app.MsgDeleteConfirm)), nil
		case errors.Is(err, auth.ErrNotAdmin):
			return mcpError(app.MsgDeleteNotAdmin), nil
		default:
			return mcpError(err.Error()), nil
		}
	}
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
