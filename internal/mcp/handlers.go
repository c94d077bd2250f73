package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/a3tai/mcp-pdf-layout/internal/descriptions"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/drag"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/geometry"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/session"
	"github.com/a3tai/mcp-pdf-layout/internal/logging"
)

// fieldView is one row of layout_fields.
type fieldView struct {
	ID         string        `json:"id"`
	Label      string        `json:"label"`
	Kind       string        `json:"kind"`
	Required   bool          `json:"required,omitempty"`
	Position   geometry.Rect `json:"position"`
	Overridden bool          `json:"overridden,omitempty"`
	Value      string        `json:"value,omitempty"`
	Assignee   string        `json:"assignee,omitempty"`
}

func jsonResult(heading string, v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(heading + "\n" + string(data)), nil
}

func (s *Server) handleOpen(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templateRef := request.GetString("template", "")
	documentRef := request.GetString("document", "")

	sess, err := s.openSession(ctx, templateRef, documentRef)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	st := sess.Status()
	logging.Logger().Info("session opened", slog.String("status", statusLine(st)))

	text := fmt.Sprintf("Opened layout session %s\n", st.ID)
	text += fmt.Sprintf("Template: %s\n", st.TemplateID)
	text += fmt.Sprintf("Document: %s\n", st.Document)
	text += fmt.Sprintf("Pages: %d\n", st.PageCount)
	text += fmt.Sprintf("Fields: %d\n", st.Fields)
	if !st.Preview {
		text += fmt.Sprintf("\nWARNING: preview and generation are unavailable: %s\n", st.BackendErr)
		text += "Fields can still be edited, assigned and saved.\n"
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult("Session status:", sess.Status())
}

func (s *Server) handleClose(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()

	if err := sess.Close(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Closed session %s", sess.ID())), nil
}

func (s *Server) handleSetPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := request.RequireInt("page")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := sess.SetPage(page); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Page %d of %d", page, sess.Status().PageCount)), nil
}

func (s *Server) handleZoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var zoom float64
	switch action {
	case "in":
		zoom = sess.ZoomIn()
	case "out":
		zoom = sess.ZoomOut()
	case "reset":
		zoom = sess.SetZoom(1)
	case "set":
		value, err := request.RequireFloat("value")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		zoom = sess.SetZoom(value)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown zoom action: %s", action)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Zoom: %.2f", zoom)), nil
}

func (s *Server) handleContainer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	width, err := request.RequireFloat("width")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	height, err := request.RequireFloat("height")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := sess.SetContainerSize(width, height); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Container: %.0fx%.0f", width, height)), nil
}

func (s *Server) handleEditMode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	enabled, err := request.RequireBool("enabled")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess.SetEditMode(enabled)
	return mcp.NewToolResultText(fmt.Sprintf("Edit mode: %t", enabled)), nil
}

func (s *Server) handlePointer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	event, err := request.RequireString("event")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p := geometry.Point{X: request.GetFloat("x", 0), Y: request.GetFloat("y", 0)}

	switch event {
	case "down":
		if fieldID := request.GetString("field_id", ""); fieldID != "" {
			handle := drag.ParseHandle(request.GetString("handle", ""))
			if err := sess.BeginResize(fieldID, handle, p); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Resizing %s from %s", fieldID, handle)), nil
		}
		id, err := sess.BeginDrag(p)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if id == "" {
			return mcp.NewToolResultText(fmt.Sprintf("No field at (%.1f, %.1f)", p.X, p.Y)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Dragging %s", id)), nil
	case "move", "up":
		update := sess.UpdateDrag
		if event == "up" {
			update = sess.EndDrag
		}
		o, err := update(p)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s at x=%.2f y=%.2f w=%.2f h=%.2f",
			o.FieldID, o.Rect.X, o.Rect.Y, o.Rect.Width, o.Rect.Height)), nil
	case "cancel":
		if !sess.CancelDrag() {
			return mcp.NewToolResultText("No active drag"), nil
		}
		return mcp.NewToolResultText("Drag cancelled; the field keeps its last position"), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown pointer event: %s", event)), nil
	}
}

func (s *Server) handleSetValue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fieldID, err := request.RequireString("field_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value := request.GetString("value", "")
	if err := sess.SetFieldValue(fieldID, value); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Set %s", fieldID)), nil
}

func (s *Server) handleAssign(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fieldID, err := request.RequireString("field_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	assignee, err := request.RequireString("assignee")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := sess.Assign(fieldID, assignee); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Assigned %s to %s", fieldID, assignee)), nil
}

func (s *Server) handleUnassign(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fieldID, err := request.RequireString("field_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess.Unassign(fieldID)
	return mcp.NewToolResultText(fmt.Sprintf("Unassigned %s", fieldID)), nil
}

func (s *Server) handleFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	placed := sess.PageFields()
	views := make([]fieldView, 0, len(placed))
	for _, p := range placed {
		v := fieldView{
			ID:         p.Definition.ID,
			Label:      p.Definition.Label(),
			Kind:       string(p.Definition.Kind),
			Required:   p.Definition.Required,
			Position:   p.Effective,
			Overridden: p.Overridden,
			Value:      p.Value,
		}
		v.Assignee, _ = sess.Assignee(v.ID)
		views = append(views, v)
	}
	return jsonResult(fmt.Sprintf("Fields on page %d (%d):", sess.Page(), len(views)), views)
}

func (s *Server) handleProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult("Progress:", map[string]any{
		"assignees":  sess.Progress(),
		"unassigned": sess.Unassigned(),
	})
}

func (s *Server) handlePreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	frame, err := sess.Preview(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame.Image); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode preview: %v", err)), nil
	}

	vp := frame.Viewport
	text := fmt.Sprintf("Page %d at scale %.3f (fit %.3f x zoom %.2f), %dx%d px, %d field(s)",
		vp.PageNumber, vp.Scale, vp.FitScale, vp.UserZoom,
		frame.Image.Bounds().Dx(), frame.Image.Bounds().Dy(), len(frame.Overlays))
	for _, o := range frame.Overlays {
		text += fmt.Sprintf("\n• %s: x=%.1f y=%.1f w=%.1f h=%.1f px", o.FieldID, o.Box.X, o.Box.Y, o.Box.Width, o.Box.Height)
	}
	return mcp.NewToolResultImage(text, base64.StdEncoding.EncodeToString(buf.Bytes()), "image/png"), nil
}

func (s *Server) handleClearOverrides(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n := sess.Status().Overrides
	sess.ClearOverrides()
	return mcp.NewToolResultText(fmt.Sprintf("Cleared %d override(s)", n)), nil
}

func (s *Server) handleSave(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tpl, err := sess.SaveLayout(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Saved template %s with %d field(s)", tpl.ID, len(tpl.Fields))), nil
}

func (s *Server) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := sess.Generate(ctx, request.GetString("output_name", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text := fmt.Sprintf("Generated %s\nStamped: %d field(s)\n", res.OutputRef, res.Stamped)
	if len(res.Skipped) > 0 {
		text += fmt.Sprintf("Skipped: %s\n", strings.Join(res.Skipped, ", "))
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := fmt.Sprintf("%s v%s - Server Information\n", s.config.ServerName, s.config.Version)
	text += fmt.Sprintf("Document Directory: %s\n", s.config.DocumentDirectory)
	text += fmt.Sprintf("Output Directory: %s\n", s.config.OutputDirectory)
	text += fmt.Sprintf("Max File Size: %d MB\n", s.config.MaxFileSize/(1024*1024))
	text += fmt.Sprintf("Open Sessions: %d\n\n", s.Sessions())

	templates, documents := s.listDirectory()
	text += formatList("Templates", templates)
	text += formatList("PDF Documents", documents)

	text += "Available Tools:\n"
	for _, name := range descriptions.GetAllToolNames() {
		summary, _, _ := strings.Cut(descriptions.GetToolDescription(name), "\n")
		text += fmt.Sprintf("• %s: %s\n", name, summary)
	}
	if guard := s.services.Guard; guard != nil {
		if n := len(guard.Panics()); n > 0 {
			text += fmt.Sprintf("\nRecovered backend panics: %d\n", n)
		}
	}
	return mcp.NewToolResultText(text), nil
}

func formatList(title string, names []string) string {
	if len(names) == 0 {
		return fmt.Sprintf("%s: none found\n\n", title)
	}
	text := fmt.Sprintf("%s (%d):\n", title, len(names))
	for i, name := range names {
		if i >= 10 {
			text += fmt.Sprintf("   ... and %d more\n", len(names)-10)
			break
		}
		text += fmt.Sprintf("   %d. %s\n", i+1, name)
	}
	return text + "\n"
}

func statusLine(st session.Status) string {
	return fmt.Sprintf("session=%s page=%d/%d zoom=%.2f preview=%t overrides=%d completed=%d/%d",
		st.ID, st.Page, st.PageCount, st.Zoom, st.Preview, st.Overrides, st.Completed, st.Fields)
}
