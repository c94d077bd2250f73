package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/mcp-pdf-layout/internal/config"
	"github.com/a3tai/mcp-pdf-layout/internal/descriptions"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/fields"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/schedule"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/session"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/viewport"
	"github.com/a3tai/mcp-pdf-layout/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	services  *Services
	mcpServer *server.MCPServer

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, services *Services) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if services == nil || services.Files == nil {
		return nil, fmt.Errorf("services cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // We don't support dynamic tool capabilities
		server.WithRecovery(),
	)

	s := &Server{
		config:    cfg,
		services:  services,
		mcpServer: mcpServer,
		sessions:  make(map[string]*session.Session),
	}

	s.registerTools()

	return s, nil
}

func sessionArg() mcp.ToolOption {
	return mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session id returned by layout_open"),
	)
}

func tool(name string, opts ...mcp.ToolOption) mcp.Tool {
	return mcp.NewTool(name, append([]mcp.ToolOption{mcp.WithDescription(descriptions.GetToolDescription(name))}, opts...)...)
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	s.mcpServer.AddTool(tool("layout_open",
		mcp.WithString("template", mcp.Description("YAML template file, relative to the document directory")),
		mcp.WithString("document", mcp.Description("PDF whose form widgets seed the fields, when no template is given")),
	), s.handleOpen)

	s.mcpServer.AddTool(tool("layout_status", sessionArg()), s.handleStatus)
	s.mcpServer.AddTool(tool("layout_close", sessionArg()), s.handleClose)

	s.mcpServer.AddTool(tool("layout_set_page", sessionArg(),
		mcp.WithNumber("page", mcp.Required(), mcp.Description("Page number, starting at 1")),
	), s.handleSetPage)

	s.mcpServer.AddTool(tool("layout_zoom", sessionArg(),
		mcp.WithString("action", mcp.Required(), mcp.Enum("in", "out", "set", "reset")),
		mcp.WithNumber("value", mcp.Description("Zoom multiplier for action=set")),
	), s.handleZoom)

	s.mcpServer.AddTool(tool("layout_container", sessionArg(),
		mcp.WithNumber("width", mcp.Required(), mcp.Description("Preview area width in pixels")),
		mcp.WithNumber("height", mcp.Required(), mcp.Description("Preview area height in pixels")),
	), s.handleContainer)

	s.mcpServer.AddTool(tool("layout_edit_mode", sessionArg(),
		mcp.WithBoolean("enabled", mcp.Required()),
	), s.handleEditMode)

	s.mcpServer.AddTool(tool("layout_pointer", sessionArg(),
		mcp.WithString("event", mcp.Required(), mcp.Enum("down", "move", "up", "cancel")),
		mcp.WithNumber("x", mcp.Description("Pointer x in preview pixels")),
		mcp.WithNumber("y", mcp.Description("Pointer y in preview pixels, from the top")),
		mcp.WithString("field_id", mcp.Description("Field to resize (down only)")),
		mcp.WithString("handle", mcp.Description("Resize handle: top-left, top-right, bottom-left, bottom-right")),
	), s.handlePointer)

	s.mcpServer.AddTool(tool("layout_set_value", sessionArg(),
		mcp.WithString("field_id", mcp.Required()),
		mcp.WithString("value", mcp.Description("Field value; empty clears it")),
	), s.handleSetValue)

	s.mcpServer.AddTool(tool("layout_assign", sessionArg(),
		mcp.WithString("field_id", mcp.Required()),
		mcp.WithString("assignee", mcp.Required()),
	), s.handleAssign)

	s.mcpServer.AddTool(tool("layout_unassign", sessionArg(),
		mcp.WithString("field_id", mcp.Required()),
	), s.handleUnassign)

	s.mcpServer.AddTool(tool("layout_fields", sessionArg()), s.handleFields)
	s.mcpServer.AddTool(tool("layout_progress", sessionArg()), s.handleProgress)
	s.mcpServer.AddTool(tool("layout_preview", sessionArg()), s.handlePreview)
	s.mcpServer.AddTool(tool("layout_clear_overrides", sessionArg()), s.handleClearOverrides)
	s.mcpServer.AddTool(tool("layout_save", sessionArg()), s.handleSave)

	s.mcpServer.AddTool(tool("layout_generate", sessionArg(),
		mcp.WithString("output_name", mcp.Description("Output file name inside the output directory")),
	), s.handleGenerate)

	s.mcpServer.AddTool(tool("layout_server_info"), s.handleServerInfo)
}

// sessionConfig turns the server configuration into session settings.
func (s *Server) sessionConfig() session.Config {
	vp := viewport.DefaultConfig()
	if s.config.ZoomStep > 0 {
		vp.ZoomStep = s.config.ZoomStep
	}
	if s.config.MinScale > 0 && s.config.MaxScale >= s.config.MinScale {
		vp.MinScale, vp.MaxScale = s.config.MinScale, s.config.MaxScale
	}
	return session.Config{
		Viewport: vp,
		Schedule: schedule.Config{
			FrameInterval: s.config.FrameInterval,
			Debounce:      s.config.Debounce,
		},
		Container: viewport.Size{Width: s.config.ContainerWidth, Height: s.config.ContainerHeight},
		CacheSize: s.config.CacheSize,
	}
}

// openSession loads the template (or imports one) and starts a session.
func (s *Server) openSession(ctx context.Context, templateRef, documentRef string) (*session.Session, error) {
	var (
		tpl      *fields.Template
		savePath string
	)
	switch {
	case templateRef != "":
		path, err := s.services.Files.Resolve(templateRef)
		if err != nil {
			return nil, err
		}
		tpl, err = fields.LoadTemplateFile(path)
		if err != nil {
			return nil, err
		}
		savePath = path
	case documentRef != "":
		if s.services.Forms == nil {
			return nil, fmt.Errorf("form import is not available")
		}
		defs, err := s.services.Forms.Import(ctx, documentRef)
		if err != nil {
			return nil, fmt.Errorf("import form fields: %w", err)
		}
		base := strings.TrimSuffix(filepath.Base(documentRef), filepath.Ext(documentRef))
		tpl = &fields.Template{ID: base, Name: base, Document: documentRef, Fields: defs}
		savePath, err = s.services.Files.Resolve(filepath.Join(filepath.Dir(documentRef), base+".layout.yaml"))
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("either template or document is required")
	}

	opts := session.Options{
		Template:  tpl,
		Generator: s.services.Generator,
		Saver:     templateSaver(savePath),
		Clock:     s.services.Clock,
		Config:    s.sessionConfig(),
	}
	if s.services.Documents != nil {
		doc, err := s.services.Documents.Open(ctx, tpl.Document)
		if err != nil {
			opts.BackendErr = err
		} else {
			opts.Document = doc
		}
	}

	sess, err := session.New(opts)
	if err != nil {
		if opts.Document != nil {
			opts.Document.Close()
		}
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
	return sess, nil
}

func templateSaver(path string) session.Saver {
	return func(_ context.Context, tpl *fields.Template) error {
		data, err := tpl.Marshal()
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o644)
	}
}

func (s *Server) session(request mcp.CallToolRequest) (*session.Session, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", id)
	}
	return sess, nil
}

// Sessions returns the number of open sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close closes every open session.
func (s *Server) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session.Session)
	s.mu.Unlock()

	for id, sess := range sessions {
		if err := sess.Close(); err != nil {
			logging.Logger().Warn("closing session", slog.String("session", id), slog.String("error", err.Error()))
		}
	}
}

// listDirectory returns the templates and PDFs at the top of the document
// directory.
func (s *Server) listDirectory() (templates, documents []string) {
	entries, err := os.ReadDir(s.services.Files.Dir())
	if err != nil {
		return nil, nil
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			templates = append(templates, e.Name())
		case ".pdf":
			documents = append(documents, e.Name())
		}
	}
	sort.Strings(templates)
	sort.Strings(documents)
	return templates, documents
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode runs the server in stdio mode
func (s *Server) runStdioMode(_ context.Context) error {
	logging.Logger().Debug("starting PDF layout MCP server in stdio mode",
		slog.String("dir", s.config.DocumentDirectory))

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves MCP over SSE until ctx is cancelled
func (s *Server) runServerMode(ctx context.Context) error {
	addr := s.config.Address()
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+addr))

	log := logging.Logger().With(slog.String("addr", addr))
	log.Info("starting PDF layout MCP server in server mode", slog.String("dir", s.config.DocumentDirectory))

	errCh := make(chan error, 1)
	go func() {
		errCh <- sse.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve sse: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := sse.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down sse server: %w", err)
		}
		return nil
	}
}
