package mcp

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/a3tai/mcp-pdf-layout/internal/config"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/fields"
	"github.com/a3tai/mcp-pdf-layout/internal/pdf"
)

const leaseTemplate = `id: lease
name: Residential lease
document: lease.pdf
fields:
  - id: a
    page: 1
    x: 100
    y: 700
    width: 150
    height: 20
    kind: text
    required: true
  - id: b
    page: 1
    x: 300
    y: 100
    width: 20
    height: 20
    kind: checkbox
  - id: c
    page: 2
    x: 50
    y: 50
    width: 100
    height: 20
    kind: signature
`

type fakeDocument struct {
	path  string
	sizes []pdf.PageSize

	mu     sync.Mutex
	closed bool
}

func (d *fakeDocument) Path() string   { return d.path }
func (d *fakeDocument) PageCount() int { return len(d.sizes) }

func (d *fakeDocument) PageSize(n int) (pdf.PageSize, error) {
	if n < 1 || n > len(d.sizes) {
		return pdf.PageSize{}, pdf.ErrPageOutOfRange
	}
	return d.sizes[n-1], nil
}

func (d *fakeDocument) RenderPage(_ context.Context, n int, scale float64) (*image.RGBA, error) {
	size, err := d.PageSize(n)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, int(math.Ceil(size.Width*scale)), int(math.Ceil(size.Height*scale))))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return img, nil
}

func (d *fakeDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDocument) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type fakeOpener struct {
	mu   sync.Mutex
	err  error
	docs []*fakeDocument
}

func (o *fakeOpener) Open(_ context.Context, ref string) (pdf.Document, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	doc := &fakeDocument{path: ref, sizes: []pdf.PageSize{{Width: 612, Height: 792}, {Width: 612, Height: 792}}}
	o.docs = append(o.docs, doc)
	return doc, nil
}

type fakeForms struct {
	defs []fields.Definition
	err  error
}

func (f *fakeForms) Import(context.Context, string) ([]fields.Definition, error) {
	return f.defs, f.err
}

type fakeGenerator struct {
	mu  sync.Mutex
	req *pdf.GenerateRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req pdf.GenerateRequest) (*pdf.GenerateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.req = &req
	name := req.OutputName
	if name == "" {
		name = "lease-filled.pdf"
	}
	return &pdf.GenerateResult{OutputRef: name, Stamped: len(req.Values), Skipped: []string{"c"}}, nil
}

type testEnv struct {
	dir       string
	server    *Server
	opener    *fakeOpener
	forms     *fakeForms
	generator *fakeGenerator
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Mode:              "stdio",
		Host:              "127.0.0.1",
		Port:              8080,
		DocumentDirectory: dir,
		OutputDirectory:   filepath.Join(dir, "filled"),
		ContainerWidth:    2000,
		ContainerHeight:   704,
		ZoomStep:          0.25,
		Debounce:          300 * time.Millisecond,
		FrameInterval:     16 * time.Millisecond,
		RenderTimeout:     time.Second,
		CacheSize:         4,
		Version:           "1.0.0",
		ServerName:        "test-server",
		LogLevel:          "info",
		MaxFileSize:       1024 * 1024,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lease.yaml"), []byte(leaseTemplate), 0o644); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "lease.pdf"), []byte("%PDF-1.4\n"), 0o644); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}

	files, err := pdf.NewResolver(dir)
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}
	env := &testEnv{
		dir:       dir,
		opener:    &fakeOpener{},
		forms:     &fakeForms{},
		generator: &fakeGenerator{},
	}
	services := &Services{
		Documents: env.opener,
		Forms:     env.forms,
		Generator: env.generator,
		Files:     files,
		Guard:     pdf.NewGuard(time.Second),
		Clock:     clockwork.NewFakeClock(),
	}
	env.server, err = NewServer(testConfig(dir), services)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	t.Cleanup(env.server.Close)
	return env
}

func callTool(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

type toolHandler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// call runs handler and fails the test on a protocol error. Tool errors are
// returned in the result.
func call(t *testing.T, handler toolHandler, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	result, err := handler(context.Background(), callTool(args))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result == nil {
		t.Fatal("result should not be nil")
	}
	return result
}

// mustCall is call for results that must not be tool errors.
func mustCall(t *testing.T, handler toolHandler, args map[string]interface{}) string {
	t.Helper()
	result := call(t, handler, args)
	text := extractTextFromResult(result)
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", text)
	}
	return text
}

// openLease opens lease.yaml and returns the session id.
func (e *testEnv) openLease(t *testing.T) string {
	t.Helper()
	mustCall(t, e.server.handleOpen, map[string]interface{}{"template": "lease.yaml"})
	for id := range e.server.sessions {
		return id
	}
	t.Fatal("no session registered")
	return ""
}

// Helper function to extract text from a CallToolResult
func extractTextFromResult(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}

	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			return textContent.Text
		}
		if textContentPtr, ok := content.(*mcp.TextContent); ok {
			return textContentPtr.Text
		}
	}

	return ""
}

func extractImageFromResult(result *mcp.CallToolResult) (mcp.ImageContent, bool) {
	for _, content := range result.Content {
		if img, ok := content.(mcp.ImageContent); ok {
			return img, true
		}
		if img, ok := content.(*mcp.ImageContent); ok {
			return *img, true
		}
	}
	return mcp.ImageContent{}, false
}

var errOpen = errors.New("backend offline")
