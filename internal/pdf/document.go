// Package pdf is the document backend: it opens PDFs, measures and
// rasterizes their pages, imports existing AcroForm widgets as field
// definitions, and stamps filled values into output documents.
package pdf

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageSize is a page's width and height in points.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Document is an open PDF.
type Document interface {
	Path() string
	PageCount() int
	PageSize(pageNumber int) (PageSize, error)
	// RenderPage rasterizes a page at scale pixels per point.
	RenderPage(ctx context.Context, pageNumber int, scale float64) (*image.RGBA, error)
	Close() error
}

// Opener opens documents by reference.
type Opener interface {
	Open(ctx context.Context, ref string) (Document, error)
}

// FileOpener opens documents from a directory on disk.
type FileOpener struct {
	resolver    *Resolver
	maxFileSize int64
	guard       *Guard
}

// NewFileOpener creates an opener. guard may be nil.
func NewFileOpener(resolver *Resolver, maxFileSize int64, guard *Guard) *FileOpener {
	if guard == nil {
		guard = NewGuard(0)
	}
	return &FileOpener{resolver: resolver, maxFileSize: maxFileSize, guard: guard}
}

// Resolver returns the resolver documents are looked up with.
func (o *FileOpener) Resolver() *Resolver {
	return o.resolver
}

// Open validates and opens ref.
func (o *FileOpener) Open(ctx context.Context, ref string) (Document, error) {
	path, err := o.resolver.Resolve(ref)
	if err != nil {
		return nil, err
	}
	doc, err := Guarded(ctx, o.guard, "open", func(context.Context) (*fileDocument, error) {
		if err := ValidateFile(path, o.maxFileSize); err != nil {
			return nil, err
		}
		return openFile(path, o.guard)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// readContext loads a document with pdfcpu in relaxed validation mode.
func readContext(path string) (*model.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &BackendError{Library: LibraryPDFCPU, Op: "open", Err: err}
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(f, conf)
	if err != nil {
		return nil, &BackendError{Library: LibraryPDFCPU, Op: "read_context", Err: err}
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, &BackendError{Library: LibraryPDFCPU, Op: "page_count", Err: err}
	}
	return ctx, nil
}

type fileDocument struct {
	path  string
	sizes []PageSize
	guard *Guard

	mu     sync.Mutex
	file   *os.File
	reader *pdf.Reader
	closed bool
}

// openFile measures pages with pdfcpu and keeps a ledongthuc reader open for
// content extraction.
func openFile(path string, guard *Guard) (*fileDocument, error) {
	ctx, err := readContext(path)
	if err != nil {
		return nil, err
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return nil, &BackendError{Library: LibraryPDFCPU, Op: "page_dims", Err: err}
	}
	sizes := make([]PageSize, len(dims))
	for i, d := range dims {
		sizes[i] = PageSize{Width: d.Width, Height: d.Height}
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, &BackendError{Library: LibraryLedongthuc, Op: "open", Err: err}
	}
	if n := reader.NumPage(); n != len(sizes) {
		f.Close()
		return nil, &BackendError{
			Library: LibraryLedongthuc,
			Op:      "open",
			Err:     fmt.Errorf("page count mismatch: %d pages, %d page sizes", n, len(sizes)),
		}
	}

	return &fileDocument{path: path, sizes: sizes, guard: guard, file: f, reader: reader}, nil
}

func (d *fileDocument) Path() string { return d.path }

func (d *fileDocument) PageCount() int { return len(d.sizes) }

func (d *fileDocument) PageSize(pageNumber int) (PageSize, error) {
	if pageNumber < 1 || pageNumber > len(d.sizes) {
		return PageSize{}, &BackendError{Library: LibraryPDFCPU, Op: "page_size", Page: pageNumber, Err: ErrPageOutOfRange}
	}
	return d.sizes[pageNumber-1], nil
}

func (d *fileDocument) RenderPage(ctx context.Context, pageNumber int, scale float64) (*image.RGBA, error) {
	size, err := d.PageSize(pageNumber)
	if err != nil {
		return nil, err
	}
	return Guarded(ctx, d.guard, "render_page", func(ctx context.Context) (*image.RGBA, error) {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return nil, &BackendError{Library: LibraryLedongthuc, Op: "render_page", Page: pageNumber, Err: ErrDocumentClosed}
		}
		content := d.reader.Page(pageNumber).Content()
		d.mu.Unlock()

		return Rasterize(ctx, content, size, scale)
	})
}

func (d *fileDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.file.Close()
}
