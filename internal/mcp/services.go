package mcp

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/a3tai/mcp-pdf-layout/internal/config"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/fields"
	"github.com/a3tai/mcp-pdf-layout/internal/pdf"
)

// FormImporter seeds field definitions from a PDF's form.
type FormImporter interface {
	Import(ctx context.Context, ref string) ([]fields.Definition, error)
}

// Services are the backends the server opens sessions against.
type Services struct {
	Documents pdf.Opener
	Forms     FormImporter
	Generator pdf.Generator
	// Files resolves template and document refs inside the document directory.
	Files *pdf.Resolver
	Guard *pdf.Guard
	// Clock drives session timers. Nil uses the real clock.
	Clock clockwork.Clock
}

// NewServices builds the pdfcpu/ledongthuc backends for cfg.
func NewServices(cfg *config.Config) (*Services, error) {
	files, err := pdf.NewResolver(cfg.DocumentDirectory)
	if err != nil {
		return nil, fmt.Errorf("document directory: %w", err)
	}
	output, err := pdf.NewResolver(cfg.OutputDirectory)
	if err != nil {
		return nil, fmt.Errorf("output directory: %w", err)
	}
	guard := pdf.NewGuard(cfg.RenderTimeout)

	return &Services{
		Documents: pdf.NewFileOpener(files, cfg.MaxFileSize, guard),
		Forms:     pdf.NewFormImporter(files, guard),
		Generator: pdf.NewStampGenerator(files, output, guard),
		Files:     files,
		Guard:     guard,
	}, nil
}
