package pdf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-layout/internal/layout/fields"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/geometry"
	"github.com/a3tai/mcp-pdf-layout/internal/logging"
)

// GenerateRequest asks for a filled copy of Document. Overrides are keyed by
// field id and replace the definition geometry for that field.
type GenerateRequest struct {
	TemplateID string                   `json:"template_id"`
	Document   string                   `json:"document"`
	Fields     []fields.Definition      `json:"fields"`
	Values     map[string]string        `json:"values"`
	Overrides  map[string]geometry.Rect `json:"overrides"`
	OutputName string                   `json:"output_name,omitempty"`
}

// GenerateResult describes a generated document.
type GenerateResult struct {
	OutputRef string   `json:"output_ref"`
	Stamped   int      `json:"stamped"`
	Skipped   []string `json:"skipped,omitempty"`
}

// Generator produces filled documents.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// StampGenerator copies the source document into an output directory and
// stamps each filled value as a text watermark at the field's effective
// position.
type StampGenerator struct {
	source *Resolver
	output *Resolver
	guard  *Guard
}

// NewStampGenerator creates a generator reading documents through source and
// writing into output's directory. guard may be nil.
func NewStampGenerator(source, output *Resolver, guard *Guard) *StampGenerator {
	if guard == nil {
		guard = NewGuard(0)
	}
	return &StampGenerator{source: source, output: output, guard: guard}
}

// Generate writes the filled document and returns its path relative to the
// output directory.
func (g *StampGenerator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	src, err := g.source.Resolve(req.Document)
	if err != nil {
		return nil, err
	}
	name := req.OutputName
	if name == "" {
		name = outputName(req.Document, req.TemplateID)
	}
	if filepath.Ext(name) != ".pdf" {
		name += ".pdf"
	}
	dst, err := g.output.Resolve(name)
	if err != nil {
		return nil, err
	}

	return Guarded(ctx, g.guard, "generate", func(ctx context.Context) (*GenerateResult, error) {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
		if err := copyFile(src, dst); err != nil {
			return nil, fmt.Errorf("copy source document: %w", err)
		}

		pctx, err := readContext(dst)
		if err != nil {
			os.Remove(dst)
			return nil, err
		}
		pageCount := pctx.PageCount

		res := &GenerateResult{OutputRef: name}
		conf := model.NewDefaultConfiguration()
		conf.ValidationMode = model.ValidationRelaxed

		for _, def := range req.Fields {
			if err := ctx.Err(); err != nil {
				os.Remove(dst)
				return nil, err
			}
			value := strings.TrimSpace(req.Values[def.ID])
			if value == "" {
				continue
			}
			if def.PageNumber < 1 || def.PageNumber > pageCount {
				logging.Logger().Warn("field not stamped",
					slog.String("field", def.ID),
					slog.String("error", ErrPageOutOfRange.Error()))
				res.Skipped = append(res.Skipped, def.ID)
				continue
			}
			rect := def.Rect()
			if o, ok := req.Overrides[def.ID]; ok {
				rect = o
			}
			if err := stamp(dst, def.PageNumber, stampText(def.Kind, value), rect, conf); err != nil {
				logging.Logger().Warn("field not stamped",
					slog.String("field", def.ID),
					slog.String("error", err.Error()))
				res.Skipped = append(res.Skipped, def.ID)
				continue
			}
			res.Stamped++
		}
		return res, nil
	})
}

func stampText(kind fields.Kind, value string) string {
	if kind == fields.KindCheckbox {
		return "X"
	}
	return value
}

// stampPoints picks a font size that fits the field height.
func stampPoints(r geometry.Rect) int {
	return int(math.Max(6, math.Min(14, math.Floor(r.Height*0.7))))
}

func stamp(path string, page int, text string, r geometry.Rect, conf *model.Configuration) error {
	points := stampPoints(r)
	desc := fmt.Sprintf("fontname:Helvetica, points:%d, position:bl, scalefactor:1 abs, rotation:0, opacity:1, fillcolor:#000000", points)

	wm, err := pdfcpu.ParseTextWatermarkDetails(text, desc, true, types.POINTS)
	if err != nil {
		return &BackendError{Library: LibraryPDFCPU, Op: "parse_watermark", Page: page, Err: err}
	}
	wm.Dx = r.X + 2
	wm.Dy = r.Y + math.Max(0, (r.Height-float64(points))/2)

	if err := api.AddWatermarksFile(path, "", []string{strconv.Itoa(page)}, wm, conf); err != nil {
		return &BackendError{Library: LibraryPDFCPU, Op: "add_watermark", Page: page, Err: err}
	}
	return nil
}

func outputName(document, templateID string) string {
	base := strings.TrimSuffix(filepath.Base(document), filepath.Ext(document))
	if templateID == "" {
		return base + "-filled.pdf"
	}
	return fmt.Sprintf("%s-%s-filled.pdf", base, templateID)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
