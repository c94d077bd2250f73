package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/a3tai/mcp-pdf-layout/internal/layout/fields"
	"github.com/a3tai/mcp-pdf-layout/internal/logging"
	"github.com/a3tai/mcp-pdf-layout/internal/pdf"
)

// FormExtractionResult is the json output.
type FormExtractionResult struct {
	FilePath       string              `json:"file_path"`
	Success        bool                `json:"success"`
	FieldCount     int                 `json:"field_count"`
	Fields         []fields.Definition `json:"fields"`
	Error          string              `json:"error,omitempty"`
	ExtractionTime string              `json:"extraction_time,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("pdf_extract_forms", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	format := fs.String("format", "yaml", "Output format: yaml, json, text")
	output := fs.StringP("output", "o", "", "Write the result to this file instead of stdout")
	id := fs.String("id", "", "Template id (default: the file name without extension)")
	timeout := fs.Duration("timeout", pdf.DefaultBackendTimeout, "Give up on the document after this long")
	verbose := fs.BoolP("verbose", "v", false, "Log skipped widgets to stderr")
	help := fs.BoolP("help", "h", false, "Show help message")
	fs.Usage = func() { printHelp(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if *help {
		printHelp(stdout, fs)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(stderr, "Error: exactly one PDF file path required\n\n")
		printUsage(stderr)
		return 1
	}
	switch *format {
	case "yaml", "json", "text":
	default:
		fmt.Fprintf(stderr, "Error: unsupported output format: %s\n", *format)
		return 1
	}

	if *verbose {
		logging.SetLogger(logging.New(stderr, "debug"))
	}

	result, tpl := extractForms(fs.Arg(0), *id, *timeout)
	if !result.Success && *format != "json" {
		fmt.Fprintf(stderr, "Error extracting forms: %s\n", result.Error)
		return 1
	}

	out := stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		defer f.Close()
		out = f
	}

	if err := writeResult(out, *format, result, tpl); err != nil {
		fmt.Fprintf(stderr, "Error outputting results: %v\n", err)
		return 1
	}
	if !result.Success {
		return 1
	}
	return 0
}

// extractForms imports the widgets of path and wraps them in a template
// whose document is the file's base name.
func extractForms(path, id string, timeout time.Duration) (*FormExtractionResult, *fields.Template) {
	result := &FormExtractionResult{FilePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		result.Error = fmt.Sprintf("failed to get absolute path: %v", err)
		return result, nil
	}
	result.FilePath = abs
	if err := pdf.ValidateFile(abs, 0); err != nil {
		result.Error = err.Error()
		return result, nil
	}

	resolver, err := pdf.NewResolver(filepath.Dir(abs))
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	importer := pdf.NewFormImporter(resolver, pdf.NewGuard(timeout))

	start := time.Now()
	defs, err := importer.Import(context.Background(), filepath.Base(abs))
	result.ExtractionTime = time.Since(start).Round(time.Millisecond).String()
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}

	result.Success = true
	result.FieldCount = len(defs)
	result.Fields = defs
	return result, newTemplate(abs, id, defs)
}

func newTemplate(path, id string, defs []fields.Definition) *fields.Template {
	base := filepath.Base(path)
	if id == "" {
		id = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &fields.Template{ID: id, Name: id, Document: base, Fields: defs}
}

func writeResult(w io.Writer, format string, result *FormExtractionResult, tpl *fields.Template) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	case "yaml":
		data, err := tpl.Marshal()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return writeText(w, result)
	}
}

func writeText(w io.Writer, result *FormExtractionResult) error {
	if result.FieldCount == 0 {
		_, err := fmt.Fprintln(w, "No form fields detected in the PDF")
		return err
	}

	fmt.Fprintf(w, "Extracted %d form fields\n\n", result.FieldCount)
	for i, f := range result.Fields {
		fmt.Fprintf(w, "[%d] %s\n", i+1, f.Label())
		fmt.Fprintf(w, "    ID: %s\n", f.ID)
		fmt.Fprintf(w, "    Kind: %s\n", f.Kind)
		fmt.Fprintf(w, "    Page: %d\n", f.PageNumber)
		fmt.Fprintf(w, "    Position: (%.1f, %.1f) size %.1fx%.1f\n", f.X, f.Y, f.Width, f.Height)
		if f.Required {
			fmt.Fprintf(w, "    Required\n")
		}
		fmt.Fprintln(w)
	}
	return nil
}

func printHelp(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(w, "PDF Extract Forms - Seed a layout template from a PDF's form fields")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Each AcroForm widget becomes a field definition with its page, position")
	fmt.Fprintln(w, "and size in points. The YAML output can be opened with layout_open.")
	fmt.Fprintln(w)
	printUsage(w)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "OPTIONS:")
	fmt.Fprint(w, fs.FlagUsages())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "EXAMPLES:")
	fmt.Fprintln(w, "  pdf_extract_forms lease.pdf > lease.yaml")
	fmt.Fprintln(w, "  pdf_extract_forms --format text forms/w2.pdf")
	fmt.Fprintln(w, "  pdf_extract_forms --id lease-2024 -o lease.yaml lease.pdf")
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  pdf_extract_forms [OPTIONS] <pdf_file>")
}
