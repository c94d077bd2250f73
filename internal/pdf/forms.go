package pdf

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-layout/internal/layout/fields"
	"github.com/a3tai/mcp-pdf-layout/internal/layout/geometry"
	"github.com/a3tai/mcp-pdf-layout/internal/logging"
)

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// FormImporter seeds field definitions from the AcroForm widgets of an
// existing PDF.
type FormImporter struct {
	resolver *Resolver
	guard    *Guard
}

// NewFormImporter creates an importer. guard may be nil.
func NewFormImporter(resolver *Resolver, guard *Guard) *FormImporter {
	if guard == nil {
		guard = NewGuard(0)
	}
	return &FormImporter{resolver: resolver, guard: guard}
}

// Import returns one definition per widget annotation in ref's AcroForm, in
// document order. A document without a form yields no definitions.
func (fi *FormImporter) Import(ctx context.Context, ref string) ([]fields.Definition, error) {
	path, err := fi.resolver.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return Guarded(ctx, fi.guard, "import_form", func(context.Context) ([]fields.Definition, error) {
		pctx, err := readContext(path)
		if err != nil {
			return nil, err
		}
		return importFields(pctx)
	})
}

type formWalker struct {
	ctx        *model.Context
	pageOfObj  map[int]int // widget object number -> page
	pageOfDict map[int]int // page object number -> page
	seen       map[string]struct{}
	out        []fields.Definition
}

func importFields(ctx *model.Context) ([]fields.Definition, error) {
	w := &formWalker{
		ctx:        ctx,
		pageOfObj:  make(map[int]int),
		pageOfDict: make(map[int]int),
		seen:       make(map[string]struct{}),
	}
	if err := w.indexPages(); err != nil {
		return nil, err
	}

	rootDict, err := ctx.Catalog()
	if err != nil {
		return nil, &BackendError{Library: LibraryPDFCPU, Op: "catalog", Err: err}
	}
	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		return nil, nil
	}
	acroForm, err := ctx.DereferenceDict(acroFormObj)
	if err != nil || acroForm == nil {
		return nil, nil
	}
	fieldsObj, found := acroForm.Find("Fields")
	if !found {
		return nil, nil
	}
	roots, err := ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return nil, &BackendError{Library: LibraryPDFCPU, Op: "acroform_fields", Err: err}
	}

	for _, obj := range roots {
		w.walk(obj, "", "", 0)
	}
	return w.out, nil
}

// indexPages maps every annotation reference to the page that lists it.
func (w *formWalker) indexPages() error {
	for p := 1; p <= w.ctx.PageCount; p++ {
		pageDict, pageRef, _, err := w.ctx.PageDict(p, false)
		if err != nil {
			return &BackendError{Library: LibraryPDFCPU, Op: "page_dict", Page: p, Err: err}
		}
		if pageRef != nil {
			w.pageOfDict[int(pageRef.ObjectNumber)] = p
		}
		if pageDict == nil {
			continue
		}
		annotsObj, found := pageDict.Find("Annots")
		if !found {
			continue
		}
		annots, err := w.ctx.DereferenceArray(annotsObj)
		if err != nil {
			continue
		}
		for _, a := range annots {
			if ir, ok := a.(types.IndirectRef); ok {
				w.pageOfObj[int(ir.ObjectNumber)] = p
			}
		}
	}
	return nil
}

func (w *formWalker) walk(obj types.Object, parentName, inheritedType string, depth int) {
	if depth > 32 {
		return
	}
	dict, err := w.ctx.DereferenceDict(obj)
	if err != nil || dict == nil {
		return
	}

	name := parentName
	if tObj, found := dict.Find("T"); found {
		if t, err := w.ctx.DereferenceStringOrHexLiteral(tObj, model.V10, nil); err == nil && t != "" {
			if name != "" {
				name += "."
			}
			name += t
		}
	}
	ft := inheritedType
	if ftObj, found := dict.Find("FT"); found {
		if n, err := w.ctx.DereferenceName(ftObj, model.V10, nil); err == nil {
			ft = string(n)
		}
	}

	if kidsObj, found := dict.Find("Kids"); found {
		if kids, err := w.ctx.DereferenceArray(kidsObj); err == nil && len(kids) > 0 {
			for _, k := range kids {
				w.walk(k, name, ft, depth+1)
			}
			return
		}
	}

	rectObj, found := dict.Find("Rect")
	if !found {
		return
	}
	rect, ok := w.rect(rectObj)
	if !ok {
		return
	}

	flags := w.flags(dict)
	def := fields.Definition{
		ID:          w.uniqueID(name),
		PageNumber:  w.page(obj, dict),
		X:           rect[0],
		Y:           rect[1],
		Width:       rect[2] - rect[0],
		Height:      rect[3] - rect[1],
		Kind:        kindFor(ft),
		DisplayName: name,
		Required:    flags&2 != 0,
	}
	// Tiny widgets (hidden checkboxes, hairline signature anchors) grow to
	// the smallest size a field can be dragged at.
	def.Width = math.Max(def.Width, geometry.MinFieldSize)
	def.Height = math.Max(def.Height, geometry.MinFieldSize)
	if err := def.Validate(); err != nil {
		logging.Logger().Debug("skipping form widget", slog.String("name", name), slog.String("error", err.Error()))
		return
	}
	w.out = append(w.out, def)
}

// rect returns a normalised [llx lly urx ury].
func (w *formWalker) rect(obj types.Object) ([4]float64, bool) {
	var r [4]float64
	arr, err := w.ctx.DereferenceArray(obj)
	if err != nil || len(arr) != 4 {
		return r, false
	}
	for i, c := range arr {
		f, err := w.ctx.DereferenceNumber(c)
		if err != nil {
			return r, false
		}
		r[i] = f
	}
	if r[0] > r[2] {
		r[0], r[2] = r[2], r[0]
	}
	if r[1] > r[3] {
		r[1], r[3] = r[3], r[1]
	}
	return r, true
}

// page finds the widget's page from the page Annots index, falling back to
// the widget's /P entry and finally to page 1.
func (w *formWalker) page(obj types.Object, dict types.Dict) int {
	if ir, ok := obj.(types.IndirectRef); ok {
		if p, ok := w.pageOfObj[int(ir.ObjectNumber)]; ok {
			return p
		}
	}
	if pObj, found := dict.Find("P"); found {
		if ir, ok := pObj.(types.IndirectRef); ok {
			if p, ok := w.pageOfDict[int(ir.ObjectNumber)]; ok {
				return p
			}
		}
	}
	return 1
}

func (w *formWalker) flags(dict types.Dict) int {
	if fObj, found := dict.Find("Ff"); found {
		if f, err := w.ctx.DereferenceInteger(fObj); err == nil && f != nil {
			return int(*f)
		}
	}
	return 0
}

func (w *formWalker) uniqueID(name string) string {
	id := strings.Trim(unsafeIDChars.ReplaceAllString(name, "_"), "_")
	if id == "" {
		id = "field"
	}
	candidate := id
	for n := 2; ; n++ {
		if _, taken := w.seen[candidate]; !taken {
			break
		}
		candidate = fmt.Sprintf("%s_%d", id, n)
	}
	w.seen[candidate] = struct{}{}
	return candidate
}

func kindFor(ft string) fields.Kind {
	switch ft {
	case "Btn":
		return fields.KindCheckbox
	case "Ch":
		return fields.KindDropdown
	case "Sig":
		return fields.KindSignature
	default:
		return fields.KindText
	}
}
