package descriptions

import "sort"

// Tool descriptions with practical examples and workflows

const (
	// Session lifecycle
	LayoutOpenDescription = `Open a layout session on a field template or on a PDF with an existing form.

**When to use:** Before any other layout tool. Pass "template" for a YAML template (id, document, fields) or "document" to seed the fields from a PDF's AcroForm widgets.

**Why it's useful:** The session keeps field positions, values and assignments in memory while you move things around; nothing touches the template until you save.

**Examples:**
• Edit a saved layout: "Open lease.layout.yaml"
• Start from a fillable PDF: "Open w9.pdf and show me its fields"

**Common workflows:**
1. Layout: layout_open → layout_preview → layout_pointer (drag) → layout_save
2. Filling: layout_open → layout_set_value → layout_preview → layout_generate

**Best practices:** Keep the returned session_id; every other tool needs it. If the PDF cannot be read the session still opens for editing, with preview and generation disabled.`

	LayoutStatusDescription = `Report the state of a layout session.

**When to use:** To check the current page, zoom, render state, active drag, override count and completion.

**Why it's useful:** A failed render shows up here as TRANSIENT_RENDER_FAILURE while the last good preview stays available.`

	LayoutCloseDescription = `Close a layout session and release its document.

**When to use:** When you are done with a session. Unsaved overrides are discarded.`

	// Viewport
	LayoutSetPageDescription = `Switch the session to another page (1-based).

**When to use:** Fields live on specific pages; only the current page is previewed and hit-tested.

**Best practices:** Switching pages cancels an active drag and keeps its last position.`

	LayoutZoomDescription = `Change the preview zoom.

**When to use:** action "in" or "out" steps the zoom, "set" applies value, "reset" returns to 1.0. The zoom is clamped to 0.5-3.0.

**Why it's useful:** The render scale is the fit-to-container scale times the zoom, so pointer coordinates always map back to page points.`

	LayoutContainerDescription = `Tell the session how large the preview area is, in pixels.

**When to use:** When the display area changes. The page is fitted into 90% of the area before zoom is applied.`

	LayoutEditModeDescription = `Toggle edit mode.

**When to use:** In edit mode the preview draws every field as a tinted box with its label; moved fields are drawn in a different colour. Values are always drawn.`

	// Interaction
	LayoutPointerDescription = `Send a pointer event to drag or resize a field.

**When to use:** event "down" at a pixel position over a field starts a move; add field_id and handle (top-left, top-right, bottom-left, bottom-right) to start a resize instead. Follow with "move" events, then "up" to finish or "cancel" to stop where you are.

**Why it's useful:** Positions are computed from the drag's starting point and the preview scale, so the result does not drift however many move events you send.

**Examples:**
• Move a field 50px right and 20px up: down (100,60) → move (150,40) → up (150,40)
• Make a signature box wider: down with field_id=signature handle=top-right → move → up

**Best practices:** Preview first; drags need a rendered frame of the current page. Fields are clamped to non-negative positions and a minimum 4pt size.`

	LayoutSetValueDescription = `Set a field's value.

**When to use:** Filling in the form. The preview re-renders shortly after the last edit. For checkboxes any non-empty value means checked.`

	LayoutAssignDescription = `Assign a field to a party (signer, tenant, landlord ...).

**When to use:** Splitting a form between several people. A field has at most one assignee; assigning again replaces the previous one.`

	LayoutUnassignDescription = `Remove a field's assignee.`

	// Reading
	LayoutFieldsDescription = `List the fields on the current page with their effective positions.

**When to use:** To see where fields are, which were moved in this session, their values and assignees. Positions are in points from the page's bottom-left corner.`

	LayoutProgressDescription = `Show per-assignee progress and unassigned fields.

**When to use:** To see who still has fields to fill. Progress counts assigned and completed fields for each assignee.`

	LayoutPreviewDescription = `Render the current page with field overlays and return it as a PNG.

**When to use:** To look at the page, check positions after a drag, or get the pixel coordinates to use with layout_pointer.

**Why it's useful:** The image uses the same scale the pointer events are interpreted at, so coordinates read off the image can be sent straight back.`

	// Persistence
	LayoutClearOverridesDescription = `Discard every position change made in this session.`

	LayoutSaveDescription = `Save the layout: fold the session's position changes into the template and write it back.

**When to use:** When the new positions should become the template's definitions. Sessions opened from a PDF are saved next to it as <name>.layout.yaml.`

	LayoutGenerateDescription = `Generate a filled copy of the document.

**When to use:** When the values are complete. Each value is stamped at its field's current position (including unsaved moves). Fields that cannot be stamped are reported as skipped.

**Best practices:** Check layout_progress first so required fields are not left empty.`

	LayoutServerInfoDescription = `Get server information, available tools and the templates and PDFs in the document directory.

**When to use:** First contact with the server, to find something to open.`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	"layout_open":            LayoutOpenDescription,
	"layout_status":          LayoutStatusDescription,
	"layout_close":           LayoutCloseDescription,
	"layout_set_page":        LayoutSetPageDescription,
	"layout_zoom":            LayoutZoomDescription,
	"layout_container":       LayoutContainerDescription,
	"layout_edit_mode":       LayoutEditModeDescription,
	"layout_pointer":         LayoutPointerDescription,
	"layout_set_value":       LayoutSetValueDescription,
	"layout_assign":          LayoutAssignDescription,
	"layout_unassign":        LayoutUnassignDescription,
	"layout_fields":          LayoutFieldsDescription,
	"layout_progress":        LayoutProgressDescription,
	"layout_preview":         LayoutPreviewDescription,
	"layout_clear_overrides": LayoutClearOverridesDescription,
	"layout_save":            LayoutSaveDescription,
	"layout_generate":        LayoutGenerateDescription,
	"layout_server_info":     LayoutServerInfoDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the available tool names in sorted order
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
