package pdf

import (
	"errors"
	"fmt"
)

// Library names the PDF library a backend call went through.
type Library string

const (
	LibraryPDFCPU     Library = "pdfcpu"
	LibraryLedongthuc Library = "ledongthuc"
)

var (
	// ErrDocumentClosed is returned by calls on a closed document.
	ErrDocumentClosed = errors.New("document is closed")
	// ErrPageOutOfRange is returned for page numbers outside the document.
	ErrPageOutOfRange = errors.New("page out of range")
)

// BackendError records which library and operation failed.
type BackendError struct {
	Library Library
	Op      string
	Page    int
	Err     error
}

func (e *BackendError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("%s: %s (page %d): %v", e.Library, e.Op, e.Page, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Library, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
