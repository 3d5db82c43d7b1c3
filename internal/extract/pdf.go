package extract

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page holds the plain text of a single PDF page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// PDFPages extracts plain text from the PDF at path, one entry per page.
// Pages with no extractable text (scanned images, empty pages) are returned
// with empty Text so page numbering stays aligned with the source file.
// An unreadable or structurally corrupt file is an error; the caller decides
// whether that is terminal.
func PDFPages(path string) (pages []Page, err error) {
	// The pdf package panics on some malformed files; convert that to an error.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("parsing pdf %s: %v", path, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages = make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unparseable page is not fatal; the rest of the
			// document is still worth indexing.
			pages = append(pages, Page{Number: i})
			continue
		}
		pages = append(pages, Page{Number: i, Text: strings.TrimSpace(text)})
	}

	return pages, nil
}
