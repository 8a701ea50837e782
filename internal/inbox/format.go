// Package inbox processes the heterogeneous file drop directory (spec
// §4.5): format detection and text extraction, a no-AI quick
// classification pass, and bounded AI enrichment for files the quick
// pass can't place.
package inbox

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/tealeg/xlsx"
	"github.com/yuin/goldmark"
)

// maxExtractedBytes is the truncation ceiling for extracted text (spec
// §4.5: "truncated at 100 KB at a UTF-8 char boundary with a visible
// marker").
const maxExtractedBytes = 100 * 1024

const truncationMarker = "\n\n[... truncated ...]"

// Format identifies the detected file kind.
type Format string

const (
	FormatMarkdown   Format = "markdown"
	FormatPlaintext  Format = "plaintext"
	FormatPDF        Format = "pdf"
	FormatDOCX       Format = "docx"
	FormatPPTX       Format = "pptx"
	FormatSpreadsheet Format = "spreadsheet"
	FormatHTML       Format = "html"
	FormatRTF        Format = "rtf"
	FormatUnsupported Format = "unsupported"
)

// DetectFormat maps a file extension to a Format (spec §4.5 "Format
// detection by file extension").
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".txt":
		return FormatPlaintext
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	case ".pptx":
		return FormatPPTX
	case ".xlsx", ".xls", ".ods":
		return FormatSpreadsheet
	case ".html", ".htm":
		return FormatHTML
	case ".rtf":
		return FormatRTF
	default:
		return FormatUnsupported
	}
}

// Extracted is the result of pulling text out of one inbox file.
type Extracted struct {
	Format    Format
	Text      string
	Truncated bool
}

// ExtractText dispatches to the format-specific extractor and truncates
// the result, returning ErrUnsupported for unsupported formats so
// callers can route them to manual review instead of treating it as a
// hard failure.
func ExtractText(path string) (Extracted, error) {
	format := DetectFormat(path)

	var text string
	var err error
	switch format {
	case FormatMarkdown:
		text, err = extractMarkdown(path)
	case FormatPlaintext:
		text, err = extractPlain(path)
	case FormatPDF:
		text, err = extractPDF(path)
	case FormatDOCX:
		text, err = extractZipXML(path, "word/document.xml", "w:t")
	case FormatPPTX:
		text, err = extractPPTX(path)
	case FormatSpreadsheet:
		text, err = extractSpreadsheet(path)
	case FormatHTML:
		text, err = extractHTML(path)
	case FormatRTF:
		text, err = extractRTF(path)
	default:
		return Extracted{Format: FormatUnsupported}, ErrUnsupported
	}
	if err != nil {
		return Extracted{Format: format}, err
	}

	truncated := false
	if len(text) > maxExtractedBytes {
		text = truncateAtRuneBoundary(text, maxExtractedBytes) + truncationMarker
		truncated = true
	}
	return Extracted{Format: format, Text: text, Truncated: truncated}, nil
}

// ErrUnsupported is returned for file extensions with no extractor
// (spec §4.5: "Everything else: unsupported -> route to manual-review
// bucket").
var ErrUnsupported = fmt.Errorf("inbox: unsupported format")

func truncateAtRuneBoundary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	b := []byte(s)[:max]
	for !isValidUTF8Start(b) && len(b) > 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}

func isValidUTF8Start(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	last := b[len(b)-1]
	// Continuation bytes (10xxxxxx) mid-rune are not a valid cut point.
	return last&0xC0 != 0x80
}

func extractPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// extractMarkdown renders the file through goldmark to HTML, then
// strips markup via goquery the same way extractHTML does, so the
// classifier and AI enrichment prompt see prose rather than raw
// markdown syntax (headings/emphasis markers/list bullets stripped).
func extractMarkdown(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	var buf bytes.Buffer
	if err := goldmark.Convert(data, &buf); err != nil {
		return "", fmt.Errorf("render markdown %s: %w", path, err)
	}

	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		return "", fmt.Errorf("parse rendered markdown %s: %w", path, err)
	}
	return strings.TrimSpace(doc.Text()), nil
}

// extractPDF wraps ledongthuc/pdf in a panic-catching boundary: the
// spec calls out malformed PDFs crashing the extractor directly (spec
// §4.5), so a recover converts that into a plain error for the batch
// to log and move past.
func extractPDF(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract pdf %s: recovered panic: %v", path, r)
		}
	}()

	f, r, openErr := pdf.Open(path)
	if openErr != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, openErr)
	}
	defer f.Close()

	reader, textErr := r.GetPlainText()
	if textErr != nil {
		return "", fmt.Errorf("extract pdf text %s: %w", path, textErr)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, reader); err != nil {
		return "", fmt.Errorf("read pdf text %s: %w", path, err)
	}
	return sb.String(), nil
}

// extractZipXML treats path as a ZIP archive, reads the named inner
// entry, and streams its XML collecting text from nodes whose local
// name matches textTag (spec §4.5: "treat as ZIP; walk XML via a
// streaming parser, collecting w:t / a:t text nodes with
// paragraph/slide boundaries").
func extractZipXML(path, entryName, textTag string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open zip %s: %w", path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != entryName {
			continue
		}
		rc, openErr := f.Open()
		if openErr != nil {
			return "", fmt.Errorf("open entry %s: %w", entryName, openErr)
		}
		defer rc.Close()
		return walkTextNodes(rc, textTag)
	}
	return "", fmt.Errorf("entry %s not found in %s", entryName, path)
}

// extractPPTX walks every slide entry (ppt/slides/slideN.xml) in
// presentation order, since unlike DOCX there is no single body entry.
func extractPPTX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open zip %s: %w", path, err)
	}
	defer zr.Close()

	slideRe := regexp.MustCompile(`^ppt/slides/slide\d+\.xml$`)
	var sb strings.Builder
	for _, f := range zr.File {
		if !slideRe.MatchString(f.Name) {
			continue
		}
		rc, openErr := f.Open()
		if openErr != nil {
			continue
		}
		text, walkErr := walkTextNodes(rc, "a:t")
		rc.Close()
		if walkErr != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// walkTextNodes uses a streaming xml.Decoder so large documents don't
// need to be held fully in memory, accumulating chardata from elements
// matching textTag and a newline at each paragraph/slide break.
func walkTextNodes(r io.Reader, textTag string) (string, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder
	var inText bool
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == textTag {
				inText = true
			} else if t.Name.Local == "p" {
				sb.WriteString("\n")
			}
		case xml.EndElement:
			if t.Name.Local == textTag {
				inText = false
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

// extractSpreadsheet renders each sheet as a markdown table (spec
// §4.5: "per-sheet table render as markdown").
func extractSpreadsheet(path string) (string, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("open spreadsheet %s: %w", path, err)
	}

	var sb strings.Builder
	for _, sheet := range wb.Sheets {
		sb.WriteString(fmt.Sprintf("## %s\n\n", sheet.Name))
		for _, row := range sheet.Rows {
			var cells []string
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func extractHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open html %s: %w", path, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("parse html %s: %w", path, err)
	}
	return strings.TrimSpace(doc.Text()), nil
}

var rtfControlWord = regexp.MustCompile(`\\[a-zA-Z]+-?\d* ?|[{}]`)

// extractRTF strips control words and braces with a regex pass. No
// ecosystem RTF library surfaced in the dependency set this project
// draws from, so this is the one stdlib-only extractor in the package
// (documented in DESIGN.md).
func extractRTF(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read rtf %s: %w", path, err)
	}
	return strings.TrimSpace(rtfControlWord.ReplaceAllString(string(data), " ")), nil
}
