// ABOUTME: Word .docx extractor reading paragraph text from word/document.xml
// ABOUTME: Keeps paragraph breaks so the segmenter can cut on them
package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

// DocxExtractor reads Office Open XML word documents
type DocxExtractor struct{}

// NewDocxExtractor creates a DocxExtractor
func NewDocxExtractor() *DocxExtractor {
	return &DocxExtractor{}
}

// Extensions returns the handled extensions
func (e *DocxExtractor) Extensions() []string {
	return []string{".docx"}
}

// Extract returns the document's paragraphs separated by blank lines
func (e *DocxExtractor) Extract(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("not a docx archive: %w", err)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		if f.Name != docxBody {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer func() { _ = rc.Close() }()
		return docxText(rc)
	}
	return "", fmt.Errorf("docx archive has no %s", docxBody)
}

// docxText walks WordprocessingML, keeping w:t runs, tabs and breaks
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		doc    strings.Builder
		para   strings.Builder
		inText bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("invalid document XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if text := strings.TrimSpace(para.String()); text != "" {
					if doc.Len() > 0 {
						doc.WriteString("\n\n")
					}
					doc.WriteString(text)
				}
				para.Reset()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return doc.String(), nil
}
