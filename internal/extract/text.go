// ABOUTME: Plain text and markdown extractor
// ABOUTME: Reads UTF-8, falling back to GBK for legacy Chinese documents
package extract

import (
	"bytes"
	"fmt"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextExtractor reads .txt and markdown files
type TextExtractor struct{}

// NewTextExtractor creates a TextExtractor
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extensions returns the handled extensions
func (e *TextExtractor) Extensions() []string {
	return []string{".txt", ".md", ".markdown"}
}

// Extract returns the file contents as UTF-8
func (e *TextExtractor) Extract(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return DecodeText(data)
}

// DecodeText interprets data as UTF-8, or as GBK when it is not valid UTF-8
func DecodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), nil
	}

	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("text is neither UTF-8 nor GBK: %w", err)
	}
	return string(decoded), nil
}
