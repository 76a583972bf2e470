// Package extract pulls plain text out of uploaded documents for the cases
// where a file cannot be attached to a model call directly.
package extract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Text returns the plain text content of a document. PDFs go through a real
// parser; anything else is treated as UTF-8 text.
func Text(data []byte, mimeType string) (string, error) {
	if strings.HasPrefix(mimeType, "application/pdf") {
		return pdfText(data)
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("document is not valid utf-8 text")
	}
	return string(data), nil
}

// pdfText concatenates the text of every page. The parser panics on some
// malformed files, so the panic is converted into an error here.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	content, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(content); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
