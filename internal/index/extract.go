package index

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractText returns the text of an object body. PDFs are parsed page by
// page; any other body is read as UTF-8 with invalid bytes dropped.
func extractText(key string, data []byte) (string, error) {
	if strings.ToLower(path.Ext(key)) != ".pdf" {
		return strings.ToValidUTF8(string(data), ""), nil
	}
	return pdfText(data)
}

func pdfText(data []byte) (text string, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	return strings.ToValidUTF8(string(b), ""), nil
}
