package extract

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// pdfText returns the plain text of every page. The PDF library panics on
// some malformed inputs, so panics are turned into errors.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read PDF text: %w", err)
	}

	var buf bytes.Buffer
	if _, err = io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read PDF text: %w", err)
	}

	return buf.String(), nil
}
