package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfParser extracts the text layer of a PDF upload. Scanned PDFs without a
// text layer parse to an empty string; OCR is out of scope.
type pdfParser struct{}

func (p *pdfParser) Parse(data []byte) (Parsed, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Parsed{}, fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return Parsed{}, fmt.Errorf("extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return Parsed{}, fmt.Errorf("read pdf text: %w", err)
	}
	return Parsed{Text: strings.TrimSpace(buf.String())}, nil
}
