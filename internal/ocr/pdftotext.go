package ocr

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text from PDFs using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
	raw     bool
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext"
// is used. raw keeps content stream order (-raw) instead of the page layout.
func NewPdfToText(binPath string, raw bool) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath, raw: raw}
}

func (p *PdfToText) args(pdfPath string) []string {
	mode := "-layout"
	if p.raw {
		mode = "-raw"
	}
	return []string{mode, "-enc", "UTF-8", pdfPath, "-"}
}

// ExtractText runs pdftotext on the given PDF and returns stdout.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, p.args(pdfPath)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}

	return stdout.String(), nil
}
