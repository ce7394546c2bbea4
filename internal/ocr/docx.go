package ocr

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

const docxBody = "word/document.xml"

// Docx extracts paragraph text from Word documents.
type Docx struct{}

// NewDocx creates a Docx extractor.
func NewDocx() *Docx {
	return &Docx{}
}

// ExtractText returns the document body, one paragraph per line. Tabs and
// line breaks inside a paragraph are kept.
func (d *Docx) ExtractText(ctx context.Context, path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: open docx %s", path)
	}
	defer zr.Close() //nolint:errcheck

	for _, f := range zr.File {
		if f.Name != docxBody {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", eris.Wrapf(err, "ocr: open %s in %s", docxBody, path)
		}
		defer rc.Close() //nolint:errcheck
		return docxText(ctx, rc)
	}
	return "", eris.Errorf("ocr: %s has no %s", path, docxBody)
}

func docxText(ctx context.Context, r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", eris.Wrap(err, "ocr: parse docx xml")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
