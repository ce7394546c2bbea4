package ocr

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesacredito/fidc-cli/internal/config"
	"github.com/mesacredito/fidc-cli/internal/model"
	"github.com/mesacredito/fidc-cli/internal/resilience"
)

func TestNewExtractor(t *testing.T) {
	t.Parallel()
	withKey := config.OCRConfig{Provider: "local", MistralKey: "mk"}
	noKey := config.OCRConfig{Provider: "local", PdfToTextPath: "/usr/bin/pdftotext"}

	tests := []struct {
		name string
		cfg  config.OCRConfig
		tool model.ExtractionTool
		mode model.ExtractionMode
		want Extractor
		err  string
	}{
		{"pypdf layout", noKey, model.ToolPyPDF, model.ModeMarkdown, &PdfToText{}, ""},
		{"default tool", noKey, "", "", &PdfToText{}, ""},
		{"docx", noKey, model.ToolDocx2Txt, model.ModeRaw, &Docx{}, ""},
		{"docling with key", withKey, model.ToolDocling, model.ModeMarkdown, &MistralOCR{}, ""},
		{"docling falls back", noKey, model.ToolDocling, model.ModeMarkdown, &PdfToText{}, ""},
		{"images with key", withKey, model.ToolPyPDF, model.ModeImages, &MistralOCR{}, ""},
		{"images without key", noKey, model.ToolPyPDF, model.ModeImages, nil, "images mode requires ocr.mistral_key"},
		{"mistral provider", config.OCRConfig{Provider: "mistral", MistralKey: "mk"}, model.ToolPyPDF, model.ModeRaw, &MistralOCR{}, ""},
		{"mistral provider missing key", config.OCRConfig{Provider: "mistral"}, model.ToolPyPDF, model.ModeRaw, nil, "mistral provider requires ocr.mistral_key"},
		{"unknown provider", config.OCRConfig{Provider: "unknown"}, model.ToolPyPDF, model.ModeRaw, nil, `unknown provider "unknown"`},
		{"unknown tool", noKey, "TESSERACT", model.ModeRaw, nil, `unknown extraction tool "TESSERACT"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ext, err := NewExtractor(tt.cfg, tt.tool, tt.mode)
			if tt.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, ext)
		})
	}
}

func TestNewExtractor_RawMode(t *testing.T) {
	t.Parallel()
	ext, err := NewExtractor(config.OCRConfig{}, model.ToolPyPDF, model.ModeRaw)
	require.NoError(t, err)
	p := ext.(*PdfToText)
	assert.True(t, p.raw)
	assert.Equal(t, []string{"-raw", "-enc", "UTF-8", "in.pdf", "-"}, p.args("in.pdf"))

	ext, err = NewExtractor(config.OCRConfig{}, model.ToolPyPDF, model.ModeMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "-layout", ext.(*PdfToText).args("in.pdf")[0])
}

func TestPdfToText_BinPath(t *testing.T) {
	t.Parallel()
	p := NewPdfToText("", false)
	assert.Equal(t, "pdftotext", p.binPath)

	p = NewPdfToText("/custom/pdftotext", false)
	assert.Equal(t, "/custom/pdftotext", p.binPath)
}

func TestMistralOCR_DefaultModel(t *testing.T) {
	t.Parallel()
	m := NewMistralOCR("key", "")
	assert.Equal(t, defaultMistralModel, m.model)
	assert.Equal(t, mistralOCREndpoint, m.endpoint)

	m = NewMistralOCR("key", "custom-model")
	assert.Equal(t, "custom-model", m.model)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func testMistral(url string) *MistralOCR {
	return &MistralOCR{
		apiKey:   "test-key",
		model:    "test-model",
		endpoint: url,
		client:   &http.Client{},
	}
}

func TestMistralOCR_ExtractText(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req mistralOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "document_url", req.Document.Type)
		assert.Contains(t, req.Document.DocumentURL, "data:application/pdf;base64,")

		resp := mistralOCRResponse{
			Pages: []mistralOCRPage{
				{Index: 0, Markdown: "| PL | R$ 1.000 |"},
				{Index: 1, Markdown: "Page two"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer srv.Close()

	pdfPath := writeFile(t, "FIDC_BEMOL_2024_08.pdf", []byte("%PDF-1.4 test content"))

	text, err := testMistral(srv.URL).ExtractText(context.Background(), pdfPath)
	require.NoError(t, err)
	assert.Equal(t, "| PL | R$ 1.000 |\n\nPage two", text)
}

func TestMistralOCR_ImageDocument(t *testing.T) {
	t.Parallel()
	doc := document("page.PNG", []byte{0x89, 'P', 'N', 'G'})
	assert.Equal(t, "image_url", doc.Type)
	assert.Contains(t, doc.ImageURL, "data:image/png;base64,")
	assert.Empty(t, doc.DocumentURL)
}

func TestMistralOCR_APIError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := testMistral(srv.URL).ExtractText(context.Background(), writeFile(t, "a.pdf", []byte("%PDF")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mistral API returned 401")
	assert.False(t, resilience.IsTransient(err))
}

func TestMistralOCR_RateLimitIsTransient(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testMistral(srv.URL).ExtractText(context.Background(), writeFile(t, "a.pdf", []byte("%PDF")))
	require.Error(t, err)
	var te *resilience.TransientError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
}

func TestMistralOCR_FileNotFound(t *testing.T) {
	t.Parallel()
	_, err := NewMistralOCR("key", "model").ExtractText(context.Background(), "/nonexistent/file.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read document")
}

func TestMistralOCR_MalformedResponse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{invalid json`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := testMistral(srv.URL).ExtractText(context.Background(), writeFile(t, "a.pdf", []byte("%PDF")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal mistral response")
}

func TestPdfToText_ExtractText_BinaryNotFound(t *testing.T) {
	t.Parallel()
	_, err := NewPdfToText("/nonexistent/pdftotext", false).ExtractText(context.Background(), "/tmp/test.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
}

func TestPdfToText_ExtractText_Success(t *testing.T) {
	fakeBin := writeFile(t, "pdftotext", []byte("#!/bin/sh\necho \"$1 Extracted text content\"\n"))
	require.NoError(t, os.Chmod(fakeBin, 0o755))

	text, err := NewPdfToText(fakeBin, true).ExtractText(context.Background(), "/tmp/dummy.pdf")
	require.NoError(t, err)
	assert.Contains(t, text, "-raw Extracted text content")
}

func writeDocx(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "FIDC_CREDZ_2024_05.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create(docxBody)
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestDocx_ExtractText(t *testing.T) {
	t.Parallel()
	body := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Administrador:</w:t></w:r><w:r><w:tab/><w:t>Banco X</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">PL </w:t></w:r><w:r><w:t>R$ 1.234,56</w:t></w:r></w:p>
</w:body>
</w:document>`
	text, err := NewDocx().ExtractText(context.Background(), writeDocx(t, body))
	require.NoError(t, err)
	assert.Equal(t, "Administrador:\tBanco X\nPL R$ 1.234,56", text)
}

func TestDocx_NotAZip(t *testing.T) {
	t.Parallel()
	_, err := NewDocx().ExtractText(context.Background(), writeFile(t, "x.docx", []byte("plain")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open docx")
}

func TestDocx_MissingBody(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "empty.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	_, err = zw.Create("word/styles.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = NewDocx().ExtractText(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no word/document.xml")
}
