package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/mesacredito/fidc-cli/internal/resilience"
)

const (
	mistralOCREndpoint  = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "mistral-ocr-latest"
)

// MistralOCR extracts markdown from PDFs and page images using the Mistral OCR API.
type MistralOCR struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewMistralOCR creates a MistralOCR extractor. If model is empty, the default is used.
func NewMistralOCR(apiKey, model string) *MistralOCR {
	if model == "" {
		model = defaultMistralModel
	}
	return &MistralOCR{
		apiKey:   apiKey,
		model:    model,
		endpoint: mistralOCREndpoint,
		client:   &http.Client{},
	}
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type mistralOCRResponse struct {
	Pages []mistralOCRPage `json:"pages"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// document builds the request payload: scanned pages go as image_url, anything else as a PDF.
func document(path string, data []byte) mistralOCRDocument {
	encoded := base64.StdEncoding.EncodeToString(data)
	if mime, ok := imageTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mistralOCRDocument{Type: "image_url", ImageURL: "data:" + mime + ";base64," + encoded}
	}
	return mistralOCRDocument{Type: "document_url", DocumentURL: "data:application/pdf;base64," + encoded}
}

// ExtractText reads a document, sends it to Mistral OCR, and returns the page markdown.
func (m *MistralOCR) ExtractText(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: read document %s", path)
	}

	bodyBytes, err := json.Marshal(mistralOCRRequest{Model: m.model, Document: document(path, data)})
	if err != nil {
		return "", eris.Wrap(err, "ocr: marshal mistral request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", eris.Wrap(err, "ocr: create mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "ocr: mistral API call")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "ocr: read mistral response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("ocr: mistral API returned %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(err, resp.StatusCode)
		}
		return "", err
	}

	var ocrResp mistralOCRResponse
	if err := json.Unmarshal(respBody, &ocrResp); err != nil {
		return "", eris.Wrap(err, "ocr: unmarshal mistral response")
	}

	var sb strings.Builder
	for i, page := range ocrResp.Pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(page.Markdown)
	}

	return sb.String(), nil
}
