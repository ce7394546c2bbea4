// Package ocr turns source documents into text for the extraction agent.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mesacredito/fidc-cli/internal/config"
	"github.com/mesacredito/fidc-cli/internal/model"
)

// Extractor extracts text content from a document.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// NewExtractor picks the reader for a prompt's extraction tool and mode.
// IMAGES mode always goes through the vision OCR; DOCLING prefers it and
// falls back to pdftotext -layout when no Mistral key is configured.
func NewExtractor(cfg config.OCRConfig, tool model.ExtractionTool, mode model.ExtractionMode) (Extractor, error) {
	switch cfg.Provider {
	case "local", "", "mistral":
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}

	if mode == model.ModeImages {
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: images mode requires ocr.mistral_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	}

	switch tool {
	case model.ToolDocx2Txt:
		return NewDocx(), nil
	case model.ToolDocling:
		if cfg.MistralKey == "" {
			zap.L().Debug("ocr: no mistral key, docling falls back to pdftotext")
			return NewPdfToText(cfg.PdfToTextPath, false), nil
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	case model.ToolPyPDF, "":
		if cfg.Provider == "mistral" {
			if cfg.MistralKey == "" {
				return nil, eris.New("ocr: mistral provider requires ocr.mistral_key")
			}
			return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
		}
		return NewPdfToText(cfg.PdfToTextPath, mode == model.ModeRaw), nil
	default:
		return nil, eris.Errorf("ocr: unknown extraction tool %q", tool)
	}
}
