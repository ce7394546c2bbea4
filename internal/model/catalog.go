package model

import (
	"encoding/json"
	"time"
)

// ExtractionTool selects how text is pulled out of a source document.
type ExtractionTool string

const (
	ToolDocling  ExtractionTool = "DOCLING"
	ToolPyPDF    ExtractionTool = "PYPDF"
	ToolDocx2Txt ExtractionTool = "DOCX2TXT"
)

// ExtractionMode selects the representation handed to the model.
type ExtractionMode string

const (
	ModeMarkdown ExtractionMode = "MARKDOWN"
	ModeRaw      ExtractionMode = "RAW"
	ModeImages   ExtractionMode = "IMAGES"
)

// Asset is a fund tracked by the desk.
type Asset struct {
	Code     string `json:"code" yaml:"code"`
	Nickname string `json:"nickname" yaml:"nickname"`
	Active   bool   `json:"active" yaml:"active"`
}

// Prompt is a prompt catalog entry: everything needed to configure one
// extraction agent call for a fund.
type Prompt struct {
	ID             int64          `json:"id" yaml:"-"`
	FundName       string         `json:"fund_name" yaml:"fund_name"`
	AssetCode      string         `json:"asset_code" yaml:"asset_code"`
	SchemaName     string         `json:"schema_name" yaml:"schema_name"`
	Models         []string       `json:"models" yaml:"models"`
	SystemPrompt   string         `json:"system_prompt" yaml:"system_prompt"`
	UserPrompt     string         `json:"user_prompt" yaml:"user_prompt"`
	Temperature    float64        `json:"temperature" yaml:"temperature"`
	MaxTokens      int            `json:"max_tokens" yaml:"max_tokens"`
	Retries        int            `json:"retries" yaml:"retries"`
	ImageMode      bool           `json:"image_mode" yaml:"image_mode"`
	ExtractionTool ExtractionTool `json:"extraction_tool" yaml:"extraction_tool"`
	ExtractionMode ExtractionMode `json:"extraction_mode" yaml:"extraction_mode"`
	UpdatedAt      time.Time      `json:"updated_at" yaml:"-"`
}

// SchemaRecord is the audit copy of a registered extraction schema.
type SchemaRecord struct {
	Name       string          `json:"name"`
	Definition json.RawMessage `json:"definition"`
}
