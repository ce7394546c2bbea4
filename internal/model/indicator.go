package model

import "time"

// ValueType is the declared type of an indicator's observations.
type ValueType string

const (
	ValueTypeNumeric ValueType = "numeric"
	ValueTypeText    ValueType = "text"
	ValueTypeDate    ValueType = "date"
	ValueTypeInteger ValueType = "integer"
)

// Indicator is a canonical metric definition. Indicators are seeded
// administratively; the ingestion pipeline only resolves names against them.
type Indicator struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	ValueType   ValueType `json:"value_type"`
	Unit        string    `json:"unit,omitempty"`
}

// IndicatorValue is a periodic observation of an indicator for an asset.
// (AssetCode, IndicatorID, Month, Year) is unique.
type IndicatorValue struct {
	AssetCode    string         `json:"asset_code"`
	IndicatorID  int64          `json:"indicator_id"`
	Value        *float64       `json:"value"`
	Limit        *string        `json:"limit,omitempty"`
	IsUpperLimit *bool          `json:"is_upper_limit,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Month        string         `json:"month"` // two digits, "01".."12"
	Year         int            `json:"year"`
	CapturedAt   time.Time      `json:"captured_at"`
}

// RegistrationValue is a non-periodic fact about an asset ("dados cadastrais").
// (AssetCode, IndicatorID) is unique.
type RegistrationValue struct {
	AssetCode   string `json:"asset_code"`
	IndicatorID int64  `json:"indicator_id"`
	TextValue   string `json:"text_value"`
}

// ConsolidatedValue is one row of the periodic values report.
type ConsolidatedValue struct {
	AssetNickname string         `json:"asset_nickname"`
	IndicatorName string         `json:"indicator_name"`
	Value         *float64       `json:"value"`
	Limit         *string        `json:"limit"`
	IsUpperLimit  *bool          `json:"is_upper_limit"`
	Metadata      map[string]any `json:"metadata"`
	Month         string         `json:"month"`
	Year          int            `json:"year"`
	CapturedAt    time.Time      `json:"captured_at"`
}

// ConsolidatedRegistration is one row of the registration values report.
type ConsolidatedRegistration struct {
	AssetNickname string `json:"asset_nickname"`
	IndicatorName string `json:"indicator_name"`
	TextValue     string `json:"text_value"`
}
