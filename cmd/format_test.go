package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mesacredito/fidc-cli/internal/config"
	"github.com/mesacredito/fidc-cli/internal/cost"
	"github.com/mesacredito/fidc-cli/internal/fidc"
	"github.com/mesacredito/fidc-cli/internal/model"
)

func TestFormatItems(t *testing.T) {
	items := []fidc.RequestItem{
		{Filename: "FIDC_BEMOL_2024_03.pdf", FundName: "BEMOL", Year: 2024, Month: 3, Found: true,
			Prompt: &model.Prompt{SchemaName: "bemol"}},
		{Filename: "FIDC_NOVO_2024_03.pdf", FundName: "NOVO", Year: 2024, Month: 3},
		{Filename: "FIDC_X.pdf", Error: "invalid filename format"},
	}

	var buf bytes.Buffer
	formatItems(&buf, items)
	out := buf.String()

	assert.Contains(t, out, "FILE")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 5)
	assert.Contains(t, lines[2], "03/2024")
	assert.Contains(t, lines[2], "bemol")
	assert.Contains(t, lines[2], "ready")
	assert.Contains(t, lines[3], "no prompt")
	assert.Contains(t, lines[4], "invalid filename format")
}

func TestFormatBatch(t *testing.T) {
	r := fidc.BatchResult{
		BatchID: "b-1", Total: 2, Succeeded: 1, Failed: 1,
		Outcomes: []fidc.ProcessingOutcome{
			{Filename: "a.pdf", Success: true, RecordsWritten: 7, ModelUsed: "claude-sonnet-4-5", ElapsedTime: "1.20s", EstimatedCostUSD: 0.0045},
			{Filename: "b.pdf", Error: "fidc: extraction failed for b.pdf: boom"},
		},
	}

	var buf bytes.Buffer
	formatBatch(&buf, r)
	out := buf.String()

	assert.Contains(t, out, "$0.0045")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "batch b-1: 2 total, 1 succeeded, 1 failed")
}

func TestFormatSchemas(t *testing.T) {
	var buf bytes.Buffer
	formatSchemas(&buf, []string{"bemol", "unknown"})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[1], "yes")
	assert.Contains(t, lines[2], "missing")
}

func TestFormatValues(t *testing.T) {
	v := 1.5
	limit := "2,0%"
	upper := true
	rows := []model.ConsolidatedValue{
		{AssetNickname: "Bemol", IndicatorName: "pdd", Value: &v, Limit: &limit, IsUpperLimit: &upper,
			Month: "03", Year: 2024, CapturedAt: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)},
		{AssetNickname: "Bemol", IndicatorName: "pl", Month: "03", Year: 2024},
	}

	var buf bytes.Buffer
	formatValues(&buf, rows)
	out := buf.String()

	assert.Contains(t, out, "03/2024")
	assert.Contains(t, out, "1.5")
	assert.Contains(t, out, "<= 2,0%")
	assert.Contains(t, out, "2024-03-15 10:30")
}

func TestFormatRegistrations(t *testing.T) {
	var buf bytes.Buffer
	formatRegistrations(&buf, []model.ConsolidatedRegistration{
		{AssetNickname: "Bemol", IndicatorName: "cnpj", TextValue: "12.345.678/0001-90"},
	})
	assert.Contains(t, buf.String(), "12.345.678/0001-90")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "-", orDash(""))
}

func TestPricingRates(t *testing.T) {
	assert.Equal(t, cost.DefaultRates(), pricingRates(config.PricingConfig{}))

	rates := pricingRates(config.PricingConfig{Models: map[string]config.ModelPricing{
		"claude-sonnet-4-5-20250929": {Input: 3, Output: 15, CacheWriteMul: 1.25, CacheReadMul: 0.1},
	}})
	assert.Len(t, rates, 1)
	assert.InDelta(t, 15.0, rates["claude-sonnet-4-5-20250929"].Output, 0.001)
}
