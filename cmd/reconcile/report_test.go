package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/wms-platform/ingredient-stock/internal/application"
	"github.com/wms-platform/ingredient-stock/internal/domain"
)

func sampleReport() *application.ReconcileReport {
	started := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	report := &application.ReconcileReport{DryRun: true, StartedAt: started}
	report.Add(application.ReconcileResult{
		Key:     domain.StockKey{OrganizationID: "org-1", SiteID: "site-1", ItemID: "flour"},
		Outcome: application.OutcomeInSync,
	})
	report.Add(application.ReconcileResult{
		Key:            domain.StockKey{OrganizationID: "org-1", SiteID: "site-1", ItemID: "sugar"},
		Outcome:        application.OutcomeWouldRealign,
		LedgerBalance:  decimal.RequireFromString("4.5"),
		QuantityOnHand: decimal.RequireFromString("6"),
		Drift:          decimal.RequireFromString("1.5"),
	})
	report.FinishedAt = started.Add(2 * time.Second)
	return report
}

func TestWriteReport(t *testing.T) {
	tests := []struct {
		format    string
		unmarshal func([]byte, any) error
	}{
		{formatJSON, json.Unmarshal},
		{formatYAML, yaml.Unmarshal},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeReport(&buf, tt.format, sampleReport()))

			var view reportView
			require.NoError(t, tt.unmarshal(buf.Bytes(), &view))

			assert.True(t, view.DryRun)
			assert.Equal(t, 2, view.Checked)
			assert.Equal(t, 1, view.InSync)
			assert.Equal(t, 1, view.Realigned)
			assert.Equal(t, "1.5", view.TotalDrift)
			assert.Equal(t, "2s", view.Duration)
			require.Len(t, view.Results, 1)
			assert.Equal(t, "org-1/site-1/sugar", view.Results[0].Key)
			assert.Equal(t, application.OutcomeWouldRealign, view.Results[0].Outcome)
			assert.Equal(t, "4.5", view.Results[0].LedgerBalance)
		})
	}
}

func TestWriteReport_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, writeReport(&buf, "xml", sampleReport()))
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{"org-1/site-1/flour", false},
		{"org-1/site-1", true},
		{"org-1//flour", true},
		{"a/b/c/d", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			key, err := parseKey(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.raw, key.String())
		})
	}
}
