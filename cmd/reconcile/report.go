package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/wms-platform/ingredient-stock/internal/application"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// reportView renders decimals as strings in both formats
type reportView struct {
	DryRun     bool         `json:"dryRun" yaml:"dryRun"`
	Checked    int          `json:"checked" yaml:"checked"`
	InSync     int          `json:"inSync" yaml:"inSync"`
	Realigned  int          `json:"realigned" yaml:"realigned"`
	Failed     int          `json:"failed" yaml:"failed"`
	TotalDrift string       `json:"totalDrift" yaml:"totalDrift"`
	Duration   string       `json:"duration" yaml:"duration"`
	Results    []resultView `json:"results" yaml:"results"`
}

type resultView struct {
	Key            string `json:"key" yaml:"key"`
	Outcome        string `json:"outcome" yaml:"outcome"`
	LedgerBalance  string `json:"ledgerBalance" yaml:"ledgerBalance"`
	QuantityOnHand string `json:"quantityOnHand" yaml:"quantityOnHand"`
	Drift          string `json:"drift" yaml:"drift"`
	Error          string `json:"error,omitempty" yaml:"error,omitempty"`
}

func toReportView(report *application.ReconcileReport) reportView {
	view := reportView{
		DryRun:     report.DryRun,
		Checked:    report.Checked,
		InSync:     report.InSync,
		Realigned:  report.Realigned,
		Failed:     report.Failed,
		TotalDrift: report.TotalDrift.String(),
		Duration:   report.FinishedAt.Sub(report.StartedAt).String(),
		Results:    make([]resultView, 0, len(report.Results)),
	}
	for _, result := range report.Results {
		view.Results = append(view.Results, resultView{
			Key:            result.Key.String(),
			Outcome:        result.Outcome,
			LedgerBalance:  result.LedgerBalance.String(),
			QuantityOnHand: result.QuantityOnHand.String(),
			Drift:          result.Drift.String(),
			Error:          result.Error,
		})
	}
	return view
}

func writeReport(w io.Writer, format string, report *application.ReconcileReport) error {
	view := toReportView(report)

	switch format {
	case formatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(view)
	case formatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(view); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
