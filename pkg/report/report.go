// Package report writes the per-run quality-control workbook: what survived
// each cleaning step, so an analyst can judge the run without replaying it.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ConditionCount is one condition's trial tally before and after amplitude
// rejection.
type ConditionCount struct {
	Label  string
	Before int
	After  int
}

// Summary is everything the workbook reports about one run.
type Summary struct {
	RunID             string
	Subject           string
	Session           string
	Pipeline          string
	Conditions        []ConditionCount
	DroppedChannels   []string
	DroppedComponents []int
	BurstWindows      int
}

// Write renders the summary as an xlsx workbook at path, creating parent
// directories as needed. The workbook has a Run sheet with the identifying
// fields and a Conditions sheet with one row per condition.
func Write(path string, s Summary) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("report dir: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	const runSheet = "Run"
	f.SetSheetName(f.GetSheetName(0), runSheet)

	rows := [][]any{
		{"Run ID", s.RunID},
		{"Subject", s.Subject},
		{"Session", s.Session},
		{"Pipeline", s.Pipeline},
		{"Dropped channels", strings.Join(s.DroppedChannels, ", ")},
		{"Dropped components", joinInts(s.DroppedComponents)},
		{"Burst windows cleaned", s.BurstWindows},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(runSheet, cell, &row); err != nil {
			return err
		}
	}

	const condSheet = "Conditions"
	if _, err := f.NewSheet(condSheet); err != nil {
		return err
	}
	header := []any{"Condition", "Trials before rejection", "Trials after rejection"}
	if err := f.SetSheetRow(condSheet, "A1", &header); err != nil {
		return err
	}
	conds := append([]ConditionCount(nil), s.Conditions...)
	sort.Slice(conds, func(i, j int) bool { return conds[i].Label < conds[j].Label })
	for i, c := range conds {
		row := []any{c.Label, c.Before, c.After}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(condSheet, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func joinInts(is []int) string {
	parts := make([]string, len(is))
	for i, v := range is {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
