package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"
)

// ImportConfig defines how topic rows are read from a spreadsheet.
type ImportConfig struct {
	FilePath            string // Path to the Excel file
	IDColumn            string // Column with the topic ID
	NameColumn          string // Column with the topic name
	SubjectColumn       string // Column with the subject ID
	GradeColumn         string // Column with the grade level
	DifficultyColumn    string // Column with the difficulty tier
	OrderColumn         string // Column with the order index within the subject
	PrerequisitesColumn string // Column with comma-separated prerequisite IDs
	SheetName           string // Name of the sheet to import
	StartRow            int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration.
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		IDColumn:            "A",
		NameColumn:          "B",
		SubjectColumn:       "C",
		GradeColumn:         "D",
		DifficultyColumn:    "E",
		OrderColumn:         "F",
		PrerequisitesColumn: "G",
		SheetName:           "Sheet1",
		StartRow:            2, // Skip the header row
	}
}

// ImportResult holds the result of an import operation.
type ImportResult struct {
	TotalProcessed int
	Imported       int
	Skipped        int
	Errors         []string
	Topics         []Topic
	// MissingPrereqs are prerequisite IDs referenced by imported rows but
	// absent from the sheet, sorted and deduplicated.
	MissingPrereqs []string
}

// ImportTopics reads topic rows from an Excel file. Rows without an ID are
// skipped; rows referencing a prerequisite that never appears in the sheet
// are reported as errors but still imported, so content teams can fix the
// reference without losing the row.
func ImportTopics(cfg ImportConfig) (*ImportResult, error) {
	f, err := excelize.OpenFile(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("opening spreadsheet: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(cfg.SheetName)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", cfg.SheetName, err)
	}

	result := &ImportResult{Errors: []string{}}
	seen := make(map[string]bool)

	for i := range rows {
		rowNum := i + 1
		if rowNum < cfg.StartRow {
			continue
		}
		result.TotalProcessed++

		id := cellValue(f, cfg.SheetName, cfg.IDColumn, rowNum)
		if id == "" {
			result.Skipped++
			continue
		}
		if seen[id] {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: duplicate topic id %q", rowNum, id))
			continue
		}
		seen[id] = true

		topic := Topic{
			ID:         id,
			Name:       norm.NFC.String(cellValue(f, cfg.SheetName, cfg.NameColumn, rowNum)),
			SubjectID:  cellValue(f, cfg.SheetName, cfg.SubjectColumn, rowNum),
			Difficulty: strings.ToLower(cellValue(f, cfg.SheetName, cfg.DifficultyColumn, rowNum)),
		}

		if v := cellValue(f, cfg.SheetName, cfg.GradeColumn, rowNum); v != "" {
			grade, err := strconv.Atoi(v)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("row %d: bad grade level %q", rowNum, v))
			} else {
				topic.GradeLevel = grade
			}
		}

		if v := cellValue(f, cfg.SheetName, cfg.OrderColumn, rowNum); v != "" {
			order, err := strconv.Atoi(v)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("row %d: bad order index %q", rowNum, v))
			} else {
				topic.OrderIndex = order
			}
		}

		if v := cellValue(f, cfg.SheetName, cfg.PrerequisitesColumn, rowNum); v != "" {
			for _, p := range strings.Split(v, ",") {
				if p = strings.TrimSpace(p); p != "" {
					topic.Prerequisites.Required = append(topic.Prerequisites.Required, p)
				}
			}
		}

		result.Topics = append(result.Topics, topic)
		result.Imported++
	}

	missing := make(map[string]bool)
	for _, topic := range result.Topics {
		for _, p := range topic.Prerequisites.Required {
			if !seen[p] {
				missing[p] = true
				result.Errors = append(result.Errors,
					fmt.Sprintf("topic %q: prerequisite %q not present in sheet", topic.ID, p))
			}
		}
	}
	for p := range missing {
		result.MissingPrereqs = append(result.MissingPrereqs, p)
	}
	sort.Strings(result.MissingPrereqs)

	return result, nil
}

func cellValue(f *excelize.File, sheet, col string, row int) string {
	if col == "" {
		return ""
	}
	v, err := f.GetCellValue(sheet, fmt.Sprintf("%s%d", col, row))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}
