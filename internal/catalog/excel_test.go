package catalog_test

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-engine/internal/catalog"
)

func TestImportTopics(t *testing.T) {
	path := writeTestSheet(t, [][]any{
		{"ID", "Name", "Subject", "Grade", "Difficulty", "Order", "Prerequisites"},
		{"alg-01", "Variables", "algebra", 7, "Beginner", 1, ""},
		{"alg-02", "Linear Equations", "algebra", 7, "Intermediate", 2, "alg-01"},
		{"alg-03", "Simultaneous Equations", "algebra", 8, "Advanced", 3, "alg-01, alg-02"},
	})

	cfg := catalog.DefaultImportConfig()
	cfg.FilePath = path

	result, err := catalog.ImportTopics(cfg)
	if err != nil {
		t.Fatalf("ImportTopics() error = %v", err)
	}

	if result.Imported != 3 {
		t.Errorf("Imported = %d, want 3", result.Imported)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %v, want none", result.Errors)
	}

	got := result.Topics[2]
	if got.ID != "alg-03" {
		t.Fatalf("Topics[2].ID = %q, want alg-03", got.ID)
	}
	if got.Difficulty != "advanced" {
		t.Errorf("Difficulty = %q, want advanced (lowercased)", got.Difficulty)
	}
	if got.GradeLevel != 8 || got.OrderIndex != 3 {
		t.Errorf("GradeLevel/OrderIndex = %d/%d, want 8/3", got.GradeLevel, got.OrderIndex)
	}
	if len(got.Prerequisites.Required) != 2 || got.Prerequisites.Required[1] != "alg-02" {
		t.Errorf("Prerequisites.Required = %v, want [alg-01 alg-02]", got.Prerequisites.Required)
	}
}

func TestImportTopics_SkipsAndReports(t *testing.T) {
	path := writeTestSheet(t, [][]any{
		{"ID", "Name", "Subject", "Grade", "Difficulty", "Order", "Prerequisites"},
		{"", "No ID", "algebra", 7, "beginner", 1, ""},
		{"alg-01", "Variables", "algebra", "seven", "beginner", 1, ""},
		{"alg-01", "Duplicate", "algebra", 7, "beginner", 2, ""},
		{"alg-02", "Linear Equations", "algebra", 7, "beginner", 2, "missing-topic"},
	})

	cfg := catalog.DefaultImportConfig()
	cfg.FilePath = path

	result, err := catalog.ImportTopics(cfg)
	if err != nil {
		t.Fatalf("ImportTopics() error = %v", err)
	}

	if result.Imported != 2 {
		t.Errorf("Imported = %d, want 2", result.Imported)
	}
	if result.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2 (missing ID, duplicate ID)", result.Skipped)
	}
	// Bad grade, duplicate id, dangling prerequisite.
	if len(result.Errors) != 3 {
		t.Errorf("Errors = %v, want 3 entries", result.Errors)
	}
	if len(result.MissingPrereqs) != 1 || result.MissingPrereqs[0] != "missing-topic" {
		t.Errorf("MissingPrereqs = %v, want [missing-topic]", result.MissingPrereqs)
	}

	// The row with the dangling reference is kept, reference intact, so
	// content teams can fix it without re-entering the row.
	var dangling *catalog.Topic
	for i := range result.Topics {
		if result.Topics[i].ID == "alg-02" {
			dangling = &result.Topics[i]
		}
	}
	if dangling == nil {
		t.Fatal("alg-02 missing from imported topics")
	}
	if len(dangling.Prerequisites.Required) != 1 || dangling.Prerequisites.Required[0] != "missing-topic" {
		t.Errorf("alg-02 prerequisites = %v, want [missing-topic]", dangling.Prerequisites.Required)
	}
}

func TestImportTopics_MissingFile(t *testing.T) {
	cfg := catalog.DefaultImportConfig()
	cfg.FilePath = filepath.Join(t.TempDir(), "nope.xlsx")

	if _, err := catalog.ImportTopics(cfg); err == nil {
		t.Fatal("ImportTopics() should fail for a missing file")
	}
}

func writeTestSheet(t *testing.T, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	for i, row := range rows {
		for j, cell := range row {
			name, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue("Sheet1", name, cell); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}

	path := filepath.Join(t.TempDir(), "topics.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("saving sheet: %v", err)
	}
	return path
}
