// Command importer converts a topic spreadsheet into the YAML catalog
// consumed by the engine. Content teams maintain topics in Excel; this
// tool validates the sheet, checks the prerequisite graph and writes one
// YAML file per topic.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-engine/internal/catalog"
	"github.com/p-n-ai/pai-engine/internal/graph"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	var (
		file     = flag.String("file", "", "path to the topic spreadsheet (required)")
		sheet    = flag.String("sheet", "", "sheet name (default Sheet1)")
		outDir   = flag.String("out", "./catalog/topics", "directory for generated topic YAML")
		startRow = flag.Int("start-row", 0, "first data row, 1-based (default 2)")
		dryRun   = flag.Bool("dry-run", false, "validate only, write nothing")
	)
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := catalog.DefaultImportConfig()
	cfg.FilePath = *file
	if *sheet != "" {
		cfg.SheetName = *sheet
	}
	if *startRow > 0 {
		cfg.StartRow = *startRow
	}

	result, err := catalog.ImportTopics(cfg)
	if err != nil {
		slog.Error("import failed", "error", err)
		os.Exit(1)
	}

	for _, msg := range result.Errors {
		slog.Warn("import issue", "detail", msg)
	}

	// Dangling prerequisite references are already reported above and the
	// rows still written, so content teams can fix the reference without
	// losing the row. Stub the missing IDs for the graph check: only
	// cycles and duplicate IDs abort the import.
	checkTopics := result.Topics
	for _, id := range result.MissingPrereqs {
		checkTopics = append(checkTopics, catalog.Topic{ID: id, Name: id})
	}
	if _, err := graph.New(checkTopics, graph.DefaultMasteryThreshold); err != nil {
		slog.Error("imported topics do not form a valid prerequisite graph", "error", err)
		os.Exit(1)
	}

	if !*dryRun {
		if err := writeTopics(*outDir, result.Topics); err != nil {
			slog.Error("writing topic files failed", "error", err)
			os.Exit(1)
		}
	}

	fmt.Printf("processed %d rows: %d imported, %d skipped, %d issues\n",
		result.TotalProcessed, result.Imported, result.Skipped, len(result.Errors))
	if *dryRun {
		fmt.Println("dry run, nothing written")
	}
}

func writeTopics(dir string, topics []catalog.Topic) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	for _, topic := range topics {
		data, err := yaml.Marshal(topic)
		if err != nil {
			return fmt.Errorf("marshaling topic %q: %w", topic.ID, err)
		}
		path := filepath.Join(dir, topic.ID+".yaml")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}
