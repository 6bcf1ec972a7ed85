package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed achievements.schema.json
var achievementsSchema string

// LoadAchievements reads the achievement catalog JSON at path, validates it
// against the embedded schema and returns the definitions. Any validation
// failure is a configuration error and should abort startup.
func LoadAchievements(path string) ([]AchievementDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading achievement catalog: %w", err)
	}
	return ParseAchievements(data)
}

// ParseAchievements validates and parses achievement catalog JSON.
func ParseAchievements(data []byte) ([]AchievementDefinition, error) {
	schemaLoader := gojsonschema.NewStringLoader(achievementsSchema)
	docLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("validating achievement catalog: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, fmt.Errorf("achievement catalog is invalid: %s", strings.Join(msgs, "; "))
	}

	var doc struct {
		Achievements []AchievementDefinition `json:"achievements"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing achievement catalog: %w", err)
	}

	seen := make(map[string]bool, len(doc.Achievements))
	for _, def := range doc.Achievements {
		if seen[def.Code] {
			return nil, fmt.Errorf("achievement catalog has duplicate code %q", def.Code)
		}
		seen[def.Code] = true
	}

	slog.Info("achievement catalog loaded", "achievements", len(doc.Achievements))
	return doc.Achievements, nil
}
