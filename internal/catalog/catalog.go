// Package catalog loads the badge catalog seed file.
package catalog

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/refo-app/refo-gamification/internal/models"
)

// File is the on-disk layout of a badge catalog.
type File struct {
	Badges []Entry `yaml:"badges" validate:"required,min=1,unique=Name,dive"`
}

// Entry describes one badge rule.
type Entry struct {
	Name             string  `yaml:"name" validate:"required,max=100"`
	Description      string  `yaml:"description"`
	Icon             string  `yaml:"icon" validate:"max=50"`
	RequirementType  string  `yaml:"requirement_type" validate:"required,oneof=tasks_completed streak_days earnings_reached"`
	RequirementValue float64 `yaml:"requirement_value" validate:"gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates the catalog at path.
func Load(path string) ([]models.Badge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read badge catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog. Unknown fields are rejected.
func Parse(data []byte) ([]models.Badge, error) {
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse badge catalog: %w", err)
	}

	if err := validate.Struct(&file); err != nil {
		return nil, fmt.Errorf("invalid badge catalog: %w", err)
	}

	badges := make([]models.Badge, 0, len(file.Badges))
	for _, e := range file.Badges {
		badges = append(badges, models.Badge{
			Name:             e.Name,
			Description:      e.Description,
			Icon:             e.Icon,
			RequirementType:  models.RequirementType(e.RequirementType),
			RequirementValue: e.RequirementValue,
		})
	}
	return badges, nil
}
