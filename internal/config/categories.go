package config

import (
	"fmt"
	"os"

	"github.com/contributor-info/rollout/internal/models"
	"gopkg.in/yaml.v3"
)

// CategoryOverride defines a repository category's rollout ceiling.
type CategoryOverride struct {
	Category      string `yaml:"category"`
	MaxPercentage int    `yaml:"max_percentage"`
	Description   string `yaml:"description"`
	Priority      int    `yaml:"priority"`
}

// categoryFile is the on-disk shape of a category overrides file.
type categoryFile struct {
	Categories []CategoryOverride `yaml:"categories"`
}

// LoadCategoryOverrides reads category definitions from a YAML file. Each
// entry must name a known category with a percentage in [0,100].
func LoadCategoryOverrides(path string) ([]CategoryOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}

	var file categoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse categories file: %w", err)
	}

	for i, c := range file.Categories {
		if !models.ValidCategory(models.CategoryName(c.Category)) {
			return nil, fmt.Errorf("entry %d: unknown category %q", i, c.Category)
		}
		if c.MaxPercentage < 0 || c.MaxPercentage > 100 {
			return nil, fmt.Errorf("entry %d: max_percentage %d out of range [0,100]", i, c.MaxPercentage)
		}
	}

	return file.Categories, nil
}
