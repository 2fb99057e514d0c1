package criteria

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mind-engage/evaluator-portal/internal/scoring"
)

//go:embed fallback.yaml
var fallbackYAML []byte

type rubricFile struct {
	Groups []scoring.Group `yaml:"groups"`
}

// DefaultRubric returns the built-in four-group rubric.
func DefaultRubric() []scoring.Group {
	groups, err := ParseRubric(fallbackYAML)
	if err != nil {
		// the embedded file is part of the binary
		panic("criteria: bad embedded rubric: " + err.Error())
	}
	return groups
}

// LoadRubricFile reads a YAML rubric in the same layout as the embedded one.
func LoadRubricFile(path string) ([]scoring.Group, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubric %s: %w", path, err)
	}
	groups, err := ParseRubric(b)
	if err != nil {
		return nil, fmt.Errorf("rubric %s: %w", path, err)
	}
	return groups, nil
}

// ParseRubric decodes and validates a YAML rubric.
func ParseRubric(b []byte) ([]scoring.Group, error) {
	var f rubricFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	for i := range f.Groups {
		if f.Groups[i].Title == "" {
			f.Groups[i].Title = defaultGroupTitle
		}
	}
	if err := validate(f.Groups); err != nil {
		return nil, err
	}
	return f.Groups, nil
}

func validate(groups []scoring.Group) error {
	seen := map[string]bool{}
	n := 0
	for _, g := range groups {
		for _, c := range g.Items {
			n++
			if c.ID == "" {
				return ErrMissingID
			}
			if seen[c.ID] {
				return fmt.Errorf("%w: %s", ErrDuplicateID, c.ID)
			}
			seen[c.ID] = true
			if c.Max < 0 {
				return fmt.Errorf("criterion %s: negative max", c.ID)
			}
		}
	}
	if n == 0 {
		return ErrEmpty
	}
	return nil
}

func cloneGroups(in []scoring.Group) []scoring.Group {
	out := make([]scoring.Group, len(in))
	for i, g := range in {
		out[i] = scoring.Group{Title: g.Title, Items: append([]scoring.Criterion(nil), g.Items...)}
	}
	return out
}
