package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// JobClass is a class a character can hold as specialty or equip.
type JobClass struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Mechanic    string `json:"mechanic,omitempty"` // class mechanic label shown on the HUD
}

// ClassTable holds all job classes indexed by name.
type ClassTable struct {
	classes map[string]*JobClass
	order   []string
}

// Get returns a class by exact name, or nil if not found.
func (t *ClassTable) Get(name string) *JobClass {
	return t.classes[name]
}

// Count returns total loaded classes.
func (t *ClassTable) Count() int {
	return len(t.classes)
}

// Names returns class names in file order.
func (t *ClassTable) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// NewClassTable builds a table from already-constructed classes.
func NewClassTable(classes ...*JobClass) *ClassTable {
	t := &ClassTable{classes: make(map[string]*JobClass, len(classes))}
	for _, c := range classes {
		if _, dup := t.classes[c.Name]; dup {
			continue
		}
		t.classes[c.Name] = c
		t.order = append(t.order, c.Name)
	}
	return t
}

// --- YAML loading ---

type classEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Mechanic    string `yaml:"mechanic"`
}

type classListFile struct {
	Classes []classEntry `yaml:"classes"`
}

// LoadClassTable loads job class definitions from YAML.
func LoadClassTable(path string) (*ClassTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read classes: %w", err)
	}
	var f classListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse classes: %w", err)
	}
	classes := make([]*JobClass, 0, len(f.Classes))
	seen := make(map[string]bool, len(f.Classes))
	for _, e := range f.Classes {
		if e.Name == "" {
			return nil, fmt.Errorf("parse classes: entry without a name")
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("parse classes: duplicate class %q", e.Name)
		}
		seen[e.Name] = true
		classes = append(classes, &JobClass{
			Name:        e.Name,
			Description: e.Description,
			Mechanic:    e.Mechanic,
		})
	}
	return NewClassTable(classes...), nil
}
