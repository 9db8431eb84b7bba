package data

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Character is the static sheet a session character is derived from.
// Immutable once loaded.
type Character struct {
	Name           string         `json:"name"`
	Pronouns       string         `json:"pronouns"`
	SpecialtyClass *JobClass      `json:"specialtyClass"`
	Classes        []string       `json:"classes"`
	Stats          map[string]int `json:"stats"`
}

// Stat returns a base stat, or 0 if the sheet does not define it.
func (c *Character) Stat(name string) int {
	return c.Stats[name]
}

// CharacterTable holds every loaded sheet, sorted by name.
type CharacterTable struct {
	chars  []*Character
	byName map[string]*Character
}

// NewCharacterTable sorts chars by name with the English collator and
// indexes them. Later duplicates of a name are dropped.
func NewCharacterTable(chars []*Character) *CharacterTable {
	t := &CharacterTable{byName: make(map[string]*Character, len(chars))}
	for _, c := range chars {
		if _, dup := t.byName[c.Name]; dup {
			continue
		}
		t.byName[c.Name] = c
		t.chars = append(t.chars, c)
	}
	col := collate.New(language.English)
	sort.SliceStable(t.chars, func(i, j int) bool {
		return col.CompareString(t.chars[i].Name, t.chars[j].Name) < 0
	})
	return t
}

// Get returns a character by exact name, or nil if not found.
func (t *CharacterTable) Get(name string) *Character {
	return t.byName[name]
}

// Count returns total loaded characters.
func (t *CharacterTable) Count() int {
	return len(t.chars)
}

// All returns the characters in name order.
func (t *CharacterTable) All() []*Character {
	out := make([]*Character, len(t.chars))
	copy(out, t.chars)
	return out
}

// Names returns character names in name order.
func (t *CharacterTable) Names() []string {
	out := make([]string, len(t.chars))
	for i, c := range t.chars {
		out[i] = c.Name
	}
	return out
}

// Select returns the characters whose name is in names, in table order.
// Names that match nothing are ignored.
func (t *CharacterTable) Select(names []string) []*Character {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []*Character
	for _, c := range t.chars {
		if want[c.Name] {
			out = append(out, c)
		}
	}
	return out
}

// --- YAML loading ---

type characterEntry struct {
	Name           string         `yaml:"name"`
	Pronouns       string         `yaml:"pronouns"`
	SpecialtyClass string         `yaml:"specialty_class"`
	Classes        []string       `yaml:"classes"`
	Stats          map[string]int `yaml:"stats"`
}

// LoadCharacter parses a single character sheet and resolves its classes.
func LoadCharacter(path string, classes *ClassTable) (*Character, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read character %s: %w", path, err)
	}
	var e characterEntry
	if err := yaml.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("parse character %s: %w", path, err)
	}
	if e.Name == "" {
		return nil, fmt.Errorf("parse character %s: missing name", path)
	}
	specialty := classes.Get(e.SpecialtyClass)
	if specialty == nil {
		return nil, fmt.Errorf("character %s: unknown specialty class %q", e.Name, e.SpecialtyClass)
	}
	for _, name := range e.Classes {
		if classes.Get(name) == nil {
			return nil, fmt.Errorf("character %s: unknown class %q", e.Name, name)
		}
	}
	stats := make(map[string]int, len(e.Stats))
	for k, v := range e.Stats {
		stats[k] = v
	}
	return &Character{
		Name:           e.Name,
		Pronouns:       e.Pronouns,
		SpecialtyClass: specialty,
		Classes:        e.Classes,
		Stats:          stats,
	}, nil
}

// LoadCharacters loads every .yaml/.yml sheet in dir.
func LoadCharacters(dir string, classes *ClassTable) (*CharacterTable, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read characters dir: %w", err)
	}
	var chars []*Character
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
		default:
			continue
		}
		c, err := LoadCharacter(filepath.Join(dir, entry.Name()), classes)
		if err != nil {
			return nil, err
		}
		chars = append(chars, c)
	}
	return NewCharacterTable(chars), nil
}
