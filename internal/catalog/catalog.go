// Package catalog is the Language Catalog: an immutable, in-memory
// lookup from language id to its compile/run recipe, loaded once at
// process start from a static seed rather than a scanned filesystem
// tree, since language-catalog seeding is an external collaborator
// concern, not core pipeline logic.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"github.com/klpod221/kode-judge/internal/domain"
	"gopkg.in/yaml.v3"
)

// Catalog is the immutable, loaded-once language lookup.
type Catalog struct {
	byID    map[int]domain.Language
	ordered []domain.Language
}

// Load builds a Catalog from seedPath (a YAML file of languages) if
// given, falling back to the built-in default seed otherwise. The
// catalog never changes after Load returns.
func Load(seedPath string) (*Catalog, error) {
	languages := DefaultSeed()
	if seedPath != "" {
		data, err := os.ReadFile(seedPath)
		if err != nil {
			return nil, fmt.Errorf("read catalog seed: %w", err)
		}
		var seeded []domain.Language
		if err := yaml.Unmarshal(data, &seeded); err != nil {
			return nil, fmt.Errorf("parse catalog seed: %w", err)
		}
		languages = seeded
	}

	c := &Catalog{
		byID:    make(map[int]domain.Language, len(languages)),
		ordered: make([]domain.Language, len(languages)),
	}
	copy(c.ordered, languages)
	sort.Slice(c.ordered, func(i, j int) bool { return c.ordered[i].ID < c.ordered[j].ID })
	for _, lang := range c.ordered {
		if _, dup := c.byID[lang.ID]; dup {
			return nil, fmt.Errorf("duplicate language id %d in catalog seed", lang.ID)
		}
		c.byID[lang.ID] = lang
	}
	return c, nil
}

// ErrNotFound is returned by Get when the language id is unknown.
var ErrNotFound = fmt.Errorf("language not found")

// Get returns the Language for id, or ErrNotFound.
func (c *Catalog) Get(id int) (domain.Language, error) {
	lang, ok := c.byID[id]
	if !ok {
		return domain.Language{}, ErrNotFound
	}
	return lang, nil
}

// List returns every catalog entry, ordered by id.
func (c *Catalog) List() []domain.Language {
	out := make([]domain.Language, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// DefaultSeed is the built-in catalog used when no CATALOG_SEED_PATH is
// configured: a handful of common contest/grader languages.
func DefaultSeed() []domain.Language {
	return []domain.Language{
		{
			ID:             1,
			Name:           "python",
			Version:        "3.11.4",
			SourceFilename: "main.py",
			RunCmd:         "/usr/bin/python3 main.py",
		},
		{
			ID:             2,
			Name:           "javascript",
			Version:        "18.16.0",
			SourceFilename: "main.js",
			RunCmd:         "/usr/bin/node main.js",
		},
		{
			ID:             3,
			Name:           "go",
			Version:        "1.21.0",
			SourceFilename: "main.go",
			CompileCmd:     "/usr/local/go/bin/go build -o main main.go",
			RunCmd:         "./main",
		},
		{
			ID:             4,
			Name:           "cpp",
			Version:        "17",
			SourceFilename: "main.cpp",
			CompileCmd:     "/usr/bin/g++ -O2 -std=c++17 -o main main.cpp",
			RunCmd:         "./main",
		},
		{
			ID:             5,
			Name:           "java",
			Version:        "17",
			SourceFilename: "Main.java",
			CompileCmd:     "/usr/bin/javac Main.java",
			RunCmd:         "/usr/bin/java Main",
		},
	}
}
