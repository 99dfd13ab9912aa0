package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// LoadDirectory reads every *.json file in dir and returns the flat list
// of recipes found across them. Each file may contain one or more
// recipe objects keyed by tool_id; unknown top-level keys within a
// recipe object are rejected (strict schema).
func LoadDirectory(dir string) ([]Recipe, []LoadError) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []LoadError{{Source: dir, Err: err}}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var recipes []Recipe
	var loadErrs []LoadError

	for _, name := range names {
		path := filepath.Join(dir, name)
		fileRecipes, err := loadFile(path)
		if err != nil {
			loadErrs = append(loadErrs, LoadError{Source: path, Err: err})
			continue
		}
		recipes = append(recipes, fileRecipes...)
	}

	return recipes, loadErrs
}

func loadFile(path string) ([]Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	var toolIDs []string
	for id := range raw {
		toolIDs = append(toolIDs, id)
	}
	sort.Strings(toolIDs)

	recipes := make([]Recipe, 0, len(raw))
	for _, toolID := range toolIDs {
		var r Recipe
		dec := json.NewDecoder(bytes.NewReader(raw[toolID]))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("recipe %q: %w", toolID, err)
		}
		if r.ID == "" {
			r.ID = toolID
		} else if r.ID != toolID {
			return nil, fmt.Errorf("recipe %q: id field %q does not match key", toolID, r.ID)
		}
		recipes = append(recipes, r)
	}

	return recipes, nil
}
