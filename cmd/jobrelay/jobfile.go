package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// readJobFile loads a job request from a JSON or YAML file and returns it as
// JSON. A state given as an object is encoded into the string form the API
// expects.
func readJobFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}

	var doc map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("%s: job file must contain an object", path)
	}
	if _, ok := doc["settings"].(map[string]any); !ok {
		return nil, fmt.Errorf("%s: missing settings object", path)
	}

	switch st := doc["state"].(type) {
	case nil:
		doc["state"] = "{}"
	case string:
	default:
		b, err := json.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("%s: encoding state: %w", path, err)
		}
		doc["state"] = string(b)
	}

	return json.Marshal(doc)
}
