package env

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// LoadDotEnv parses a .env file and returns key-value pairs.
// Supports: KEY=value, KEY="quoted value", KEY='single quoted', # comments
func LoadDotEnv(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open env file")
	}
	defer file.Close()

	result := make(map[string]string)
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = strings.TrimSpace(value)

		if key == "" {
			continue
		}

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		result[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading env file")
	}

	return result, nil
}

// MergeInputs overlays extra values onto plan input values. The plan's
// map is not modified.
func MergeInputs(inputs map[string]any, extra map[string]string) map[string]any {
	result := make(map[string]any, len(inputs)+len(extra))
	for k, v := range inputs {
		result[k] = v
	}
	for k, v := range extra {
		result[k] = v
	}
	return result
}
