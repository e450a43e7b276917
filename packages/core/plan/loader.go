package plan

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load reads a plan from a JSON or YAML file.
func Load(path string) (*TestPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading plan")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		return ParseYAML(data)
	}
	return Parse(data)
}

// Parse decodes a JSON plan.
func Parse(data []byte) (*TestPlan, error) {
	p := &TestPlan{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, errors.Wrap(err, "parsing plan")
	}
	return p, nil
}

// ParseYAML decodes a YAML plan. Field names match the JSON wire format.
func ParseYAML(data []byte) (*TestPlan, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parsing plan")
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Wrap(err, "converting yaml plan")
	}
	return Parse(encoded)
}

// Validate checks structural problems that would make a run ambiguous.
func (p *TestPlan) Validate() []error {
	var errs []error
	for i, tc := range p.TestCases {
		if tc == nil {
			errs = append(errs, errors.Errorf("test case #%d is empty", i+1))
			continue
		}
		seen := make(map[string]bool)
		for i, req := range tc.Requests {
			if req == nil {
				errs = append(errs, errors.Errorf("test case %q: request #%d is empty", tc.ID, i+1))
				continue
			}
			if req.ID == "" {
				errs = append(errs, errors.Errorf("test case %q: request without id", tc.ID))
				continue
			}
			if seen[req.ID] {
				errs = append(errs, errors.Errorf("test case %q: duplicate request id %q", tc.ID, req.ID))
			}
			seen[req.ID] = true
			if req.Method == "" {
				errs = append(errs, errors.Errorf("test case %q: request %q has no method", tc.ID, req.ID))
			}
			if req.OperationPath == "" {
				errs = append(errs, errors.Errorf("test case %q: request %q has no operationPath", tc.ID, req.ID))
			}
		}
	}
	return errs
}
