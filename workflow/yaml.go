package workflow

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type yamlFile struct {
	Workflows []yamlWorkflow `yaml:"workflows"`
}

type yamlWorkflow struct {
	ID      string      `yaml:"id"`
	Version yamlVersion `yaml:"version"`
	Steps   []yamlStep  `yaml:"steps"`
}

type yamlVersion struct {
	Major int `yaml:"major"`
	Minor int `yaml:"minor"`
}

type yamlStep struct {
	ID     string         `yaml:"id"`
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params"`
}

// LoadDefinitionsYAML reads workflow definitions from a YAML document.
// It lets deployments override the code-defined step lists without a
// rebuild; the result feeds [NewFixedRegistry] unchanged.
//
// Document shape:
//
//	workflows:
//	  - id: WF_LOGIN_IDENTIFY_V1
//	    version: {major: 1, minor: 0}
//	    steps:
//	      - id: normalize
//	        type: NORMALIZE_IDENTIFIER
//	      - id: lookup
//	        type: LOGIN_LOOKUP
//	        params: {nextWorkflow: WF_LOGIN_PASSWORD_V2}
func LoadDefinitionsYAML(r io.Reader) ([]Definition, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read workflow yaml: %w", err)
	}

	var file yamlFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse workflow yaml: %w", err)
	}
	if len(file.Workflows) == 0 {
		return nil, fmt.Errorf("workflow yaml defines no workflows")
	}

	defs := make([]Definition, 0, len(file.Workflows))
	for _, wf := range file.Workflows {
		if wf.ID == "" {
			return nil, fmt.Errorf("workflow yaml entry missing id")
		}
		def := Definition{
			WorkflowID: wf.ID,
			Version:    Version{Major: wf.Version.Major, Minor: wf.Version.Minor},
		}
		for _, s := range wf.Steps {
			if s.Type == "" {
				return nil, fmt.Errorf("workflow %s: step missing type", wf.ID)
			}
			id := s.ID
			if id == "" {
				id = s.Type
			}
			def.Steps = append(def.Steps, StepConfig{StepID: id, StepType: s.Type, Params: s.Params})
		}
		if len(def.Steps) == 0 {
			return nil, fmt.Errorf("workflow %s has no steps", wf.ID)
		}
		defs = append(defs, def)
	}

	return defs, nil
}
