package workflow

import (
	"strings"
	"testing"
)

const sampleYAML = `
workflows:
  - id: WF_LOGIN_IDENTIFY_V1
    version: {major: 1, minor: 0}
    steps:
      - id: normalize
        type: NORMALIZE_IDENTIFIER
      - id: lookup
        type: LOGIN_LOOKUP
        params:
          nextWorkflowPassword: WF_LOGIN_PASSWORD_V1
          otpWhenNoPassword: false
  - id: WF_LOGIN_PASSWORD_V1
    version: {major: 1, minor: 0}
    steps:
      - type: LOGIN_VERIFY_PASSWORD
`

func TestLoadDefinitionsYAML(t *testing.T) {
	defs, err := LoadDefinitionsYAML(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadDefinitionsYAML: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("got %d definitions", len(defs))
	}

	identify := defs[0]
	if identify.WorkflowID != "WF_LOGIN_IDENTIFY_V1" {
		t.Errorf("id = %s", identify.WorkflowID)
	}
	if identify.Version != (Version{Major: 1, Minor: 0}) {
		t.Errorf("version = %v", identify.Version)
	}
	if len(identify.Steps) != 2 {
		t.Fatalf("steps = %d", len(identify.Steps))
	}

	lookup := identify.Steps[1]
	if lookup.StepID != "lookup" || lookup.StepType != "LOGIN_LOOKUP" {
		t.Errorf("lookup step = %+v", lookup)
	}
	if got := lookup.StringParam("nextWorkflowPassword", ""); got != "WF_LOGIN_PASSWORD_V1" {
		t.Errorf("nextWorkflowPassword = %q", got)
	}
	if got := lookup.BoolParam("otpWhenNoPassword", true); got {
		t.Error("otpWhenNoPassword should parse as false")
	}

	// A step without an explicit id falls back to its type.
	pwd := defs[1].Steps[0]
	if pwd.StepID != "LOGIN_VERIFY_PASSWORD" {
		t.Errorf("defaulted step id = %q", pwd.StepID)
	}
}

func TestLoadDefinitionsYAMLErrors(t *testing.T) {
	cases := map[string]string{
		"empty document": `workflows: []`,
		"missing id": `
workflows:
  - version: {major: 1, minor: 0}
    steps:
      - type: A
`,
		"missing step type": `
workflows:
  - id: WF_X
    version: {major: 1, minor: 0}
    steps:
      - id: something
`,
		"no steps": `
workflows:
  - id: WF_X
    version: {major: 1, minor: 0}
    steps: []
`,
		"not yaml": `{{{`,
	}

	for name, doc := range cases {
		if _, err := LoadDefinitionsYAML(strings.NewReader(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadDefinitionsYAMLFeedsRegistry(t *testing.T) {
	defs, err := LoadDefinitionsYAML(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}

	factory := funcFactory{
		"NORMALIZE_IDENTIFIER":  markStep("n"),
		"LOGIN_LOOKUP":          markStep("l"),
		"LOGIN_VERIFY_PASSWORD": markStep("p"),
	}
	registry, err := NewFixedRegistry(factory, defs...)
	if err != nil {
		t.Fatalf("registry from yaml: %v", err)
	}
	if _, err := registry.Definition("WF_LOGIN_IDENTIFY_V1"); err != nil {
		t.Errorf("Definition: %v", err)
	}
}
