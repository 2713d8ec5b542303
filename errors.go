package idp

import "errors"

var (
	// ErrFlowNotConfigured is returned when no workflow is mapped for a
	// tenant, client, and flow kind.
	ErrFlowNotConfigured = errors.New("no workflow configured for flow")
	// ErrBuilderIncomplete is returned by Build when a required dependency
	// was not provided.
	ErrBuilderIncomplete = errors.New("builder missing required dependency")
)

var (
	errFlowsNilEngine   = errors.New("nil workflow engine")
	errFlowsNilResolver = errors.New("nil flow resolver")
)
