package steps

import (
	"context"

	"github.com/ppcloud/idp/identifier"
	"github.com/ppcloud/idp/workflow"
)

// normalizeIdentifierStep canonicalizes the caller's identifier and records
// it in the bag for everything downstream.
type normalizeIdentifierStep struct {
	deps Deps
}

func (s *normalizeIdentifierStep) Execute(ctx context.Context, env workflow.Env, bag workflow.Bag, input any) workflow.StepResult {
	carrier, ok := input.(identifierCarrier)
	if !ok {
		return workflow.Fail(HintBadRequest, "INPUT_MISSING_IDENTIFIER")
	}

	typRaw, raw := carrier.identifierInput()
	typ := identifier.Type(typRaw)

	norm, err := s.deps.Normalizer.Normalize(typ, raw)
	if err != nil {
		return workflow.Fail(HintBadRequest, "IDENTIFIER_INVALID")
	}

	bag.PutString(workflow.KeyIdentifierType, string(typ))
	bag.PutString(workflow.KeyIdentifierNorm, norm)
	return workflow.Ok(nil)
}

// bagIdentifier reads the normalized identifier a previous step stored.
func bagIdentifier(bag workflow.Bag) (identifier.Type, string, bool) {
	typ, err := bag.String(workflow.KeyIdentifierType)
	if err != nil {
		return "", "", false
	}
	norm, err := bag.String(workflow.KeyIdentifierNorm)
	if err != nil {
		return "", "", false
	}
	return identifier.Type(typ), norm, true
}
