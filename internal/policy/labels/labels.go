// Package labels rejects resources whose label keys fail the configured
// criteria rule.
package labels

import (
	"context"
	"fmt"

	admissionv1 "k8s.io/api/admission/v1"

	"github.com/guardgateio/guardgate/internal/policy"
	"github.com/guardgateio/guardgate/internal/policy/criteria"
	"github.com/guardgateio/guardgate/internal/util"
)

// PolicyName identifies this policy in routing and metrics.
const PolicyName = "labels"

// Policy validates the label keys of any incoming resource against one
// criteria rule.
type Policy struct {
	rule criteria.Rule
}

// NewPolicy creates the labels policy. The rule must already be valid.
func NewPolicy(rule criteria.Rule) (*Policy, error) {
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("invalid labels rule: %w", err)
	}
	return &Policy{rule: rule}, nil
}

func (p *Policy) Name() string {
	return PolicyName
}

func (p *Policy) Review(_ context.Context, req *admissionv1.AdmissionRequest) (*admissionv1.AdmissionResponse, error) {
	keys := util.MetadataKeys(req.Object.Raw, "labels")
	if err := p.rule.Evaluate(keys); err != nil {
		return policy.Reject(req, fmt.Sprintf("label validation failed: %s", err)), nil
	}
	return policy.Accept(req), nil
}
