// Package exposure rejects admission webhook configurations whose backend
// services are reachable from outside the cluster. A webhook service
// published through an Ingress or a NodePort/LoadBalancer Service sits
// beyond the trust boundary the admission-control subsystem assumes.
package exposure

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	admissionv1 "k8s.io/api/admission/v1"
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"

	"github.com/guardgateio/guardgate/internal/policy"
)

const (
	// PolicyName identifies this policy in routing and metrics.
	PolicyName = "webhook-service-exposure"

	validatingKind = "ValidatingWebhookConfiguration"
	mutatingKind   = "MutatingWebhookConfiguration"
)

// Policy audits (Validating|Mutating)WebhookConfiguration objects at
// admission time. Other kinds are accepted immediately.
type Policy struct {
	detector *Detector
	logger   *zap.Logger
}

// NewPolicy creates the exposure policy backed by the given cluster reader.
func NewPolicy(reader ClusterReader, logger *zap.Logger) *Policy {
	return &Policy{
		detector: NewDetector(reader, logger),
		logger:   logger.Named(PolicyName),
	}
}

func (p *Policy) Name() string {
	return PolicyName
}

// Review extracts the service references from the webhook configuration
// under review and rejects when any of them is exposed.
func (p *Policy) Review(ctx context.Context, req *admissionv1.AdmissionRequest) (*admissionv1.AdmissionResponse, error) {
	var targets *IdentitySet

	switch req.Kind.Kind {
	case validatingKind:
		cfg := &admissionregistrationv1.ValidatingWebhookConfiguration{}
		if err := json.Unmarshal(req.Object.Raw, cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", validatingKind, err)
		}
		targets = ServicesFromValidatingWebhookConfiguration(cfg)
	case mutatingKind:
		cfg := &admissionregistrationv1.MutatingWebhookConfiguration{}
		if err := json.Unmarshal(req.Object.Raw, cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", mutatingKind, err)
		}
		targets = ServicesFromMutatingWebhookConfiguration(cfg)
	default:
		// This check only applies to the two webhook configuration kinds.
		return policy.Accept(req), nil
	}

	exposed, err := p.detector.FindExposed(ctx, targets)
	if err != nil {
		return nil, err
	}

	if exposed.IsEmpty() {
		return policy.Accept(req), nil
	}

	p.logger.Info("rejecting exposed webhook configuration",
		zap.String("name", req.Name),
		zap.String("kind", req.Kind.Kind),
		zap.Int("exposed_count", exposed.Len()),
	)

	msg := fmt.Sprintf(
		"Webhook service(s) exposed by Ingress, NodePort, or LoadBalancer: %s",
		FormatIdentities(exposed),
	)
	return policy.Reject(req, msg), nil
}
