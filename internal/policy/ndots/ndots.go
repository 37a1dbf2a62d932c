// Package ndots enforces a fixed ndots value in every Pod's DNS
// configuration. Pods missing the option get it appended; Pods carrying a
// different value get it rewritten. All other dnsConfig fields and the
// relative order of options are preserved so unchanged Pods never churn.
package ndots

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	admissionv1 "k8s.io/api/admission/v1"
	corev1 "k8s.io/api/core/v1"

	"github.com/guardgateio/guardgate/internal/policy"
)

const (
	// PolicyName identifies this policy in routing and metrics.
	PolicyName = "pod-ndots"

	// DefaultNdots matches the resolver default most clusters override.
	DefaultNdots = 5

	// MaxNdots is the resolv.conf cap on the ndots option.
	MaxNdots = 15

	optionName = "ndots"
	podKind    = "Pod"
)

// Policy mutates Pod specs so spec.dnsConfig.options carries the
// configured ndots value.
type Policy struct {
	ndots int
}

// NewPolicy creates the ndots policy. The value must lie in [0, MaxNdots].
func NewPolicy(ndots int) (*Policy, error) {
	if ndots < 0 || ndots > MaxNdots {
		return nil, fmt.Errorf("ndots must be between 0 and %d, got %d", MaxNdots, ndots)
	}
	return &Policy{ndots: ndots}, nil
}

func (p *Policy) Name() string {
	return PolicyName
}

func (p *Policy) Review(_ context.Context, req *admissionv1.AdmissionRequest) (*admissionv1.AdmissionResponse, error) {
	if req.Kind.Kind != podKind {
		return policy.Accept(req), nil
	}

	pod := &corev1.Pod{}
	if err := json.Unmarshal(req.Object.Raw, pod); err != nil {
		return nil, fmt.Errorf("decoding Pod: %w", err)
	}

	patched := pod.DeepCopy()
	patched.Spec = enforceNdots(p.ndots, &pod.Spec)

	return policy.Mutate(req, pod, patched)
}

// enforceNdots returns a copy of the spec whose dnsConfig.options carries
// the wanted ndots value, keeping every other option in place.
func enforceNdots(ndots int, spec *corev1.PodSpec) corev1.PodSpec {
	value := strconv.Itoa(ndots)

	var options []corev1.PodDNSConfigOption
	if spec.DNSConfig != nil {
		options = append(options, spec.DNSConfig.Options...)
	}

	found := false
	for i := range options {
		if options[i].Name == optionName {
			options[i].Value = &value
			found = true
		}
	}
	if !found {
		options = append(options, corev1.PodDNSConfigOption{
			Name:  optionName,
			Value: &value,
		})
	}

	out := *spec.DeepCopy()
	if out.DNSConfig == nil {
		out.DNSConfig = &corev1.PodDNSConfig{}
	}
	out.DNSConfig.Options = options
	return out
}
