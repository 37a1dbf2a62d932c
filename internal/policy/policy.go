// Package policy defines the admission policy contract shared by every
// policy in the suite and the response builders they use.
package policy

import (
	"context"

	admissionv1 "k8s.io/api/admission/v1"
)

// Policy evaluates one admission request. Review returns an error only
// for failures the policy cannot decide on by itself (object decode
// failures, cluster query failures); the serving layer translates those
// into a denied response so a broken evaluation never admits by accident.
type Policy interface {
	// Name is the stable policy identifier, used for routing and metrics.
	Name() string

	// Review evaluates the request and produces an admission response.
	Review(ctx context.Context, req *admissionv1.AdmissionRequest) (*admissionv1.AdmissionResponse, error)
}
