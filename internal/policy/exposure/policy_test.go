package exposure

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	admissionv1 "k8s.io/api/admission/v1"
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

func admissionRequestFor(t *testing.T, kind string, obj any) *admissionv1.AdmissionRequest {
	t.Helper()
	raw, err := json.Marshal(obj)
	require.NoError(t, err)
	return &admissionv1.AdmissionRequest{
		UID:    "test-uid",
		Kind:   metav1.GroupVersionKind{Group: "admissionregistration.k8s.io", Version: "v1", Kind: kind},
		Name:   "under-review",
		Object: runtime.RawExtension{Raw: raw},
	}
}

func validatingConfigTargeting(namespace, name string, port int32) *admissionregistrationv1.ValidatingWebhookConfiguration {
	return &admissionregistrationv1.ValidatingWebhookConfiguration{
		ObjectMeta: metav1.ObjectMeta{Name: "under-review"},
		Webhooks: []admissionregistrationv1.ValidatingWebhook{
			{
				Name: "hook.example.com",
				ClientConfig: admissionregistrationv1.WebhookClientConfig{
					Service: &admissionregistrationv1.ServiceReference{
						Namespace: namespace,
						Name:      name,
						Port:      int32Ptr(port),
					},
				},
			},
		},
	}
}

func TestPolicy_AcceptsUnrelatedKindsWithoutQuerying(t *testing.T) {
	reader := &stubReader{}
	p := NewPolicy(reader, zap.NewNop())

	req := admissionRequestFor(t, "Deployment", map[string]any{"metadata": map[string]any{"name": "x"}})
	response, err := p.Review(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, response.Allowed)
	assert.Empty(t, reader.ingressQueries)
	assert.Empty(t, reader.serviceQueries)
}

func TestPolicy_AcceptsUnexposedConfiguration(t *testing.T) {
	reader := &stubReader{}
	p := NewPolicy(reader, zap.NewNop())

	req := admissionRequestFor(t, "ValidatingWebhookConfiguration",
		validatingConfigTargeting("my-namespace", "my-service", 80))
	response, err := p.Review(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, response.Allowed)
}

func TestPolicy_RejectsExposedValidatingConfiguration(t *testing.T) {
	reader := &stubReader{
		ingresses: map[string][]networkingv1.Ingress{
			"my-namespace": {ingressWithDefaultBackend("my-namespace", "my-service", 80)},
		},
	}
	p := NewPolicy(reader, zap.NewNop())

	req := admissionRequestFor(t, "ValidatingWebhookConfiguration",
		validatingConfigTargeting("my-namespace", "my-service", 80))
	response, err := p.Review(context.Background(), req)

	require.NoError(t, err)
	assert.False(t, response.Allowed)
	require.NotNil(t, response.Result)
	assert.Contains(t, response.Result.Message, "my-namespace/my-service")
	assert.Contains(t, response.Result.Message, "Ingress, NodePort, or LoadBalancer")
}

func TestPolicy_RejectsExposedMutatingConfiguration(t *testing.T) {
	reader := &stubReader{
		services: map[string][]corev1.Service{
			"hooks": {serviceOfType("hooks", "mutator", corev1.ServiceTypeNodePort, 8443)},
		},
	}
	p := NewPolicy(reader, zap.NewNop())

	cfg := &admissionregistrationv1.MutatingWebhookConfiguration{
		ObjectMeta: metav1.ObjectMeta{Name: "under-review"},
		Webhooks: []admissionregistrationv1.MutatingWebhook{
			{
				Name: "mutate.example.com",
				ClientConfig: admissionregistrationv1.WebhookClientConfig{
					Service: &admissionregistrationv1.ServiceReference{
						Namespace: "hooks",
						Name:      "mutator",
						Port:      int32Ptr(8443),
					},
				},
			},
		},
	}

	req := admissionRequestFor(t, "MutatingWebhookConfiguration", cfg)
	response, err := p.Review(context.Background(), req)

	require.NoError(t, err)
	assert.False(t, response.Allowed)
	assert.Contains(t, response.Result.Message, "hooks/mutator")
}

func TestPolicy_DecodeErrorPropagates(t *testing.T) {
	p := NewPolicy(&stubReader{}, zap.NewNop())

	req := &admissionv1.AdmissionRequest{
		UID:    "test-uid",
		Kind:   metav1.GroupVersionKind{Kind: "ValidatingWebhookConfiguration"},
		Object: runtime.RawExtension{Raw: []byte(`{not json`)},
	}
	response, err := p.Review(context.Background(), req)

	require.Error(t, err)
	assert.Nil(t, response)
}

func TestPolicy_QueryErrorPropagates(t *testing.T) {
	reader := &stubReader{ingressErr: errors.New("unauthorized")}
	p := NewPolicy(reader, zap.NewNop())

	req := admissionRequestFor(t, "ValidatingWebhookConfiguration",
		validatingConfigTargeting("my-namespace", "my-service", 80))
	response, err := p.Review(context.Background(), req)

	require.Error(t, err)
	assert.Nil(t, response)
}
