package ndots

import (
	"context"
	"encoding/json"
	"testing"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	admissionv1 "k8s.io/api/admission/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

func strPtr(s string) *string { return &s }

func podRequest(t *testing.T, pod *corev1.Pod) *admissionv1.AdmissionRequest {
	t.Helper()
	raw, err := json.Marshal(pod)
	require.NoError(t, err)
	return &admissionv1.AdmissionRequest{
		UID:    "test-uid",
		Kind:   metav1.GroupVersionKind{Version: "v1", Kind: "Pod"},
		Object: runtime.RawExtension{Raw: raw},
	}
}

// applyToPod replays the response patch onto the original Pod the way the
// API server would.
func applyToPod(t *testing.T, original *corev1.Pod, response *admissionv1.AdmissionResponse) *corev1.Pod {
	t.Helper()
	require.NotNil(t, response.PatchType)
	assert.Equal(t, admissionv1.PatchTypeJSONPatch, *response.PatchType)

	originalJSON, err := json.Marshal(original)
	require.NoError(t, err)

	patch, err := jsonpatch.DecodePatch(response.Patch)
	require.NoError(t, err)
	patchedJSON, err := patch.Apply(originalJSON)
	require.NoError(t, err)

	patched := &corev1.Pod{}
	require.NoError(t, json.Unmarshal(patchedJSON, patched))
	return patched
}

func TestNewPolicy_RangeChecked(t *testing.T) {
	for _, valid := range []int{0, 1, DefaultNdots, MaxNdots} {
		_, err := NewPolicy(valid)
		assert.NoError(t, err)
	}
	for _, invalid := range []int{-1, MaxNdots + 1, 100} {
		_, err := NewPolicy(invalid)
		assert.Error(t, err)
	}
}

func TestPolicy_IgnoresNonPodKinds(t *testing.T) {
	p, err := NewPolicy(DefaultNdots)
	require.NoError(t, err)

	req := &admissionv1.AdmissionRequest{
		UID:    "test-uid",
		Kind:   metav1.GroupVersionKind{Kind: "Deployment"},
		Object: runtime.RawExtension{Raw: []byte(`{"metadata":{"name":"x"}}`)},
	}
	response, err := p.Review(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, response.Allowed)
	assert.Nil(t, response.Patch)
}

func TestPolicy_AppendsOptionWhenAbsent(t *testing.T) {
	p, err := NewPolicy(2)
	require.NoError(t, err)

	pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "plain"}}
	response, err := p.Review(context.Background(), podRequest(t, pod))

	require.NoError(t, err)
	assert.True(t, response.Allowed)

	patched := applyToPod(t, pod, response)
	require.NotNil(t, patched.Spec.DNSConfig)
	require.Len(t, patched.Spec.DNSConfig.Options, 1)
	assert.Equal(t, "ndots", patched.Spec.DNSConfig.Options[0].Name)
	assert.Equal(t, "2", *patched.Spec.DNSConfig.Options[0].Value)
}

func TestPolicy_RewritesExistingOption(t *testing.T) {
	p, err := NewPolicy(DefaultNdots)
	require.NoError(t, err)

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "tuned"},
		Spec: corev1.PodSpec{
			DNSConfig: &corev1.PodDNSConfig{
				Options: []corev1.PodDNSConfigOption{
					{Name: "timeout", Value: strPtr("1")},
					{Name: "ndots", Value: strPtr("1")},
				},
			},
		},
	}
	response, err := p.Review(context.Background(), podRequest(t, pod))

	require.NoError(t, err)
	patched := applyToPod(t, pod, response)
	require.Len(t, patched.Spec.DNSConfig.Options, 2)
	// Relative order of options is preserved.
	assert.Equal(t, "timeout", patched.Spec.DNSConfig.Options[0].Name)
	assert.Equal(t, "ndots", patched.Spec.DNSConfig.Options[1].Name)
	assert.Equal(t, "5", *patched.Spec.DNSConfig.Options[1].Value)
}

func TestPolicy_NoPatchWhenAlreadyCompliant(t *testing.T) {
	p, err := NewPolicy(3)
	require.NoError(t, err)

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "compliant"},
		Spec: corev1.PodSpec{
			DNSConfig: &corev1.PodDNSConfig{
				Options: []corev1.PodDNSConfigOption{{Name: "ndots", Value: strPtr("3")}},
			},
		},
	}
	response, err := p.Review(context.Background(), podRequest(t, pod))

	require.NoError(t, err)
	assert.True(t, response.Allowed)
	assert.Nil(t, response.Patch)
}

func TestPolicy_PreservesOtherDNSConfigFields(t *testing.T) {
	p, err := NewPolicy(4)
	require.NoError(t, err)

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "searchy"},
		Spec: corev1.PodSpec{
			DNSConfig: &corev1.PodDNSConfig{
				Nameservers: []string{"10.0.0.53"},
				Searches:    []string{"svc.cluster.local"},
			},
		},
	}
	response, err := p.Review(context.Background(), podRequest(t, pod))

	require.NoError(t, err)
	patched := applyToPod(t, pod, response)
	assert.Equal(t, []string{"10.0.0.53"}, patched.Spec.DNSConfig.Nameservers)
	assert.Equal(t, []string{"svc.cluster.local"}, patched.Spec.DNSConfig.Searches)
	require.Len(t, patched.Spec.DNSConfig.Options, 1)
	assert.Equal(t, "4", *patched.Spec.DNSConfig.Options[0].Value)
}

func TestPolicy_DecodeErrorPropagates(t *testing.T) {
	p, err := NewPolicy(DefaultNdots)
	require.NoError(t, err)

	req := &admissionv1.AdmissionRequest{
		UID:    "test-uid",
		Kind:   metav1.GroupVersionKind{Kind: "Pod"},
		Object: runtime.RawExtension{Raw: []byte(`{not json`)},
	}
	response, err := p.Review(context.Background(), req)

	require.Error(t, err)
	assert.Nil(t, response)
}

func TestEnforceNdots_NilDNSConfig(t *testing.T) {
	spec := corev1.PodSpec{}

	out := enforceNdots(5, &spec)

	require.NotNil(t, out.DNSConfig)
	require.Len(t, out.DNSConfig.Options, 1)
	assert.Equal(t, "ndots", out.DNSConfig.Options[0].Name)
	// The input spec stays untouched.
	assert.Nil(t, spec.DNSConfig)
}
