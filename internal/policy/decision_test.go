package policy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gomodules.xyz/jsonpatch/v2"
	admissionv1 "k8s.io/api/admission/v1"
	"k8s.io/apimachinery/pkg/types"
)

func testRequest() *admissionv1.AdmissionRequest {
	return &admissionv1.AdmissionRequest{UID: types.UID("review-uid")}
}

func TestAccept(t *testing.T) {
	response := Accept(testRequest())

	assert.Equal(t, types.UID("review-uid"), response.UID)
	assert.True(t, response.Allowed)
	assert.Nil(t, response.Result)
	assert.Nil(t, response.Patch)
}

func TestReject(t *testing.T) {
	response := Reject(testRequest(), "not on my watch")

	assert.Equal(t, types.UID("review-uid"), response.UID)
	assert.False(t, response.Allowed)
	require.NotNil(t, response.Result)
	assert.Equal(t, "not on my watch", response.Result.Message)
}

func TestMutate_ProducesPatch(t *testing.T) {
	original := map[string]any{"spec": map[string]any{"replicas": 1}}
	mutated := map[string]any{"spec": map[string]any{"replicas": 3}}

	response, err := Mutate(testRequest(), original, mutated)

	require.NoError(t, err)
	assert.True(t, response.Allowed)
	require.NotNil(t, response.PatchType)
	assert.Equal(t, admissionv1.PatchTypeJSONPatch, *response.PatchType)

	var ops []jsonpatch.Operation
	require.NoError(t, json.Unmarshal(response.Patch, &ops))
	require.Len(t, ops, 1)
	assert.Equal(t, "replace", ops[0].Operation)
	assert.Equal(t, "/spec/replicas", ops[0].Path)
}

func TestMutate_NoChangeMeansPlainAccept(t *testing.T) {
	obj := map[string]any{"spec": map[string]any{"replicas": 1}}

	response, err := Mutate(testRequest(), obj, obj)

	require.NoError(t, err)
	assert.True(t, response.Allowed)
	assert.Nil(t, response.Patch)
	assert.Nil(t, response.PatchType)
}

func TestMutate_UnmarshalableObject(t *testing.T) {
	response, err := Mutate(testRequest(), make(chan int), nil)

	require.Error(t, err)
	assert.Nil(t, response)
}
