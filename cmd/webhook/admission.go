package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	admissionv1 "k8s.io/api/admission/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/serializer"

	"github.com/guardgateio/guardgate/internal/metrics"
	"github.com/guardgateio/guardgate/internal/policy"
)

var (
	scheme       = runtime.NewScheme()
	codecs       = serializer.NewCodecFactory(scheme)
	deserializer = codecs.UniversalDeserializer()
)

func init() {
	_ = admissionv1.AddToScheme(scheme)
}

// reviewTimeout bounds one policy evaluation, including any cluster
// queries it issues.
const reviewTimeout = 10 * time.Second

// AdmissionHandler serves AdmissionReview requests for one policy.
type AdmissionHandler struct {
	policy policy.Policy
	logger *zap.Logger
}

// NewAdmissionHandler creates a handler for the given policy.
func NewAdmissionHandler(p policy.Policy, logger *zap.Logger) *AdmissionHandler {
	return &AdmissionHandler{
		policy: p,
		logger: logger.Named(p.Name()),
	}
}

// Handle handles an admission review request.
func (h *AdmissionHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return
	}

	// Admission reviews are small; cap the body to keep a misbehaving
	// client from holding memory.
	const maxBodySize = 1 << 20 // 1MB
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.logger.Error("Failed to read request body", zap.Error(err))
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	review := &admissionv1.AdmissionReview{}
	if _, _, err := deserializer.Decode(body, nil, review); err != nil {
		h.logger.Error("Failed to decode admission review", zap.Error(err))
		http.Error(w, "Failed to decode admission review", http.StatusBadRequest)
		return
	}
	if review.Request == nil {
		http.Error(w, "Admission review has no request", http.StatusBadRequest)
		return
	}

	review.Response = h.review(r, review.Request)
	h.sendResponse(w, review)
}

// review runs the policy and translates its outcome into an admission
// response. Policy errors deny the request: this suite enforces security
// checks, so a failed evaluation must never admit by accident.
func (h *AdmissionHandler) review(r *http.Request, req *admissionv1.AdmissionRequest) *admissionv1.AdmissionResponse {
	start := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), reviewTimeout)
	defer cancel()

	h.logger.Debug("Processing admission request",
		zap.String("uid", string(req.UID)),
		zap.String("namespace", req.Namespace),
		zap.String("kind", req.Kind.Kind),
		zap.String("name", req.Name),
		zap.String("operation", string(req.Operation)),
	)

	response, err := h.policy.Review(ctx, req)
	if err != nil {
		h.logger.Error("Policy evaluation failed",
			zap.String("uid", string(req.UID)),
			zap.Error(err),
		)
		response = &admissionv1.AdmissionResponse{
			UID:     req.UID,
			Allowed: false,
			Result: &metav1.Status{
				Message: "policy evaluation failed: " + err.Error(),
			},
		}
		h.observe(start, "errored")
		return response
	}

	h.observe(start, decisionLabel(response))
	return response
}

func (h *AdmissionHandler) observe(start time.Time, decision string) {
	name := h.policy.Name()
	metrics.AdmissionReviewsTotal.WithLabelValues(name, decision).Inc()
	metrics.AdmissionReviewDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

func decisionLabel(response *admissionv1.AdmissionResponse) string {
	switch {
	case !response.Allowed:
		return "denied"
	case len(response.Patch) > 0:
		return "mutated"
	default:
		return "allowed"
	}
}

// sendResponse sends an admission review response.
func (h *AdmissionHandler) sendResponse(w http.ResponseWriter, review *admissionv1.AdmissionReview) {
	review.TypeMeta = metav1.TypeMeta{
		APIVersion: "admission.k8s.io/v1",
		Kind:       "AdmissionReview",
	}

	responseBytes, err := json.Marshal(review)
	if err != nil {
		h.logger.Error("Failed to marshal response", zap.Error(err))
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(responseBytes)
}
