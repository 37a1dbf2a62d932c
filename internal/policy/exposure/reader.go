package exposure

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/guardgateio/guardgate/internal/metrics"
)

// ClientsetReader is the production ClusterReader, backed by a client-go
// clientset. No label or field selectors are applied: the detector needs
// every Ingress and Service in the namespace.
type ClientsetReader struct {
	client kubernetes.Interface
}

// NewClientsetReader creates a ClusterReader over the given clientset.
func NewClientsetReader(client kubernetes.Interface) *ClientsetReader {
	return &ClientsetReader{client: client}
}

func (r *ClientsetReader) ListIngresses(ctx context.Context, namespace string) ([]networkingv1.Ingress, error) {
	list, err := r.client.NetworkingV1().Ingresses(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		metrics.ClusterListQueriesTotal.WithLabelValues("ingresses", "error").Inc()
		return nil, err
	}
	metrics.ClusterListQueriesTotal.WithLabelValues("ingresses", "success").Inc()
	return list.Items, nil
}

func (r *ClientsetReader) ListServices(ctx context.Context, namespace string) ([]corev1.Service, error) {
	list, err := r.client.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		metrics.ClusterListQueriesTotal.WithLabelValues("services", "error").Inc()
		return nil, err
	}
	metrics.ClusterListQueriesTotal.WithLabelValues("services", "success").Inc()
	return list.Items, nil
}
