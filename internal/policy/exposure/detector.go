package exposure

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
)

// ClusterReader lists cluster resources in a single namespace. The
// Detector takes it as an injected dependency so production and test
// wiring differ only at composition time.
type ClusterReader interface {
	ListIngresses(ctx context.Context, namespace string) ([]networkingv1.Ingress, error)
	ListServices(ctx context.Context, namespace string) ([]corev1.Service, error)
}

// Detector finds which webhook-referenced services are reachable from
// outside the cluster through an Ingress or a NodePort/LoadBalancer
// Service.
type Detector struct {
	reader ClusterReader
	logger *zap.Logger
}

// NewDetector creates a Detector backed by the given cluster reader.
func NewDetector(reader ClusterReader, logger *zap.Logger) *Detector {
	return &Detector{
		reader: reader,
		logger: logger.Named("exposure-detector"),
	}
}

// FindExposed returns the subset of targets that is also exposed by an
// Ingress or a NodePort/LoadBalancer Service in the target's namespace.
//
// A query failure in any namespace aborts the whole detection. A partial
// cluster view must never be reported as "nothing is exposed", so errors
// propagate instead of collapsing into an empty result.
func (d *Detector) FindExposed(ctx context.Context, targets *IdentitySet) (*IdentitySet, error) {
	exposed := NewIdentitySet()

	// Group targets by namespace so each distinct namespace costs one
	// pair of list queries rather than one pair per service.
	for namespace, namespaceTargets := range groupByNamespace(targets) {
		byIngress, err := d.exposedByIngress(ctx, namespace, namespaceTargets)
		if err != nil {
			return nil, err
		}
		byService, err := d.exposedByServiceType(ctx, namespace, namespaceTargets)
		if err != nil {
			return nil, err
		}
		exposed = exposed.Union(byIngress, byService)

		d.logger.Debug("namespace scanned",
			zap.String("namespace", namespace),
			zap.Int("targets", namespaceTargets.Len()),
			zap.Int("exposed_by_ingress", byIngress.Len()),
			zap.Int("exposed_by_service", byService.Len()),
		)
	}

	return exposed, nil
}

// groupByNamespace partitions the target set by namespace. Pure
// grouping, no I/O.
func groupByNamespace(targets *IdentitySet) map[string]*IdentitySet {
	grouped := make(map[string]*IdentitySet)
	for _, target := range targets.Items() {
		group, ok := grouped[target.Namespace]
		if !ok {
			group = NewIdentitySet()
			grouped[target.Namespace] = group
		}
		group.Add(target)
	}
	return grouped
}

// exposedByIngress intersects the namespace's webhook targets with every
// backend referenced by an Ingress in that namespace.
func (d *Detector) exposedByIngress(ctx context.Context, namespace string, targets *IdentitySet) (*IdentitySet, error) {
	ingresses, err := d.reader.ListIngresses(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("listing ingresses in namespace %q: %w", namespace, err)
	}

	candidates := NewIdentitySet()
	for i := range ingresses {
		candidates = candidates.Union(ServicesFromIngress(&ingresses[i]))
	}

	return candidates.Intersection(targets), nil
}

// exposedByServiceType intersects the namespace's webhook targets with
// every service-port pairing published by a NodePort or LoadBalancer
// Service in that namespace. Any other service type, including an unset
// type (ClusterIP semantics), is not externally reachable and is
// excluded.
func (d *Detector) exposedByServiceType(ctx context.Context, namespace string, targets *IdentitySet) (*IdentitySet, error) {
	services, err := d.reader.ListServices(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("listing services in namespace %q: %w", namespace, err)
	}

	candidates := NewIdentitySet()
	for i := range services {
		switch services[i].Spec.Type {
		case corev1.ServiceTypeNodePort, corev1.ServiceTypeLoadBalancer:
			candidates = candidates.Union(ServicesFromService(&services[i]))
		}
	}

	return candidates.Intersection(targets), nil
}
