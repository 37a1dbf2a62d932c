package exposure

import (
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
)

// The four extraction rules below share a contract: they are pure, never
// fail, and return a set, so duplicate references collapse and order
// carries no meaning. Malformed or partial resources (missing spec,
// missing ports) contribute nothing instead of erroring.

// ServicesFromValidatingWebhookConfiguration returns the service-port
// pairings referenced by clientConfig.service across every webhook entry.
// URL-based entries have no service reference and are skipped: they
// cannot be exposed as a cluster Service.
func ServicesFromValidatingWebhookConfiguration(cfg *admissionregistrationv1.ValidatingWebhookConfiguration) *IdentitySet {
	targets := NewIdentitySet()
	for i := range cfg.Webhooks {
		if svc := cfg.Webhooks[i].ClientConfig.Service; svc != nil {
			targets.Add(IdentityFromServiceReference(svc))
		}
	}
	return targets
}

// ServicesFromMutatingWebhookConfiguration is the MutatingWebhookConfiguration
// counterpart of ServicesFromValidatingWebhookConfiguration.
func ServicesFromMutatingWebhookConfiguration(cfg *admissionregistrationv1.MutatingWebhookConfiguration) *IdentitySet {
	targets := NewIdentitySet()
	for i := range cfg.Webhooks {
		if svc := cfg.Webhooks[i].ClientConfig.Service; svc != nil {
			targets.Add(IdentityFromServiceReference(svc))
		}
	}
	return targets
}

// ServicesFromIngress returns every backend service the Ingress routes
// to: the default backend plus each HTTP rule path backend. All
// identities take the Ingress's own namespace.
func ServicesFromIngress(ing *networkingv1.Ingress) *IdentitySet {
	backends := NewIdentitySet()
	namespace := ing.Namespace

	if def := ing.Spec.DefaultBackend; def != nil && def.Service != nil {
		backends.Add(IdentityFromIngressBackend(namespace, def.Service))
	}

	for i := range ing.Spec.Rules {
		http := ing.Spec.Rules[i].HTTP
		if http == nil {
			continue
		}
		for j := range http.Paths {
			if svc := http.Paths[j].Backend.Service; svc != nil {
				backends.Add(IdentityFromIngressBackend(namespace, svc))
			}
		}
	}

	return backends
}

// ServicesFromService returns one identity per declared port, all
// sharing the Service's name and namespace. A Service declaring N ports
// yields exactly N identities.
func ServicesFromService(svc *corev1.Service) *IdentitySet {
	pairs := NewIdentitySet()
	for i := range svc.Spec.Ports {
		pairs.Add(ServiceIdentity{
			Namespace: svc.Namespace,
			Name:      svc.Name,
			Port:      svc.Spec.Ports[i].Port,
		})
	}
	return pairs
}
