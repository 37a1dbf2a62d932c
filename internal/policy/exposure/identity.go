package exposure

import (
	"fmt"
	"sort"
	"strings"

	"github.com/amit7itz/goset"
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	networkingv1 "k8s.io/api/networking/v1"
)

// ServiceIdentity identifies one service-port pairing. Equality is
// structural over all three fields, so identities from different
// namespaces never compare equal.
//
// Port 0 means the reference carries no numeric port (for example an
// Ingress backend addressing a named port). Valid service ports are
// 1-65535, so 0 is unambiguous. No name-to-number port resolution is
// attempted: an absent port only ever matches another absent port.
type ServiceIdentity struct {
	Namespace string
	Name      string
	Port      int32
}

// String renders the identity as namespace/name, the form used in
// rejection messages. The port is deliberately omitted.
func (s ServiceIdentity) String() string {
	return fmt.Sprintf("%s/%s", s.Namespace, s.Name)
}

// IdentitySet is a set of service-port pairings.
type IdentitySet = goset.Set[ServiceIdentity]

// NewIdentitySet creates a set from the given identities.
func NewIdentitySet(identities ...ServiceIdentity) *IdentitySet {
	return goset.NewSet(identities...)
}

// IdentityFromServiceReference builds an identity from a webhook
// clientConfig service reference. The port is taken verbatim; a nil
// port stays absent rather than being defaulted to 443.
func IdentityFromServiceReference(ref *admissionregistrationv1.ServiceReference) ServiceIdentity {
	id := ServiceIdentity{
		Namespace: ref.Namespace,
		Name:      ref.Name,
	}
	if ref.Port != nil {
		id.Port = *ref.Port
	}
	return id
}

// IdentityFromIngressBackend builds an identity from an Ingress backend
// service reference. Ingress backends are always same-namespace
// references, so the namespace comes from the enclosing Ingress. A
// backend addressing a named port yields Port 0.
func IdentityFromIngressBackend(namespace string, backend *networkingv1.IngressServiceBackend) ServiceIdentity {
	return ServiceIdentity{
		Namespace: namespace,
		Name:      backend.Name,
		Port:      backend.Port.Number,
	}
}

// FormatIdentities renders a set as a sorted, deduplicated
// "namespace/name" list for user-facing messages.
func FormatIdentities(set *IdentitySet) string {
	seen := goset.NewSet[string]()
	for _, id := range set.Items() {
		seen.Add(id.String())
	}
	names := seen.Items()
	sort.Strings(names)
	return strings.Join(names, ", ")
}
