// Package webhook manages the TLS material the admission server presents
// to the API server, either self-signed and persisted in a Secret or
// delegated to cert-manager.
package webhook

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	// CertValidityDuration is how long generated certificates are valid.
	CertValidityDuration = 365 * 24 * time.Hour

	// CertRotationThreshold is how long before expiry rotation kicks in.
	CertRotationThreshold = 30 * 24 * time.Hour

	// DefaultSecretName is the Secret storing the TLS keypair.
	DefaultSecretName = "guardgate-webhook-tls"

	// DefaultValidatingConfigName is the suite's own
	// ValidatingWebhookConfiguration.
	DefaultValidatingConfigName = "guardgate-validating"

	// DefaultMutatingConfigName is the suite's own
	// MutatingWebhookConfiguration (the pod-ndots policy).
	DefaultMutatingConfigName = "guardgate-mutating"
)

// CertMode specifies how certificates are managed.
type CertMode string

const (
	// CertModeSelfSigned means guardgate manages its own CA and keypair.
	CertModeSelfSigned CertMode = "self-signed"

	// CertModeCertManager means cert-manager owns the certificate lifecycle.
	CertModeCertManager CertMode = "cert-manager"
)

// CertManagerConfig holds configuration for certificate management.
type CertManagerConfig struct {
	Mode        CertMode
	Namespace   string
	ServiceName string
	SecretName  string

	// ValidatingConfigName and MutatingConfigName are the webhook
	// configurations whose caBundle gets patched. Either may be empty to
	// skip that kind.
	ValidatingConfigName string
	MutatingConfigName   string
}

// DefaultCertManagerConfig returns the self-signed defaults for the given
// namespace.
func DefaultCertManagerConfig(namespace string) CertManagerConfig {
	return CertManagerConfig{
		Mode:                 CertModeSelfSigned,
		Namespace:            namespace,
		ServiceName:          "guardgate-webhook",
		SecretName:           DefaultSecretName,
		ValidatingConfigName: DefaultValidatingConfigName,
		MutatingConfigName:   DefaultMutatingConfigName,
	}
}

// CertManager manages the admission webhook's TLS certificates.
type CertManager struct {
	client kubernetes.Interface
	config CertManagerConfig
	logger *zap.Logger

	caCert     []byte
	serverCert []byte
	serverKey  []byte
}

// NewCertManager creates a certificate manager.
func NewCertManager(client kubernetes.Interface, config CertManagerConfig, logger *zap.Logger) *CertManager {
	return &CertManager{
		client: client,
		config: config,
		logger: logger.Named("cert-manager"),
	}
}

// EnsureCertificates makes sure valid TLS certificates are loaded,
// generating and persisting them in self-signed mode.
func (m *CertManager) EnsureCertificates(ctx context.Context) error {
	switch m.config.Mode {
	case CertModeSelfSigned:
		return m.ensureSelfSignedCerts(ctx)
	case CertModeCertManager:
		return m.ensureCertManagerCerts(ctx)
	default:
		return fmt.Errorf("unknown cert mode: %s", m.config.Mode)
	}
}

// GetCertificates returns (caCert, serverCert, serverKey) as PEM.
func (m *CertManager) GetCertificates() ([]byte, []byte, []byte) {
	return m.caCert, m.serverCert, m.serverKey
}

// GetCABundle returns the CA certificate for webhook configurations.
func (m *CertManager) GetCABundle() []byte {
	return m.caCert
}

// UpdateWebhookCABundles patches the caBundle into both of guardgate's
// webhook configurations. Missing configurations are an error: without
// the bundle the API server cannot reach the server.
func (m *CertManager) UpdateWebhookCABundles(ctx context.Context) error {
	if len(m.caCert) == 0 {
		return fmt.Errorf("no CA certificate available")
	}

	if name := m.config.ValidatingConfigName; name != "" {
		if err := m.updateValidatingCABundle(ctx, name); err != nil {
			return err
		}
	}
	if name := m.config.MutatingConfigName; name != "" {
		if err := m.updateMutatingCABundle(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (m *CertManager) updateValidatingCABundle(ctx context.Context, name string) error {
	cfg, err := m.client.AdmissionregistrationV1().
		ValidatingWebhookConfigurations().
		Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("getting validating webhook configuration %s: %w", name, err)
	}

	updated := false
	for i := range cfg.Webhooks {
		if !bytes.Equal(cfg.Webhooks[i].ClientConfig.CABundle, m.caCert) {
			cfg.Webhooks[i].ClientConfig.CABundle = m.caCert
			updated = true
		}
	}
	if !updated {
		return nil
	}

	_, err = m.client.AdmissionregistrationV1().
		ValidatingWebhookConfigurations().
		Update(ctx, cfg, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("updating validating webhook configuration %s: %w", name, err)
	}
	m.logger.Info("Updated validating webhook CA bundle", zap.String("name", name))
	return nil
}

func (m *CertManager) updateMutatingCABundle(ctx context.Context, name string) error {
	cfg, err := m.client.AdmissionregistrationV1().
		MutatingWebhookConfigurations().
		Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("getting mutating webhook configuration %s: %w", name, err)
	}

	updated := false
	for i := range cfg.Webhooks {
		if !bytes.Equal(cfg.Webhooks[i].ClientConfig.CABundle, m.caCert) {
			cfg.Webhooks[i].ClientConfig.CABundle = m.caCert
			updated = true
		}
	}
	if !updated {
		return nil
	}

	_, err = m.client.AdmissionregistrationV1().
		MutatingWebhookConfigurations().
		Update(ctx, cfg, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("updating mutating webhook configuration %s: %w", name, err)
	}
	m.logger.Info("Updated mutating webhook CA bundle", zap.String("name", name))
	return nil
}

// ensureSelfSignedCerts loads valid certificates from the Secret or
// generates and persists a fresh CA and server keypair.
func (m *CertManager) ensureSelfSignedCerts(ctx context.Context) error {
	secret, getErr := m.client.CoreV1().Secrets(m.config.Namespace).
		Get(ctx, m.config.SecretName, metav1.GetOptions{})

	secretExists := getErr == nil
	if getErr == nil {
		if m.areCertsValid(secret) {
			m.caCert = secret.Data["ca.crt"]
			m.serverCert = secret.Data["tls.crt"]
			m.serverKey = secret.Data["tls.key"]
			m.logger.Debug("Using existing certificates from secret")
			return nil
		}
		m.logger.Info("Certificates expiring or invalid, regenerating")
	} else if !apierrors.IsNotFound(getErr) {
		return fmt.Errorf("getting secret: %w", getErr)
	}

	m.logger.Info("Generating self-signed certificates")
	caCert, caKey, err := m.generateCA()
	if err != nil {
		return fmt.Errorf("generating CA: %w", err)
	}
	serverCert, serverKey, err := m.generateServerCert(caCert, caKey)
	if err != nil {
		return fmt.Errorf("generating server certificate: %w", err)
	}

	newSecret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      m.config.SecretName,
			Namespace: m.config.Namespace,
			Labels: map[string]string{
				"app.kubernetes.io/name":      "guardgate",
				"app.kubernetes.io/component": "webhook",
			},
		},
		Type: corev1.SecretTypeTLS,
		Data: map[string][]byte{
			"ca.crt":  caCert,
			"tls.crt": serverCert,
			"tls.key": serverKey,
		},
	}

	if secretExists {
		_, err = m.client.CoreV1().Secrets(m.config.Namespace).
			Update(ctx, newSecret, metav1.UpdateOptions{})
		if err != nil {
			return fmt.Errorf("updating secret: %w", err)
		}
		m.logger.Info("Updated TLS secret", zap.String("name", m.config.SecretName))
	} else {
		_, err = m.client.CoreV1().Secrets(m.config.Namespace).
			Create(ctx, newSecret, metav1.CreateOptions{})
		if err != nil {
			return fmt.Errorf("creating secret: %w", err)
		}
		m.logger.Info("Created TLS secret", zap.String("name", m.config.SecretName))
	}

	m.caCert = caCert
	m.serverCert = serverCert
	m.serverKey = serverKey
	return nil
}

// ensureCertManagerCerts verifies cert-manager populated the secret.
func (m *CertManager) ensureCertManagerCerts(ctx context.Context) error {
	secret, err := m.client.CoreV1().Secrets(m.config.Namespace).
		Get(ctx, m.config.SecretName, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return fmt.Errorf("cert-manager secret %s/%s not found; ensure the Certificate resource exists",
				m.config.Namespace, m.config.SecretName)
		}
		return fmt.Errorf("getting secret: %w", err)
	}

	m.caCert = secret.Data["ca.crt"]
	m.serverCert = secret.Data["tls.crt"]
	m.serverKey = secret.Data["tls.key"]

	if len(m.serverCert) == 0 || len(m.serverKey) == 0 {
		return fmt.Errorf("cert-manager secret missing tls.crt or tls.key")
	}
	return nil
}

// areCertsValid reports whether the stored certificate parses and is not
// inside the rotation threshold.
func (m *CertManager) areCertsValid(secret *corev1.Secret) bool {
	certPEM := secret.Data["tls.crt"]
	if len(certPEM) == 0 {
		return false
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return false
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return false
	}

	rotationTime := time.Now().Add(CertRotationThreshold)
	if cert.NotAfter.Before(rotationTime) {
		m.logger.Info("Certificate expiring soon",
			zap.Time("expires", cert.NotAfter),
			zap.Duration("threshold", CertRotationThreshold))
		return false
	}
	return true
}

// generateCA creates a new CA certificate and key.
func (m *CertManager) generateCA() (certPEM, keyPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("generating CA key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("generating serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Guardgate"},
			CommonName:   "Guardgate Webhook CA",
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(CertValidityDuration),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("creating CA certificate: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return certPEM, keyPEM, nil
}

// generateServerCert creates a server certificate signed by the CA, with
// SANs for every in-cluster DNS form of the webhook Service.
func (m *CertManager) generateServerCert(caCertPEM, caKeyPEM []byte) (certPEM, keyPEM []byte, err error) {
	caBlock, _ := pem.Decode(caCertPEM)
	if caBlock == nil {
		return nil, nil, fmt.Errorf("decoding CA certificate PEM")
	}
	caCert, err := x509.ParseCertificate(caBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing CA certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(caKeyPEM)
	if keyBlock == nil {
		return nil, nil, fmt.Errorf("decoding CA key PEM")
	}
	caKey, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing CA key: %w", err)
	}

	serverKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("generating server key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("generating serial number: %w", err)
	}

	dnsNames := []string{
		m.config.ServiceName,
		fmt.Sprintf("%s.%s", m.config.ServiceName, m.config.Namespace),
		fmt.Sprintf("%s.%s.svc", m.config.ServiceName, m.config.Namespace),
		fmt.Sprintf("%s.%s.svc.cluster.local", m.config.ServiceName, m.config.Namespace),
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Guardgate"},
			CommonName:   m.config.ServiceName,
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(CertValidityDuration),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, caCert, &serverKey.PublicKey, caKey)
	if err != nil {
		return nil, nil, fmt.Errorf("creating server certificate: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(serverKey)})
	return certPEM, keyPEM, nil
}
