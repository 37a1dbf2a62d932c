package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/guardgateio/guardgate/internal/policy/annotations"
	"github.com/guardgateio/guardgate/internal/policy/exposure"
	"github.com/guardgateio/guardgate/internal/policy/labels"
	"github.com/guardgateio/guardgate/internal/policy/ndots"
	"github.com/guardgateio/guardgate/internal/webhook"
)

// runConfig holds parsed configuration for the webhook.
type runConfig struct {
	TLSCertFile    string
	TLSKeyFile     string
	Addr           string
	Namespace      string
	ServiceName    string
	ConfigFile     string
	SelfSignedMode bool
}

func main() {
	cfg := runConfig{}
	flag.StringVar(&cfg.TLSCertFile, "tls-cert-file", "", "Path to TLS certificate file (optional if using self-signed mode)")
	flag.StringVar(&cfg.TLSKeyFile, "tls-key-file", "", "Path to TLS key file (optional if using self-signed mode)")
	flag.StringVar(&cfg.Addr, "addr", ":8443", "Address to listen on")
	flag.StringVar(&cfg.Namespace, "namespace", "guardgate-system", "Namespace where the webhook runs")
	flag.StringVar(&cfg.ServiceName, "service-name", "guardgate-webhook", "Name of the webhook Service (used for certificate SANs)")
	flag.StringVar(&cfg.ConfigFile, "config", "", "Path to the policy settings YAML file")
	flag.BoolVar(&cfg.SelfSignedMode, "self-signed", true, "Use self-signed certificate management")
	flag.Parse()

	// Setup logger
	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := logConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}

// run contains the main application logic, separated from main() for testability.
func run(cfg runConfig, logger *zap.Logger) error {
	logger.Info("Starting guardgate admission webhook",
		zap.String("addr", cfg.Addr),
		zap.String("config", cfg.ConfigFile),
		zap.Bool("self_signed", cfg.SelfSignedMode),
	)

	config, err := rest.InClusterConfig()
	if err != nil {
		return fmt.Errorf("failed to get in-cluster config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	return startServer(cfg, clientset, logger)
}

// startServer sets up certificates, builds the configured policies, and
// serves until the process receives SIGINT/SIGTERM. Extracted from run()
// to allow testing with a fake clientset.
func startServer(cfg runConfig, clientset kubernetes.Interface, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var certManager *webhook.CertManager
	if cfg.TLSCertFile == "" || cfg.TLSKeyFile == "" {
		certConfig := webhook.DefaultCertManagerConfig(cfg.Namespace)
		certConfig.ServiceName = cfg.ServiceName
		if !cfg.SelfSignedMode {
			certConfig.Mode = webhook.CertModeCertManager
		}

		certManager = webhook.NewCertManager(clientset, certConfig, logger)
		if err := certManager.EnsureCertificates(ctx); err != nil {
			return fmt.Errorf("failed to ensure certificates: %w", err)
		}
		if err := certManager.UpdateWebhookCABundles(ctx); err != nil {
			// The configurations may not be applied yet; the bundle gets
			// patched on the next restart.
			logger.Warn("Failed to update webhook CA bundles", zap.Error(err))
		}
	}

	handlers, err := buildHandlers(cfg.ConfigFile, clientset, logger)
	if err != nil {
		return err
	}

	server := NewServer(ServerConfig{
		Addr:        cfg.Addr,
		TLSCertFile: cfg.TLSCertFile,
		TLSKeyFile:  cfg.TLSKeyFile,
		CertManager: certManager,
	}, handlers, logger)

	return server.Start(ctx)
}

// buildHandlers wires every configured policy to its serving path.
func buildHandlers(configFile string, clientset kubernetes.Interface, logger *zap.Logger) (map[string]*AdmissionHandler, error) {
	policyConfig, err := loadPolicyConfig(configFile)
	if err != nil {
		return nil, err
	}

	reader := exposure.NewClientsetReader(clientset)
	handlers := map[string]*AdmissionHandler{
		"/validate/" + exposure.PolicyName: NewAdmissionHandler(exposure.NewPolicy(reader, logger), logger),
	}

	if policyConfig.Labels != nil {
		p, err := labels.NewPolicy(*policyConfig.Labels)
		if err != nil {
			return nil, err
		}
		handlers["/validate/"+labels.PolicyName] = NewAdmissionHandler(p, logger)
	}

	if policyConfig.Annotations != nil {
		p, err := annotations.NewPolicy(*policyConfig.Annotations)
		if err != nil {
			return nil, err
		}
		handlers["/validate/"+annotations.PolicyName] = NewAdmissionHandler(p, logger)
	}

	if policyConfig.PodNdots != nil {
		p, err := ndots.NewPolicy(policyConfig.PodNdots.Value())
		if err != nil {
			return nil, err
		}
		handlers["/mutate/"+ndots.PolicyName] = NewAdmissionHandler(p, logger)
	}

	paths := make([]string, 0, len(handlers))
	for path := range handlers {
		paths = append(paths, path)
	}
	logger.Info("Registered admission policies", zap.Strings("paths", paths))

	return handlers, nil
}
