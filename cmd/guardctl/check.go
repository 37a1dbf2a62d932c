package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/yaml"

	"github.com/guardgateio/guardgate/internal/policy/exposure"
)

var (
	checkFile  string
	checkKind  string
	checkName  string
	kubeconfig string
)

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a webhook configuration's services are exposed",
		Long: `Extract the backend services referenced by a webhook configuration and
report which of them are reachable through an Ingress or a
NodePort/LoadBalancer Service in the live cluster.

Examples:
  # Check a manifest file before applying it
  guardctl check -f webhook-config.yaml

  # Check a configuration already in the cluster
  guardctl check --kind MutatingWebhookConfiguration --name my-webhook

  # Output as JSON
  guardctl check -f webhook-config.yaml -o json`,
		RunE: runCheck,
	}

	cmd.Flags().StringVarP(&checkFile, "filename", "f", "", "Webhook configuration manifest to check")
	cmd.Flags().StringVar(&checkKind, "kind", "", "Kind of the in-cluster configuration (ValidatingWebhookConfiguration or MutatingWebhookConfiguration)")
	cmd.Flags().StringVar(&checkName, "name", "", "Name of the in-cluster configuration")
	cmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig (defaults to standard loading rules)")

	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	ctx := context.Background()

	kind, name, targets, err := loadTargets(ctx, client)
	if err != nil {
		return err
	}

	detector := exposure.NewDetector(exposure.NewClientsetReader(client), zap.NewNop())
	exposed, err := detector.FindExposed(ctx, targets)
	if err != nil {
		return fmt.Errorf("exposure detection failed: %w", err)
	}

	result := CheckResult{
		Kind:        kind,
		Name:        name,
		TargetCount: targets.Len(),
		Exposed:     exposedInfos(exposed),
	}

	if err := outputResult(result, outputFmt); err != nil {
		return err
	}
	if len(result.Exposed) > 0 {
		os.Exit(1)
	}
	return nil
}

// loadTargets produces the webhook target set either from a manifest file
// or from a named in-cluster configuration.
func loadTargets(ctx context.Context, client kubernetes.Interface) (kind, name string, targets *exposure.IdentitySet, err error) {
	if checkFile != "" {
		return loadTargetsFromFile()
	}
	if checkKind == "" || checkName == "" {
		return "", "", nil, fmt.Errorf("either --filename or both --kind and --name are required")
	}

	switch checkKind {
	case "ValidatingWebhookConfiguration":
		cfg, err := client.AdmissionregistrationV1().
			ValidatingWebhookConfigurations().
			Get(ctx, checkName, metav1.GetOptions{})
		if err != nil {
			return "", "", nil, fmt.Errorf("failed to get configuration: %w", err)
		}
		return checkKind, checkName, exposure.ServicesFromValidatingWebhookConfiguration(cfg), nil
	case "MutatingWebhookConfiguration":
		cfg, err := client.AdmissionregistrationV1().
			MutatingWebhookConfigurations().
			Get(ctx, checkName, metav1.GetOptions{})
		if err != nil {
			return "", "", nil, fmt.Errorf("failed to get configuration: %w", err)
		}
		return checkKind, checkName, exposure.ServicesFromMutatingWebhookConfiguration(cfg), nil
	default:
		return "", "", nil, fmt.Errorf("unsupported kind %q", checkKind)
	}
}

func loadTargetsFromFile() (kind, name string, targets *exposure.IdentitySet, err error) {
	data, err := os.ReadFile(checkFile)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var meta struct {
		Kind     string `json:"kind"`
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
	}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return "", "", nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	switch meta.Kind {
	case "ValidatingWebhookConfiguration":
		cfg := &admissionregistrationv1.ValidatingWebhookConfiguration{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return "", "", nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
		return meta.Kind, meta.Metadata.Name, exposure.ServicesFromValidatingWebhookConfiguration(cfg), nil
	case "MutatingWebhookConfiguration":
		cfg := &admissionregistrationv1.MutatingWebhookConfiguration{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return "", "", nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
		return meta.Kind, meta.Metadata.Name, exposure.ServicesFromMutatingWebhookConfiguration(cfg), nil
	default:
		return "", "", nil, fmt.Errorf("manifest kind %q is not a webhook configuration", meta.Kind)
	}
}

// getClient builds a clientset from the kubeconfig flag or the standard
// loading rules.
func getClient() (kubernetes.Interface, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		loadingRules.ExplicitPath = kubeconfig
	}
	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		loadingRules,
		&clientcmd.ConfigOverrides{},
	).ClientConfig()
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(config)
}
