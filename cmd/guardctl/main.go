// guardctl is a CLI tool for auditing admission webhook configurations
// against a live cluster.
//
// Installation:
//
//	go build -o guardctl ./cmd/guardctl
//	mv guardctl /usr/local/bin/
//
// Usage:
//
//	guardctl check -f webhook-config.yaml
//	guardctl check --kind ValidatingWebhookConfiguration --name my-webhook
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	outputFmt string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "guardctl",
		Short: "Audit admission webhook configurations for exposed services",
		Long: `guardctl checks whether the backend services of a
ValidatingWebhookConfiguration or MutatingWebhookConfiguration are
reachable from outside the cluster through an Ingress or a
NodePort/LoadBalancer Service.`,
		Version: version,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")

	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
