package main

import (
	"fmt"
	"os"

	"k8s.io/apimachinery/pkg/util/yaml"

	"github.com/guardgateio/guardgate/internal/policy/criteria"
	"github.com/guardgateio/guardgate/internal/policy/ndots"
)

// PolicyConfig is the YAML settings file passed via --config. The
// exposure policy is always enabled and needs no settings; the other
// policies run only when their section is present.
type PolicyConfig struct {
	Labels      *criteria.Rule `json:"labels,omitempty"`
	Annotations *criteria.Rule `json:"annotations,omitempty"`
	PodNdots    *NdotsSettings `json:"podNdots,omitempty"`
}

// NdotsSettings configures the pod-ndots mutation policy.
type NdotsSettings struct {
	Ndots *int `json:"ndots,omitempty"`
}

// Value returns the configured ndots, or the policy default.
func (s *NdotsSettings) Value() int {
	if s.Ndots == nil {
		return ndots.DefaultNdots
	}
	return *s.Ndots
}

// loadPolicyConfig reads and parses the settings file. An empty path
// yields an empty config (exposure policy only).
func loadPolicyConfig(path string) (*PolicyConfig, error) {
	cfg := &PolicyConfig{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}
