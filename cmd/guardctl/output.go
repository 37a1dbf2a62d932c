package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"sigs.k8s.io/yaml"

	"github.com/guardgateio/guardgate/internal/policy/exposure"
)

// CheckResult is the output of the check command.
type CheckResult struct {
	Kind        string        `json:"kind"`
	Name        string        `json:"name"`
	TargetCount int           `json:"targetCount"`
	Exposed     []ExposedInfo `json:"exposed"`
}

// ExposedInfo describes one exposed service-port pairing.
type ExposedInfo struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Port      int32  `json:"port,omitempty"`
}

// exposedInfos converts the detector's result set into stable, sorted
// output entries.
func exposedInfos(set *exposure.IdentitySet) []ExposedInfo {
	infos := make([]ExposedInfo, 0, set.Len())
	for _, id := range set.Items() {
		infos = append(infos, ExposedInfo{
			Namespace: id.Namespace,
			Name:      id.Name,
			Port:      id.Port,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Namespace != infos[j].Namespace {
			return infos[i].Namespace < infos[j].Namespace
		}
		if infos[i].Name != infos[j].Name {
			return infos[i].Name < infos[j].Name
		}
		return infos[i].Port < infos[j].Port
	})
	return infos
}

// outputResult renders a result in the requested format.
func outputResult(result CheckResult, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case "yaml":
		data, err := yaml.Marshal(result)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	case "table":
		printTable(result)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	return nil
}

func printTable(result CheckResult) {
	fmt.Printf("%s/%s: %d webhook service target(s)\n", result.Kind, result.Name, result.TargetCount)
	if len(result.Exposed) == 0 {
		fmt.Println("No exposed webhook services found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAMESPACE\tNAME\tPORT")
	for _, e := range result.Exposed {
		port := "-"
		if e.Port != 0 {
			port = fmt.Sprintf("%d", e.Port)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Namespace, e.Name, port)
	}
	w.Flush()
}
