package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Swind/go-numa-executor/core"
)

var topologyFormat string

func init() {
	topologyCmd.Flags().StringVar(&topologyFormat, "format", "pretty", "output format (pretty|json)")
}

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Show the detected NUMA layout",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setupColor(cmd); err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		execCfg, err := cfg.coreConfig(core.NewNoOpLogger())
		if err != nil {
			return err
		}
		report, err := describeTopology(core.HostTopology(), execCfg.MaxNodes)
		if err != nil {
			return err
		}

		switch strings.ToLower(topologyFormat) {
		case "json":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		case "pretty":
			renderTopology(cmd.OutOrStdout(), report)
			return nil
		default:
			return fmt.Errorf("unsupported format %q (must be pretty or json)", topologyFormat)
		}
	},
}

type topologyReport struct {
	Detected   int          `json:"detected_nodes"`
	Used       int          `json:"used_nodes"`
	GOMAXPROCS int          `json:"gomaxprocs"`
	Nodes      []nodeReport `json:"nodes"`
}

type nodeReport struct {
	ID   int   `json:"id"`
	CPUs []int `json:"cpus,omitempty"`
}

// describeTopology reports what topo detects and how many Nodes an Executor
// capped at limit would create.
func describeTopology(topo core.Topology, limit int) (topologyReport, error) {
	count, err := topo.NodeCount()
	if err != nil {
		return topologyReport{}, fmt.Errorf("read topology: %w", err)
	}
	if limit < 1 || limit > core.MaxNodes {
		limit = core.MaxNodes
	}
	report := topologyReport{
		Detected:   count,
		Used:       min(max(count, 1), limit),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
	}
	lister, _ := topo.(core.CPULister)
	for i := range report.Used {
		n := nodeReport{ID: i}
		if lister != nil && i < count {
			cpus, err := lister.CPUs(i)
			if err != nil {
				return topologyReport{}, fmt.Errorf("node %d: %w", i, err)
			}
			n.CPUs = cpus
		}
		report.Nodes = append(report.Nodes, n)
	}
	return report, nil
}

func renderTopology(w io.Writer, r topologyReport) {
	title := color.New(color.FgCyan, color.Bold)
	label := color.New(color.FgYellow)

	title.Fprintln(w, "NUMA topology")
	fmt.Fprintf(w, "  %s %d\n", label.Sprint("detected nodes:"), r.Detected)
	fmt.Fprintf(w, "  %s %d\n", label.Sprint("executor nodes:"), r.Used)
	fmt.Fprintf(w, "  %s %d\n", label.Sprint("GOMAXPROCS:    "), r.GOMAXPROCS)
	for _, n := range r.Nodes {
		cpus := "unknown"
		if len(n.CPUs) > 0 {
			cpus = formatCPUs(n.CPUs)
		}
		fmt.Fprintf(w, "  node %s  cpus %s\n", color.GreenString("%2d", n.ID), cpus)
	}
}

// formatCPUs renders sorted CPU ids in sysfs range form, e.g. "0-3,8".
func formatCPUs(cpus []int) string {
	var b strings.Builder
	for i := 0; i < len(cpus); {
		j := i
		for j+1 < len(cpus) && cpus[j+1] == cpus[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if j == i {
			fmt.Fprintf(&b, "%d", cpus[i])
		} else {
			fmt.Fprintf(&b, "%d-%d", cpus[i], cpus[j])
		}
		i = j + 1
	}
	return b.String()
}
