package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Swind/go-numa-executor/core"
)

var rootCmd = &cobra.Command{
	Use:           "numaexec",
	Short:         "NUMA-aware cooperative task executor",
	Long:          `numaexec inspects the host NUMA layout and runs demo workloads on the executor.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(topologyCmd)
	rootCmd.AddCommand(pipelineCmd)

	rootCmd.PersistentFlags().String("config", "", "path to a numaexec.toml file")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error|off); overrides the config file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// setupColor applies the --color flag.
func setupColor(cmd *cobra.Command) error {
	mode, _ := cmd.Flags().GetString("color")
	switch mode {
	case "auto":
		color.NoColor = !isTerminal(os.Stdout)
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		return fmt.Errorf("unsupported color mode %q (must be auto, on or off)", mode)
	}
	return nil
}

// loadConfig reads --config and applies --log-level.
func loadConfig(cmd *cobra.Command) (fileConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := loadFileConfig(path)
	if err != nil {
		return fileConfig{}, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg fileConfig) core.Logger {
	return core.NewDefaultLogger(w, core.ParseLevel(cfg.Log.Level))
}
