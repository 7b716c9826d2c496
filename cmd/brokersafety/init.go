package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/brokersafety/internal/config"
)

//go:embed templates/brokersafety.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new brokersafety configuration file",
		Long: `Initialize creates a new .brokersafety.yaml configuration file in the current directory.

The generated file includes:
- Default crawl settings applied to every broker
- Commented examples for per-broker seeds, cookies and patterns

Examples:
  # Create .brokersafety.yaml in current directory
  brokersafety init

  # Create config file at a specific path
  brokersafety init -o myconfig.yaml

  # Force overwrite existing file
  brokersafety init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/brokersafety.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure per-broker settings such as:")
	fmt.Fprintln(out, "  - Extra seed URLs for legal and regulation pages")
	fmt.Fprintln(out, "  - Consent cookies and headers")
	fmt.Fprintln(out, "  - Page budget, depth and URL patterns")

	return nil
}
