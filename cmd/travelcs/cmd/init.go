package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/angeless/travelcs/configs"
)

func newInitCmd() *cobra.Command {
	var force bool
	var noSamples bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a travelcs.yaml and a documents directory",
		Long: `Create an annotated travelcs.yaml and the documents directory in the
project directory. Unless --no-samples is given, the documents directory
is seeded with example products, FAQs, and a refund policy so
'travelcs index' has something to work with immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force, noSamples)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing travelcs.yaml")
	cmd.Flags().BoolVar(&noSamples, "no-samples", false, "Do not write sample documents")

	return cmd
}

func runInit(cmd *cobra.Command, force, noSamples bool) error {
	out := cmd.OutOrStdout()

	configPath := filepath.Join(workDir, "travelcs.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		fmt.Fprintf(out, "%s already exists, keeping it (use --force to overwrite)\n", configPath)
	} else {
		if err := os.WriteFile(configPath, []byte(configs.ConfigTemplate), 0o644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(out, "Wrote %s\n", configPath)
	}

	docsDir := documentsDir()
	if err := os.MkdirAll(docsDir, 0o755); err != nil {
		return fmt.Errorf("create documents directory: %w", err)
	}

	if !noSamples {
		samples := map[string]string{
			"products.yaml":    configs.SampleProducts,
			"faqs.yaml":        configs.SampleFAQs,
			"refund-policy.md": configs.SampleRefundPolicy,
		}
		for name, content := range samples {
			path := filepath.Join(docsDir, name)
			if _, err := os.Stat(path); err == nil {
				continue // never clobber real documents
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return fmt.Errorf("write sample %s: %w", name, err)
			}
			fmt.Fprintf(out, "Wrote %s\n", path)
		}
	}

	fmt.Fprintln(out, "Run 'travelcs index' to build the index, then 'travelcs search <query>'.")
	return nil
}
