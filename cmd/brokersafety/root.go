package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for brokersafety.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brokersafety",
		Short: "Regulatory safety facts for retail trading brokers",
		Long: `brokersafety crawls a broker's public website and extracts the regulators
that license it, the legal entities behind it, investor protection, and links
to its terms, risk disclosure and client agreement.

Known brokers are answered from curated fact sheets; any other homepage is
crawled with a bounded, politeness-limited spider.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewRegulatorsCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
