package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/brokersafety/internal/config"
	"github.com/nao1215/brokersafety/internal/regulator"
	"github.com/nao1215/brokersafety/internal/safety"
)

// NewRegulatorsCmd creates the regulators command.
func NewRegulatorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regulators",
		Short: "List the regulator catalog",
		Long: `Regulators prints every regulator brokersafety recognises, with its tier
and jurisdiction. Tier 1 regulators offer the strongest client protection.

Examples:
  brokersafety regulators
  brokersafety regulators --tier 1
  brokersafety regulators --markdown
  brokersafety regulators --brokers`,
		Args: cobra.NoArgs,
		RunE: runRegulatorsCmd,
	}

	cmd.Flags().String("tier", "",
		"Only list regulators of this tier (1, 2 or 3)")
	cmd.Flags().Bool("brokers", false,
		"List the broker ids that have curated fact sheets instead")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output in Markdown format")

	return cmd
}

func runRegulatorsCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	out := cmd.OutOrStdout()

	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}

	brokers, err := flags.GetBool("brokers")
	if err != nil {
		return err
	}
	if brokers {
		return outputBrokerIDs(out, safety.BrokerIDs(), jsonOutput)
	}

	tierFlag, err := flags.GetString("tier")
	if err != nil {
		return err
	}
	records, err := filterTier(regulator.Default().Records(), tierFlag)
	if err != nil {
		return err
	}

	switch {
	case jsonOutput:
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(records)
	case markdownOutput:
		return outputRegulatorsMarkdown(out, records)
	default:
		return outputRegulatorsText(out, records)
	}
}

// filterTier keeps the records of one tier. An empty flag keeps everything;
// "1", "tier1" and "Tier-1" are all accepted.
func filterTier(records []regulator.Record, flag string) ([]regulator.Record, error) {
	flag = strings.TrimSpace(flag)
	if flag == "" {
		return records, nil
	}
	n := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(flag), "tier"), "-")
	tier := regulator.Tier("Tier-" + n)
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: %q", regulator.ErrInvalidTier, flag)
	}

	var out []regulator.Record
	for _, r := range records {
		if r.Tier == tier {
			out = append(out, r)
		}
	}
	return out, nil
}

func outputRegulatorsText(out io.Writer, records []regulator.Record) error {
	fmt.Fprintf(out, "Regulators (%d):\n\n", len(records))
	fmt.Fprintf(out, "  %-10s  %-6s  %-24s  %s\n", "Abbr", "Tier", "Jurisdiction", "Name")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 88))
	for _, r := range records {
		fmt.Fprintf(out, "  %-10s  %-6s  %-24s  %s\n",
			r.Abbreviation, tierLabel(r.Tier), r.Jurisdiction(), r.DisplayName)
	}
	return nil
}

func outputRegulatorsMarkdown(out io.Writer, records []regulator.Record) error {
	md := markdown.NewMarkdown(out)
	md.H1("Regulators")
	md.PlainText("")

	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{r.Abbreviation, r.DisplayName, tierLabel(r.Tier), r.Jurisdiction(), strings.Join(r.Aliases, ", ")}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Abbreviation", "Name", "Tier", "Jurisdiction", "Aliases"},
		Rows:   rows,
	})
	return md.Build()
}

func outputBrokerIDs(out io.Writer, ids []string, jsonOutput bool) error {
	if jsonOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(ids)
	}
	fmt.Fprintf(out, "Brokers with curated fact sheets (%d):\n\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(out, "  • %s\n", id)
	}
	fmt.Fprintln(out, "\nUse 'brokersafety crawl --broker <id> <homepage>' to force a fact sheet.")
	return nil
}

// tierLabel turns "Tier-1" into "1".
func tierLabel(t regulator.Tier) string {
	return strings.TrimPrefix(string(t), "Tier-")
}
