package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/brokersafety/internal/config"
	"github.com/nao1215/brokersafety/internal/database"
	"github.com/nao1215/brokersafety/internal/model"
	"github.com/nao1215/brokersafety/internal/safety"
)

const historyTimeLayout = "2006-01-02 15:04:05"

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [homepage]",
		Short: "Compare stored reports of a broker",
		Long: `History shows how a broker's safety facts changed between stored reports.

The comparison lists:
- Regulators that were added or removed
- Legal entities that appeared or disappeared
- Document links that changed

Reports are stored by 'brokersafety crawl' unless --no-save is given.

Examples:
  # Compare the latest two reports of a broker
  brokersafety history https://broker.example

  # List stored reports of a broker
  brokersafety history --list https://broker.example

  # Compare two specific reports
  brokersafety history --from <id> --to <id> https://broker.example

  # List every broker with stored reports
  brokersafety history --list-homepages

  # Every legal entity licensed by a regulator across the latest reports
  brokersafety history --regulator CySEC`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list", "l", false,
		"List stored reports for the homepage")
	cmd.Flags().BoolP("list-homepages", "L", false,
		"List every homepage with stored reports")
	cmd.Flags().StringP("regulator", "r", "",
		"List entities licensed by this regulator across the latest reports")

	cmd.Flags().String("from", "",
		"ID of the older report (default: the second newest)")
	cmd.Flags().String("to", "",
		"ID of the newer report (default: the newest)")

	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	listHomepages, err := flags.GetBool("list-homepages")
	if err != nil {
		return err
	}
	regulatorAbbr, err := flags.GetString("regulator")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	var homepage string
	if !listHomepages && regulatorAbbr == "" {
		if len(args) == 0 {
			return errors.New("homepage is required (use --list-homepages to see stored brokers)")
		}
		homepage = safety.NormalizeHomepage(args[0])
	}

	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}
	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database (run 'brokersafety crawl' first): %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch {
	case listHomepages:
		return listStoredHomepages(ctx, out, db)
	case regulatorAbbr != "":
		return listRegulatorEntities(ctx, out, db, regulatorAbbr)
	}

	list, err := flags.GetBool("list")
	if err != nil {
		return err
	}
	if list {
		return listReportHistory(ctx, out, db, homepage)
	}

	fromID, err := flags.GetString("from")
	if err != nil {
		return err
	}
	toID, err := flags.GetString("to")
	if err != nil {
		return err
	}
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

	previous, current, err := selectReports(ctx, db, homepage, fromID, toID)
	if err != nil {
		return err
	}
	diff := diffReports(previous, current)

	switch {
	case jsonOutput:
		return outputDiffJSON(out, diff)
	case markdownOutput:
		return outputDiffMarkdown(out, diff)
	default:
		return outputDiffText(out, diff)
	}
}

func listStoredHomepages(ctx context.Context, out io.Writer, db *database.HistoryDB) error {
	homepages, err := db.ListHomepages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list homepages: %w", err)
	}

	if len(homepages) == 0 {
		fmt.Fprintln(out, "No stored reports found in the database.")
		fmt.Fprintln(out, "\nUse 'brokersafety crawl <homepage>' to extract a broker.")
		return nil
	}

	fmt.Fprintf(out, "Stored brokers (%d):\n\n", len(homepages))
	for _, h := range homepages {
		fmt.Fprintf(out, "  • %s\n", h)
	}
	fmt.Fprintln(out, "\nUse 'brokersafety history --list <homepage>' to see the reports of a broker.")
	return nil
}

func listReportHistory(ctx context.Context, out io.Writer, db *database.HistoryDB, homepage string) error {
	metas, err := db.GetReportMetadata(ctx, homepage)
	if err != nil {
		return fmt.Errorf("failed to get report history: %w", err)
	}

	if len(metas) == 0 {
		fmt.Fprintf(out, "No stored reports found for %s\n", homepage)
		return nil
	}

	fmt.Fprintf(out, "Report history for %s (%d reports):\n\n", homepage, len(metas))
	fmt.Fprintf(out, "  %-36s  %-19s  %-16s  %s\n", "ID", "Date", "Extractor", "Regulators")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 96))
	for _, m := range metas {
		fmt.Fprintf(out, "  %-36s  %-19s  %-16s  %s\n",
			m.ID,
			m.GeneratedAt.Local().Format(historyTimeLayout),
			m.Extractor,
			formatRegulators(m.Regulators),
		)
	}
	fmt.Fprintln(out, "\nUse 'brokersafety history --from <id> <homepage>' to compare with a specific report.")
	return nil
}

func listRegulatorEntities(ctx context.Context, out io.Writer, db *database.HistoryDB, abbr string) error {
	rows, err := db.QueryEntitiesByRegulator(ctx, abbr)
	if err != nil {
		return fmt.Errorf("failed to query entities: %w", err)
	}

	if len(rows) == 0 {
		fmt.Fprintf(out, "No stored entities licensed by %s\n", abbr)
		return nil
	}

	fmt.Fprintf(out, "Entities licensed by %s (%d):\n\n", abbr, len(rows))
	for _, row := range rows {
		name := row.EntityName
		if name == "" {
			name = "(unnamed entity)"
		}
		fmt.Fprintf(out, "  • %s  [%s]  %s\n", name, row.Homepage, row.GeneratedAt.Local().Format("2006-01-02"))
	}
	return nil
}

// selectReports resolves the two reports to compare. Both ids are optional;
// missing ones default to the newest and second newest report.
func selectReports(ctx context.Context, db *database.HistoryDB, homepage, fromID, toID string) (*model.SafetyReport, *model.SafetyReport, error) {
	history, err := db.GetReportHistory(ctx, homepage, 2)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get report history: %w", err)
	}
	if len(history) == 0 {
		return nil, nil, fmt.Errorf("no stored reports found for %s", homepage)
	}

	current := history[0]
	if toID != "" {
		if current, err = reportForHomepage(ctx, db, homepage, toID); err != nil {
			return nil, nil, err
		}
	}

	var previous *model.SafetyReport
	switch {
	case fromID != "":
		if previous, err = reportForHomepage(ctx, db, homepage, fromID); err != nil {
			return nil, nil, err
		}
	case len(history) < 2:
		return nil, nil, fmt.Errorf("at least 2 reports are required for comparison (found %d)", len(history))
	case toID != "" && toID == history[0].ID:
		previous = history[1]
	case toID != "":
		previous = history[0]
	default:
		previous = history[1]
	}

	if previous.ID == current.ID {
		return nil, nil, errors.New("cannot compare a report with itself")
	}
	return previous, current, nil
}

func reportForHomepage(ctx context.Context, db *database.HistoryDB, homepage, id string) (*model.SafetyReport, error) {
	rep, err := db.GetReportByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("report %s not found", id)
		}
		return nil, err
	}
	if rep.Homepage != homepage {
		return nil, fmt.Errorf("report %s belongs to %s, not %s", id, rep.Homepage, homepage)
	}
	return rep, nil
}

// ReportDiff is the difference between two reports of one broker.
type ReportDiff struct {
	Homepage string `json:"homepage"`

	Previous ReportSummary `json:"previous"`
	Current  ReportSummary `json:"current"`

	AddedRegulators   []string `json:"added_regulators,omitempty"`
	RemovedRegulators []string `json:"removed_regulators,omitempty"`

	AddedEntities   []string `json:"added_entities,omitempty"`
	RemovedEntities []string `json:"removed_entities,omitempty"`

	ChangedLinks []LinkChange `json:"changed_links,omitempty"`
}

// ReportSummary identifies one side of a comparison.
type ReportSummary struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	Extractor   string    `json:"extractor"`
	IsRegulated string    `json:"is_regulated"`
	Regulators  []string  `json:"regulators"`
	Entities    int       `json:"entities"`
}

// LinkChange is a document link that differs between reports.
type LinkChange struct {
	Field    string `json:"field"`
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// HasChanges reports whether anything differs.
func (d *ReportDiff) HasChanges() bool {
	return len(d.AddedRegulators) > 0 || len(d.RemovedRegulators) > 0 ||
		len(d.AddedEntities) > 0 || len(d.RemovedEntities) > 0 ||
		len(d.ChangedLinks) > 0 || d.Previous.IsRegulated != d.Current.IsRegulated
}

func summarize(rep *model.SafetyReport) ReportSummary {
	rec := rep.Record
	if rec == nil {
		rec = model.NewNormalizedSafetyRecord()
	}
	return ReportSummary{
		ID:          rep.ID,
		GeneratedAt: rep.GeneratedAt,
		Extractor:   rep.Extractor,
		IsRegulated: rec.IsRegulated,
		Regulators:  rec.Regulators(),
		Entities:    len(rec.Entities),
	}
}

// diffReports compares previous against current.
func diffReports(previous, current *model.SafetyReport) *ReportDiff {
	diff := &ReportDiff{
		Homepage: current.Homepage,
		Previous: summarize(previous),
		Current:  summarize(current),
	}

	diff.AddedRegulators, diff.RemovedRegulators = setDiff(diff.Previous.Regulators, diff.Current.Regulators)
	diff.AddedEntities, diff.RemovedEntities = setDiff(entityLabels(previous.Record), entityLabels(current.Record))
	diff.ChangedLinks = linkChanges(previous.Record, current.Record)

	return diff
}

// setDiff returns the items only in after and the items only in before,
// each in their original order.
func setDiff(before, after []string) (added, removed []string) {
	for _, a := range after {
		if !slices.Contains(before, a) {
			added = append(added, a)
		}
	}
	for _, b := range before {
		if !slices.Contains(after, b) {
			removed = append(removed, b)
		}
	}
	return added, removed
}

func entityLabels(rec *model.NormalizedSafetyRecord) []string {
	if rec == nil {
		return nil
	}
	labels := make([]string, 0, len(rec.Entities))
	for _, e := range rec.Entities {
		name := e.EntityName
		if name == "" {
			name = "(unnamed)"
		}
		label := fmt.Sprintf("%s (%s)", name, e.RegulatorAbbr)
		if !slices.Contains(labels, label) {
			labels = append(labels, label)
		}
	}
	return labels
}

func linkChanges(previous, current *model.NormalizedSafetyRecord) []LinkChange {
	if previous == nil {
		previous = model.NewNormalizedSafetyRecord()
	}
	if current == nil {
		current = model.NewNormalizedSafetyRecord()
	}

	fields := []struct {
		name      string
		prev, cur string
	}{
		{"terms_url", previous.TermsURL, current.TermsURL},
		{"risk_disclosure_url", previous.RiskDisclosureURL, current.RiskDisclosureURL},
		{"client_agreement_url", previous.ClientAgreementURL, current.ClientAgreementURL},
		{"open_account_url", previous.OpenAccountURL, current.OpenAccountURL},
		{"privacy_url", previous.PrivacyURL, current.PrivacyURL},
	}

	var changes []LinkChange
	for _, f := range fields {
		if f.prev != f.cur {
			changes = append(changes, LinkChange{Field: f.name, Previous: f.prev, Current: f.cur})
		}
	}
	return changes
}

func outputDiffJSON(out io.Writer, diff *ReportDiff) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(diff)
}

func outputDiffText(out io.Writer, diff *ReportDiff) error {
	fmt.Fprintf(out, "Report Comparison: %s\n", diff.Homepage)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nPrevious report: %s  %s  (%s)\n",
		diff.Previous.GeneratedAt.Local().Format(historyTimeLayout), diff.Previous.ID, diff.Previous.Extractor)
	fmt.Fprintf(out, "Current report:  %s  %s  (%s)\n",
		diff.Current.GeneratedAt.Local().Format(historyTimeLayout), diff.Current.ID, diff.Current.Extractor)

	fmt.Fprintf(out, "\nRegulators: %s -> %s\n",
		formatRegulators(diff.Previous.Regulators), formatRegulators(diff.Current.Regulators))
	if diff.Previous.IsRegulated != diff.Current.IsRegulated {
		fmt.Fprintf(out, "Regulated:  %s -> %s\n", orNone(diff.Previous.IsRegulated), orNone(diff.Current.IsRegulated))
	}

	if !diff.HasChanges() {
		fmt.Fprintln(out, "\nNo changes.")
		return nil
	}

	writeTextList(out, "Added Regulators", "+", diff.AddedRegulators)
	writeTextList(out, "Removed Regulators", "-", diff.RemovedRegulators)
	writeTextList(out, "Added Entities", "+", diff.AddedEntities)
	writeTextList(out, "Removed Entities", "-", diff.RemovedEntities)

	if len(diff.ChangedLinks) > 0 {
		fmt.Fprintf(out, "\nChanged Links (%d):\n", len(diff.ChangedLinks))
		for _, c := range diff.ChangedLinks {
			fmt.Fprintf(out, "  [~] %s\n", c.Field)
			fmt.Fprintf(out, "      was: %s\n", orNone(c.Previous))
			fmt.Fprintf(out, "      now: %s\n", orNone(c.Current))
		}
	}
	return nil
}

func writeTextList(out io.Writer, title, marker string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s (%d):\n", title, len(items))
	for _, item := range items {
		fmt.Fprintf(out, "  [%s] %s\n", marker, item)
	}
}

func outputDiffMarkdown(out io.Writer, diff *ReportDiff) error {
	md := markdown.NewMarkdown(out)

	md.H1("Report Comparison: " + diff.Homepage)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"", "Previous", "Current"},
		Rows: [][]string{
			{"Report", diff.Previous.ID, diff.Current.ID},
			{"Date", diff.Previous.GeneratedAt.Local().Format(historyTimeLayout), diff.Current.GeneratedAt.Local().Format(historyTimeLayout)},
			{"Extractor", diff.Previous.Extractor, diff.Current.Extractor},
			{"Regulated", orNone(diff.Previous.IsRegulated), orNone(diff.Current.IsRegulated)},
			{"Regulators", formatRegulators(diff.Previous.Regulators), formatRegulators(diff.Current.Regulators)},
		},
	})
	md.PlainText("")

	if !diff.HasChanges() {
		md.PlainText(markdown.Italic("No changes."))
		return md.Build()
	}

	writeMarkdownList(md, "Added Regulators", diff.AddedRegulators, false)
	writeMarkdownList(md, "Removed Regulators", diff.RemovedRegulators, true)
	writeMarkdownList(md, "Added Entities", diff.AddedEntities, false)
	writeMarkdownList(md, "Removed Entities", diff.RemovedEntities, true)

	if len(diff.ChangedLinks) > 0 {
		md.H2f("Changed Links (%d)", len(diff.ChangedLinks))
		md.PlainText("")
		rows := make([][]string, len(diff.ChangedLinks))
		for i, c := range diff.ChangedLinks {
			rows[i] = []string{c.Field, orNone(c.Previous), orNone(c.Current)}
		}
		md.Table(markdown.TableSet{Header: []string{"Link", "Previous", "Current"}, Rows: rows})
		md.PlainText("")
	}

	return md.Build()
}

func writeMarkdownList(md *markdown.Markdown, title string, items []string, struck bool) {
	if len(items) == 0 {
		return
	}
	md.H2f("%s (%d)", title, len(items))
	md.PlainText("")
	bullets := make([]string, len(items))
	for i, item := range items {
		if struck {
			bullets[i] = markdown.Strikethrough(item)
		} else {
			bullets[i] = markdown.Bold(item)
		}
	}
	md.BulletList(bullets...)
	md.PlainText("")
}

func formatRegulators(regulators []string) string {
	if len(regulators) == 0 {
		return "none"
	}
	return strings.Join(regulators, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
