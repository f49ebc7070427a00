package report

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jaytaylor/html2text"

	"github.com/agrc/auditor/internal/audit"
)

// Values longer than this are cut so description blobs don't swamp the report.
const maxValue = 400

// Render formats a run as the flat-text audit report: a header, one block
// per item in audit order, the organization duplicate titles, and the fix
// counts per field.
func Render(run *audit.Run) string {
	var b strings.Builder

	mode := "full audit"
	if run.Spot {
		mode = "spot check"
	}
	dry := "no"
	if run.DryRun {
		dry = "yes"
	}
	corrections := 0
	for _, item := range run.Items {
		corrections += len(item.Corrections)
	}

	fmt.Fprintf(&b, "ArcGIS Online item audit, %s\n", run.StartedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "mode: %s | dry run: %s\n", mode, dry)
	fmt.Fprintf(&b, "items: %d | corrections: %d | failed items: %d\n", len(run.Items), corrections, run.Failures)

	for _, item := range run.Items {
		b.WriteString("\n")
		writeItem(&b, item)
	}

	writeDuplicates(&b, run.DuplicateTitles)
	writeCounts(&b, run)
	return b.String()
}

func writeItem(b *strings.Builder, res audit.Result) {
	source := res.SourceTable
	if !res.Matched {
		source = "no reference row"
	}
	fmt.Fprintf(b, "%s %s (%s)\n", res.ItemID, quote(res.Title), source)

	if len(res.Outcomes) > 0 {
		for _, out := range res.Outcomes {
			fmt.Fprintf(b, "  %s: %s -> %s %s\n",
				out.Field, value(out.Field, out.Current), value(out.Field, out.Desired), status(out))
		}
	} else {
		for _, cor := range res.Corrections {
			fmt.Fprintf(b, "  %s: %s -> %s\n",
				cor.Field, value(cor.Field, cor.Current), value(cor.Field, cor.Desired))
		}
	}
	for _, note := range res.Notes {
		fmt.Fprintf(b, "  note: %s\n", note)
	}
	for _, msg := range res.Errors {
		fmt.Fprintf(b, "  error: %s\n", msg)
	}
	if len(res.Corrections) == 0 && len(res.Notes) == 0 && len(res.Errors) == 0 {
		b.WriteString("  in sync\n")
	}
}

func status(out audit.Outcome) string {
	switch {
	case out.Err != nil:
		return fmt.Sprintf("[failed: %v]", out.Err)
	case out.DryRun:
		return "[dry run]"
	case out.Applied:
		return "[applied]"
	default:
		return "[not applied]"
	}
}

func writeDuplicates(b *strings.Builder, duplicates map[string][]string) {
	if len(duplicates) == 0 {
		return
	}
	b.WriteString("\nduplicate titles\n")
	titles := make([]string, 0, len(duplicates))
	for title := range duplicates {
		titles = append(titles, title)
	}
	slices.Sort(titles)
	for _, title := range titles {
		fmt.Fprintf(b, "  %s: %s\n", quote(title), strings.Join(duplicates[title], ", "))
	}
}

func writeCounts(b *strings.Builder, run *audit.Run) {
	counts := run.FixCounts()
	label := "fixes applied"
	if run.DryRun {
		counts = run.CorrectionCounts()
		label = "corrections needed"
	}
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s\n", label)
	fields := make([]audit.Field, 0, len(counts))
	for field := range counts {
		fields = append(fields, field)
	}
	slices.Sort(fields)
	for _, field := range fields {
		fmt.Fprintf(b, "  %s: %d\n", field, counts[field])
	}
}

// value renders one side of a correction. Descriptions carry HTML, so they
// are flattened to plain text first.
func value(field audit.Field, s string) string {
	if field == audit.FieldDescription {
		s = flatten(s)
	}
	return quote(truncate(s))
}

func flatten(s string) string {
	text, err := html2text.FromString(s, html2text.Options{TextOnly: true})
	if err != nil {
		text = s
	}
	return strings.Join(strings.Fields(text), " ")
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxValue {
		return s
	}
	return string(runes[:maxValue]) + "..."
}

func quote(s string) string {
	return "'" + s + "'"
}
