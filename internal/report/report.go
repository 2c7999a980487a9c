// Package report renders training metadata for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/okian/triage/internal/domain/model"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	headerStyle = lipgloss.NewStyle().Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Write renders a run summary followed by one per-class table per target.
func Write(w io.Writer, meta model.Metadata) error {
	info := meta.TrainingInfo
	var b strings.Builder

	fmt.Fprintln(&b, titleStyle.Render("Training run "+info.RunID))
	fmt.Fprintln(&b, mutedStyle.Render(fmt.Sprintf("trained %s  version %s  features %d",
		info.TrainedAt, info.ModelVersion, info.NFeatures)))
	fmt.Fprintf(&b, "train %d  test %d  (test_size %.2f, random_state %d)\n",
		info.NTrainSamples, info.NTestSamples, info.TestSize, info.RandomState)

	for _, target := range []string{model.TargetCategory, model.TargetPriority} {
		fmt.Fprintln(&b)
		writeTarget(&b, target, meta.Target(target))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeTarget(b *strings.Builder, target string, tm *model.TargetMetadata) {
	fmt.Fprintf(b, "%s  accuracy %.3f  mean confidence %.3f  iterations %d\n",
		titleStyle.Render(strings.ToUpper(target)), tm.Accuracy, tm.MeanConfidence, tm.NIter)
	if !tm.Converged {
		fmt.Fprintln(b, warnStyle.Render("warning: optimizer stopped at its iteration limit"))
	}
	if len(tm.PerClass) == 0 {
		return
	}

	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
		headerStyle.Render("label"),
		headerStyle.Render("precision"),
		headerStyle.Render("recall"),
		headerStyle.Render("f1"),
		headerStyle.Render("support"))
	for _, r := range tm.PerClass {
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\t%d\n", r.Label, r.Precision, r.Recall, r.F1, r.Support)
	}
	_ = tw.Flush()
}
