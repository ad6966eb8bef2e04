// Package report renders job progress and results for a human at a console.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/dvloznov/fraud-detection/internal/dataset"
	"github.com/dvloznov/fraud-detection/internal/evaluate"
	"github.com/dvloznov/fraud-detection/internal/ml"
	"github.com/dvloznov/fraud-detection/internal/runs"
)

// Header prints a section banner.
func Header(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "========== %s ==========\n", title)
}

// Num formats a metric value, keeping NaN readable.
func Num(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return fmt.Sprintf("%.4f", v)
}

// PrintBinaryClassificationMetrics prints the evaluation report for a trainer.
func PrintBinaryClassificationMetrics(w io.Writer, name string, m evaluate.Metrics) {
	fmt.Fprintln(w, "************************************************************")
	fmt.Fprintf(w, "*       Metrics for %s binary classification model\n", name)
	fmt.Fprintln(w, "*-----------------------------------------------------------")

	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	rows := []struct {
		label string
		value float64
	}{
		{"Accuracy", m.Accuracy},
		{"Area Under Curve", m.AUC},
		{"Area under Precision recall Curve", m.AUPRC},
		{"F1Score", m.F1},
		{"LogLoss", m.LogLoss},
		{"LogLossReduction", m.LogLossReduction},
		{"PositivePrecision", m.PositivePrecision},
		{"PositiveRecall", m.PositiveRecall},
		{"NegativePrecision", m.NegativePrecision},
		{"NegativeRecall", m.NegativeRecall},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "*       %s:\t%s\n", r.label, Num(r.value))
	}
	tw.Flush()

	c := m.Confusion
	fmt.Fprintln(w, "*-----------------------------------------------------------")
	fmt.Fprintln(w, "*       Confusion matrix (rows: actual, columns: predicted)")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "*\t\tfraud\tlegit\t\n")
	fmt.Fprintf(tw, "*\tfraud\t%d\t%d\t\n", c.TruePositives, c.FalseNegatives)
	fmt.Fprintf(tw, "*\tlegit\t%d\t%d\t\n", c.FalsePositives, c.TrueNegatives)
	tw.Flush()
	fmt.Fprintln(w, "************************************************************")
}

// PeekFrame prints the first n rows of f as a table.
func PeekFrame(w io.Writer, f *ml.Frame, n int) {
	head := f.Head(n)
	names := head.Names()

	fmt.Fprintf(w, "Peek data in frame: showing %d rows with the columns\n", head.Rows())
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(names, "\t"))
	cols := make([]*ml.Column, len(names))
	for i, name := range names {
		cols[i], _ = head.Column(name)
	}
	for row := 0; row < head.Rows(); row++ {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = c.Format(row)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}

// PrintVectorColumn prints up to limit rows of a vector column, one
// tab-separated row per line.
func PrintVectorColumn(w io.Writer, f *ml.Frame, name string, limit int) error {
	col, err := f.ColumnOf(name, ml.KindVector)
	if err != nil {
		return fmt.Errorf("PrintVectorColumn: %w", err)
	}
	for i, row := range col.Vectors {
		if i >= limit {
			break
		}
		for _, v := range row {
			fmt.Fprintf(w, "%g\t", v)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// InspectRecords dumps up to n fraud and n legitimate records.
func InspectRecords(w io.Writer, ds dataset.Dataset, n int) {
	fmt.Fprintf(w, "Show %d Fraud Transactions (true)\n", n)
	for _, r := range ds.Filter(true, n) {
		r.Dump(w)
	}
	fmt.Fprintf(w, "Show %d NON-Fraud Transactions (false)\n", n)
	for _, r := range ds.Filter(false, n) {
		r.Dump(w)
	}
}

// PrintPredictions prints up to n scored rows: the label when present, the
// predicted label, the probability and the feature that contributed most.
func PrintPredictions(w io.Writer, f *ml.Frame, label string, n int) error {
	prob, err := f.ColumnOf(ml.ProbabilityColumn, ml.KindFloat)
	if err != nil {
		return fmt.Errorf("PrintPredictions: %w", err)
	}
	pred, err := f.ColumnOf(ml.PredictedLabelColumn, ml.KindBool)
	if err != nil {
		return fmt.Errorf("PrintPredictions: %w", err)
	}
	actual, _ := f.ColumnOf(label, ml.KindBool)
	contrib, _ := f.ColumnOf(ml.FeatureContributionsColumn, ml.KindVector)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Row\tActual\tPredicted\tProbability\tTop feature")
	for row := 0; row < f.Rows() && row < n; row++ {
		act := "-"
		if actual != nil {
			act = fmt.Sprintf("%t", actual.Bools[row])
		}
		top := "-"
		if contrib != nil {
			top = topContribution(contrib.Slots, contrib.Vectors[row])
		}
		fmt.Fprintf(tw, "%d\t%s\t%t\t%s\t%s\n", row+1, act, pred.Bools[row], Num(prob.Floats[row]), top)
	}
	return tw.Flush()
}

func topContribution(slots []string, v []float64) string {
	best := -1
	for i, x := range v {
		if best < 0 || math.Abs(x) > math.Abs(v[best]) {
			best = i
		}
	}
	if best < 0 || best >= len(slots) || v[best] == 0 {
		return "-"
	}
	return fmt.Sprintf("%s (%+.3f)", slots[best], v[best])
}

// PrintRuns lists training runs, one per line.
func PrintRuns(w io.Writer, list []*runs.TrainingRun) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tSTATUS\tTRAIN\tTEST\tACCURACY\tAUC\tF1\tMODEL / ERROR")
	for _, r := range list {
		detail := r.ModelURI
		if r.Status == runs.RunStatusFailed {
			detail = r.Error
			if rs := []rune(detail); len(rs) > 60 {
				detail = string(rs[:57]) + "..."
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			r.RunID, r.StartedAt.UTC().Format("2006-01-02 15:04:05"), r.Status,
			r.TrainRows, r.TestRows, Num(r.Accuracy), Num(r.AUC), Num(r.F1), detail)
	}
	return tw.Flush()
}
