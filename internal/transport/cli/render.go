package cli

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/bytedance/sonic"

	"chemviz-client-go/internal/apiclient"
	"chemviz-client-go/internal/domain/dataset"
)

const barWidth = 30

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func renderSummaries(w io.Writer, items []dataset.Summary) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "no datasets")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tFILENAME\tUPLOADED\tROWS\tAVG FLOW\tAVG PRESSURE\tAVG TEMP")
	for _, s := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.2f\t%.2f\t%.2f\n",
			s.ID, s.Filename, s.UploadedAt.Local().Format("2006-01-02 15:04"),
			s.TotalCount, s.AvgFlowrate, s.AvgPressure, s.AvgTemperature)
	}
	return tw.Flush()
}

func renderDataset(w io.Writer, ds *dataset.Dataset, withRecords bool) error {
	fmt.Fprintf(w, "Dataset %d: %s\n", ds.ID, ds.Filename)
	fmt.Fprintf(w, "Uploaded %s by %s, %d records\n\n",
		ds.UploadedAt.Local().Format("2006-01-02 15:04"), ds.Username, ds.TotalCount)

	chart := dataset.Chart(ds.Summary)
	fmt.Fprintln(w, "Equipment types")
	renderBars(w, chart.Distribution, "%.0f")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Averages")
	renderBars(w, chart.Averages, "%.2f")

	if !withRecords || len(ds.Records) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := newTable(w)
	fmt.Fprintln(tw, "NAME\tTYPE\tFLOWRATE\tPRESSURE\tTEMPERATURE")
	for _, r := range ds.Records {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.2f\n", r.EquipmentName, r.EquipmentType, r.Flowrate, r.Pressure, r.Temperature)
	}
	return tw.Flush()
}

func renderBars(w io.Writer, points []dataset.ChartPoint, format string) {
	if len(points) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	var peak float64
	labelWidth := 0
	for _, p := range points {
		peak = math.Max(peak, p.Value)
		labelWidth = max(labelWidth, len(p.Label))
	}
	for _, p := range points {
		n := 0
		if peak > 0 {
			n = int(math.Round(p.Value / peak * barWidth))
		}
		fmt.Fprintf(w, "  %-*s %s "+format+"\n", labelWidth, p.Label, strings.Repeat("#", n), p.Value)
	}
}

func renderTypeTotals(w io.Writer, details []*dataset.Dataset) {
	totals := map[string]int{}
	for _, ds := range details {
		for _, r := range ds.Records {
			totals[r.EquipmentType]++
		}
	}
	points := make([]dataset.ChartPoint, 0, len(totals))
	for label, count := range totals {
		points = append(points, dataset.ChartPoint{Label: label, Value: float64(count)})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Value != points[j].Value {
			return points[i].Value > points[j].Value
		}
		return points[i].Label < points[j].Label
	})
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Equipment across datasets")
	renderBars(w, points, "%.0f")
}

// describe turns backend error bodies into a one line message.
func describe(err error) string {
	var statusErr *apiclient.HTTPStatusError
	if !errors.As(err, &statusErr) || len(statusErr.Body) == 0 {
		return err.Error()
	}

	var body map[string]any
	if sonic.Unmarshal(statusErr.Body, &body) != nil {
		return err.Error()
	}
	for _, key := range []string{"error", "detail", "message"} {
		if msg, ok := body[key].(string); ok && msg != "" {
			return fmt.Sprintf("%s (%d)", msg, statusErr.StatusCode)
		}
	}

	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, flatten(body[k])))
	}
	if len(parts) == 0 {
		return err.Error()
	}
	return fmt.Sprintf("%s (%d)", strings.Join(parts, "; "), statusErr.StatusCode)
}

func flatten(v any) string {
	switch t := v.(type) {
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(t)
	}
}
