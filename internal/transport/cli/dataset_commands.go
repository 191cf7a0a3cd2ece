package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"chemviz-client-go/internal/domain/dataset"
)

func (a *App) datasets(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: datasets needs a subcommand (list, show, upload, delete)", ErrUsage)
	}
	switch args[0] {
	case "list":
		return a.datasetList(ctx, args[1:])
	case "show":
		return a.datasetShow(ctx, args[1:])
	case "upload":
		return a.datasetUpload(ctx, args[1:])
	case "delete":
		return a.datasetDelete(ctx, args[1:])
	default:
		return fmt.Errorf("%w: unknown datasets subcommand %q", ErrUsage, args[0])
	}
}

func (a *App) datasetList(ctx context.Context, args []string) error {
	fs := a.flagSet("datasets list")
	details := fs.Bool("details", false, "fetch every dataset and total its equipment")
	concurrency := fs.Int("concurrency", 4, "parallel detail requests")
	if err := parse(fs, args); err != nil {
		return err
	}

	items, err := a.deps.Datasets.List(ctx)
	if err != nil {
		return err
	}
	if err := renderSummaries(a.deps.Stdout, items); err != nil {
		return err
	}
	if !*details || len(items) == 0 {
		return nil
	}

	ids := make([]int, len(items))
	for i, s := range items {
		ids[i] = s.ID
	}
	full, err := a.deps.Datasets.GetMany(ctx, ids, *concurrency)
	if err != nil {
		return err
	}
	renderTypeTotals(a.deps.Stdout, full)
	return nil
}

func (a *App) datasetShow(ctx context.Context, args []string) error {
	fs := a.flagSet("datasets show")
	records := fs.Bool("records", false, "print every equipment record")
	id, err := parseID(fs, args)
	if err != nil {
		return err
	}

	ds, err := a.deps.Datasets.Get(ctx, id)
	if err != nil {
		return notFound(err, id)
	}
	return renderDataset(a.deps.Stdout, ds, *records)
}

func (a *App) datasetUpload(ctx context.Context, args []string) error {
	fs := a.flagSet("datasets upload")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: datasets upload needs exactly one CSV file", ErrUsage)
	}
	path := fs.Arg(0)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ds, err := a.deps.Datasets.Upload(ctx, path, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.deps.Stdout, "uploaded %s as dataset %d (%d records)\n", ds.Filename, ds.ID, ds.TotalCount)
	return nil
}

func (a *App) datasetDelete(ctx context.Context, args []string) error {
	fs := a.flagSet("datasets delete")
	id, err := parseID(fs, args)
	if err != nil {
		return err
	}
	msg, err := a.deps.Datasets.Delete(ctx, id)
	if err != nil {
		return notFound(err, id)
	}
	if msg == "" {
		msg = "deleted"
	}
	fmt.Fprintf(a.deps.Stdout, "%s (dataset %d)\n", msg, id)
	return nil
}

func (a *App) report(ctx context.Context, args []string) error {
	fs := a.flagSet("report")
	out := fs.String("out", a.deps.ReportDir, "directory to save the PDF into")
	id, err := parseID(fs, args)
	if err != nil {
		return err
	}
	path, err := a.deps.Datasets.SaveReport(ctx, id, *out)
	if err != nil {
		return notFound(err, id)
	}
	fmt.Fprintf(a.deps.Stdout, "report saved to %s\n", path)
	return nil
}

// parseID accepts the dataset id before or after the flags.
func parseID(fs *flag.FlagSet, args []string) (int, error) {
	var raw string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		raw, args = args[0], args[1:]
	}
	if err := parse(fs, args); err != nil {
		return 0, err
	}
	if raw == "" && fs.NArg() > 0 {
		raw = fs.Arg(0)
	}
	if raw == "" {
		return 0, fmt.Errorf("%w: %s needs a dataset id", ErrUsage, fs.Name())
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid dataset id %q", ErrUsage, raw)
	}
	return id, nil
}

func notFound(err error, id int) error {
	if dataset.IsNotFound(err) {
		return fmt.Errorf("dataset %d not found", id)
	}
	return err
}
