package dataset

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Report is a downloaded PDF report.
type Report struct {
	DatasetID   int
	Filename    string
	ContentType string
	Data        []byte
}

func (r *Report) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.Data)
	return int64(n), err
}

// Save writes the report into dir under its own file name and returns the
// path written.
func (r *Report) Save(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, r.Filename)
	if err := os.WriteFile(path, r.Data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// reportFilename takes the file name from a Content-Disposition header and
// falls back to report_<id>.pdf.
func reportFilename(disposition string, id int) string {
	fallback := fmt.Sprintf("report_%d.pdf", id)
	if disposition == "" {
		return fallback
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return fallback
	}
	name := strings.TrimSpace(params["filename"])
	// Only the base name is kept so a header cannot point outside the
	// output directory.
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "" || name == "/" || name == "." {
		return fallback
	}
	return name
}
