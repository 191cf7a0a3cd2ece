package dataset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"chemviz-client-go/internal/apiclient"
	platformerrors "chemviz-client-go/internal/platform/errors"
)

const (
	listPath   = "/datasets/"
	uploadPath = "/datasets/upload/"

	defaultConcurrency = 4
)

// Logger is the logging contract of the dataset service.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Service calls the dataset endpoints through the authenticated client.
type Service struct {
	client *apiclient.Client
	logger Logger
}

func NewService(client *apiclient.Client, logger Logger) *Service {
	return &Service{client: client, logger: logger}
}

// List returns the current user's datasets, newest first.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	var out []Summary
	if err := s.client.GetJSON(ctx, listPath, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int) (*Dataset, error) {
	var out Dataset
	if err := s.client.GetJSON(ctx, detailPath(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMany fetches the details of ids with at most concurrency requests in
// flight. Results keep the order of ids. The first failure cancels the
// rest.
func (s *Service) GetMany(ctx context.Context, ids []int, concurrency int) ([]*Dataset, error) {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	out := make([]*Dataset, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			ds, err := s.Get(gctx, id)
			if err != nil {
				return err
			}
			out[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a dataset and returns the backend's message.
func (s *Service) Delete(ctx context.Context, id int) (string, error) {
	resp, err := s.client.Do(ctx, apiclient.NewRequest(http.MethodDelete, fmt.Sprintf("/datasets/%d/delete/", id)))
	if err != nil {
		return "", err
	}
	var body struct {
		Message string `json:"message"`
	}
	if len(resp.Body) > 0 {
		if err := resp.DecodeJSON(&body); err != nil {
			return "", platformerrors.Wrap(platformerrors.KindTransport, "dataset.delete", "decode response", err)
		}
	}
	s.logger.Info("[dataset] deleted %d", id)
	return body.Message, nil
}

// Upload sends a CSV file as the multipart field "file".
func (s *Service) Upload(ctx context.Context, filename string, content io.Reader) (*Dataset, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindDomain, "dataset.upload", "read "+filename, err)
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	req := apiclient.NewRequest(http.MethodPost, uploadPath)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Body = buf.Bytes()

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	var out Dataset
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "dataset.upload", "decode response", err)
	}
	s.logger.Info("[dataset] uploaded %s as %d (%d records)", out.Filename, out.ID, out.TotalCount)
	return &out, nil
}

// DownloadReport fetches the PDF report of a dataset.
func (s *Service) DownloadReport(ctx context.Context, id int) (*Report, error) {
	req := apiclient.NewRequest(http.MethodGet, fmt.Sprintf("/datasets/%d/report/", id))
	req.Header.Set("Accept", "application/pdf")

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Report{
		DatasetID:   id,
		Filename:    reportFilename(resp.Header.Get("Content-Disposition"), id),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        resp.Body,
	}, nil
}

// SaveReport downloads the report of id into dir.
func (s *Service) SaveReport(ctx context.Context, id int, dir string) (string, error) {
	report, err := s.DownloadReport(ctx, id)
	if err != nil {
		return "", err
	}
	path, err := report.Save(dir)
	if err != nil {
		return "", platformerrors.Wrap(platformerrors.KindStorage, "dataset.report", "save report", err)
	}
	s.logger.Info("[dataset] report for %d saved to %s", id, path)
	return path, nil
}

// IsNotFound reports whether err is the backend not finding a dataset.
func IsNotFound(err error) bool {
	return apiclient.StatusCode(err) == http.StatusNotFound
}

func detailPath(id int) string {
	return fmt.Sprintf("/datasets/%d/", id)
}
