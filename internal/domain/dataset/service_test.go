package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chemviz-client-go/internal/apiclient"
	"chemviz-client-go/internal/domain/auth/model"
	"chemviz-client-go/internal/domain/auth/store"
	ptesting "chemviz-client-go/internal/platform/testing"
)

const sampleCSV = `Equipment Name,Type,Flowrate,Pressure,Temperature
Pump-1,Pump,120.5,5.2,110
Pump-2,Pump,118.0,5.0,108
Valve-1,Valve,60.0,4.1,105
HX-1,HeatExchanger,150.0,6.3,130
`

func newService(t *testing.T, coalesce bool) (*Service, *ptesting.FakeBackend, store.Store) {
	t.Helper()

	backend := ptesting.NewFakeBackend(t)
	backend.AddUser("alice", "pw")
	access, refresh := backend.IssueTokens("alice")

	sessions := store.NewMemory(store.Config{})
	require.NoError(t, sessions.Save(context.Background(), model.Credentials{AccessToken: access, RefreshToken: refresh}))

	logger, _ := ptesting.SetupTestLogger(t)
	client, err := apiclient.New(apiclient.Options{
		BaseURL:         backend.BaseURL,
		Store:           sessions,
		Timeout:         5 * time.Second,
		CoalesceRefresh: coalesce,
		Logger:          logger,
	})
	require.NoError(t, err)
	return NewService(client, logger), backend, sessions
}

func TestUploadListGetDelete(t *testing.T) {
	svc, backend, _ := newService(t, false)
	ctx := context.Background()

	uploaded, err := svc.Upload(ctx, "/tmp/plant/sample.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, "sample.csv", uploaded.Filename)
	assert.Equal(t, 4, uploaded.TotalCount)
	assert.Equal(t, 2, uploaded.EquipmentTypes["Pump"])
	require.Len(t, uploaded.Records, 4)

	seen := backend.Seen()
	last := seen[len(seen)-1]
	assert.True(t, strings.HasPrefix(last.ContentType, "multipart/form-data; boundary="))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uploaded.ID, list[0].ID)
	assert.Equal(t, "alice", list[0].Username)

	detail, err := svc.Get(ctx, uploaded.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Records, 4)
	assert.InDelta(t, 112.13, detail.AvgFlowrate, 0.01)

	msg, err := svc.Delete(ctx, uploaded.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dataset deleted successfully", msg)

	_, err = svc.Get(ctx, uploaded.ID)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestUploadRejectedByBackend(t *testing.T) {
	svc, _, _ := newService(t, false)

	_, err := svc.Upload(context.Background(), "data.csv", strings.NewReader("a,b\n1,2\n"))
	require.Error(t, err)
	assert.Equal(t, 400, apiclient.StatusCode(err))
}

func TestUploadSurvivesExpiredAccessToken(t *testing.T) {
	svc, backend, sessions := newService(t, false)
	backend.ExpireAccessTokens()

	uploaded, err := svc.Upload(context.Background(), "sample.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, 4, uploaded.TotalCount)
	assert.Equal(t, 1, backend.RefreshCalls())
	assert.Equal(t, 2, backend.Count("POST", "/api/datasets/upload/"), "multipart body is re-sent after refresh")

	creds, err := sessions.Load(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, creds.AccessToken)
}

func TestGetManyKeepsOrder(t *testing.T) {
	svc, backend, _ := newService(t, true)
	var ids []int
	for _, name := range []string{"a.csv", "b.csv", "c.csv"} {
		ids = append(ids, backend.SeedDataset("alice", ptesting.FakeDataset{Filename: name}))
	}

	got, err := svc.GetMany(context.Background(), []int{ids[2], ids[0], ids[1]}, 2)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c.csv", got[0].Filename)
	assert.Equal(t, "a.csv", got[1].Filename)
	assert.Equal(t, "b.csv", got[2].Filename)
}

func TestGetManyAfterExpiryWithCoalescing(t *testing.T) {
	svc, backend, _ := newService(t, true)
	var ids []int
	for i := 0; i < 6; i++ {
		ids = append(ids, backend.SeedDataset("alice", ptesting.FakeDataset{Filename: "ds.csv"}))
	}
	backend.ExpireAccessTokens()
	backend.SetRefreshDelay(50 * time.Millisecond)

	got, err := svc.GetMany(context.Background(), ids, len(ids))
	require.NoError(t, err)
	assert.Len(t, got, len(ids))
	assert.GreaterOrEqual(t, backend.RefreshCalls(), 1)
	assert.Less(t, backend.RefreshCalls(), len(ids))
}

func TestGetManyStopsOnMissingDataset(t *testing.T) {
	svc, backend, _ := newService(t, false)
	id := backend.SeedDataset("alice", ptesting.FakeDataset{Filename: "a.csv"})

	_, err := svc.GetMany(context.Background(), []int{id, 999}, 0)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestDatasetsOfOtherUsersAreHidden(t *testing.T) {
	svc, backend, _ := newService(t, false)
	backend.AddUser("mallory", "pw")
	id := backend.SeedDataset("mallory", ptesting.FakeDataset{Filename: "secret.csv"})

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.Get(context.Background(), id)
	assert.True(t, IsNotFound(err))
}

func TestDownloadAndSaveReport(t *testing.T) {
	svc, backend, _ := newService(t, false)
	id := backend.SeedDataset("alice", ptesting.FakeDataset{Filename: "plant.csv"})
	ctx := context.Background()

	report, err := svc.DownloadReport(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, report.DatasetID)
	assert.True(t, strings.HasPrefix(report.Filename, "report_plant.csv_"))
	assert.Equal(t, "application/pdf", report.ContentType)
	assert.True(t, strings.HasPrefix(string(report.Data), "%PDF"))

	var buf strings.Builder
	n, err := report.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(report.Data)), n)

	dir := filepath.Join(t.TempDir(), "reports")
	path, err := svc.SaveReport(ctx, id, dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}

func TestReportFilename(t *testing.T) {
	tests := []struct {
		name        string
		disposition string
		want        string
	}{
		{"quoted", `attachment; filename="report_a.csv_20260101_120000.pdf"`, "report_a.csv_20260101_120000.pdf"},
		{"bare", `attachment; filename=r.pdf`, "r.pdf"},
		{"missing header", "", "report_7.pdf"},
		{"no filename", "attachment", "report_7.pdf"},
		{"malformed", `attachment; filename="`, "report_7.pdf"},
		{"path stripped", `attachment; filename="../../etc/r.pdf"`, "r.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reportFilename(tt.disposition, 7))
		})
	}
}

func TestChart(t *testing.T) {
	chart := Chart(Summary{
		AvgFlowrate:    112.13,
		AvgPressure:    5.15,
		AvgTemperature: 113.25,
		EquipmentTypes: map[string]int{"Valve": 1, "Pump": 2, "HeatExchanger": 1},
	})

	assert.Equal(t, []ChartPoint{
		{Label: "Pump", Value: 2},
		{Label: "HeatExchanger", Value: 1},
		{Label: "Valve", Value: 1},
	}, chart.Distribution)
	require.Len(t, chart.Averages, 3)
	assert.Equal(t, "Temperature", chart.Averages[2].Label)
	assert.Equal(t, 113.25, chart.Averages[2].Value)

	assert.Empty(t, Chart(Summary{}).Distribution)
}
