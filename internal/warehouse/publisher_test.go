package warehouse

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bigquery "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/option"

	"adminexport/internal/config"
	"adminexport/internal/dataprocessing"
	apperrors "adminexport/internal/errors"
)

// fakeBigQuery serves the jobs.insert upload and jobs.get endpoints
type fakeBigQuery struct {
	mu sync.Mutex

	// pendingPolls is how many jobs.get calls report RUNNING before DONE
	pendingPolls int
	errorResult  *bigquery.ErrorProto

	inserted  *bigquery.Job
	media     string
	mediaType string
	polls     int
	locations []string
}

func (f *fakeBigQuery) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/projects/test-proj/jobs"):
		f.handleInsert(w, r)
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/projects/test-proj/jobs/"):
		f.locations = append(f.locations, r.URL.Query().Get("location"))
		f.polls++
		job := *f.inserted
		job.Status = &bigquery.JobStatus{State: "RUNNING"}
		if f.polls > f.pendingPolls {
			job.Status = &bigquery.JobStatus{State: "DONE", ErrorResult: f.errorResult}
			if f.errorResult != nil {
				job.Status.Errors = []*bigquery.ErrorProto{f.errorResult}
			} else {
				job.Statistics = &bigquery.JobStatistics{
					Load: &bigquery.JobStatistics3{OutputRows: 2},
				}
			}
		}
		writeJSON(w, &job)
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
	}
}

func (f *fakeBigQuery) handleInsert(w http.ResponseWriter, r *http.Request) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		http.Error(w, "expected multipart upload", http.StatusBadRequest)
		return
	}

	mr := multipart.NewReader(r.Body, params["boundary"])
	meta, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var job bigquery.Job
	if err := json.NewDecoder(meta).Decode(&job); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	content, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.inserted = &job
	f.media = string(content)
	f.mediaType = body.Header.Get("Content-Type")

	resp := job
	resp.Status = &bigquery.JobStatus{State: "PENDING"}
	writeJSON(w, &resp)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestPublisher(t *testing.T, fake *fakeBigQuery, jobTimeout time.Duration) *Publisher {
	t.Helper()

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := config.WarehouseConfig{
		Project:      "test-proj",
		Dataset:      "raw_data",
		Table:        "goods_csv",
		Location:     "asia-northeast3",
		PollInterval: 5 * time.Millisecond,
		JobTimeout:   jobTimeout,
	}

	p, err := NewPublisher(context.Background(), cfg, nil,
		option.WithEndpoint(srv.URL+"/bigquery/v2/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication())
	require.NoError(t, err)
	p.newJobID = func() string { return "job-1" }
	return p
}

func sampleDataset() *dataprocessing.Dataset {
	return &dataprocessing.Dataset{
		Columns: []string{"상품명", "price"},
		Rows:    [][]string{{"사과", "1000"}, {"배", ""}},
	}
}

func TestPublisher_Overwrite(t *testing.T) {
	fake := &fakeBigQuery{pendingPolls: 1}
	p := newTestPublisher(t, fake, time.Minute)

	result, err := p.Overwrite(context.Background(), sampleDataset())
	require.NoError(t, err)

	assert.Equal(t, "job-1", result.JobID)
	assert.Equal(t, int64(2), result.Rows)
	assert.Equal(t, "test-proj.raw_data.goods_csv", result.Table.String())
	assert.Equal(t, 2, fake.polls)
	assert.Equal(t, []string{"asia-northeast3", "asia-northeast3"}, fake.locations)

	load := fake.inserted.Configuration.Load
	require.NotNil(t, load)
	assert.Equal(t, "WRITE_TRUNCATE", load.WriteDisposition)
	assert.Equal(t, "CREATE_IF_NEEDED", load.CreateDisposition)
	assert.Equal(t, "CSV", load.SourceFormat)
	assert.Equal(t, int64(1), load.SkipLeadingRows)
	assert.Equal(t, "goods_csv", load.DestinationTable.TableId)
	assert.Equal(t, "raw_data", load.DestinationTable.DatasetId)
	require.Len(t, load.Schema.Fields, 2)
	for i, name := range []string{"상품명", "price"} {
		assert.Equal(t, name, load.Schema.Fields[i].Name)
		assert.Equal(t, "STRING", load.Schema.Fields[i].Type)
		assert.Equal(t, "NULLABLE", load.Schema.Fields[i].Mode)
	}
	assert.Equal(t, "asia-northeast3", fake.inserted.JobReference.Location)

	assert.Equal(t, "상품명,price\n사과,1000\n배,\n", fake.media)
	assert.Contains(t, fake.mediaType, "text/csv")
}

func TestPublisher_OverwriteJobError(t *testing.T) {
	fake := &fakeBigQuery{errorResult: &bigquery.ErrorProto{
		Reason:  "invalid",
		Message: "Provided Schema does not match Table",
	}}
	p := newTestPublisher(t, fake, time.Minute)

	_, err := p.Overwrite(context.Background(), sampleDataset())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypePublish))
	assert.Contains(t, err.Error(), "Provided Schema does not match Table")

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "invalid", appErr.Context["reason"])
}

func TestPublisher_OverwriteTimeout(t *testing.T) {
	fake := &fakeBigQuery{pendingPolls: 1 << 30}
	p := newTestPublisher(t, fake, 50*time.Millisecond)

	_, err := p.Overwrite(context.Background(), sampleDataset())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypePublish))
}

func TestPublisher_OverwriteNoColumns(t *testing.T) {
	p := newTestPublisher(t, &fakeBigQuery{}, time.Minute)

	_, err := p.Overwrite(context.Background(), &dataprocessing.Dataset{})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypePublish))
}

func TestNewPublisher_InvalidTable(t *testing.T) {
	_, err := NewPublisher(context.Background(), config.WarehouseConfig{Project: "p"}, nil,
		option.WithoutAuthentication())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}
