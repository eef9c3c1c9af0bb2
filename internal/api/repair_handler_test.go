package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagemend/pagemend/internal/config"
	"github.com/pagemend/pagemend/internal/jobs"
	"github.com/pagemend/pagemend/internal/pipeline"
	"github.com/pagemend/pagemend/internal/pubsub"
)

// stubRunner completes instantly with one corrected page. It records the
// options of its last run so override tests can inspect them.
type stubRunner struct {
	mu   sync.Mutex
	opts pipeline.Options
	err  error
}

// setOpts and lastOpts guard opts: the runner factory runs on the job
// goroutine, not the request goroutine.
func (s *stubRunner) setOpts(opts pipeline.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = opts
}

func (s *stubRunner) lastOpts() pipeline.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

func (s *stubRunner) Run(ctx context.Context, pdfData []byte, reporter pipeline.Reporter) (*pipeline.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	reporter.OnEvent(pipeline.ProgressEvent{Stage: pipeline.StageCorrecting, PageIndex: 0, TotalPages: 1})
	return &pipeline.Result{
		Pages:         []pipeline.PageResult{{Index: 0, RawText: "raw", CorrectedText: "fixed", Done: true}},
		RawText:       "raw",
		CorrectedText: "fixed",
	}, nil
}

func testApp(t *testing.T, runner *stubRunner, cfg *config.Config) (*fiber.App, *jobs.Manager) {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
		cfg.Pipeline.BatchSize = 1
		cfg.Pipeline.Concurrency = 1
		cfg.Pipeline.CallTimeout = time.Minute
		cfg.Pipeline.PageMarker = "\n"
	}

	manager := jobs.NewManager(func(opts pipeline.Options) jobs.Runner {
		runner.setOpts(opts)
		return runner
	}, pubsub.NewLocalPubSub(0), nil, cfg.Jobs, cfg.Realtime.ChannelBufferSize)

	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	NewRepairHandler(manager, cfg).RegisterRoutes(app.Group("/v1"))
	return app, manager
}

func pdfUpload(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)

	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func decodeSnapshot(t *testing.T, body io.Reader) jobs.Snapshot {
	t.Helper()
	var snap jobs.Snapshot
	require.NoError(t, json.NewDecoder(body).Decode(&snap))
	return snap
}

func awaitStatus(t *testing.T, m *jobs.Manager, snap jobs.Snapshot, want jobs.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := m.Get(snap.ID)
		require.NoError(t, err)
		if got.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job never reached status %s", want)
}

func TestCreateRepair(t *testing.T) {
	app, manager := testApp(t, &stubRunner{}, nil)

	body, contentType := pdfUpload(t, "book.pdf", []byte("%PDF-1.4"), nil)
	req := httptest.NewRequest("POST", "/v1/repairs", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	snap := decodeSnapshot(t, resp.Body)
	assert.Equal(t, "book.pdf", snap.Filename)
	awaitStatus(t, manager, snap, jobs.StatusCompleted)
}

func TestCreateRepairValidation(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		content    []byte
		fields     map[string]string
		wantStatus int
	}{
		{
			name:       "rejects non-pdf extension",
			filename:   "notes.txt",
			content:    []byte("hello"),
			wantStatus: fiber.StatusUnsupportedMediaType,
		},
		{
			name:       "rejects empty file",
			filename:   "empty.pdf",
			content:    nil,
			wantStatus: fiber.StatusBadRequest,
		},
		{
			name:       "rejects bad batch_size",
			filename:   "book.pdf",
			content:    []byte("%PDF"),
			fields:     map[string]string{"batch_size": "0"},
			wantStatus: fiber.StatusBadRequest,
		},
		{
			name:       "rejects bad concurrency",
			filename:   "book.pdf",
			content:    []byte("%PDF"),
			fields:     map[string]string{"concurrency": "nope"},
			wantStatus: fiber.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := testApp(t, &stubRunner{}, nil)

			body, contentType := pdfUpload(t, tt.filename, tt.content, tt.fields)
			req := httptest.NewRequest("POST", "/v1/repairs", body)
			req.Header.Set("Content-Type", contentType)

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestCreateRepairMissingFile(t *testing.T) {
	app, _ := testApp(t, &stubRunner{}, nil)

	req := httptest.NewRequest("POST", "/v1/repairs", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCreateRepairUploadLimit(t *testing.T) {
	cfg := &config.Config{}
	cfg.Jobs.MaxUploadSize = 4
	app, _ := testApp(t, &stubRunner{}, cfg)

	body, contentType := pdfUpload(t, "big.pdf", []byte("%PDF-1.4 too big"), nil)
	req := httptest.NewRequest("POST", "/v1/repairs", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestCreateRepairOptionOverrides(t *testing.T) {
	runner := &stubRunner{}
	app, manager := testApp(t, runner, nil)

	body, contentType := pdfUpload(t, "book.pdf", []byte("%PDF"), map[string]string{
		"language":    "traditional",
		"batch_size":  "4",
		"concurrency": "2",
	})
	req := httptest.NewRequest("POST", "/v1/repairs", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	// The runner factory runs on the job goroutine; wait for the job to
	// settle before inspecting the options it received.
	snap := decodeSnapshot(t, resp.Body)
	awaitStatus(t, manager, snap, jobs.StatusCompleted)

	opts := runner.lastOpts()
	assert.Equal(t, []string{"chi_tra"}, opts.Languages)
	assert.Equal(t, 4, opts.BatchSize)
	assert.Equal(t, 2, opts.Concurrency)
}

func TestGetRepair(t *testing.T) {
	app, manager := testApp(t, &stubRunner{}, nil)

	snap := manager.Submit("book.pdf", []byte("%PDF"), pipeline.Options{})
	awaitStatus(t, manager, snap, jobs.StatusCompleted)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/repairs/"+snap.ID.String(), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	got := decodeSnapshot(t, resp.Body)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, jobs.StatusCompleted, got.Status)
}

func TestGetRepairErrors(t *testing.T) {
	app, _ := testApp(t, &stubRunner{}, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/repairs/not-a-uuid", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/v1/repairs/00000000-0000-0000-0000-000000000001", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetResult(t *testing.T) {
	app, manager := testApp(t, &stubRunner{}, nil)

	snap := manager.Submit("book.pdf", []byte("%PDF"), pipeline.Options{})
	awaitStatus(t, manager, snap, jobs.StatusCompleted)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/repairs/"+snap.ID.String()+"/result", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var res pipeline.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "fixed", res.CorrectedText)
	assert.Equal(t, "raw", res.RawText)
}

func TestListRepairs(t *testing.T) {
	app, manager := testApp(t, &stubRunner{}, nil)

	manager.Submit("a.pdf", []byte("%PDF"), pipeline.Options{})
	manager.Submit("b.pdf", []byte("%PDF"), pipeline.Options{})

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/repairs", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out struct {
		Jobs []jobs.Snapshot `json:"jobs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out.Jobs, 2)
}

func TestCancelFinishedRepairConflicts(t *testing.T) {
	app, manager := testApp(t, &stubRunner{}, nil)

	snap := manager.Submit("book.pdf", []byte("%PDF"), pipeline.Options{})
	awaitStatus(t, manager, snap, jobs.StatusCompleted)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/v1/repairs/"+snap.ID.String(), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}
