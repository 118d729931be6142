package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ltxd/internal/bridge"
	"ltxd/internal/httpapi"
	"ltxd/internal/queue"
	"ltxd/internal/runtime"
	"ltxd/pkg/types"
)

// fakeWorker speaks the daemon's line protocol well enough for end-to-end
// runs without a python runtime.
const fakeWorker = `echo SERVER_READY >&2
while IFS= read -r line; do
  case "$line" in
  *ping*) echo '{"status":"pong"}' ;;
  *)
    echo "STATUS:Loading model" >&2
    echo "STAGE:1:STEP:4:8:half" >&2
    sleep 0.1
    echo '{"success":true,"video_path":"/tmp/out.mp4","seed":11,"mode":"t2v","has_audio":false}'
    ;;
  esac
done`

// svcAdapter mirrors the daemon's wiring of queue and bridge behind the
// HTTP service interface.
type svcAdapter struct {
	q *queue.Service
	b *bridge.Bridge
}

func (s *svcAdapter) Status() types.StatusResponse {
	progress, message := s.b.Progress()
	count := s.q.PendingCount()
	if s.q.Processing() {
		count++
	}
	return types.StatusResponse{
		Server:          "running",
		ModelLoaded:     s.b.ModelLoaded(),
		QueueCount:      count,
		CurrentProgress: progress,
		CurrentMessage:  message,
	}
}

func (s *svcAdapter) Queue() []types.QueueItem {
	snap := s.q.Snapshot()
	items := make([]types.QueueItem, 0, len(snap))
	for _, r := range snap {
		items = append(items, r.Item())
	}
	return items
}

func (s *svcAdapter) Submit(prompt, negativePrompt string, params types.GenerationParameters) string {
	return s.q.Submit(prompt, negativePrompt, params)
}

func (s *svcAdapter) Remove(id string) error { return s.q.Remove(id) }

func (s *svcAdapter) CancelCurrent() bool { return s.q.CancelCurrent() }

func (s *svcAdapter) Ready() bool { return true }

func newServer(t *testing.T, script string) (*httptest.Server, *svcAdapter) {
	t.Helper()
	b := bridge.New(bridge.Config{
		WorkerCommand: func() (string, []string, string, error) {
			return "/bin/sh", []string{"-c", script}, "", nil
		},
		Resolve: func() (runtime.Paths, error) {
			return runtime.Paths{}, nil
		},
		OutputDir:       t.TempDir(),
		ModelRepo:       "test/repo",
		StartupTimeout:  5 * time.Second,
		GenerateTimeout: 10 * time.Second,
		Log:             zerolog.Nop(),
	})
	svc := queue.NewService(b, zerolog.Nop())
	svc.Start()
	t.Cleanup(func() {
		svc.Stop()
		b.UnloadModel()
	})

	adapter := &svcAdapter{q: svc, b: b}
	srv := httptest.NewServer(httpapi.NewMux(adapter))
	t.Cleanup(srv.Close)
	return srv, adapter
}

var _ httpapi.Service = (*svcAdapter)(nil)

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpDelete(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
