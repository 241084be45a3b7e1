package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/CloakStreamer/internal/output"
	"github.com/bryanchriswhite/CloakStreamer/internal/session"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

type fakeController struct {
	mu         sync.Mutex
	started    bool
	startErr   error
	stopped    bool
	stopErr    error
	captureErr error
	status     session.Status

	events       chan session.Status
	unsubscribed chan struct{}
}

func newFakeController() *fakeController {
	return &fakeController{
		events:       make(chan session.Status, 4),
		unsubscribed: make(chan struct{}, 1),
	}
}

func (f *fakeController) Start() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.startErr
}

func (f *fakeController) Stop() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped, f.stopErr
}

func (f *fakeController) CaptureBackground(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captureErr
}

func (f *fakeController) Status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeController) Subscribe() <-chan session.Status {
	return f.events
}

func (f *fakeController) Unsubscribe(ch <-chan session.Status) {
	f.unsubscribed <- struct{}{}
}

func (f *fakeController) Latest() ([]byte, uint64, bool) {
	return nil, 0, false
}

func newTestServer(t *testing.T, ctrl *fakeController) *httptest.Server {
	t.Helper()

	stream, err := output.NewPublisher(ctrl, output.Config{
		FrameInterval: time.Millisecond,
		IdleInterval:  5 * time.Millisecond,
		Width:         64,
		Height:        48,
	})
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	srv := httptest.NewServer(NewServer(ctrl, stream, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url string) (int, Response) {
	t.Helper()

	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, body
}

func TestStartCamera(t *testing.T) {
	tests := []struct {
		name       string
		started    bool
		err        error
		wantCode   int
		wantStatus string
		wantMsg    string
	}{
		{"started", true, nil, 200, "success", "Camera started"},
		{"already running", false, nil, 200, "success", "Camera already running"},
		{"device failure", false, errors.Wrap(session.ErrDeviceUnavailable, "camera:0"), 500, "error", "Failed to open camera"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			ctrl.started, ctrl.startErr = tt.started, tt.err
			srv := newTestServer(t, ctrl)

			code, body := post(t, srv.URL+"/start_camera")
			if code != tt.wantCode || body.Status != tt.wantStatus || !strings.HasPrefix(body.Message, tt.wantMsg) {
				t.Errorf("got %d %+v, want %d %s %q", code, body, tt.wantCode, tt.wantStatus, tt.wantMsg)
			}
		})
	}
}

func TestStopCamera(t *testing.T) {
	tests := []struct {
		name     string
		stopped  bool
		err      error
		wantCode int
		wantMsg  string
	}{
		{"stopped", true, nil, 200, "Camera stopped and resources released"},
		{"already stopped", false, nil, 200, "Camera already stopped"},
		{"timeout", true, session.ErrStopTimeout, 500, "Camera thread did not stop cleanly. Manual check may be required."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			ctrl.stopped, ctrl.stopErr = tt.stopped, tt.err
			srv := newTestServer(t, ctrl)

			code, body := post(t, srv.URL+"/stop_camera")
			if code != tt.wantCode || body.Message != tt.wantMsg {
				t.Errorf("got %d %+v, want %d %q", code, body, tt.wantCode, tt.wantMsg)
			}
		})
	}
}

func TestCaptureBackground(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"captured", nil, 200},
		{"not running", session.ErrNotRunning, 400},
		{"no frame", session.ErrNoFrame, 500},
		{"cancelled", errors.Wrap(context.Canceled, "capture background"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			ctrl.captureErr = tt.err
			srv := newTestServer(t, ctrl)

			code, body := post(t, srv.URL+"/capture_background")
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d (%+v)", code, tt.wantCode, body)
			}
			wantStatus := "success"
			if tt.err != nil {
				wantStatus = "error"
			}
			if body.Status != wantStatus {
				t.Errorf("status = %q, want %q", body.Status, wantStatus)
			}
		})
	}
}

func TestControlRequiresPost(t *testing.T) {
	srv := newTestServer(t, newFakeController())

	resp, err := http.Get(srv.URL + "/start_camera")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /start_camera = %d, want 405", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ctrl := newFakeController()
	ctrl.status = session.Status{State: session.Running, SessionID: "abc", CanCapture: true}
	srv := newTestServer(t, ctrl)

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["state"] != "running" || got["session_id"] != "abc" || got["can_capture"] != true {
		t.Errorf("status = %v", got)
	}
}

func TestSessionEvents(t *testing.T) {
	ctrl := newFakeController()
	srv := newTestServer(t, ctrl)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/session/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	var raw json.RawMessage
	if err := conn.ReadJSON(&raw); err != nil {
		t.Fatalf("read initial status: %v", err)
	}
	if !bytes.Contains(raw, []byte(`"state":"idle"`)) {
		t.Errorf("initial status = %s", raw)
	}

	ctrl.events <- session.Status{State: session.Running, SessionID: "s1"}
	if err := conn.ReadJSON(&raw); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if !bytes.Contains(raw, []byte(`"session_id":"s1"`)) {
		t.Errorf("update = %s", raw)
	}

	conn.Close()
	select {
	case <-ctrl.unsubscribed:
	case <-time.After(2 * time.Second):
		t.Error("handler did not unsubscribe after client left")
	}
}

func TestVideoFeedPlaceholder(t *testing.T) {
	srv := newTestServer(t, newFakeController())

	resp, err := http.Get(srv.URL + "/video_feed")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Fatalf("Content-Type = %q", ct)
	}

	mr := multipart.NewReader(resp.Body, "frame")
	part, err := mr.NextPart()
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(part)
	if err != nil {
		t.Fatal(err)
	}
	// JPEG SOI marker
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Error("placeholder part is not a JPEG")
	}
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, newFakeController())

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/start_camera", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestHealthAndConfig(t *testing.T) {
	srv := newTestServer(t, newFakeController())

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	var health map[string]string
	json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health["status"] != "healthy" {
		t.Errorf("health = %v", health)
	}

	resp, err = http.Get(srv.URL + "/api/config")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("/api/config without a manager = %d, want 404", resp.StatusCode)
	}
}

func TestShutdownEndsStreams(t *testing.T) {
	ctrl := newFakeController()
	stream, err := output.NewPublisher(ctrl, output.Config{IdleInterval: 5 * time.Millisecond, Width: 64, Height: 48})
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(ctrl, stream, nil)

	errc := make(chan error, 1)
	go func() { errc <- s.Start("127.0.0.1:0") }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Give ListenAndServe a moment to bind
	time.Sleep(50 * time.Millisecond)
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-errc; err != nil {
		t.Errorf("Start returned %v after Shutdown", err)
	}
}
