package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/avx-core/internal/audit"
	"github.com/nerrad567/avx-core/internal/controller"
	"github.com/nerrad567/avx-core/internal/device"
	"github.com/nerrad567/avx-core/internal/infrastructure/config"
	"github.com/nerrad567/avx-core/internal/infrastructure/logging"
	"github.com/nerrad567/avx-core/internal/logring"
	"github.com/nerrad567/avx-core/internal/naming"
	"github.com/nerrad567/avx-core/internal/remote"
)

const testVersion = "1.2.0"

var testWSConfig = config.WebSocketConfig{
	Path:           "/ws",
	MaxMessageSize: 8192,
	PingInterval:   30,
	PongTimeout:    10,
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// testEnv is one controller served over a real listener.
type testEnv struct {
	srv  *Server
	ctrl *controller.Controller
	ring *logring.Ring
	ts   *httptest.Server
}

type envOption func(*Deps, *controller.Deps)

func withNames(names naming.Service) envOption {
	return func(_ *Deps, cd *controller.Deps) { cd.Naming = names }
}

func withAudit(rec controller.Auditor, repo audit.Repository) envOption {
	return func(d *Deps, cd *controller.Deps) {
		cd.Auditor = rec
		d.AuditRepo = repo
	}
}

func withMQTT(sub StateSubscriber) envOption {
	return func(d *Deps, _ *controller.Deps) { d.MQTT = sub }
}

// newTestEnv starts a controller with the virtual device type behind an
// httptest server. The controller's base URL is the test server's URL.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	var handler http.Handler = http.NotFoundHandler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	logger := testLogger()
	hub := NewHub(testWSConfig, logger)
	factory := device.NewFactory()
	factory.Register(device.TypeVirtual, device.NewVirtual)
	ring := logring.New(20)

	deps := Deps{
		Config:  config.APIConfig{Host: "127.0.0.1"},
		WS:      testWSConfig,
		Logger:  logger,
		Hub:     hub,
		Version: testVersion,
	}
	cdeps := controller.Deps{
		Version: testVersion,
		BaseURL: ts.URL,
		Factory: factory,
		Ring:    ring,
		ClientDialer: remote.SchemeDialer{
			"http":   remote.HTTPClientDialer{},
			WSScheme: hub,
		},
		SlaveTimeout:  time.Second,
		ClientTimeout: time.Second,
		Logger:        logger,
	}
	for _, opt := range opts {
		opt(&deps, &cdeps)
	}

	ctrl, err := controller.New(cdeps)
	if err != nil {
		t.Fatalf("controller.New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := ctrl.Initialise(ctx); err != nil {
		t.Fatalf("Initialise() error = %v", err)
	}
	go hub.Run(ctx)

	deps.Controller = ctrl
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	handler = srv.buildRouter()

	return &testEnv{srv: srv, ctrl: ctrl, ring: ring, ts: ts}
}

// do sends a request through the router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, remote.APIPrefix+path, r)
	w := httptest.NewRecorder()
	e.srv.buildRouter().ServeHTTP(w, req)
	return w
}

func (e *testEnv) addDevice(t *testing.T, id string) *remote.Handle {
	t.Helper()
	w := e.do(t, http.MethodPost, "/devices", map[string]any{"type": device.TypeVirtual, "deviceID": id})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /devices status = %d, body = %s", w.Code, w.Body)
	}
	var h remote.Handle
	decode(t, w, &h)
	return &h
}

func (e *testEnv) virtual(t *testing.T, id string) *device.Virtual {
	t.Helper()
	dev, err := e.ctrl.Registry().Get(id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return dev.(*device.Virtual)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp remote.ErrorResponse
	decode(t, w, &resp)
	if resp.Status != w.Code {
		t.Errorf("envelope status = %d, response status = %d", resp.Status, w.Code)
	}
	return resp.Code
}

// fakeClient is an HTTP client endpoint that records the methods posted
// to it and can be told to fail.
type fakeClient struct {
	*httptest.Server

	mu     sync.Mutex
	calls  []string
	bodies map[string]string
	fail   bool
}

func newFakeClient(t *testing.T) *fakeClient {
	t.Helper()
	f := &fakeClient{bodies: map[string]string{}}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		method := r.URL.Path[1:]
		f.calls = append(f.calls, method)
		f.bodies[method] = string(body)
		fail := f.fail
		f.mu.Unlock()
		if fail {
			http.Error(w, "broken", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeClient) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeClient) body(method string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[method]
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, remote.APIPrefix+path, nil)
}

func serve(e *testEnv, req *http.Request) *httptest.ResponseRecorder {
	return serveHandler(e.srv.buildRouter(), req)
}

func serveHandler(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
