package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/avx-core/internal/audit"
	"github.com/nerrad567/avx-core/internal/infrastructure/config"
	"github.com/nerrad567/avx-core/internal/infrastructure/database"
	"github.com/nerrad567/avx-core/internal/logring"
	"github.com/nerrad567/avx-core/internal/remote"
	"github.com/nerrad567/avx-core/migrations"
)

func TestClients_RegisterAndDialogs(t *testing.T) {
	env := newTestEnv(t)
	one, two, three := newFakeClient(t), newFakeClient(t), newFakeClient(t)
	two.fail = true

	for _, c := range []*fakeClient{one, two, three} {
		w := env.do(t, http.MethodPost, "/clients", remote.ClientRequest{URI: c.URL})
		if w.Code != http.StatusOK {
			t.Fatalf("register %s = %d", c.URL, w.Code)
		}
	}
	// Registering twice is a no-op.
	env.do(t, http.MethodPost, "/clients", remote.ClientRequest{URI: one.URL})

	w := env.do(t, http.MethodPost, "/clients/dialogs/power-on", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("power-on = %d %s", w.Code, w.Body)
	}

	for _, c := range []*fakeClient{one, two, three} {
		if diff := cmp.Diff([]string{remote.MethodShowPowerOnDialog}, c.called()); diff != "" {
			t.Errorf("%s calls mismatch (-want +got):\n%s", c.URL, diff)
		}
	}

	var list struct {
		Clients []string `json:"clients"`
	}
	decode(t, env.do(t, http.MethodGet, "/clients", nil), &list)
	if diff := cmp.Diff([]string{one.URL, three.URL}, list.Clients); diff != "" {
		t.Errorf("clients after prune mismatch (-want +got):\n%s", diff)
	}

	env.do(t, http.MethodPost, "/clients/dialogs/power-off", nil)
	env.do(t, http.MethodPost, "/clients/dialogs/hide", nil)
	want := []string{remote.MethodShowPowerOnDialog, remote.MethodShowPowerOffDialog, remote.MethodHidePowerDialog}
	if diff := cmp.Diff(want, one.called()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if n := len(two.called()); n != 1 {
		t.Errorf("pruned client called %d times, want 1", n)
	}

	if w := env.do(t, http.MethodPost, "/clients/dialogs/confetti", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown dialog = %d", w.Code)
	}
}

func TestClients_Unregister(t *testing.T) {
	env := newTestEnv(t)
	c := newFakeClient(t)
	env.do(t, http.MethodPost, "/clients", remote.ClientRequest{URI: c.URL})

	var resp struct {
		Removed bool `json:"removed"`
	}
	decode(t, env.do(t, http.MethodDelete, "/clients", remote.ClientRequest{URI: c.URL}), &resp)
	if !resp.Removed {
		t.Error("removed = false")
	}
	decode(t, env.do(t, http.MethodDelete, "/clients", remote.ClientRequest{URI: c.URL}), &resp)
	if resp.Removed {
		t.Error("second removal reported removed = true")
	}

	if w := env.do(t, http.MethodPost, "/clients", remote.ClientRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty uri = %d", w.Code)
	}

	env.do(t, http.MethodPost, "/clients/dialogs/hide", nil)
	if n := len(c.called()); n != 0 {
		t.Errorf("unregistered client called %d times", n)
	}
}

func TestOutputMappings(t *testing.T) {
	env := newTestEnv(t)
	c := newFakeClient(t)
	env.ctrl.RegisterClient(context.Background(), c.URL)

	if w := env.do(t, http.MethodPost, "/output-mappings", "{broken"); w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d", w.Code)
	}

	mapping := `{"1":["projector"],"2":["monitor-left","monitor-right"]}`
	if w := env.do(t, http.MethodPost, "/output-mappings", mapping); w.Code != http.StatusNoContent {
		t.Fatalf("output-mappings = %d %s", w.Code, w.Body)
	}
	if got := c.body(remote.MethodUpdateOutputMappings); got != mapping {
		t.Errorf("client received %q, want %q", got, mapping)
	}
}

func TestSequence(t *testing.T) {
	env := newTestEnv(t)
	env.addDevice(t, "projector")

	events := `[
		{"deviceID": "projector", "method": "power", "args": true},
		{"sleep_ms": 5},
		{"deviceID": "projector", "method": "input", "args": "hdmi1"}
	]`
	w := env.do(t, http.MethodPost, "/sequence", events)
	if w.Code != http.StatusAccepted {
		t.Fatalf("sequence = %d %s", w.Code, w.Body)
	}

	v := env.virtual(t, "projector")
	eventually(t, func() bool { return len(v.Calls()) == 2 }, "sequence did not run")
	if v.Calls()[0].Method != "power" || v.Calls()[1].Method != "input" {
		t.Errorf("calls = %+v", v.Calls())
	}

	tests := []struct {
		name string
		body string
	}{
		{"not an array", `{"deviceID": "projector"}`},
		{"missing method", `[{"deviceID": "projector"}]`},
		{"empty event", `[{}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, http.MethodPost, "/sequence", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestGetLog(t *testing.T) {
	env := newTestEnv(t)
	env.ring.Append(logring.Entry{Time: time.Now(), Level: "INFO", Message: "first"})
	env.ring.Append(logring.Entry{Time: time.Now(), Level: "ERROR", Message: "second", Exception: "goroutine 1 [running]:"})

	var entries []logring.Entry
	decode(t, env.do(t, http.MethodGet, "/log", nil), &entries)

	var msgs []string
	for _, e := range entries {
		msgs = append(msgs, e.Message)
		if e.Exception != "" {
			t.Errorf("entry %q carries exception text", e.Message)
		}
	}
	if len(msgs) < 2 || msgs[0] != "first" {
		t.Errorf("messages = %v", msgs)
	}
}

func TestAuditLogs(t *testing.T) {
	bare := newTestEnv(t)
	if w := bare.do(t, http.MethodGet, "/audit", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("without repo = %d", w.Code)
	}

	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	repo := audit.NewSQLiteRepository(db.DB)

	var env *testEnv
	rec := audit.NewRecorder(repo, func() string { return env.ctrl.Name() })
	env = newTestEnv(t, withAudit(rec, repo))

	env.addDevice(t, "projector")
	env.do(t, http.MethodPost, "/clients", remote.ClientRequest{URI: "http://panel.local"})

	var page audit.ListResult
	decode(t, env.do(t, http.MethodGet, "/audit?entity_type=device", nil), &page)
	if page.Total != 1 || page.Logs[0].EntityID != "projector" || page.Logs[0].Controller != "avx.controller" {
		t.Errorf("device audit page = %+v", page)
	}

	decode(t, env.do(t, http.MethodGet, "/audit?limit=1&offset=0", nil), &page)
	if page.Total != 2 || len(page.Logs) != 1 || page.Limit != 1 {
		t.Errorf("paged audit = %+v", page)
	}

	for _, q := range []string{"limit=ten", "offset=-1"} {
		if w := env.do(t, http.MethodGet, "/audit?"+q, nil); w.Code != http.StatusBadRequest {
			t.Errorf("/audit?%s = %d, want 400", q, w.Code)
		}
	}
}
