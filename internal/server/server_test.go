package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/bece/internal/protocol/args"
	"github.com/danmuck/bece/internal/protocol/schema"
	"github.com/danmuck/bece/internal/protocol/session"
	"github.com/danmuck/bece/internal/testutil/testlog"
)

type stubSource struct {
	status  Status
	cmds    []schema.Description
	resends []session.PendingResend
}

func (s stubSource) Status() Status                   { return s.status }
func (s stubSource) Commands() []schema.Description   { return s.cmds }
func (s stubSource) Resends() []session.PendingResend { return s.resends }

func newStub() stubSource {
	return stubSource{
		status: Status{Device: "lamp_0001", Connected: true, NextPacketID: 4},
		cmds: []schema.Description{
			{Name: "Restart", ID: 65534, Kind: schema.StrongButton},
			{Name: "Dim", ID: 3, Kind: schema.SliderUint8, Extras: []args.Value{args.Uint8(0), args.Uint8(100)}},
		},
		resends: []session.PendingResend{{PacketID: 9, Reason: "crc", Attempts: 1}},
	}
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rr, body
}

func TestHealthReportsNodeStatus(t *testing.T) {
	testlog.Start(t)
	a := New("lamp_0001", newStub())
	rr, body := get(t, a.HTTPRouter(), "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got=%d", rr.Code)
	}
	if body["status"] != "ok" {
		t.Fatalf("health status: got=%v", body["status"])
	}
	node, _ := body["node"].(map[string]any)
	if node["device"] != "lamp_0001" {
		t.Fatalf("device: got=%v", node["device"])
	}
}

func TestHealthDisconnected(t *testing.T) {
	testlog.Start(t)
	src := newStub()
	src.status.Connected = false
	_, body := get(t, New("n", src).HTTPRouter(), "/health")
	if body["status"] != "disconnected" {
		t.Fatalf("health status: got=%v", body["status"])
	}
}

func TestCommandsListing(t *testing.T) {
	testlog.Start(t)
	_, body := get(t, New("n", newStub()).HTTPRouter(), "/commands")
	cmds, _ := body["commands"].([]any)
	if len(cmds) != 2 {
		t.Fatalf("commands: got=%d want=2", len(cmds))
	}
	dim, _ := cmds[1].(map[string]any)
	if dim["kind"] != "SLIDER_UINT8" {
		t.Fatalf("kind: got=%v", dim["kind"])
	}
	extras, _ := dim["extras"].([]any)
	if len(extras) != 2 || extras[1] != "uint8(100)" {
		t.Fatalf("extras: got=%v", extras)
	}
}

func TestCommandByID(t *testing.T) {
	testlog.Start(t)
	h := New("n", newStub()).HTTPRouter()
	rr, body := get(t, h, "/commands/3")
	if rr.Code != http.StatusOK || body["name"] != "Dim" {
		t.Fatalf("command 3: code=%d body=%v", rr.Code, body)
	}
	if rr, _ := get(t, h, "/commands/77"); rr.Code != http.StatusNotFound {
		t.Fatalf("missing command: got=%d want=404", rr.Code)
	}
	if rr, _ := get(t, h, "/commands/abc"); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad id: got=%d want=400", rr.Code)
	}
}

func TestResendsListing(t *testing.T) {
	testlog.Start(t)
	_, body := get(t, New("n", newStub()).HTTPRouter(), "/resends")
	list, _ := body["resends"].([]any)
	if len(list) != 1 {
		t.Fatalf("resends: got=%v", body["resends"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	h := New("n", newStub()).HTTPRouter()
	get(t, h, "/health")
	rr, _ := get(t, h, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: got=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "bece_http_requests_total") {
		t.Fatalf("expected admin request counter in metrics output")
	}
}

func TestServeListenerStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New("n", newStub()).ServeListener(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not stop")
	}
}
