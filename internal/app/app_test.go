package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kage-desktop/kage/internal/action"
	"github.com/kage-desktop/kage/internal/bridge"
	"github.com/kage-desktop/kage/internal/config"
	"github.com/kage-desktop/kage/internal/surface"
	"github.com/kage-desktop/kage/internal/visibility"
	"github.com/kage-desktop/kage/internal/wsapi"
)

const testModel = `{
  "Version": 3,
  "FileReferences": {
    "Moc": "m.moc3",
    "Motions": {"Idle": [{"File": "idle.motion3.json"}], "Tap": [{"File": "tap.motion3.json"}]},
    "Expressions": [{"Name": "smile", "File": "smile.exp3.json"}]
  }
}`

// headlessSender answers bridge requests with a headless surface and
// records every request it sees.
type headlessSender struct {
	mu    sync.Mutex
	h     *surface.Headless
	b     *bridge.Bridge
	calls []bridge.Request
}

func (s *headlessSender) Send(r bridge.Request) error {
	s.mu.Lock()
	s.calls = append(s.calls, r)
	s.mu.Unlock()
	if reply, ok := s.h.Handle(r); ok {
		s.b.Deliver(reply)
	}
	return nil
}

func (s *headlessSender) requests(channel string) []bridge.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []bridge.Request
	for _, r := range s.calls {
		if r.Channel == channel {
			out = append(out, r)
		}
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) Notify(title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, title+": "+body)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func newTestApp(t *testing.T) (*App, *headlessSender, *config.Store) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.WSPort = freePort(t)
	store := config.NewMemoryStore(cfg)
	a := New(Options{
		Store:     store,
		Window:    visibility.NewMemoryWindow(true),
		Notifier:  &recordingNotifier{},
		Host:      "127.0.0.1",
		Version:   "1.2.3",
		NoSurface: true,
		Logger:    zerolog.Nop(),
	})
	a.quitDelay = time.Millisecond

	modelPath := filepath.Join(t.TempDir(), "normal.model3.json")
	if err := os.WriteFile(modelPath, []byte(testModel), 0644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	h := surface.NewHeadless(zerolog.Nop())
	if err := h.LoadModel(modelPath); err != nil {
		t.Fatalf("load model: %v", err)
	}
	s := &headlessSender{h: h, b: a.Bridge()}
	a.Bridge().Attach(s)
	return a, s, store
}

func handle(t *testing.T, a *App, frame string) *wsapi.Response {
	t.Helper()
	return a.Server().Handle(context.Background(), []byte(frame))
}

func TestRegistersEveryAction(t *testing.T) {
	a, _, _ := newTestApp(t)
	want := []string{
		"clearExpression", "exitApp", "getExpressions", "getMotions", "getVersion", "restartApp",
		"setExpression", "setModelPath", "setModelPosition", "setModelSize", "showTextMessage", "triggerMotion",
	}
	got := a.Registry().Names()
	if len(got) != len(want) {
		t.Fatalf("names = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names = %v, want %v", got, want)
		}
	}
}

func TestSetModelSize_RejectsInvalid(t *testing.T) {
	tests := []string{
		`{"width":-1,"height":10}`,
		`{"width":"a","height":10}`,
		`{"width":0,"height":10}`,
		`{"width":10}`,
		`{"width":10,"height":null}`,
		`{}`,
	}
	for _, params := range tests {
		t.Run(params, func(t *testing.T) {
			a, s, _ := newTestApp(t)
			resp := handle(t, a, `{"action":"setModelSize","params":`+params+`,"requestId":1}`)
			if resp.Success || resp.Error == nil || resp.Error.Code != wsapi.CodeHandlerError {
				t.Fatalf("unexpected response %+v", resp)
			}
			if resp.Error.Message != "Invalid width or height provided." {
				t.Fatalf("message = %q", resp.Error.Message)
			}
			if n := len(s.requests(bridge.ChannelSetModelBounds)); n != 0 {
				t.Fatalf("expected no bridge calls, got %d", n)
			}
		})
	}
}

func TestSetModelSize_ForwardsOnceAndPersists(t *testing.T) {
	a, s, store := newTestApp(t)

	resp := handle(t, a, `{"action":"setModelSize","params":{"width":400,"height":300},"requestId":"s"}`)
	if !resp.Success {
		t.Fatalf("unexpected failure %+v", resp.Error)
	}
	data, _ := json.Marshal(resp.Data)
	if string(data) != `{"height":300,"width":400}` {
		t.Fatalf("data = %s", data)
	}

	calls := s.requests(bridge.ChannelSetModelBounds)
	if len(calls) != 1 {
		t.Fatalf("expected exactly one bounds call, got %d", len(calls))
	}
	sent, _ := json.Marshal(calls[0].Args[0])
	if string(sent) != `{"width":400,"height":300,"x":100,"y":100}` {
		t.Fatalf("bounds sent = %s", sent)
	}
	if b := store.Get().ModelBounds; b != (config.Bounds{Width: 400, Height: 300, X: 100, Y: 100}) {
		t.Fatalf("stored bounds = %+v", b)
	}
}

func TestSetModelPosition(t *testing.T) {
	a, s, store := newTestApp(t)

	resp := handle(t, a, `{"action":"setModelPosition","params":{"x":"1","y":2}}`)
	if resp.Success || resp.Error.Message != "Invalid x or y coordinates provided." {
		t.Fatalf("unexpected response %+v", resp)
	}

	resp = handle(t, a, `{"action":"setModelPosition","params":{"x":-20,"y":35.5}}`)
	if !resp.Success {
		t.Fatalf("unexpected failure %+v", resp.Error)
	}
	if b := store.Get().ModelBounds; b.X != -20 || b.Y != 35.5 || b.Width != 400 {
		t.Fatalf("stored bounds = %+v", b)
	}
	if n := len(s.requests(bridge.ChannelSetModelBounds)); n != 1 {
		t.Fatalf("expected one bounds call, got %d", n)
	}
}

func TestSetModelSize_SurfaceUnavailableKeepsStore(t *testing.T) {
	a, _, store := newTestApp(t)
	a.Bridge().Detach()

	resp := handle(t, a, `{"action":"setModelSize","params":{"width":640,"height":480}}`)
	if resp.Success || resp.Error.Code != wsapi.CodeHandlerError {
		t.Fatalf("unexpected response %+v", resp)
	}
	if store.Get().ModelBounds.Width != 400 {
		t.Fatalf("bounds persisted despite failed bridge call")
	}
}

func TestTriggerMotion_SuccessThenFailure(t *testing.T) {
	a, _, _ := newTestApp(t)

	resp := handle(t, a, `{"action":"triggerMotion","params":{"motionName":"Tap"},"requestId":1}`)
	if !resp.Success {
		t.Fatalf("existing motion failed: %+v", resp.Error)
	}
	resp = handle(t, a, `{"action":"triggerMotion","params":{"motionName":"Dance"},"requestId":2}`)
	if resp.Success || resp.Error.Code != wsapi.CodeHandlerError {
		t.Fatalf("unknown motion: %+v", resp)
	}
	if resp.Error.Message != `Motion group "Dance" not found or is empty.` {
		t.Fatalf("message = %q", resp.Error.Message)
	}

	resp = handle(t, a, `{"action":"triggerMotion","params":{}}`)
	if resp.Error == nil || resp.Error.Message != "motionName is required." {
		t.Fatalf("missing motionName: %+v", resp)
	}
}

func TestExpressions(t *testing.T) {
	a, _, _ := newTestApp(t)

	resp := handle(t, a, `{"action":"getExpressions"}`)
	data, _ := json.Marshal(resp.Data)
	if string(data) != `{"expressions":["smile"]}` {
		t.Fatalf("getExpressions = %s", data)
	}
	if resp := handle(t, a, `{"action":"setExpression","params":{"expressionName":"smile"}}`); !resp.Success {
		t.Fatalf("setExpression failed: %+v", resp.Error)
	}
	if resp := handle(t, a, `{"action":"setExpression","params":{"expressionName":""}}`); resp.Error.Message != "expressionName is required." {
		t.Fatalf("empty expressionName: %+v", resp.Error)
	}
	if resp := handle(t, a, `{"action":"clearExpression"}`); !resp.Success {
		t.Fatalf("clearExpression failed: %+v", resp.Error)
	}
	resp = handle(t, a, `{"action":"getMotions"}`)
	data, _ = json.Marshal(resp.Data)
	if string(data) != `{"motions":["Idle","Tap"]}` {
		t.Fatalf("getMotions = %s", data)
	}
}

func TestShowTextMessage_DefaultDuration(t *testing.T) {
	a, s, _ := newTestApp(t)

	if resp := handle(t, a, `{"action":"showTextMessage","params":{"message":""}}`); resp.Error.Message != "message is required." {
		t.Fatalf("empty message: %+v", resp.Error)
	}
	for _, params := range []string{
		`{"message":"hi"}`,
		`{"message":"hi","duration":0}`,
		`{"message":"hi","duration":1500}`,
		`{"message":"hi","duration":"3000"}`,
		`{"message":"hi","duration":null}`,
	} {
		if resp := handle(t, a, `{"action":"showTextMessage","params":`+params+`}`); !resp.Success {
			t.Fatalf("%s: %+v", params, resp.Error)
		}
	}
	calls := s.requests(bridge.ChannelShowTextMessage)
	if len(calls) != 5 {
		t.Fatalf("expected 5 calls, got %d", len(calls))
	}
	for i, want := range []any{float64(5000), float64(5000), float64(1500), "3000", float64(5000)} {
		if got := calls[i].Args[1]; got != want {
			t.Fatalf("call %d duration = %v, want %v", i, got, want)
		}
	}
}

func TestSetModelPath(t *testing.T) {
	a, s, store := newTestApp(t)

	if resp := handle(t, a, `{"action":"setModelPath","params":{}}`); resp.Error.Message != "Model path is required." {
		t.Fatalf("missing path: %+v", resp.Error)
	}

	path := filepath.Join(t.TempDir(), "other.model3.json")
	if err := os.WriteFile(path, []byte(testModel), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp := handle(t, a, `{"action":"setModelPath","params":{"path":"`+path+`"},"requestId":9}`)
	if resp != nil {
		t.Fatalf("expected no response for a result-less surface reply, got %+v", resp)
	}
	if store.Get().ModelPath != path {
		t.Fatalf("model path not persisted")
	}
	if n := len(s.requests(bridge.ChannelSetModelPath)); n != 1 {
		t.Fatalf("expected one setModelPath call, got %d", n)
	}

	resp = handle(t, a, `{"action":"setModelPath","params":{"path":"/tmp/not-a-model.json"}}`)
	if resp == nil || resp.Success {
		t.Fatalf("invalid model path: %+v", resp)
	}
	if store.Get().ModelPath != path {
		t.Fatalf("invalid path persisted")
	}
}

func TestBridgeFailuresBecomeHandlerErrors(t *testing.T) {
	a, _, _ := newTestApp(t)
	a.Bridge().Detach()

	resp := handle(t, a, `{"action":"getMotions","requestId":"x"}`)
	if resp.Success || resp.Error.Code != wsapi.CodeHandlerError || string(resp.RequestID) != `"x"` {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestGetVersion(t *testing.T) {
	a, _, _ := newTestApp(t)
	res, err := a.Registry().Dispatch(context.Background(), "getVersion", action.Params{})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	data := res.Data().(map[string]any)
	if data["version"] != "1.2.3" || data["runtimeVersion"] == "" {
		t.Fatalf("data = %v", data)
	}
}

func runApp(t *testing.T, a *App, ctx context.Context) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	deadline := time.Now().Add(2 * time.Second)
	for !a.Server().Running() {
		if time.Now().After(deadline) {
			t.Fatalf("server never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not return")
		return nil
	}
}

func TestExitAndRestart(t *testing.T) {
	a, _, _ := newTestApp(t)
	done := runApp(t, a, context.Background())
	if !a.Machine().Snapshot().Visible {
		t.Fatalf("window not shown at startup")
	}

	resp := handle(t, a, `{"action":"exitApp","requestId":1}`)
	data, _ := json.Marshal(resp.Data)
	if string(data) != `{"message":"Exiting application..."}` {
		t.Fatalf("exit data = %s", data)
	}
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run after exit = %v", err)
	}
	if a.Server().Running() {
		t.Fatalf("server still running after exit")
	}

	b, _, _ := newTestApp(t)
	done = runApp(t, b, context.Background())
	resp = handle(t, b, `{"action":"restartApp"}`)
	data, _ = json.Marshal(resp.Data)
	if string(data) != `{"message":"Restarting application..."}` {
		t.Fatalf("restart data = %s", data)
	}
	if err := waitRun(t, done); !errors.Is(err, ErrRelaunch) {
		t.Fatalf("Run after restart = %v, want ErrRelaunch", err)
	}
}

func TestRun_BindFailureNotifiesAndKeepsRunning(t *testing.T) {
	a, _, store := newTestApp(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	busy := ln.Addr().(*net.TCPAddr).Port
	cfg := store.Get()
	cfg.WSPort = busy
	if _, err := store.Replace(cfg); err != nil {
		t.Fatalf("replace: %v", err)
	}
	notifier := &recordingNotifier{}
	a.notifier = notifier

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for notifier.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("bind failure not reported")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if a.Server().Running() {
		t.Fatalf("server running on a busy port")
	}
	cancel()
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run = %v", err)
	}
}

func TestApplySettings_PortChangeRestarts(t *testing.T) {
	a, _, store := newTestApp(t)
	if err := a.Server().Start(store.Get().WSPort); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(a.Server().Stop)

	newPort := freePort(t)
	cfg := store.Get()
	cfg.WSPort = newPort
	cfg.RestartDelayMS = 10
	if err := a.ApplySettings(cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for a.Server().Port() != newPort {
		if time.Now().After(deadline) {
			t.Fatalf("server did not move to port %d (at %d)", newPort, a.Server().Port())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if st := a.Status(); st.WSPort != newPort || !st.WSRunning {
		t.Fatalf("status = %+v", st)
	}
}

func TestApplySettings_RejectsInvalid(t *testing.T) {
	a, _, store := newTestApp(t)
	cfg := store.Get()
	cfg.WSPort = 80
	if err := a.ApplySettings(cfg); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestApplySettings_PushesSettings(t *testing.T) {
	a, s, store := newTestApp(t)
	if err := a.Server().Start(store.Get().WSPort); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(a.Server().Stop)

	cfg := store.Get()
	cfg.EnableSound = false
	if err := a.ApplySettings(cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if n := len(s.requests(bridge.ChannelSettingsUpdated)); n != 1 {
		t.Fatalf("expected one settingsUpdated push, got %d", n)
	}
	if s.h.State().Settings.EnableSound {
		t.Fatalf("surface did not receive enableSound=false")
	}
}

func TestSurfaceNotificationsPersist(t *testing.T) {
	a, _, store := newTestApp(t)

	a.handleSurfaceNotification(bridge.ChannelSaveModelBounds, []any{map[string]any{"width": 320.0, "height": 240.0, "x": 5.0, "y": 6.0}})
	if b := store.Get().ModelBounds; b != (config.Bounds{Width: 320, Height: 240, X: 5, Y: 6}) {
		t.Fatalf("bounds = %+v", b)
	}

	a.handleSurfaceNotification(bridge.ChannelSaveMessageBoxAt, []any{map[string]any{"top": 12.0, "left": 40.0}})
	if p := store.Get().MessageBoxPosition; p != (config.Position{Top: 12, Left: 40}) {
		t.Fatalf("position = %+v", p)
	}

	a.handleSurfaceNotification(bridge.ChannelSaveMessageBoxAt, []any{map[string]any{"top": "x"}})
	a.handleSurfaceNotification(bridge.ChannelSaveModelBounds, nil)
	if p := store.Get().MessageBoxPosition; p != (config.Position{Top: 12, Left: 40}) {
		t.Fatalf("malformed notification changed position: %+v", p)
	}
}

func TestToggleAndStatus(t *testing.T) {
	a, _, _ := newTestApp(t)

	data, err := a.ToggleVisibility()
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if data.Visible || !data.ManuallyHidden {
		t.Fatalf("toggle = %+v", data)
	}
	st := a.Status()
	if st.Visible || !st.ManuallyHidden || !st.SurfaceAttached || st.Version != "1.2.3" {
		t.Fatalf("status = %+v", st)
	}
}
