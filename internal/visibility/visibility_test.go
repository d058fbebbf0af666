package visibility

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeWindow struct {
	mu      sync.Mutex
	visible bool
	shows   int
	hides   int
	failOn  string
}

func (w *fakeWindow) Visible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

func (w *fakeWindow) Show() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failOn == "show" {
		return errors.New("show failed")
	}
	w.visible = true
	w.shows++
	return nil
}

func (w *fakeWindow) Hide() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failOn == "hide" {
		return errors.New("hide failed")
	}
	w.visible = false
	w.hides++
	return nil
}

func TestMachine_FullscreenRoundTrip(t *testing.T) {
	win := &fakeWindow{visible: true}
	m := NewMachine(win, zerolog.Nop())

	st, err := m.Observe(Fullscreen)
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if st.Visible || !st.FullscreenActive || st.ManuallyHidden {
		t.Fatalf("after enter: %+v", st)
	}

	st, err = m.Observe(Windowed)
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if !st.Visible || st.FullscreenActive || st.ManuallyHidden {
		t.Fatalf("after exit: %+v", st)
	}
}

func TestMachine_ManualHideDominatesOnExit(t *testing.T) {
	win := &fakeWindow{visible: true}
	m := NewMachine(win, zerolog.Nop())

	if st, _ := m.Toggle(); st.Visible || !st.ManuallyHidden {
		t.Fatalf("after toggle: %+v", st)
	}
	for _, obs := range []Observation{Fullscreen, Windowed} {
		st, err := m.Observe(obs)
		if err != nil {
			t.Fatalf("observe %v: %v", obs, err)
		}
		if st.Visible {
			t.Fatalf("window shown after %v despite manual hide", obs)
		}
		if !st.ManuallyHidden {
			t.Fatalf("manual flag cleared by %v", obs)
		}
	}
	if win.shows != 0 {
		t.Fatalf("expected no Show calls, got %d", win.shows)
	}
}

func TestMachine_ToggleShowsDuringFullscreen(t *testing.T) {
	win := &fakeWindow{visible: true}
	m := NewMachine(win, zerolog.Nop())

	m.Observe(Fullscreen)
	st, err := m.Toggle()
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !st.Visible || st.ManuallyHidden || !st.FullscreenActive {
		t.Fatalf("after toggle during fullscreen: %+v", st)
	}
}

func TestMachine_SteadyStateIsQuiet(t *testing.T) {
	win := &fakeWindow{visible: true}
	m := NewMachine(win, zerolog.Nop())

	for i := 0; i < 3; i++ {
		m.Observe(Windowed)
	}
	for i := 0; i < 3; i++ {
		m.Observe(Fullscreen)
	}
	if win.hides != 1 || win.shows != 0 {
		t.Fatalf("expected exactly one hide, got hides=%d shows=%d", win.hides, win.shows)
	}
}

func TestMachine_SelfAndUnknown(t *testing.T) {
	win := &fakeWindow{visible: true}
	m := NewMachine(win, zerolog.Nop())

	m.Observe(Fullscreen)
	if st, _ := m.Observe(Self); !st.FullscreenActive || st.Visible {
		t.Fatalf("self observation changed state: %+v", st)
	}
	if st, _ := m.Observe(Unknown); st.FullscreenActive || !st.Visible {
		t.Fatalf("unknown should fail open to visible: %+v", st)
	}
	if st, _ := m.Observe(Unknown); st.FullscreenActive || !st.Visible {
		t.Fatalf("unknown while windowed changed state: %+v", st)
	}
}

func TestMachine_EnterWhileHiddenDoesNotHideAgain(t *testing.T) {
	win := &fakeWindow{visible: false}
	m := NewMachine(win, zerolog.Nop())

	st, _ := m.Observe(Fullscreen)
	if !st.FullscreenActive || win.hides != 0 {
		t.Fatalf("unexpected state %+v hides=%d", st, win.hides)
	}
}

func TestMachine_ToggleHideFailureKeepsFlag(t *testing.T) {
	win := &fakeWindow{visible: true, failOn: "hide"}
	m := NewMachine(win, zerolog.Nop())

	st, err := m.Toggle()
	if err == nil {
		t.Fatalf("expected hide error")
	}
	if st.ManuallyHidden || !st.Visible {
		t.Fatalf("failed hide changed state: %+v", st)
	}
}

func TestMachine_FailedTransitionIsRetried(t *testing.T) {
	tests := []struct {
		name         string
		visible      bool
		failOn       string
		prepare      []Observation
		obs          Observation
		wantActive   bool
		wantVisible  bool
		retryActive  bool
		retryVisible bool
	}{
		{
			name:         "hide fails on enter",
			visible:      true,
			failOn:       "hide",
			obs:          Fullscreen,
			wantActive:   false,
			wantVisible:  true,
			retryActive:  true,
			retryVisible: false,
		},
		{
			name:         "show fails on exit",
			visible:      true,
			failOn:       "show",
			prepare:      []Observation{Fullscreen},
			obs:          Windowed,
			wantActive:   true,
			wantVisible:  false,
			retryActive:  false,
			retryVisible: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			win := &fakeWindow{visible: tt.visible}
			m := NewMachine(win, zerolog.Nop())
			for _, obs := range tt.prepare {
				if _, err := m.Observe(obs); err != nil {
					t.Fatalf("prepare %v: %v", obs, err)
				}
			}

			win.mu.Lock()
			win.failOn = tt.failOn
			win.mu.Unlock()
			st, err := m.Observe(tt.obs)
			if err == nil {
				t.Fatalf("expected %s error", tt.failOn)
			}
			if st.FullscreenActive != tt.wantActive || st.Visible != tt.wantVisible {
				t.Fatalf("after failure: %+v", st)
			}

			win.mu.Lock()
			win.failOn = ""
			win.mu.Unlock()
			st, err = m.Observe(tt.obs)
			if err != nil {
				t.Fatalf("retry: %v", err)
			}
			if st.FullscreenActive != tt.retryActive || st.Visible != tt.retryVisible {
				t.Fatalf("after retry: %+v", st)
			}
		})
	}
}

func TestMachine_ShowRespectsFlags(t *testing.T) {
	win := &fakeWindow{}
	m := NewMachine(win, zerolog.Nop())
	m.Observe(Fullscreen)
	if err := m.Show(); err != nil {
		t.Fatalf("show: %v", err)
	}
	if win.Visible() {
		t.Fatalf("Show during fullscreen made window visible")
	}
	m.Observe(Windowed)
	if !win.Visible() {
		t.Fatalf("exit fullscreen did not show window")
	}
}

type fakeProbe struct {
	win      *ForegroundWindow
	winErr   error
	displays []Display
	dispErr  error
}

func (p *fakeProbe) ForegroundWindow() (*ForegroundWindow, error) { return p.win, p.winErr }
func (p *fakeProbe) Displays() ([]Display, error)                 { return p.displays, p.dispErr }

func TestDetector_Detect(t *testing.T) {
	displays := []Display{
		{Name: "eDP-1", Bounds: Rect{Width: 1280, Height: 800}, ScaleFactor: 2},
		{Name: "HDMI-1", Bounds: Rect{X: 2560, Width: 1920, Height: 1080}, ScaleFactor: 1},
	}
	tests := []struct {
		name    string
		probe   *fakeProbe
		want    Observation
		wantErr bool
	}{
		{
			name:  "fullscreen on scaled display",
			probe: &fakeProbe{win: &ForegroundWindow{Owner: "mpv", Bounds: Rect{Width: 2560, Height: 1600}}, displays: displays},
			want:  Fullscreen,
		},
		{
			name:  "fullscreen within tolerance",
			probe: &fakeProbe{win: &ForegroundWindow{Owner: "game", Bounds: Rect{Width: 1905, Height: 1090}}, displays: displays},
			want:  Fullscreen,
		},
		{
			name:  "tolerance is exclusive",
			probe: &fakeProbe{win: &ForegroundWindow{Owner: "game", Bounds: Rect{Width: 1900, Height: 1080}}, displays: displays},
			want:  Windowed,
		},
		{
			name:  "windowed",
			probe: &fakeProbe{win: &ForegroundWindow{Owner: "firefox", Bounds: Rect{Width: 1200, Height: 900}}, displays: displays},
			want:  Windowed,
		},
		{
			name:  "self by owner",
			probe: &fakeProbe{win: &ForegroundWindow{Owner: "Kage", Bounds: Rect{Width: 2560, Height: 1600}}, displays: displays},
			want:  Self,
		},
		{
			name:  "self by title",
			probe: &fakeProbe{win: &ForegroundWindow{Owner: "kage-surface", Title: "Kage Settings"}, displays: displays},
			want:  Self,
		},
		{
			name:    "probe error",
			probe:   &fakeProbe{winErr: errors.New("x11 gone")},
			want:    Unknown,
			wantErr: true,
		},
		{
			name:    "no window",
			probe:   &fakeProbe{},
			want:    Unknown,
			wantErr: true,
		},
		{
			name:    "display error",
			probe:   &fakeProbe{win: &ForegroundWindow{Owner: "x"}, dispErr: errors.New("randr")},
			want:    Unknown,
			wantErr: true,
		},
		{
			name:  "zero scale treated as one",
			probe: &fakeProbe{win: &ForegroundWindow{Owner: "vlc", Bounds: Rect{Width: 800, Height: 600}}, displays: []Display{{Bounds: Rect{Width: 800, Height: 600}}}},
			want:  Fullscreen,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Detector{Probe: tt.probe, SelfName: "Kage", Tolerance: 20}
			got, err := d.Detect()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPoller_FeedsMachineAndSurvivesPanics(t *testing.T) {
	win := &fakeWindow{visible: true}
	m := NewMachine(win, zerolog.Nop())

	var calls atomic.Int32
	p := NewPoller(PollerConfig{Interval: 5 * time.Millisecond, Logger: zerolog.Nop()}, m, func() (Observation, error) {
		n := calls.Add(1)
		switch {
		case n == 1:
			panic("probe exploded")
		case n == 2:
			return Unknown, errors.New("transient")
		default:
			return Fullscreen, nil
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !m.Snapshot().FullscreenActive {
		if time.Now().After(deadline) {
			t.Fatalf("poller never observed fullscreen")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("poller did not stop")
	}
	if win.Visible() {
		t.Fatalf("window still visible after fullscreen detected")
	}
}

func TestPoller_PollNow(t *testing.T) {
	win := &fakeWindow{visible: true}
	m := NewMachine(win, zerolog.Nop())
	p := NewPoller(PollerConfig{Logger: zerolog.Nop()}, m, func() (Observation, error) { return Fullscreen, nil })

	p.PollNow()
	if !m.Snapshot().FullscreenActive {
		t.Fatalf("PollNow did not apply observation")
	}
	p.SetInterval(time.Second)
	p.SetInterval(2 * time.Second)
}
