package service

import (
	"errors"
	"sync"
	"testing"

	"github.com/user/h264plugin/pkg/h264err"
	"github.com/user/h264plugin/pkg/mocks"
	"github.com/user/h264plugin/pkg/nativelib"
	"github.com/user/h264plugin/pkg/ports"
	"github.com/user/h264plugin/pkg/session"
	"github.com/user/h264plugin/pkg/testmedia"
)

func TestOnBind_ReturnsNil(t *testing.T) {
	s := NewService()
	intents := []*Intent{
		nil,
		{},
		{Action: "com.plugin.h264.DECODE"},
		{Action: "bind", Extras: map[string]string{"path": "/sdcard/movie.mp4"}},
	}
	for _, intent := range intents {
		if b := s.OnBind(intent); b != nil {
			t.Errorf("OnBind(%+v) = %v, want nil", intent, b)
		}
	}
}

func TestOnStartCommand_NotSticky(t *testing.T) {
	s := NewService()
	tests := []struct {
		intent  *Intent
		flags   int
		startID int
	}{
		{nil, 0, 0},
		{&Intent{Action: "start"}, 1, 1},
		{&Intent{}, 2, 42},
		{nil, -1, -7},
	}
	for _, tt := range tests {
		if got := s.OnStartCommand(tt.intent, tt.flags, tt.startID); got != StartNotSticky {
			t.Errorf("OnStartCommand(%v, %d, %d) = %d, want %d", tt.intent, tt.flags, tt.startID, got, StartNotSticky)
		}
	}
	if StartNotSticky != 2 {
		t.Errorf("StartNotSticky = %d, want 2", StartNotSticky)
	}
}

type loaderSpy struct {
	mu    sync.Mutex
	calls int
	err   error
	opts  nativelib.Options
}

func (l *loaderSpy) load(opts nativelib.Options) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.opts = opts
	return l.err
}

func newBridge(spy *loaderSpy) (*Bridge, *[]*mocks.VideoDecoder) {
	var decoders []*mocks.VideoDecoder
	b := NewBridge(BridgeOptions{
		Library: nativelib.Options{Path: "/opt/lib/libplugin_h264.so"},
		Load:    spy.load,
		NewDecoder: func() ports.VideoDecoder {
			d := mocks.NewVideoDecoder(64, 48)
			decoders = append(decoders, d)
			return d
		},
	})
	return b, &decoders
}

func TestBridge_CallsBeforeLoad(t *testing.T) {
	b, _ := newBridge(&loaderSpy{})

	if err := b.InitDecoder(); !h264err.Is(err, h264err.LibraryNotLoaded) {
		t.Errorf("InitDecoder: expected LibraryNotLoaded, got %v", err)
	}
	if err := b.CleanupDecoder(); !h264err.Is(err, h264err.LibraryNotLoaded) {
		t.Errorf("CleanupDecoder: expected LibraryNotLoaded, got %v", err)
	}
	au := testmedia.AnnexB(testmedia.IDRSlice(0))
	if got := b.DecodeFrame(au, len(au)); got != -int(h264err.LibraryNotLoaded) {
		t.Errorf("DecodeFrame = %d, want %d", got, -int(h264err.LibraryNotLoaded))
	}
}

func TestBridge_LoadsOnce(t *testing.T) {
	spy := &loaderSpy{}
	b, _ := newBridge(spy)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.Load(); err != nil {
				t.Errorf("Load failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if spy.calls != 1 {
		t.Errorf("loader called %d times, want 1", spy.calls)
	}
	if spy.opts.Path != "/opt/lib/libplugin_h264.so" {
		t.Errorf("loader got path %q", spy.opts.Path)
	}
	if !b.Loaded() {
		t.Error("Loaded() should be true")
	}
}

func TestBridge_LoadFailureIsSticky(t *testing.T) {
	spy := &loaderSpy{err: errors.New("dlopen failed")}
	b, _ := newBridge(spy)

	for i := 0; i < 3; i++ {
		if err := b.Load(); !h264err.Is(err, h264err.LibraryNotLoaded) {
			t.Fatalf("Load #%d: expected LibraryNotLoaded, got %v", i, err)
		}
	}
	if spy.calls != 1 {
		t.Errorf("loader called %d times, want 1", spy.calls)
	}
	if b.Loaded() {
		t.Error("Loaded() should be false")
	}
	if err := b.InitDecoder(); !h264err.Is(err, h264err.LibraryNotLoaded) {
		t.Errorf("InitDecoder: expected LibraryNotLoaded, got %v", err)
	}
}

func TestBridge_Lifecycle(t *testing.T) {
	b, decoders := newBridge(&loaderSpy{})
	if err := b.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	au := testmedia.AnnexB(testmedia.IDRSlice(0))
	if got := b.DecodeFrame(au, len(au)); got != -int(h264err.NotInitialized) {
		t.Errorf("DecodeFrame before init = %d, want %d", got, -int(h264err.NotInitialized))
	}

	if err := b.InitDecoder(); err != nil {
		t.Fatalf("InitDecoder failed: %v", err)
	}
	if err := b.InitDecoder(); err != nil {
		t.Fatalf("second InitDecoder failed: %v", err)
	}
	if len(*decoders) != 1 {
		t.Errorf("created %d decoders, want 1", len(*decoders))
	}

	ps := testmedia.AnnexB(testmedia.SPS(64, 48), testmedia.PPS())
	if got := b.DecodeFrame(ps, len(ps)); got != 0 {
		t.Errorf("DecodeFrame(param sets) = %d, want 0", got)
	}
	if got := b.DecodeFrame(au, len(au)); got != len(au) {
		t.Errorf("DecodeFrame(IDR) = %d, want %d", got, len(au))
	}
	if got := b.DecodeFrame(au, 0); got != -int(h264err.InvalidParam) {
		t.Errorf("DecodeFrame(length 0) = %d, want %d", got, -int(h264err.InvalidParam))
	}

	if err := b.CleanupDecoder(); err != nil {
		t.Fatalf("CleanupDecoder failed: %v", err)
	}
	if !(*decoders)[0].Closed {
		t.Error("decoder should be closed")
	}
	if got := b.DecodeFrame(au, len(au)); got != -int(h264err.SessionClosed) {
		t.Errorf("DecodeFrame after cleanup = %d, want %d", got, -int(h264err.SessionClosed))
	}
	if err := b.CleanupDecoder(); err != nil {
		t.Errorf("repeated CleanupDecoder failed: %v", err)
	}

	// A new InitDecoder starts a fresh session.
	first := b.Session().ID()
	if err := b.InitDecoder(); err != nil {
		t.Fatalf("InitDecoder after cleanup failed: %v", err)
	}
	if b.Session().ID() == first || b.Session().State() != session.Ready {
		t.Error("expected a new ready session")
	}
	if got := b.DecodeFrame(au, len(au)); got != len(au) {
		t.Errorf("DecodeFrame on new session = %d, want %d", got, len(au))
	}
}

func TestBridge_InitFailure(t *testing.T) {
	b := NewBridge(BridgeOptions{
		Load: func(nativelib.Options) error { return nil },
		NewDecoder: func() ports.VideoDecoder {
			d := mocks.NewVideoDecoder(64, 48)
			d.InitFunc = func() error { return errors.New("codec unavailable") }
			return d
		},
	})
	b.Load()

	if err := b.InitDecoder(); !h264err.Is(err, h264err.DecoderInitFailed) {
		t.Errorf("expected DecoderInitFailed, got %v", err)
	}
	au := testmedia.AnnexB(testmedia.IDRSlice(0))
	if got := b.DecodeFrame(au, len(au)); got != -int(h264err.NotInitialized) {
		t.Errorf("DecodeFrame = %d, want %d", got, -int(h264err.NotInitialized))
	}
}

func TestBridge_SendParameterSets(t *testing.T) {
	b, decoders := newBridge(&loaderSpy{})
	b.Load()

	sps := [][]byte{testmedia.SPS(64, 48)}
	pps := [][]byte{testmedia.PPS()}
	if err := b.SendParameterSets(sps, pps); !h264err.Is(err, h264err.NotInitialized) {
		t.Errorf("before init: expected NotInitialized, got %v", err)
	}

	if err := b.InitDecoder(); err != nil {
		t.Fatalf("InitDecoder failed: %v", err)
	}
	if err := b.SendParameterSets(sps, nil); !h264err.Is(err, h264err.InvalidParam) {
		t.Errorf("missing PPS: expected InvalidParam, got %v", err)
	}
	if err := b.SendParameterSets(sps, pps); err != nil {
		t.Fatalf("SendParameterSets failed: %v", err)
	}
	dec := (*decoders)[0]
	if dec.InputCount() != 1 {
		t.Fatalf("decoder got %d inputs, want 1", dec.InputCount())
	}

	dec.DecodeFunc = func(data []byte) (*ports.VideoFrame, error) {
		return nil, errors.New("unsupported profile")
	}
	if err := b.SendParameterSets(sps, pps); !h264err.Is(err, h264err.DecodeFailed) {
		t.Errorf("rejected parameter sets: expected DecodeFailed, got %v", err)
	}
}

func TestDefault_IsSingleton(t *testing.T) {
	if Default() != Default() {
		t.Error("Default should return the same Bridge")
	}
}
