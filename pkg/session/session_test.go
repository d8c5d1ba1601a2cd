package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/user/h264plugin/pkg/h264err"
	"github.com/user/h264plugin/pkg/mocks"
	"github.com/user/h264plugin/pkg/ports"
	"github.com/user/h264plugin/pkg/testmedia"
)

func idrAccessUnit() []byte {
	return testmedia.AnnexB(testmedia.IDRSlice(0))
}

func paramSets() []byte {
	return testmedia.AnnexB(testmedia.SPS(64, 48), testmedia.PPS())
}

func TestDecodeFrame_BeforeInit(t *testing.T) {
	s := New(mocks.NewVideoDecoder(64, 48), nil)

	data := idrAccessUnit()
	_, err := s.DecodeFrame(data, len(data))
	if !h264err.Is(err, h264err.NotInitialized) {
		t.Fatalf("expected NotInitialized, got %v", err)
	}
	if s.State() != Uninitialized {
		t.Errorf("state = %s, want uninitialized", s.State())
	}
}

func TestDecodeFrame_AfterCleanup(t *testing.T) {
	dec := mocks.NewVideoDecoder(64, 48)
	s := New(dec, nil)
	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := s.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if !dec.Closed {
		t.Error("decoder should be closed by Cleanup")
	}

	data := idrAccessUnit()
	_, err := s.DecodeFrame(data, len(data))
	if !h264err.Is(err, h264err.SessionClosed) {
		t.Fatalf("expected SessionClosed, got %v", err)
	}
	if err := s.Init(); !h264err.Is(err, h264err.SessionClosed) {
		t.Errorf("Init after Cleanup: expected SessionClosed, got %v", err)
	}
	if _, err := s.Flush(); !h264err.Is(err, h264err.SessionClosed) {
		t.Errorf("Flush after Cleanup: expected SessionClosed, got %v", err)
	}
}

func TestInit_Idempotent(t *testing.T) {
	dec := mocks.NewVideoDecoder(64, 48)
	s := New(dec, nil)

	for i := 0; i < 3; i++ {
		if err := s.Init(); err != nil {
			t.Fatalf("Init #%d failed: %v", i, err)
		}
	}
	if dec.InitCalls != 1 {
		t.Errorf("decoder Init called %d times, want 1", dec.InitCalls)
	}
	if s.State() != Ready {
		t.Errorf("state = %s, want ready", s.State())
	}
}

func TestInit_Failure(t *testing.T) {
	dec := mocks.NewVideoDecoder(64, 48)
	dec.InitFunc = func() error { return errors.New("no codec") }
	s := New(dec, nil)

	err := s.Init()
	if !h264err.Is(err, h264err.DecoderInitFailed) {
		t.Fatalf("expected DecoderInitFailed, got %v", err)
	}
	if s.State() != Uninitialized {
		t.Errorf("state = %s, want uninitialized", s.State())
	}

	// A later Init may succeed.
	dec.InitFunc = nil
	if err := s.Init(); err != nil {
		t.Fatalf("retry Init failed: %v", err)
	}
	if s.State() != Ready {
		t.Errorf("state = %s, want ready", s.State())
	}
}

func TestInit_NilDecoder(t *testing.T) {
	s := New(nil, nil)
	if err := s.Init(); !h264err.Is(err, h264err.DecoderInitFailed) {
		t.Errorf("expected DecoderInitFailed, got %v", err)
	}
}

func TestDecodeFrame_InvalidLength(t *testing.T) {
	s := New(mocks.NewVideoDecoder(64, 48), nil)
	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	data := idrAccessUnit()
	tests := []struct {
		name   string
		data   []byte
		length int
	}{
		{"zero", data, 0},
		{"negative", data, -1},
		{"longer than buffer", data, len(data) + 1},
		{"nil buffer", nil, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.DecodeFrame(tt.data, tt.length)
			if !h264err.Is(err, h264err.InvalidParam) {
				t.Errorf("expected InvalidParam, got %v", err)
			}
		})
	}
	if got := s.Stats().Errors; got != int64(len(tests)) {
		t.Errorf("Errors = %d, want %d", got, len(tests))
	}
}

func TestDecodeFrame_Results(t *testing.T) {
	dec := mocks.NewVideoDecoder(64, 48)
	s := New(dec, nil)
	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	ps := paramSets()
	res, err := s.DecodeFrame(ps, len(ps))
	if err != nil {
		t.Fatalf("DecodeFrame(param sets) failed: %v", err)
	}
	if res.Status != NeedMoreData || res.Frame != nil {
		t.Errorf("param sets: got status %v frame %v, want NeedMoreData", res.Status, res.Frame)
	}
	if res.BytesConsumed != len(ps) || res.Code() != 0 {
		t.Errorf("param sets: consumed %d code %d", res.BytesConsumed, res.Code())
	}

	au := idrAccessUnit()
	res, err = s.DecodeFrame(au, len(au))
	if err != nil {
		t.Fatalf("DecodeFrame(IDR) failed: %v", err)
	}
	if res.Status != FrameDecoded || !res.Frame.IsValid() {
		t.Fatalf("IDR: expected a decoded frame, got %+v", res)
	}
	if res.Code() != len(au) {
		t.Errorf("Code() = %d, want %d", res.Code(), len(au))
	}

	st := s.Stats()
	if st.FramesIn != 2 || st.FramesOut != 1 || st.Bytes != int64(len(ps)+len(au)) {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestDecodeFrame_UsesLength(t *testing.T) {
	dec := mocks.NewVideoDecoder(64, 48)
	s := New(dec, nil)
	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	au := idrAccessUnit()
	buf := append(append([]byte(nil), au...), 0xFF, 0xFF, 0xFF)
	if _, err := s.DecodeFrame(buf, len(au)); err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if got := len(dec.Inputs[0]); got != len(au) {
		t.Errorf("decoder received %d bytes, want %d", got, len(au))
	}
}

func TestDecodeFrame_DecoderError(t *testing.T) {
	dec := mocks.NewVideoDecoder(64, 48)
	cause := errors.New("corrupt slice")
	dec.DecodeFunc = func(data []byte) (*ports.VideoFrame, error) { return nil, cause }
	s := New(dec, nil)
	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	au := idrAccessUnit()
	res, err := s.DecodeFrame(au, len(au))
	if !h264err.Is(err, h264err.DecodeFailed) {
		t.Fatalf("expected DecodeFailed, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("error should wrap the decoder's cause")
	}
	if got := LegacyCode(res, err); got != -int(h264err.DecodeFailed) {
		t.Errorf("LegacyCode = %d, want %d", got, -int(h264err.DecodeFailed))
	}
	if s.State() != Ready {
		t.Errorf("state = %s, want ready after a decode error", s.State())
	}
}

func TestDecodeFrame_Dropped(t *testing.T) {
	dec := mocks.NewVideoDecoder(64, 48)
	dec.DecodeFunc = func(data []byte) (*ports.VideoFrame, error) {
		return nil, fmt.Errorf("%w: no parameter sets", ports.ErrFrameDropped)
	}
	s := New(dec, nil)
	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	au := idrAccessUnit()
	res, err := s.DecodeFrame(au, len(au))
	if err != nil {
		t.Fatalf("a dropped frame should not fail: %v", err)
	}
	if res.Status != NeedMoreData || res.BytesConsumed != len(au) || res.Code() != 0 {
		t.Errorf("got %+v, want NeedMoreData consuming %d bytes", res, len(au))
	}
	if st := s.Stats(); st.Dropped != 1 || st.Errors != 0 {
		t.Errorf("stats %+v, want 1 dropped and no errors", st)
	}
}

func TestLegacyCode(t *testing.T) {
	tests := []struct {
		name string
		res  Result
		err  error
		want int
	}{
		{"frame", Result{Status: FrameDecoded, BytesConsumed: 120}, nil, 120},
		{"need more data", Result{Status: NeedMoreData, BytesConsumed: 30}, nil, 0},
		{"not initialized", Result{}, h264err.New(h264err.NotInitialized, "op", "x"), -int(h264err.NotInitialized)},
		{"closed", Result{}, h264err.New(h264err.SessionClosed, "op", "x"), -int(h264err.SessionClosed)},
		{"unclassified", Result{}, errors.New("boom"), -int(h264err.DecodeFailed)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LegacyCode(tt.res, tt.err); got != tt.want {
				t.Errorf("LegacyCode = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCleanup_Idempotent(t *testing.T) {
	s := New(mocks.NewVideoDecoder(64, 48), nil)

	// Cleanup without Init is allowed and terminal.
	if err := s.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if err := s.Cleanup(); err != nil {
		t.Fatalf("second Cleanup failed: %v", err)
	}
	if s.State() != Closed {
		t.Errorf("state = %s, want closed", s.State())
	}
}

func TestFlush(t *testing.T) {
	dec := mocks.NewVideoDecoder(64, 48)
	dec.FlushFunc = func() ([]*ports.VideoFrame, error) {
		return []*ports.VideoFrame{{}, {}}, nil
	}
	s := New(dec, nil)

	if _, err := s.Flush(); !h264err.Is(err, h264err.NotInitialized) {
		t.Errorf("expected NotInitialized, got %v", err)
	}
	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	frames, err := s.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(frames) != 2 || s.Stats().FramesOut != 2 {
		t.Errorf("got %d frames, FramesOut %d", len(frames), s.Stats().FramesOut)
	}
}

func TestSession_IDsAreUnique(t *testing.T) {
	a := New(nil, nil)
	b := New(nil, nil)
	if a.ID() == b.ID() {
		t.Error("expected distinct session IDs")
	}
}

func TestSession_Concurrent(t *testing.T) {
	s := New(mocks.NewVideoDecoder(64, 48), nil)
	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	au := idrAccessUnit()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				s.DecodeFrame(au, len(au))
				_ = s.State()
			}
		}()
	}
	wg.Wait()

	if got := s.Stats().FramesOut; got != 200 {
		t.Errorf("FramesOut = %d, want 200", got)
	}
}
