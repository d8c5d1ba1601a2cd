// Package session implements the H.264 decoding session that backs the
// host's initDecoder/decodeFrame/cleanupDecoder calls.
//
// A Session moves through three states:
//
//	Uninitialized --Init--> Ready --Cleanup--> Closed
//
// DecodeFrame is only valid in Ready. Closed is terminal; a new Session
// must be created to decode again.
package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/user/h264plugin/pkg/adapters/logger"
	"github.com/user/h264plugin/pkg/h264err"
	"github.com/user/h264plugin/pkg/ports"
	"go.uber.org/atomic"
)

// State is the lifecycle state of a Session.
type State int32

const (
	Uninitialized State = iota
	Ready
	Closed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Status tells whether a DecodeFrame call produced a picture.
type Status int

const (
	// NeedMoreData means the input was accepted but no picture is ready,
	// e.g. parameter sets or a frame the codec is still holding.
	NeedMoreData Status = iota
	// FrameDecoded means Result.Frame holds a picture.
	FrameDecoded
)

// Result describes a successful DecodeFrame call.
type Result struct {
	Status        Status
	BytesConsumed int
	// Frame is owned by the decoder and valid until the next few decode
	// calls. Use Frame.Clone to keep it.
	Frame *ports.VideoFrame
}

// Code returns the integer form handed to native callers: the number of
// bytes consumed when a picture was produced, 0 otherwise.
func (r Result) Code() int {
	if r.Status == FrameDecoded {
		return r.BytesConsumed
	}
	return 0
}

// LegacyCode folds a DecodeFrame outcome into one integer: >0 bytes
// consumed with a frame, 0 consumed without a frame, <0 the negated
// h264err.Code of the failure.
func LegacyCode(r Result, err error) int {
	if err != nil {
		return -int(h264err.CodeOf(err))
	}
	return r.Code()
}

// Stats are cumulative counters for a session.
type Stats struct {
	FramesIn  int64
	FramesOut int64
	Bytes     int64
	Errors    int64
	// Dropped counts access units the decoder discarded.
	Dropped int64
}

// Session owns one video decoder. It is safe for concurrent use; calls are
// serialised.
type Session struct {
	id  uuid.UUID
	dec ports.VideoDecoder
	log ports.Logger

	mu    sync.Mutex
	state atomic.Int32

	framesIn  atomic.Int64
	framesOut atomic.Int64
	bytes     atomic.Int64
	errors    atomic.Int64
	dropped   atomic.Int64
}

// New creates an Uninitialized session over dec. A nil logger discards
// messages.
func New(dec ports.VideoDecoder, log ports.Logger) *Session {
	if log == nil {
		log = logger.NewNoop()
	}
	id := uuid.New()
	return &Session{
		id:  id,
		dec: dec,
		log: log.WithComponent("session"),
	}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State returns the current lifecycle state without locking.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Stats returns a snapshot of the counters.
func (s *Session) Stats() Stats {
	return Stats{
		FramesIn:  s.framesIn.Load(),
		FramesOut: s.framesOut.Load(),
		Bytes:     s.bytes.Load(),
		Errors:    s.errors.Load(),
		Dropped:   s.dropped.Load(),
	}
}

// Init allocates codec state. It is a no-op in Ready and fails with
// SessionClosed after Cleanup. If the decoder cannot be initialised the
// session stays Uninitialized and the error carries DecoderInitFailed.
func (s *Session) Init() error {
	const op = "session.Init"

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case Ready:
		return nil
	case Closed:
		return h264err.New(h264err.SessionClosed, op, "session already cleaned up")
	}

	if s.dec == nil {
		return h264err.New(h264err.DecoderInitFailed, op, "no decoder")
	}
	if err := s.dec.Init(); err != nil {
		s.errors.Inc()
		s.log.Error("Decoder initialization failed: %v", err)
		return h264err.Wrap(h264err.DecoderInitFailed, op, err)
	}

	s.state.Store(int32(Ready))
	s.log.Debug("Session %s ready", s.id)
	return nil
}

// DecodeFrame decodes data[:length], which must hold Annex B NAL units.
func (s *Session) DecodeFrame(data []byte, length int) (Result, error) {
	const op = "session.DecodeFrame"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(op); err != nil {
		return Result{}, err
	}
	if length <= 0 || length > len(data) {
		s.errors.Inc()
		return Result{}, h264err.Newf(h264err.InvalidParam, op, "length %d out of range for %d byte buffer", length, len(data))
	}

	s.framesIn.Inc()
	s.bytes.Add(int64(length))

	frame, err := s.dec.Decode(data[:length])
	if errors.Is(err, ports.ErrFrameDropped) {
		s.dropped.Inc()
		return Result{Status: NeedMoreData, BytesConsumed: length}, nil
	}
	if err != nil {
		s.errors.Inc()
		return Result{}, h264err.Wrap(h264err.DecodeFailed, op, err)
	}
	if frame == nil {
		return Result{Status: NeedMoreData, BytesConsumed: length}, nil
	}

	s.framesOut.Inc()
	return Result{Status: FrameDecoded, BytesConsumed: length, Frame: frame}, nil
}

// Flush drains pictures the decoder is still holding.
func (s *Session) Flush() ([]*ports.VideoFrame, error) {
	const op = "session.Flush"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(op); err != nil {
		return nil, err
	}
	frames, err := s.dec.Flush()
	if err != nil {
		s.errors.Inc()
		return nil, h264err.Wrap(h264err.DecodeFailed, op, err)
	}
	s.framesOut.Add(int64(len(frames)))
	return frames, nil
}

func (s *Session) checkReady(op string) error {
	switch s.State() {
	case Ready:
		return nil
	case Closed:
		return h264err.New(h264err.SessionClosed, op, "session already cleaned up")
	default:
		return h264err.New(h264err.NotInitialized, op, "Init has not been called")
	}
}

// Cleanup releases codec state and moves the session to Closed. Repeated
// calls are no-ops.
func (s *Session) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == Closed {
		return nil
	}
	if s.State() == Ready && s.dec != nil {
		s.dec.Close()
	}
	s.state.Store(int32(Closed))

	st := s.Stats()
	s.log.Debug("Session %s closed: %d in, %d out, %d dropped, %d errors", s.id, st.FramesIn, st.FramesOut, st.Dropped, st.Errors)
	return nil
}
