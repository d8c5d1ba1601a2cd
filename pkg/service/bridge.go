package service

import (
	"sync"

	"github.com/user/h264plugin/pkg/adapters/h264decoder"
	"github.com/user/h264plugin/pkg/adapters/logger"
	"github.com/user/h264plugin/pkg/h264err"
	"github.com/user/h264plugin/pkg/nativelib"
	"github.com/user/h264plugin/pkg/ports"
	"github.com/user/h264plugin/pkg/session"
	"go.uber.org/atomic"
)

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	Library nativelib.Options

	// Load loads the native library. Defaults to nativelib.Load.
	Load func(nativelib.Options) error

	// NewDecoder creates the decoder behind each session. Defaults to an
	// h264decoder using the native backend.
	NewDecoder func() ports.VideoDecoder

	Logger ports.Logger
}

// Bridge exposes InitDecoder, CleanupDecoder and DecodeFrame over one
// session.Session. Every call fails with LibraryNotLoaded until Load has
// succeeded.
type Bridge struct {
	opts BridgeOptions
	log  ports.Logger

	loadOnce sync.Once
	loadErr  error
	loaded   atomic.Bool

	mu   sync.Mutex
	sess *session.Session
}

// NewBridge creates a Bridge.
func NewBridge(opts BridgeOptions) *Bridge {
	if opts.Logger == nil {
		opts.Logger = logger.NewNoop()
	}
	if opts.Load == nil {
		opts.Load = nativelib.Load
	}
	if opts.NewDecoder == nil {
		libPath := opts.Library.Path
		log := opts.Logger
		opts.NewDecoder = func() ports.VideoDecoder {
			return h264decoder.New(h264decoder.Options{
				Backend:     h264decoder.BackendNative,
				LibraryPath: libPath,
				Logger:      log,
			})
		}
	}
	return &Bridge{
		opts: opts,
		log:  opts.Logger.WithComponent("bridge"),
	}
}

var (
	defaultOnce   sync.Once
	defaultBridge *Bridge
)

// Default returns the process-wide Bridge.
func Default() *Bridge {
	defaultOnce.Do(func() {
		defaultBridge = NewBridge(BridgeOptions{})
	})
	return defaultBridge
}

// Load loads the native library. Only the first call does any work; later
// calls return the first result.
func (b *Bridge) Load() error {
	b.loadOnce.Do(func() {
		b.loadErr = b.opts.Load(b.opts.Library)
		if b.loadErr != nil {
			b.loadErr = h264err.Wrap(h264err.LibraryNotLoaded, "bridge.Load", b.loadErr)
			b.log.Error("Failed to load %s: %v", nativelib.LibName, b.loadErr)
			return
		}
		b.loaded.Store(true)
		b.log.Debug("Loaded %s", nativelib.LibName)
	})
	return b.loadErr
}

// Loaded reports whether Load succeeded.
func (b *Bridge) Loaded() bool {
	return b.loaded.Load()
}

func notLoaded(op string) error {
	return h264err.New(h264err.LibraryNotLoaded, op, "native library has not been loaded")
}

// InitDecoder starts a decoding session. It is a no-op while a session is
// ready; after CleanupDecoder it starts a new one.
func (b *Bridge) InitDecoder() error {
	if !b.Loaded() {
		return notLoaded("bridge.InitDecoder")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sess == nil || b.sess.State() == session.Closed {
		b.sess = session.New(b.opts.NewDecoder(), b.opts.Logger)
	}
	return b.sess.Init()
}

// CleanupDecoder ends the current session. Calls without a session are
// no-ops.
func (b *Bridge) CleanupDecoder() error {
	if !b.Loaded() {
		return notLoaded("bridge.CleanupDecoder")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sess == nil {
		return nil
	}
	return b.sess.Cleanup()
}

// DecodeFrame decodes data[:length] and returns the integer result native
// callers expect: the bytes consumed when a picture was produced, 0 when
// more data is needed, or a negated h264err.Code.
func (b *Bridge) DecodeFrame(data []byte, length int) int {
	if !b.Loaded() {
		return -int(h264err.LibraryNotLoaded)
	}

	b.mu.Lock()
	sess := b.sess
	b.mu.Unlock()

	if sess == nil {
		return -int(h264err.NotInitialized)
	}
	return session.LegacyCode(sess.DecodeFrame(data, length))
}

// SendParameterSets feeds SPS and PPS NAL units to the current session as
// one Annex B buffer. A negative result is returned as an error carrying
// its code.
func (b *Bridge) SendParameterSets(sps, pps [][]byte) error {
	const op = "bridge.SendParameterSets"
	if len(sps) == 0 || len(pps) == 0 {
		return h264err.New(h264err.InvalidParam, op, "missing SPS or PPS")
	}
	ps := h264decoder.ParameterSetsAnnexB(sps, pps)
	if code := b.DecodeFrame(ps, len(ps)); code < 0 {
		return h264err.Newf(h264err.Code(-code), op, "decoder rejected %d bytes of parameter sets", len(ps))
	}
	return nil
}

// Session returns the current session, or nil before InitDecoder.
func (b *Bridge) Session() *session.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess
}

// InitDecoder calls InitDecoder on the process-wide Bridge.
func InitDecoder() error {
	return Default().InitDecoder()
}

// CleanupDecoder calls CleanupDecoder on the process-wide Bridge.
func CleanupDecoder() error {
	return Default().CleanupDecoder()
}

// DecodeFrame calls DecodeFrame on the process-wide Bridge.
func DecodeFrame(data []byte, length int) int {
	return Default().DecodeFrame(data, length)
}
