// Package manager owns the decoders and demuxer used to play one file.
package manager

import (
	"fmt"
	"io"
	"sync"

	"github.com/user/h264plugin/pkg/adapters/logger"
	"github.com/user/h264plugin/pkg/h264err"
	"github.com/user/h264plugin/pkg/ports"
)

// Factory creates the components a Manager owns. Each Initialize after a
// Destroy builds fresh instances.
type Factory struct {
	Video   func() ports.VideoDecoder
	Audio   func() ports.AudioDecoder
	Demuxer func() ports.Demuxer
}

// Manager owns a video decoder, an audio decoder and a demuxer.
type Manager struct {
	factory Factory
	fs      ports.FileSystem
	log     ports.Logger

	mu          sync.Mutex
	initialized bool
	fileOpen    bool
	file        io.Closer

	video   ports.VideoDecoder
	audio   ports.AudioDecoder
	demuxer ports.Demuxer

	errs h264err.Tracker
}

// New creates a Manager. Files are opened through fs.
func New(factory Factory, fs ports.FileSystem, log ports.Logger) *Manager {
	if log == nil {
		log = logger.NewNoop()
	}
	return &Manager{
		factory: factory,
		fs:      fs,
		log:     log.WithComponent("manager"),
	}
}

// Initialize creates and initialises the components. Calling it again is a
// no-op. A failing audio decoder is not fatal: files are then played
// without sound.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initializeLocked()
}

func (m *Manager) initializeLocked() error {
	const op = "manager.Initialize"

	if m.initialized {
		return nil
	}
	if m.factory.Video == nil || m.factory.Demuxer == nil {
		return m.errs.Record(h264err.New(h264err.DecoderInitFailed, op, "missing video decoder or demuxer factory"))
	}

	video := m.factory.Video()
	if err := video.Init(); err != nil {
		return m.errs.Record(h264err.Wrap(h264err.DecoderInitFailed, op, fmt.Errorf("init H.264 decoder: %w", err)))
	}

	var audio ports.AudioDecoder
	if m.factory.Audio != nil {
		audio = m.factory.Audio()
		if err := audio.Init(); err != nil {
			m.log.Warn("AAC decoder unavailable, audio disabled: %v", err)
			audio.Close()
			audio = nil
		}
	}

	m.video = video
	m.audio = audio
	m.demuxer = m.factory.Demuxer()
	m.initialized = true
	m.errs.Clear()
	return nil
}

// OpenFile opens path, initialising the manager if needed. A file that is
// already open is closed first.
func (m *Manager) OpenFile(path string) error {
	const op = "manager.OpenFile"

	if m.fs == nil {
		return m.errs.Record(h264err.New(h264err.FileOpenFailed, op, "no file system"))
	}
	if ok, err := m.fs.Exists(path); err == nil && !ok {
		return m.errs.Record(h264err.Newf(h264err.FileNotFound, op, "%s does not exist", path))
	}
	f, err := m.fs.Open(path)
	if err != nil {
		return m.errs.Record(h264err.Wrap(h264err.FileOpenFailed, op, err))
	}
	if err := m.open(op, f); err != nil {
		f.Close()
		return err
	}

	m.mu.Lock()
	m.file = f
	m.mu.Unlock()
	m.log.Info("Opened %s", path)
	return nil
}

// OpenReader opens an in-memory or caller-owned input.
func (m *Manager) OpenReader(r io.ReadSeeker) error {
	return m.open("manager.OpenReader", r)
}

func (m *Manager) open(op string, r io.ReadSeeker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.initializeLocked(); err != nil {
		return err
	}
	if m.fileOpen {
		m.closeFileLocked()
	}
	if err := m.demuxer.Open(r); err != nil {
		return m.errs.Record(h264err.Wrap(h264err.FileOpenFailed, op, err))
	}
	m.fileOpen = true
	m.errs.Clear()
	return nil
}

// CloseFile closes the open file, if any.
func (m *Manager) CloseFile() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeFileLocked()
}

func (m *Manager) closeFileLocked() {
	if !m.fileOpen {
		return
	}
	m.demuxer.Close()
	if m.file != nil {
		m.file.Close()
		m.file = nil
	}
	m.fileOpen = false
}

// IsFileOpen reports whether a file is open.
func (m *Manager) IsFileOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fileOpen
}

// FileInfo returns the tracks and duration of the open file.
func (m *Manager) FileInfo() ([]ports.TrackInfo, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.fileOpen {
		return nil, 0, h264err.New(h264err.NotInitialized, "manager.FileInfo", "no file open")
	}
	return m.demuxer.Tracks(), m.demuxer.Duration(), nil
}

// VideoDecoder returns the H.264 decoder, or nil before Initialize.
func (m *Manager) VideoDecoder() ports.VideoDecoder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.video
}

// AudioDecoder returns the AAC decoder, or nil when audio is unavailable.
func (m *Manager) AudioDecoder() ports.AudioDecoder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audio
}

// Demuxer returns the demuxer, or nil before Initialize.
func (m *Manager) Demuxer() ports.Demuxer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.demuxer
}

// LastError returns the last recorded failure.
func (m *Manager) LastError() (h264err.Code, string) {
	return m.errs.Last()
}

// Destroy closes the file and releases every component. The manager can
// be initialised again afterwards.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeFileLocked()
	if m.video != nil {
		m.video.Close()
		m.video = nil
	}
	if m.audio != nil {
		m.audio.Close()
		m.audio = nil
	}
	m.demuxer = nil
	m.initialized = false
	m.errs.Clear()
}
