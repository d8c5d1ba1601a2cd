// Package movie decodes an MP4 file frame by frame for a host that drives
// playback from its own update loop.
package movie

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/user/h264plugin/pkg/adapters/aacdecoder"
	"github.com/user/h264plugin/pkg/adapters/h264decoder"
	"github.com/user/h264plugin/pkg/adapters/logger"
	"github.com/user/h264plugin/pkg/h264err"
	"github.com/user/h264plugin/pkg/manager"
	"github.com/user/h264plugin/pkg/ports"
)

const (
	// DefaultVideoTimescale is used when a video track has no timescale.
	DefaultVideoTimescale = 90000
	// DefaultSampleRate is used when an audio track has neither a
	// timescale nor a sample rate.
	DefaultSampleRate = 44100
)

// pendingSample remembers a sample handed to a decoder whose picture or
// PCM has not come out yet.
type pendingSample struct {
	timestamp float64
	keyframe  bool
}

// Movie plays one file through a manager.Manager. It is safe for
// concurrent use.
type Movie struct {
	mgr *manager.Manager
	log ports.Logger

	mu       sync.Mutex
	loaded   bool
	playing  bool
	duration float64
	tracks   []ports.TrackInfo

	videoTrack int
	audioTrack int

	paramSetsSent bool
	aacConfigured bool

	hasNewVideo   bool
	hasNewAudio   bool
	videoFinished bool
	audioFinished bool

	currentVideo *ports.VideoFrame
	currentAudio *ports.AudioFrame

	videoPending []pendingSample
	audioPending []pendingSample
	flushed      []*ports.VideoFrame
	drained      bool

	errs h264err.Tracker
}

// New creates a Movie that decodes with the components owned by mgr.
func New(mgr *manager.Manager, log ports.Logger) *Movie {
	if log == nil {
		log = logger.NewNoop()
	}
	return &Movie{
		mgr:        mgr,
		log:        log.WithComponent("movie"),
		videoTrack: -1,
		audioTrack: -1,
	}
}

// Load opens path. A movie that is already loaded is stopped first.
func (m *Movie) Load(path string) error {
	return m.load(func() error { return m.mgr.OpenFile(path) })
}

// LoadReader opens an in-memory input.
func (m *Movie) LoadReader(r io.ReadSeeker) error {
	return m.load(func() error { return m.mgr.OpenReader(r) })
}

func (m *Movie) load(open func() error) error {
	const op = "movie.Load"

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		m.stopLocked()
	}

	if err := open(); err != nil {
		return m.errs.Record(h264err.Wrap(h264err.FileOpenFailed, op, err))
	}
	tracks, duration, err := m.mgr.FileInfo()
	if err != nil {
		return m.errs.Record(h264err.Wrap(h264err.UnsupportedFormat, op, err))
	}

	m.tracks = tracks
	m.duration = duration
	m.videoTrack, m.audioTrack = -1, -1
	for _, t := range tracks {
		switch {
		case t.Type == ports.TrackVideo && t.Codec == ports.CodecH264 && m.videoTrack < 0:
			m.videoTrack = t.TrackID
		case t.Type == ports.TrackAudio && t.Codec == ports.CodecAAC && m.audioTrack < 0:
			m.audioTrack = t.TrackID
		}
	}
	if m.videoTrack < 0 {
		m.mgr.CloseFile()
		return m.errs.Record(h264err.New(h264err.UnsupportedFormat, op, "no H.264 video track"))
	}

	m.loaded = true
	if err := m.sendParameterSets(); err != nil {
		m.log.Warn("Decoder pre-configuration failed: %v", err)
	}

	m.log.Info("Loaded movie: %.3fs, %d tracks", duration, len(tracks))
	m.errs.Clear()
	return nil
}

// sendParameterSets feeds the video track's SPS and PPS to the decoder.
func (m *Movie) sendParameterSets() error {
	sps, pps, err := m.mgr.Demuxer().ParameterSets(m.videoTrack)
	if err != nil {
		return err
	}
	if len(sps) == 0 || len(pps) == 0 {
		return fmt.Errorf("track %d has no parameter sets", m.videoTrack)
	}
	if _, err := m.mgr.VideoDecoder().Decode(h264decoder.ParameterSetsAnnexB(sps, pps)); err != nil {
		return err
	}
	m.paramSetsSent = true
	m.log.Debug("Sent SPS (%d) and PPS (%d) to decoder", len(sps), len(pps))
	return nil
}

func (m *Movie) notLoaded(op string) error {
	return m.errs.Record(h264err.New(h264err.NotInitialized, op, "movie not loaded"))
}

// Play starts playback.
func (m *Movie) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return m.notLoaded("movie.Play")
	}
	m.playing = true
	m.errs.Clear()
	return nil
}

// Pause pauses playback.
func (m *Movie) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return m.notLoaded("movie.Pause")
	}
	m.playing = false
	m.errs.Clear()
	return nil
}

// Stop closes the file and clears all playback state.
func (m *Movie) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.errs.Clear()
	return nil
}

func (m *Movie) stopLocked() {
	m.playing = false
	if m.loaded {
		m.mgr.CloseFile()
	}
	m.loaded = false
	m.duration = 0
	m.tracks = nil
	m.videoTrack, m.audioTrack = -1, -1
	m.resetDecodeState()
	m.paramSetsSent = false
	m.aacConfigured = false
	m.videoFinished = false
	m.audioFinished = false
}

// resetDecodeState drops current frames and everything in flight.
func (m *Movie) resetDecodeState() {
	m.hasNewVideo = false
	m.hasNewAudio = false
	m.currentVideo = nil
	m.currentAudio = nil
	m.videoPending = nil
	m.audioPending = nil
	m.flushed = nil
	m.drained = false
}

// Replay rewinds to the beginning and starts playing. The file stays open.
func (m *Movie) Replay() error {
	const op = "movie.Replay"

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return m.notLoaded(op)
	}
	m.log.Debug("Starting replay")
	m.playing = false
	if err := m.seekLocked(0); err != nil {
		return m.errs.Record(h264err.Wrap(h264err.DecodeFailed, op, err))
	}
	m.playing = true
	m.errs.Clear()
	return nil
}

// IsPlaying reports whether Play was called since the last Pause or Stop.
func (m *Movie) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// IsLoaded reports whether a file is loaded.
func (m *Movie) IsLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// Duration returns the movie length in seconds.
func (m *Movie) Duration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

// Tracks returns the tracks of the loaded file.
func (m *Movie) Tracks() []ports.TrackInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.TrackInfo(nil), m.tracks...)
}

// CurrentTime returns the demuxer position in seconds.
func (m *Movie) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return 0
	}
	return m.mgr.Demuxer().CurrentTime()
}

// HasNewVideoFrame reports whether a decoded picture awaits CurrentVideoFrame.
func (m *Movie) HasNewVideoFrame() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasNewVideo
}

// HasNewAudioFrame reports whether decoded PCM awaits CurrentAudioFrame.
func (m *Movie) HasNewAudioFrame() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasNewAudio
}

// HasAudioTrack reports whether the movie has an AAC track that can be
// decoded.
func (m *Movie) HasAudioTrack() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasAudioLocked()
}

func (m *Movie) hasAudioLocked() bool {
	return m.audioTrack >= 0 && m.mgr.AudioDecoder() != nil
}

// VideoTrackFinished reports whether every video frame has been delivered.
func (m *Movie) VideoTrackFinished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoFinished
}

// AudioTrackFinished reports whether every audio sample has been read.
func (m *Movie) AudioTrackFinished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioFinished
}

// PlaybackFinished reports whether video is done and, if the movie has
// audio, audio is done too.
func (m *Movie) PlaybackFinished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoFinished && (!m.hasAudioLocked() || m.audioFinished)
}

// CurrentVideoFrame returns the last decoded picture and clears the "new"
// flag. The picture is owned by the decoder; Clone it to keep it across
// further decodes.
func (m *Movie) CurrentVideoFrame() *ports.VideoFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasNewVideo = false
	return m.currentVideo
}

// CurrentAudioFrame returns the last decoded PCM and clears the "new" flag.
func (m *Movie) CurrentAudioFrame() *ports.AudioFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasNewAudio = false
	return m.currentAudio
}

// LastError returns the last recorded failure.
func (m *Movie) LastError() (h264err.Code, string) {
	return m.errs.Last()
}

// DecodeNextFrame decodes one video frame and one audio frame, skipping a
// stream whose previous frame has not been taken yet. It reports whether
// anything new was produced.
func (m *Movie) DecodeNextFrame() (bool, error) {
	var video, audio bool
	var videoErr, audioErr error

	if !m.HasNewVideoFrame() {
		video, videoErr = m.DecodeNextVideoFrame()
	}
	if !m.HasNewAudioFrame() {
		audio, audioErr = m.DecodeNextAudioFrame()
	}
	if videoErr != nil {
		return video || audio, videoErr
	}
	return video || audio, audioErr
}

// DecodeNextVideoFrame reads one video sample and decodes it. It reports
// false when the decoder needs more input or the track is finished.
func (m *Movie) DecodeNextVideoFrame() (bool, error) {
	const op = "movie.DecodeNextVideoFrame"

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return false, m.notLoaded(op)
	}
	if m.hasNewVideo {
		return true, nil
	}
	if m.videoFinished {
		return false, nil
	}

	demuxer := m.mgr.Demuxer()
	dec := m.mgr.VideoDecoder()

	if !m.paramSetsSent {
		if err := m.sendParameterSets(); err != nil {
			m.log.Warn("Failed to send parameter sets: %v", err)
		}
	}

	sample, err := demuxer.ReadNextSample(m.videoTrack)
	if errors.Is(err, io.EOF) {
		return m.drainVideo(dec)
	}
	if err != nil {
		return false, m.errs.Record(h264err.Wrap(h264err.DecodeFailed, op, err))
	}

	m.videoPending = append(m.videoPending, pendingSample{
		timestamp: m.videoSeconds(sample.Timestamp),
		keyframe:  sample.IsKeyframe,
	})

	frame, err := dec.Decode(h264decoder.AVCCToAnnexB(sample.Data))
	if errors.Is(err, ports.ErrFrameDropped) {
		// Only this sample is lost; pictures already in flight keep theirs.
		m.videoPending = m.videoPending[:len(m.videoPending)-1]
		m.log.Debug("Dropped frame at %.3fs: %v", m.videoSeconds(sample.Timestamp), err)
		return false, nil
	}
	if err != nil {
		// The decoder has dropped its state; nothing in flight will come out.
		m.videoPending = nil
		return false, m.errs.Record(h264err.Wrap(h264err.DecodeFailed, op, err))
	}
	if frame == nil {
		return false, nil
	}

	m.deliverVideo(frame)
	m.errs.Clear()
	return true, nil
}

// drainVideo hands out pictures the decoder still holds once the track has
// no more samples.
func (m *Movie) drainVideo(dec ports.VideoDecoder) (bool, error) {
	if !m.drained {
		m.drained = true
		frames, err := dec.Flush()
		if err != nil {
			m.log.Warn("Flush failed: %v", err)
		}
		m.flushed = frames
	}
	if len(m.flushed) == 0 {
		m.videoFinished = true
		m.videoPending = nil
		m.log.Debug("Video track finished")
		return false, nil
	}
	frame := m.flushed[0]
	m.flushed = m.flushed[1:]
	m.deliverVideo(frame)
	return true, nil
}

func (m *Movie) deliverVideo(frame *ports.VideoFrame) {
	if len(m.videoPending) > 0 {
		p := m.videoPending[0]
		m.videoPending = m.videoPending[1:]
		frame.Timestamp = p.timestamp
		frame.IsKeyframe = p.keyframe
	}
	m.currentVideo = frame
	m.hasNewVideo = true
}

func (m *Movie) trackInfo(id int) ports.TrackInfo {
	for _, t := range m.tracks {
		if t.TrackID == id {
			return t
		}
	}
	return ports.TrackInfo{}
}

func (m *Movie) videoSeconds(ts uint64) float64 {
	timescale := m.trackInfo(m.videoTrack).Timescale
	if timescale == 0 {
		timescale = DefaultVideoTimescale
	}
	return float64(ts) / float64(timescale)
}

func (m *Movie) audioSeconds(ts uint64) float64 {
	t := m.trackInfo(m.audioTrack)
	if t.Timescale > 0 {
		return float64(ts) / float64(t.Timescale)
	}
	rate := t.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return float64(ts) / float64(rate)
}

// DecodeNextAudioFrame reads one AAC access unit and decodes it. Movies
// without a decodable audio track report false and no error.
func (m *Movie) DecodeNextAudioFrame() (bool, error) {
	const op = "movie.DecodeNextAudioFrame"

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return false, m.notLoaded(op)
	}
	if !m.hasAudioLocked() {
		return false, nil
	}
	if m.hasNewAudio {
		return true, nil
	}
	if m.audioFinished {
		return false, nil
	}

	dec := m.mgr.AudioDecoder()
	if !m.aacConfigured {
		if err := dec.Configure(m.audioConfig()); err != nil {
			return false, m.errs.Record(h264err.Wrap(h264err.DecoderInitFailed, op, err))
		}
		m.aacConfigured = true
	}

	sample, err := m.mgr.Demuxer().ReadNextSample(m.audioTrack)
	if errors.Is(err, io.EOF) {
		m.audioFinished = true
		m.audioPending = nil
		m.log.Debug("Audio track finished")
		return false, nil
	}
	if err != nil {
		return false, m.errs.Record(h264err.Wrap(h264err.DecodeFailed, op, err))
	}

	m.audioPending = append(m.audioPending, pendingSample{timestamp: m.audioSeconds(sample.Timestamp)})

	frame, err := dec.Decode(sample.Data)
	if err != nil {
		m.audioPending = m.audioPending[:len(m.audioPending)-1]
		return false, m.errs.Record(h264err.Wrap(h264err.DecodeFailed, op, err))
	}
	if frame == nil {
		return false, nil
	}

	p := m.audioPending[0]
	m.audioPending = m.audioPending[1:]
	frame.Timestamp = p.timestamp
	m.currentAudio = frame
	m.hasNewAudio = true
	m.errs.Clear()
	return true, nil
}

// audioConfig returns the track's AudioSpecificConfig, or builds an
// AAC-LC one from its sample rate and channel count.
func (m *Movie) audioConfig() []byte {
	t := m.trackInfo(m.audioTrack)
	if len(t.DecoderConfig) >= 2 {
		return t.DecoderConfig
	}
	return aacdecoder.BuildASC(t.SampleRate, t.Channels)
}

// SeekTo moves playback to seconds. Video resumes from the keyframe at or
// before the target; parameter sets are resent before the next sample.
func (m *Movie) SeekTo(seconds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return m.notLoaded("movie.SeekTo")
	}
	if err := m.seekLocked(seconds); err != nil {
		return m.errs.Record(h264err.Wrap(h264err.DecodeFailed, "movie.SeekTo", err))
	}
	m.errs.Clear()
	return nil
}

func (m *Movie) seekLocked(seconds float64) error {
	if err := m.mgr.Demuxer().SeekToTime(seconds); err != nil {
		return err
	}

	if err := m.mgr.VideoDecoder().Reset(); err != nil {
		m.log.Warn("Decoder reset failed: %v", err)
	}
	if dec := m.mgr.AudioDecoder(); dec != nil {
		if err := dec.Reset(); err != nil {
			m.log.Warn("Audio decoder reset failed: %v", err)
		}
	}

	m.resetDecodeState()
	m.paramSetsSent = false
	m.aacConfigured = false
	m.videoFinished = false
	m.audioFinished = false

	m.log.Debug("Seeked to %.3fs", seconds)
	return nil
}
