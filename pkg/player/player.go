// Package player drives a movie from a host update loop: it keeps video
// in step with audio (or with the wall clock when there is no audio) and
// queues decoded PCM for the host's audio output.
package player

import (
	"sync"

	"github.com/user/h264plugin/pkg/adapters/logger"
	"github.com/user/h264plugin/pkg/ports"
)

const (
	// AudioLeadThreshold is how far video may trail the audio clock
	// before the next picture is shown.
	AudioLeadThreshold = 0.040
	// ClockLagThreshold is how far video may trail the wall clock when
	// the movie has no audio.
	ClockLagThreshold = 0.050

	// MaxSeekAttempts bounds the decodes tried after a seek.
	MaxSeekAttempts = 10
	// SeekFailuresBeforeBackoff is the number of consecutive failed
	// decodes after which Seek restarts one second earlier.
	SeekFailuresBeforeBackoff = 3
	// SeekBackoff is how far Seek steps back, in seconds.
	SeekBackoff = 1.0

	// ReplayDecodeAttempts bounds the decodes tried after Replay.
	ReplayDecodeAttempts = 3

	// DefaultAudioBuffers is the number of PCM frames queued ahead.
	DefaultAudioBuffers = 4
)

// Movie is the part of movie.Movie the player uses.
type Movie interface {
	Play() error
	Pause() error
	Stop() error
	Replay() error
	SeekTo(seconds float64) error
	Duration() float64

	DecodeNextFrame() (bool, error)
	DecodeNextVideoFrame() (bool, error)
	DecodeNextAudioFrame() (bool, error)

	HasNewVideoFrame() bool
	HasNewAudioFrame() bool
	HasAudioTrack() bool
	CurrentVideoFrame() *ports.VideoFrame
	CurrentAudioFrame() *ports.AudioFrame
	PlaybackFinished() bool
}

// Options configures a Player.
type Options struct {
	// AudioBuffers is the PCM queue depth. Zero selects DefaultAudioBuffers.
	AudioBuffers int
	Logger       ports.Logger
}

// Player is safe for concurrent use.
type Player struct {
	movie   Movie
	log     ports.Logger
	buffers int

	mu      sync.Mutex
	playing bool
	stopped bool
	elapsed int64 // milliseconds

	// clockStarted is set once the media clock origin is known. origin is
	// the host time, in seconds, at which media time 0 would have played.
	clockStarted bool
	origin       float64

	lastAudioTS float64
	lastVideoTS float64
	haveAudioTS bool

	currentVideo *ports.VideoFrame
	currentAudio *ports.AudioFrame

	audioQueue     []*ports.AudioFrame
	audioStarted   bool
	audioCompleted bool
}

// New creates a Player and decodes the first frame so it can be shown
// before playback starts.
func New(movie Movie, opts Options) *Player {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoop()
	}
	if opts.AudioBuffers <= 0 {
		opts.AudioBuffers = DefaultAudioBuffers
	}
	p := &Player{
		movie:   movie,
		log:     log.WithComponent("player"),
		buffers: opts.AudioBuffers,
	}
	p.primeLocked(1)
	return p
}

// primeLocked decodes until a picture is available, up to attempts times.
func (p *Player) primeLocked(attempts int) {
	for i := 0; i < attempts && !p.movie.HasNewVideoFrame(); i++ {
		if _, err := p.movie.DecodeNextFrame(); err != nil {
			p.log.Debug("Decode attempt %d failed: %v", i+1, err)
		}
	}
	if p.movie.HasNewVideoFrame() {
		p.currentVideo = p.movie.CurrentVideoFrame()
	} else {
		p.log.Warn("No video frame available after %d decode attempts", attempts)
	}
	if p.movie.HasNewAudioFrame() {
		p.currentAudio = p.movie.CurrentAudioFrame()
	}
}

// Play starts or resumes playback.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return nil
	}
	if err := p.movie.Play(); err != nil {
		return err
	}
	p.playing = true
	return nil
}

// Pause pauses playback. Update does nothing while paused.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return nil
	}
	if err := p.movie.Pause(); err != nil {
		return err
	}
	p.playing = false
	return nil
}

// Stop ends playback and unloads the movie.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped = true
	p.playing = false
	if p.audioStarted {
		p.audioQueue = nil
		p.audioStarted = false
		p.audioCompleted = true
	}
	return p.movie.Stop()
}

// Replay restarts the movie from the beginning and resumes playing.
func (p *Player) Replay() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped = false
	p.playing = false
	p.elapsed = 0
	p.resetClock()
	p.audioQueue = nil
	p.audioStarted = false
	p.audioCompleted = false
	p.currentVideo = nil
	p.currentAudio = nil

	if err := p.movie.Replay(); err != nil {
		return err
	}
	p.playing = true
	p.primeLocked(ReplayDecodeAttempts)
	return nil
}

func (p *Player) resetClock() {
	p.clockStarted = false
	p.origin = 0
	p.lastAudioTS = 0
	p.lastVideoTS = 0
	p.haveAudioTS = false
}

// IsPlaying reports whether the player is playing.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// IsActive reports whether the player has been neither stopped nor played
// to the end.
func (p *Player) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.stopped && !p.movie.PlaybackFinished()
}

// Elapsed returns the host playback time in seconds.
func (p *Player) Elapsed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float64(p.elapsed) / 1000
}

// VideoFrame returns the picture to display, or nil.
func (p *Player) VideoFrame() *ports.VideoFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentVideo
}

// AudioFrame pops the oldest queued PCM frame, or returns nil.
func (p *Player) AudioFrame() *ports.AudioFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.audioQueue) == 0 {
		return nil
	}
	f := p.audioQueue[0]
	p.audioQueue = p.audioQueue[1:]
	return f
}

// QueuedAudio returns the number of PCM frames waiting in the queue.
func (p *Player) QueuedAudio() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.audioQueue)
}

// AudioCompleted reports whether all audio has been queued and consumed.
func (p *Player) AudioCompleted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audioCompleted
}

// Update advances playback by deltaMs milliseconds of host time.
func (p *Player) Update(deltaMs int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing {
		if p.audioStarted && !p.audioCompleted && len(p.audioQueue) == 0 &&
			!p.movie.HasNewAudioFrame() && !p.movie.HasNewVideoFrame() {
			p.audioCompleted = true
		}
		return
	}

	hasAudio := p.movie.HasAudioTrack()

	if !p.currentVideo.IsValid() {
		p.fetchVideo()
	}
	if !p.currentAudio.IsValid() && hasAudio {
		p.fetchAudio()
	}

	if deltaMs <= 0 || (!p.currentAudio.IsValid() && !p.currentVideo.IsValid()) {
		p.checkAudioCompleted(hasAudio)
		return
	}

	now := p.elapsed + int64(deltaMs)
	nowSec := float64(now) / 1000

	if hasAudio && p.currentAudio.IsValid() {
		p.updateAudio(nowSec)
	}
	if p.currentVideo.IsValid() {
		p.updateVideo(nowSec)
	}
	p.checkAudioCompleted(hasAudio)

	p.elapsed = now
}

func (p *Player) fetchVideo() bool {
	if !p.movie.HasNewVideoFrame() {
		p.movie.DecodeNextVideoFrame()
	}
	if !p.movie.HasNewVideoFrame() {
		return false
	}
	p.currentVideo = p.movie.CurrentVideoFrame()
	return true
}

func (p *Player) fetchAudio() bool {
	if !p.movie.HasNewAudioFrame() {
		p.movie.DecodeNextAudioFrame()
	}
	if !p.movie.HasNewAudioFrame() {
		return false
	}
	p.currentAudio = p.movie.CurrentAudioFrame()
	return true
}

// updateAudio moves decoded PCM into the queue while there is room. The
// audio clock is the timestamp of the newest frame handed to the host.
func (p *Player) updateAudio(nowSec float64) {
	if !p.audioStarted {
		p.audioStarted = true
		if !p.clockStarted {
			p.clockStarted = true
			p.origin = nowSec - p.currentAudio.Timestamp
			p.log.Debug("Audio playback started at %.3fs", nowSec)
		}
	}

	p.lastAudioTS = p.currentAudio.Timestamp
	p.haveAudioTS = true

	for len(p.audioQueue) < p.buffers && p.currentAudio.IsValid() {
		p.audioQueue = append(p.audioQueue, p.currentAudio)
		if p.fetchAudio() {
			p.lastAudioTS = p.currentAudio.Timestamp
		} else {
			p.currentAudio = nil
		}
	}
}

// updateVideo shows the next picture when the current one is late.
func (p *Player) updateVideo(nowSec float64) {
	frameTime := p.currentVideo.Timestamp
	p.lastVideoTS = frameTime

	advance := false
	switch {
	case !p.clockStarted:
		p.clockStarted = true
		p.origin = nowSec - frameTime
		p.log.Debug("Video playback started at %.3fs (first frame %.3fs)", nowSec, frameTime)
		// The first picture has been shown already.
		advance = true
	case p.haveAudioTS:
		advance = frameTime < p.lastAudioTS-AudioLeadThreshold
	default:
		expected := nowSec - p.origin
		advance = frameTime-expected < -ClockLagThreshold
	}
	if !advance {
		return
	}

	if !p.fetchVideo() {
		return
	}
	p.lastVideoTS = p.currentVideo.Timestamp
}

func (p *Player) checkAudioCompleted(hasAudio bool) {
	if !hasAudio || !p.audioStarted || p.audioCompleted {
		return
	}
	if len(p.audioQueue) == 0 && !p.currentAudio.IsValid() && !p.movie.HasNewAudioFrame() {
		p.audioCompleted = true
	}
}

// Seek moves playback to seconds and decodes the first picture there. If
// decoding keeps failing it restarts SeekBackoff seconds earlier, where a
// keyframe is more likely. It returns an error only when the initial seek
// fails.
func (p *Player) Seek(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.movie.SeekTo(seconds); err != nil {
		return err
	}

	p.elapsed = int64(seconds * 1000)
	p.resetClock()
	p.currentVideo = nil
	p.currentAudio = nil
	p.audioQueue = nil

	failures := 0
	found := false
	for attempt := 0; attempt < MaxSeekAttempts && !found; attempt++ {
		decoded, err := p.movie.DecodeNextFrame()
		if decoded && p.movie.HasNewVideoFrame() {
			if f := p.movie.CurrentVideoFrame(); f.IsValid() {
				p.currentVideo = f
				found = true
				p.log.Debug("Decoded frame at %.3fs after seek (attempt %d)", f.Timestamp, attempt+1)
				break
			}
		}
		if decoded {
			continue
		}

		failures++
		if err != nil {
			p.log.Debug("Decode after seek failed: %v", err)
		}
		if failures < SeekFailuresBeforeBackoff {
			continue
		}

		target := seconds - SeekBackoff
		if target < 0 {
			target = 0
		}
		p.log.Debug("%d decode failures, seeking back to %.3fs", failures, target)
		if err := p.movie.SeekTo(target); err != nil {
			p.log.Warn("Seek back failed: %v", err)
			break
		}
		p.elapsed = int64(target * 1000)
		failures = 0
	}
	if !found {
		p.log.Warn("No frame decoded after seeking to %.3fs", seconds)
	}

	if p.movie.HasNewAudioFrame() {
		p.currentAudio = p.movie.CurrentAudioFrame()
	}
	return nil
}
