// Package mp4demuxer reads H.264 and AAC samples from progressive and
// fragmented MP4 files using mp4ff.
package mp4demuxer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/h264plugin/pkg/adapters/logger"
	"github.com/user/h264plugin/pkg/ports"
)

var (
	// ErrNotOpen is returned when no file is open.
	ErrNotOpen = errors.New("mp4demuxer: no file open")

	// ErrNoTracks is returned when the file has no audio or video track.
	ErrNoTracks = errors.New("mp4demuxer: no supported tracks")

	// ErrInvalidTrack is returned for an unknown track ID.
	ErrInvalidTrack = errors.New("mp4demuxer: invalid track")
)

// sampleEntry locates one sample. Fragmented files keep the data in memory;
// progressive files are read on demand.
type sampleEntry struct {
	offset     int64
	size       uint32
	decodeTime uint64
	dur        uint32
	sync       bool
	data       []byte
}

type track struct {
	info    ports.TrackInfo
	samples []sampleEntry
	next    int

	sps [][]byte
	pps [][]byte
}

// Demuxer implements ports.Demuxer.
type Demuxer struct {
	log ports.Logger

	mu          sync.Mutex
	reader      io.ReadSeeker
	closer      io.Closer
	tracks      []*track
	duration    float64
	currentTime float64
}

var _ ports.Demuxer = (*Demuxer)(nil)

// New creates a demuxer. A nil logger discards messages.
func New(log ports.Logger) *Demuxer {
	if log == nil {
		log = logger.NewNoop()
	}
	return &Demuxer{log: log.WithComponent("demuxer")}
}

// OpenFile opens and parses the file at path. The file stays open until Close.
func (d *Demuxer) OpenFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	if err := d.Open(f); err != nil {
		f.Close()
		return err
	}
	d.mu.Lock()
	d.closer = f
	d.mu.Unlock()
	return nil
}

// Open parses the container read from r. Any previously opened input is closed.
func (d *Demuxer) Open(r io.ReadSeeker) error {
	d.Close()

	mp4File, err := mp4.DecodeFile(r)
	if err != nil {
		return fmt.Errorf("decode mp4: %w", err)
	}

	var tracks []*track
	if mp4File.IsFragmented() {
		tracks, err = buildFragmentedTracks(mp4File)
	} else {
		tracks, err = buildProgressiveTracks(mp4File)
	}
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return ErrNoTracks
	}

	var duration float64
	for i, t := range tracks {
		t.info.TrackID = i
		t.info.SampleCount = len(t.samples)
		t.info.Duration = trackDuration(t)
		if t.info.Duration > duration {
			duration = t.info.Duration
		}
		d.log.Debug("Track %d: %s %s, %d samples, %.3fs", i, t.info.Type, t.info.Codec, len(t.samples), t.info.Duration)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.reader = r
	d.tracks = tracks
	d.duration = duration
	d.currentTime = 0
	return nil
}

// trackDuration prefers the sample table over the header, which is zero in
// fragmented files.
func trackDuration(t *track) float64 {
	ts := t.info.Timescale
	if ts == 0 {
		return 0
	}
	if n := len(t.samples); n > 0 {
		last := t.samples[n-1]
		return float64(last.decodeTime+uint64(last.dur)) / float64(ts)
	}
	return t.info.Duration
}

// Close releases the input.
func (d *Demuxer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closer != nil {
		d.closer.Close()
		d.closer = nil
	}
	d.reader = nil
	d.tracks = nil
	d.duration = 0
	d.currentTime = 0
}

// Tracks returns information about all tracks.
func (d *Demuxer) Tracks() []ports.TrackInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	infos := make([]ports.TrackInfo, len(d.tracks))
	for i, t := range d.tracks {
		infos[i] = t.info
	}
	return infos
}

// Duration returns the longest track duration in seconds.
func (d *Demuxer) Duration() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.duration
}

// CurrentTime returns the timestamp of the last sample read, in seconds.
func (d *Demuxer) CurrentTime() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentTime
}

func (d *Demuxer) track(trackID int) (*track, error) {
	if d.tracks == nil {
		return nil, ErrNotOpen
	}
	if trackID < 0 || trackID >= len(d.tracks) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTrack, trackID)
	}
	return d.tracks[trackID], nil
}

// ReadNextSample returns the next sample of a track, or io.EOF.
func (d *Demuxer) ReadNextSample(trackID int) (ports.Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.track(trackID)
	if err != nil {
		return ports.Sample{}, err
	}
	if t.next >= len(t.samples) {
		return ports.Sample{}, io.EOF
	}

	e := t.samples[t.next]
	data := e.data
	if data == nil {
		data, err = d.readAt(e.offset, e.size)
		if err != nil {
			return ports.Sample{}, fmt.Errorf("read sample %d of track %d: %w", t.next, trackID, err)
		}
	}
	t.next++

	if t.info.Timescale > 0 {
		d.currentTime = float64(e.decodeTime) / float64(t.info.Timescale)
	}

	return ports.Sample{
		Data:       data,
		Timestamp:  e.decodeTime,
		Duration:   e.dur,
		IsKeyframe: e.sync,
	}, nil
}

func (d *Demuxer) readAt(offset int64, size uint32) ([]byte, error) {
	if _, err := d.reader.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to sample: %w", err)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(d.reader, data); err != nil {
		return nil, fmt.Errorf("read sample: %w", err)
	}
	return data, nil
}

// SeekToTime repositions every track cursor. The time is clamped to
// [0, Duration]. Video tracks land on the sync sample at or before the
// target; other tracks on the first sample at or after it.
func (d *Demuxer) SeekToTime(seconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tracks == nil {
		return ErrNotOpen
	}

	if seconds < 0 {
		seconds = 0
	}
	if seconds > d.duration {
		seconds = d.duration
	}

	for _, t := range d.tracks {
		target := uint64(seconds * float64(t.info.Timescale))
		if t.info.Type == ports.TrackVideo {
			t.next = syncSampleBefore(t.samples, target)
		} else {
			t.next = sort.Search(len(t.samples), func(i int) bool {
				return t.samples[i].decodeTime >= target
			})
		}
	}

	d.currentTime = seconds
	return nil
}

// syncSampleBefore returns the index of the last sync sample whose decode
// time is at or before target, or 0.
func syncSampleBefore(samples []sampleEntry, target uint64) int {
	i := sort.Search(len(samples), func(i int) bool {
		return samples[i].decodeTime > target
	}) - 1
	for ; i > 0; i-- {
		if samples[i].sync {
			return i
		}
	}
	return 0
}

// ParameterSets returns the SPS and PPS NAL units of an H.264 track.
func (d *Demuxer) ParameterSets(trackID int) (sps, pps [][]byte, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.track(trackID)
	if err != nil {
		return nil, nil, err
	}
	if t.info.Codec != ports.CodecH264 {
		return nil, nil, fmt.Errorf("%w: track %d is not H.264", ErrInvalidTrack, trackID)
	}
	return cloneNALUs(t.sps), cloneNALUs(t.pps), nil
}

func cloneNALUs(nalus [][]byte) [][]byte {
	out := make([][]byte, len(nalus))
	for i, n := range nalus {
		out[i] = append([]byte(nil), n...)
	}
	return out
}
