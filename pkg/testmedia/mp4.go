package testmedia

import (
	"bytes"
	"fmt"

	"github.com/Eyevinn/mp4ff/aac"
	"github.com/Eyevinn/mp4ff/mp4"
)

// VideoTimescale is the video track timescale of generated files.
const VideoTimescale = 90000

// Layout selects how samples are stored in a generated file.
type Layout int

const (
	// Fragmented writes one moof/mdat pair per track and GOP.
	Fragmented Layout = iota
	// Interleaved writes one moof per GOP carrying a traf for every track.
	Interleaved
	// Progressive writes a single mdat described by the moov sample tables,
	// with one chunk per track and GOP.
	Progressive
)

// Options describes a generated MP4.
type Options struct {
	Width  int
	Height int
	FPS    int
	Frames int
	// GOP is the keyframe interval in frames.
	GOP int

	// AudioFrames adds an AAC-LC track with this many 1024-sample frames.
	AudioFrames int
	SampleRate  int
	Channels    int

	Layout Layout
	// LargeOffsets writes co64 instead of stco chunk offsets. Progressive only.
	LargeOffsets bool
}

// DefaultOptions returns a 2 second 10 fps 64x48 video with a 1 s GOP.
func DefaultOptions() Options {
	return Options{
		Width:      64,
		Height:     48,
		FPS:        10,
		Frames:     20,
		GOP:        10,
		SampleRate: 44100,
		Channels:   2,
	}
}

// AudioFrameSamples is the number of PCM samples per AAC frame.
const AudioFrameSamples = 1024

// AudioAU returns a placeholder AAC access unit tagged with n.
func AudioAU(n int) []byte {
	return []byte{0x21, 0x10, 0x04, 0x60, 0x8c, 0x1c, byte(n >> 8), byte(n)}
}

// VideoSampleData returns the AVCC payload of video sample i.
func VideoSampleData(opts Options, i int) []byte {
	if i%opts.GOP == 0 {
		return AVCC(IDRSlice(i))
	}
	return AVCC(Slice(i))
}

// span is the video and audio sample range stored with one GOP.
type span struct {
	videoStart, videoEnd int
	audioStart, audioEnd int
}

// gopSpans splits the samples into GOPs. The audio of a GOP covers the same
// time range as its video; the last GOP takes the remaining audio.
func gopSpans(opts Options) []span {
	var spans []span
	audioNext := 0
	for start := 0; start < opts.Frames; start += opts.GOP {
		end := start + opts.GOP
		if end > opts.Frames {
			end = opts.Frames
		}
		s := span{videoStart: start, videoEnd: end, audioStart: audioNext, audioEnd: audioNext}
		if opts.AudioFrames > 0 && audioNext < opts.AudioFrames {
			gopEnd := float64(end) / float64(opts.FPS)
			audioEnd := int(gopEnd * float64(opts.SampleRate) / AudioFrameSamples)
			if end == opts.Frames || audioEnd > opts.AudioFrames {
				audioEnd = opts.AudioFrames
			}
			if audioEnd > audioNext {
				s.audioEnd = audioEnd
				audioNext = audioEnd
			}
		}
		spans = append(spans, s)
	}
	return spans
}

func videoSample(opts Options, i int) mp4.FullSample {
	data := VideoSampleData(opts, i)
	frameDur := uint32(VideoTimescale / opts.FPS)
	flags := mp4.NonSyncSampleFlags
	if i%opts.GOP == 0 {
		flags = mp4.SyncSampleFlags
	}
	return mp4.FullSample{
		Sample: mp4.Sample{
			Flags: flags,
			Size:  uint32(len(data)),
			Dur:   frameDur,
		},
		DecodeTime: uint64(i) * uint64(frameDur),
		Data:       data,
	}
}

func audioSample(i int) mp4.FullSample {
	data := AudioAU(i)
	return mp4.FullSample{
		Sample: mp4.Sample{
			Flags: mp4.SyncSampleFlags,
			Size:  uint32(len(data)),
			Dur:   AudioFrameSamples,
		},
		DecodeTime: uint64(i) * AudioFrameSamples,
		Data:       data,
	}
}

// BuildMP4 writes an MP4 in the requested layout. Video is track 1; audio,
// when requested, is track 2.
func BuildMP4(opts Options) ([]byte, error) {
	if opts.Width <= 0 || opts.Height <= 0 || opts.FPS <= 0 || opts.Frames <= 0 {
		return nil, fmt.Errorf("invalid options %+v", opts)
	}
	if opts.GOP <= 0 {
		opts.GOP = opts.Frames
	}
	if opts.AudioFrames > 0 && (opts.SampleRate <= 0 || opts.Channels <= 0) {
		return nil, fmt.Errorf("invalid audio options %+v", opts)
	}

	init, err := newInit(opts)
	if err != nil {
		return nil, err
	}
	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso6", "avc1", "mp41"})

	switch opts.Layout {
	case Fragmented, Interleaved:
		return buildFragments(opts, ftyp, init, gopSpans(opts))
	case Progressive:
		return buildProgressive(opts, ftyp, init, gopSpans(opts))
	default:
		return nil, fmt.Errorf("unknown layout %d", opts.Layout)
	}
}

func newInit(opts Options) (*mp4.InitSegment, error) {
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(VideoTimescale, "video", "und")
	vtrak := init.Moov.Trak

	avcC, err := mp4.CreateAvcC([][]byte{SPS(opts.Width, opts.Height)}, [][]byte{PPS()}, true)
	if err != nil {
		return nil, fmt.Errorf("create avcC: %w", err)
	}
	avc1 := mp4.CreateVisualSampleEntryBox("avc1", uint16(opts.Width), uint16(opts.Height), avcC)
	vtrak.Mdia.Minf.Stbl.Stsd.AddChild(avc1)
	vtrak.Tkhd.Width = mp4.Fixed32(opts.Width << 16)
	vtrak.Tkhd.Height = mp4.Fixed32(opts.Height << 16)

	if opts.AudioFrames > 0 {
		init.AddEmptyTrack(uint32(opts.SampleRate), "audio", "en")
		atrak := init.Moov.Traks[1]
		if err := atrak.SetAACDescriptor(aac.AAClc, opts.SampleRate); err != nil {
			return nil, fmt.Errorf("set AAC descriptor: %w", err)
		}
	}
	return init, nil
}

func buildFragments(opts Options, ftyp *mp4.FtypBox, init *mp4.InitSegment, spans []span) ([]byte, error) {
	var buf bytes.Buffer
	if err := ftyp.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode ftyp: %w", err)
	}
	if err := init.Moov.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode moov: %w", err)
	}

	seq := uint32(1)
	for _, s := range spans {
		hasAudio := s.audioEnd > s.audioStart

		if opts.Layout == Interleaved && hasAudio {
			frag, err := mp4.CreateMultiTrackFragment(seq, []uint32{1, 2})
			if err != nil {
				return nil, fmt.Errorf("create fragment: %w", err)
			}
			seq++
			for i := s.videoStart; i < s.videoEnd; i++ {
				if err := frag.AddFullSampleToTrack(videoSample(opts, i), 1); err != nil {
					return nil, fmt.Errorf("add video sample: %w", err)
				}
			}
			for i := s.audioStart; i < s.audioEnd; i++ {
				if err := frag.AddFullSampleToTrack(audioSample(i), 2); err != nil {
					return nil, fmt.Errorf("add audio sample: %w", err)
				}
			}
			if err := frag.Encode(&buf); err != nil {
				return nil, fmt.Errorf("encode fragment: %w", err)
			}
			continue
		}

		vfrag, err := mp4.CreateFragment(seq, 1)
		if err != nil {
			return nil, fmt.Errorf("create video fragment: %w", err)
		}
		seq++
		for i := s.videoStart; i < s.videoEnd; i++ {
			vfrag.AddFullSample(videoSample(opts, i))
		}
		if err := vfrag.Encode(&buf); err != nil {
			return nil, fmt.Errorf("encode video fragment: %w", err)
		}

		if !hasAudio {
			continue
		}
		afrag, err := mp4.CreateFragment(seq, 2)
		if err != nil {
			return nil, fmt.Errorf("create audio fragment: %w", err)
		}
		seq++
		for i := s.audioStart; i < s.audioEnd; i++ {
			afrag.AddFullSample(audioSample(i))
		}
		if err := afrag.Encode(&buf); err != nil {
			return nil, fmt.Errorf("encode audio fragment: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// chunk is one run of samples of a track stored contiguously in the mdat.
type chunk struct {
	samples []mp4.FullSample
	offset  uint64
}

func buildProgressive(opts Options, ftyp *mp4.FtypBox, init *mp4.InitSegment, spans []span) ([]byte, error) {
	moov := init.Moov
	moov.Mvex = nil
	children := moov.Children[:0]
	for _, c := range moov.Children {
		if c.Type() != "mvex" {
			children = append(children, c)
		}
	}
	moov.Children = children

	var chunks [2][]*chunk
	for _, s := range spans {
		v := &chunk{}
		for i := s.videoStart; i < s.videoEnd; i++ {
			v.samples = append(v.samples, videoSample(opts, i))
		}
		chunks[0] = append(chunks[0], v)
		if s.audioEnd > s.audioStart {
			a := &chunk{}
			for i := s.audioStart; i < s.audioEnd; i++ {
				a.samples = append(a.samples, audioSample(i))
			}
			chunks[1] = append(chunks[1], a)
		}
	}

	// Offsets are patched in once the moov size is known; the offset boxes
	// have a fixed size per entry.
	for ti, trak := range moov.Traks {
		if err := fillSampleTables(trak, chunks[ti], ti == 0, opts.LargeOffsets); err != nil {
			return nil, fmt.Errorf("track %d: %w", ti+1, err)
		}
	}
	moov.Mvhd.Timescale = VideoTimescale
	moov.Mvhd.Duration = uint64(opts.Frames) * uint64(VideoTimescale/opts.FPS)

	mdat := &mp4.MdatBox{}
	pos := ftyp.Size() + moov.Size() + mdat.HeaderSize()
	for _, s := range spans {
		gi := s.videoStart / opts.GOP
		order := []*chunk{chunks[0][gi]}
		if len(chunks[1]) > 0 && s.audioEnd > s.audioStart {
			order = append(order, audioChunkFor(chunks[1], s.audioStart))
		}
		for _, c := range order {
			c.offset = pos
			for _, fs := range c.samples {
				mdat.AddSampleData(fs.Data)
				pos += uint64(len(fs.Data))
			}
		}
	}
	for ti, trak := range moov.Traks {
		setChunkOffsets(trak.Mdia.Minf.Stbl, chunks[ti])
	}

	var buf bytes.Buffer
	if err := ftyp.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode ftyp: %w", err)
	}
	if err := moov.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode moov: %w", err)
	}
	if err := mdat.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode mdat: %w", err)
	}
	return buf.Bytes(), nil
}

func audioChunkFor(chunks []*chunk, firstSample int) *chunk {
	for _, c := range chunks {
		if int(c.samples[0].DecodeTime/AudioFrameSamples) == firstSample {
			return c
		}
	}
	return nil
}

func fillSampleTables(trak *mp4.TrakBox, chunks []*chunk, video, largeOffsets bool) error {
	stbl := trak.Mdia.Minf.Stbl

	var total uint32
	var dur uint32
	var decodeEnd uint64
	for ci, c := range chunks {
		n := uint32(len(c.samples))
		if ci == 0 || n != uint32(len(chunks[ci-1].samples)) {
			if err := stbl.Stsc.AddEntry(uint32(ci+1), n, 1); err != nil {
				return err
			}
		}
		for _, s := range c.samples {
			total++
			dur = s.Dur
			decodeEnd = s.DecodeTime + uint64(s.Dur)
			stbl.Stsz.SampleSize = append(stbl.Stsz.SampleSize, s.Size)
			if video && s.IsSync() {
				if stbl.Stss == nil {
					stbl.AddChild(&mp4.StssBox{})
				}
				stbl.Stss.SampleNumber = append(stbl.Stss.SampleNumber, total)
			}
		}
	}
	stbl.Stsz.SampleNumber = total
	stbl.Stts.SampleCount = []uint32{total}
	stbl.Stts.SampleTimeDelta = []uint32{dur}
	trak.Mdia.Mdhd.Duration = decodeEnd

	offsets := len(chunks)
	if largeOffsets {
		stbl.Stco = nil
		kept := stbl.Children[:0]
		for _, c := range stbl.Children {
			if c.Type() != "stco" {
				kept = append(kept, c)
			}
		}
		stbl.Children = kept
		stbl.AddChild(&mp4.Co64Box{ChunkOffset: make([]uint64, offsets)})
	} else {
		stbl.Stco.ChunkOffset = make([]uint32, offsets)
	}
	return nil
}

func setChunkOffsets(stbl *mp4.StblBox, chunks []*chunk) {
	for i, c := range chunks {
		if stbl.Co64 != nil {
			stbl.Co64.ChunkOffset[i] = c.offset
		} else {
			stbl.Stco.ChunkOffset[i] = uint32(c.offset)
		}
	}
}
