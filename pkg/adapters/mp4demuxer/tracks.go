package mp4demuxer

import (
	"fmt"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/h264plugin/pkg/ports"
)

// newTrack describes a trak box. Tracks other than video and audio return nil.
func newTrack(trak *mp4.TrakBox) *track {
	if trak.Mdia == nil || trak.Mdia.Hdlr == nil {
		return nil
	}

	t := &track{}
	switch trak.Mdia.Hdlr.HandlerType {
	case "vide":
		t.info.Type = ports.TrackVideo
	case "soun":
		t.info.Type = ports.TrackAudio
	default:
		return nil
	}

	if trak.Mdia.Mdhd != nil {
		t.info.Timescale = trak.Mdia.Mdhd.Timescale
		if t.info.Timescale > 0 {
			t.info.Duration = float64(trak.Mdia.Mdhd.Duration) / float64(t.info.Timescale)
		}
	}

	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return t
	}

	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		switch entry := child.(type) {
		case *mp4.VisualSampleEntryBox:
			t.info.Width = int(entry.Width)
			t.info.Height = int(entry.Height)
			if entry.AvcC != nil {
				t.info.Codec = ports.CodecH264
				t.sps = entry.AvcC.SPSnalus
				t.pps = entry.AvcC.PPSnalus
			}
		case *mp4.AudioSampleEntryBox:
			t.info.Channels = int(entry.ChannelCount)
			t.info.SampleRate = int(entry.SampleRate)
			if entry.Type() == "mp4a" {
				t.info.Codec = ports.CodecAAC
			}
			if entry.Esds != nil && entry.Esds.DecConfigDescriptor != nil &&
				entry.Esds.DecConfigDescriptor.DecSpecificInfo != nil {
				t.info.DecoderConfig = entry.Esds.DecConfigDescriptor.DecSpecificInfo.DecConfig
			}
		}
	}

	if t.info.Type == ports.TrackAudio && t.info.SampleRate == 0 {
		t.info.SampleRate = int(t.info.Timescale)
	}
	return t
}

func buildProgressiveTracks(mp4File *mp4.File) ([]*track, error) {
	if mp4File.Moov == nil {
		return nil, fmt.Errorf("no moov box found")
	}

	var tracks []*track
	for _, trak := range mp4File.Moov.Traks {
		t := newTrack(trak)
		if t == nil {
			continue
		}
		samples, err := progressiveSamples(trak)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", trak.Tkhd.TrackID, err)
		}
		t.samples = samples
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// progressiveSamples builds the sample table from stts/stss/stsz/stsc/stco.
func progressiveSamples(trak *mp4.TrakBox) ([]sampleEntry, error) {
	stbl := trak.Mdia.Minf.Stbl
	if stbl == nil {
		return nil, fmt.Errorf("no sample table found")
	}
	if stbl.Stsz == nil || stbl.Stsc == nil {
		return nil, fmt.Errorf("missing stsz or stsc box")
	}
	if stbl.Stco == nil && stbl.Co64 == nil {
		return nil, fmt.Errorf("no stco or co64 box")
	}

	syncSamples := make(map[uint32]bool)
	if stbl.Stss != nil {
		for _, nr := range stbl.Stss.SampleNumber {
			syncSamples[nr] = true
		}
	}
	allSync := stbl.Stss == nil

	count := stbl.Stsz.SampleNumber
	samples := make([]sampleEntry, 0, count)

	prevChunk := -1
	var offset uint64
	for nr := uint32(1); nr <= count; nr++ {
		chunkNr, firstInChunk, err := stbl.Stsc.ChunkNrFromSampleNr(int(nr))
		if err != nil {
			return nil, fmt.Errorf("get chunk nr: %w", err)
		}

		if chunkNr != prevChunk {
			offset, err = chunkOffset(stbl, chunkNr)
			if err != nil {
				return nil, err
			}
			for s := uint32(firstInChunk); s < nr; s++ {
				offset += uint64(stbl.Stsz.GetSampleSize(int(s)))
			}
			prevChunk = chunkNr
		}

		size := stbl.Stsz.GetSampleSize(int(nr))

		var decodeTime uint64
		var dur uint32
		if stbl.Stts != nil {
			decodeTime, dur = stbl.Stts.GetDecodeTime(nr)
		}

		samples = append(samples, sampleEntry{
			offset:     int64(offset),
			size:       size,
			decodeTime: decodeTime,
			dur:        dur,
			sync:       allSync || syncSamples[nr],
		})
		offset += uint64(size)
	}
	return samples, nil
}

func chunkOffset(stbl *mp4.StblBox, chunkNr int) (uint64, error) {
	if stbl.Stco != nil {
		off, err := stbl.Stco.GetOffset(chunkNr)
		if err != nil {
			return 0, fmt.Errorf("get chunk offset: %w", err)
		}
		return off, nil
	}
	if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
		return 0, fmt.Errorf("chunk nr %d out of range", chunkNr)
	}
	return stbl.Co64.ChunkOffset[chunkNr-1], nil
}

// buildFragmentedTracks collects samples from every traf of every fragment.
// A fragment may carry several tracks.
func buildFragmentedTracks(mp4File *mp4.File) ([]*track, error) {
	if mp4File.Init == nil || mp4File.Init.Moov == nil {
		return nil, fmt.Errorf("no init segment found")
	}
	moov := mp4File.Init.Moov

	var tracks []*track
	byID := make(map[uint32]*track)
	trexs := make(map[uint32]*mp4.TrexBox)

	for _, trak := range moov.Traks {
		t := newTrack(trak)
		if t == nil {
			continue
		}
		tracks = append(tracks, t)
		byID[trak.Tkhd.TrackID] = t
	}
	if moov.Mvex != nil {
		for _, trex := range moov.Mvex.Trexs {
			trexs[trex.TrackID] = trex
		}
	}

	for _, seg := range mp4File.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd == nil {
					continue
				}
				trackID := traf.Tfhd.TrackID
				t, ok := byID[trackID]
				if !ok {
					continue
				}
				// GetFullSamples picks the traf matching the trex track ID.
				trex, ok := trexs[trackID]
				if !ok {
					trex = &mp4.TrexBox{TrackID: trackID}
				}

				samples, err := frag.GetFullSamples(trex)
				if err != nil {
					return nil, fmt.Errorf("get samples of track %d: %w", trackID, err)
				}
				for _, s := range samples {
					t.samples = append(t.samples, sampleEntry{
						size:       s.Size,
						decodeTime: s.DecodeTime,
						dur:        s.Dur,
						sync:       s.IsSync(),
						data:       s.Data,
					})
				}
			}
		}
	}
	return tracks, nil
}
