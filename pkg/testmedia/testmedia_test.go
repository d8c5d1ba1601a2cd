package testmedia

import (
	"bytes"
	"testing"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/mp4"
)

func TestSPSDimensions(t *testing.T) {
	tests := []struct {
		width, height int
	}{
		{64, 48},
		{320, 240},
		{1920, 1080},
		{100, 50},
	}

	for _, tt := range tests {
		sps, err := avc.ParseSPSNALUnit(SPS(tt.width, tt.height), false)
		if err != nil {
			t.Fatalf("ParseSPSNALUnit(%dx%d) failed: %v", tt.width, tt.height, err)
		}
		if int(sps.Width) != tt.width || int(sps.Height) != tt.height {
			t.Errorf("parsed %dx%d, want %dx%d", sps.Width, sps.Height, tt.width, tt.height)
		}
	}
}

func TestEscape(t *testing.T) {
	got := escape([]byte{0, 0, 1, 0, 0, 0, 5})
	want := []byte{0, 0, 3, 1, 0, 0, 3, 0, 5}
	if !bytes.Equal(got, want) {
		t.Errorf("escape() = %v, want %v", got, want)
	}
}

func TestBuildMP4(t *testing.T) {
	opts := DefaultOptions()
	opts.AudioFrames = 86

	data, err := BuildMP4(opts)
	if err != nil {
		t.Fatalf("BuildMP4 failed: %v", err)
	}

	f, err := mp4.DecodeFile(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeFile failed: %v", err)
	}
	if !f.IsFragmented() {
		t.Fatal("expected a fragmented file")
	}
	if got := len(f.Init.Moov.Traks); got != 2 {
		t.Fatalf("got %d tracks, want 2", got)
	}

	fragments := 0
	for _, seg := range f.Segments {
		fragments += len(seg.Fragments)
	}
	// Two GOPs, each with a video and an audio fragment.
	if fragments != 4 {
		t.Errorf("got %d fragments, want 4", fragments)
	}
}

func TestBuildMP4_InvalidOptions(t *testing.T) {
	if _, err := BuildMP4(Options{}); err == nil {
		t.Error("expected error for empty options")
	}
}

func TestBuildMP4_Interleaved(t *testing.T) {
	opts := DefaultOptions()
	opts.AudioFrames = 86
	opts.Layout = Interleaved

	data, err := BuildMP4(opts)
	if err != nil {
		t.Fatalf("BuildMP4 failed: %v", err)
	}
	f, err := mp4.DecodeFile(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeFile failed: %v", err)
	}

	var frags []*mp4.Fragment
	for _, seg := range f.Segments {
		frags = append(frags, seg.Fragments...)
	}
	if len(frags) != 2 {
		t.Fatalf("got %d fragments, want 2", len(frags))
	}
	for i, frag := range frags {
		if got := len(frag.Moof.Trafs); got != 2 {
			t.Errorf("fragment %d has %d trafs, want 2", i, got)
		}
	}
}

func TestBuildMP4_Progressive(t *testing.T) {
	tests := []struct {
		name  string
		large bool
	}{
		{"stco", false},
		{"co64", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.AudioFrames = 86
			opts.Layout = Progressive
			opts.LargeOffsets = tt.large

			data, err := BuildMP4(opts)
			if err != nil {
				t.Fatalf("BuildMP4 failed: %v", err)
			}
			f, err := mp4.DecodeFile(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("DecodeFile failed: %v", err)
			}
			if f.IsFragmented() {
				t.Fatal("expected a progressive file")
			}
			if f.Moov.Mvex != nil {
				t.Error("progressive file should not carry mvex")
			}

			vstbl := f.Moov.Traks[0].Mdia.Minf.Stbl
			if vstbl.Stsz.SampleNumber != 20 {
				t.Errorf("video stsz has %d samples, want 20", vstbl.Stsz.SampleNumber)
			}
			if vstbl.Stss == nil || len(vstbl.Stss.SampleNumber) != 2 {
				t.Fatalf("video stss = %+v, want 2 sync samples", vstbl.Stss)
			}
			if vstbl.Stss.SampleNumber[1] != 11 {
				t.Errorf("second sync sample %d, want 11", vstbl.Stss.SampleNumber[1])
			}
			if tt.large && (vstbl.Co64 == nil || vstbl.Stco != nil) {
				t.Error("expected co64 chunk offsets")
			}
			if !tt.large && vstbl.Stco == nil {
				t.Error("expected stco chunk offsets")
			}

			astbl := f.Moov.Traks[1].Mdia.Minf.Stbl
			if astbl.Stsz.SampleNumber != 86 {
				t.Errorf("audio stsz has %d samples, want 86", astbl.Stsz.SampleNumber)
			}
			if astbl.Stss != nil {
				t.Error("audio track should have no stss")
			}
		})
	}
}
