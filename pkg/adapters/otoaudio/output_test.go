package otoaudio

import (
	"errors"
	"testing"

	"github.com/user/h264plugin/pkg/ports"
)

func TestEncodePCM(t *testing.T) {
	got := encodePCM(nil, []int16{1, -1, 0x1234})
	want := []byte{0x01, 0x00, 0xff, 0xff, 0x34, 0x12}
	if string(got) != string(want) {
		t.Errorf("encodePCM = % x, want % x", got, want)
	}

	buf := make([]byte, 0, 16)
	got = encodePCM(buf, []int16{2})
	if &got[0] != &buf[:1][0] {
		t.Error("encodePCM should reuse dst capacity")
	}
}

func TestWrite_NotOpen(t *testing.T) {
	o := New(nil)
	err := o.Write(&ports.AudioFrame{Samples: []int16{0, 0}, SampleRate: 44100, Channels: 2})
	if !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
	if err := o.Write(nil); err != nil {
		t.Errorf("empty frame should be ignored, got %v", err)
	}
	if err := o.Close(); err != nil {
		t.Errorf("Close on unopened output failed: %v", err)
	}
}
