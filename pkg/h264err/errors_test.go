package h264err

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, None},
		{"classified", New(InvalidParam, "decode", "length out of range"), InvalidParam},
		{"wrapped classified", fmt.Errorf("outer: %w", New(FileNotFound, "open", "missing")), FileNotFound},
		{"unclassified", io.ErrUnexpectedEOF, DecodeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(DecodeFailed, "decode", nil) != nil {
		t.Fatal("Wrap(nil) should return nil")
	}

	err := Wrap(FileOpenFailed, "open", io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("wrapped error should match its cause")
	}
	if !Is(err, FileOpenFailed) {
		t.Error("wrapped error should carry its code")
	}
	if !strings.Contains(err.Error(), "open") || !strings.Contains(err.Error(), "File open failed") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("ctx: %w", New(SessionClosed, "decode", "closed"))

	if !errors.Is(err, &Error{Code: SessionClosed}) {
		t.Error("expected match on code")
	}
	if errors.Is(err, &Error{Code: NotInitialized}) {
		t.Error("unexpected match on different code")
	}
	if errors.Is(err, &Error{Code: SessionClosed, Op: "init"}) {
		t.Error("unexpected match on different op")
	}
}

func TestCodeString(t *testing.T) {
	if None.String() != "No error" {
		t.Errorf("None.String() = %q", None.String())
	}
	if !strings.Contains(Code(99).String(), "99") {
		t.Errorf("unknown code should include its value, got %q", Code(99).String())
	}
}

func TestTracker(t *testing.T) {
	var tr Tracker

	if tr.HasError() {
		t.Fatal("new tracker should be empty")
	}

	err := New(UnsupportedFormat, "load", "no video track")
	if got := tr.Record(err); got != err {
		t.Error("Record should return its argument")
	}

	code, msg := tr.Last()
	if code != UnsupportedFormat {
		t.Errorf("code = %v, want %v", code, UnsupportedFormat)
	}
	if !strings.Contains(msg, "no video track") {
		t.Errorf("message = %q", msg)
	}

	tr.Clear()
	if tr.HasError() {
		t.Error("Clear should reset the tracker")
	}
}
