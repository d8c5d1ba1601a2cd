// Package ffmpegproc runs ffmpeg as a long-lived filter process: encoded
// data is written to stdin and fixed-size raw chunks are read from stdout.
package ffmpegproc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

var (
	// ErrFFmpegNotFound is returned when ffmpeg cannot be located.
	ErrFFmpegNotFound = errors.New("ffmpegproc: ffmpeg not found in PATH")

	// ErrClosed is returned when writing to a closed process.
	ErrClosed = errors.New("ffmpegproc: process closed")
)

var (
	pathMu           sync.RWMutex
	customFFmpegPath string
)

// SetFFmpegPath overrides ffmpeg discovery. An empty path restores the default search.
func SetFFmpegPath(path string) {
	pathMu.Lock()
	defer pathMu.Unlock()
	customFFmpegPath = path
}

// FindFFmpeg searches for ffmpeg.
// Priority: 1) SetFFmpegPath, 2) FFMPEG_PATH env, 3) PATH, 4) common locations
func FindFFmpeg() (string, error) {
	pathMu.RLock()
	custom := customFFmpegPath
	pathMu.RUnlock()

	if custom != "" {
		if _, err := os.Stat(custom); err == nil {
			return custom, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrFFmpegNotFound, custom)
	}

	if envPath := os.Getenv("FFMPEG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: FFMPEG_PATH %s not found", ErrFFmpegNotFound, envPath)
	}

	execName := "ffmpeg"
	if runtime.GOOS == "windows" {
		execName = "ffmpeg.exe"
	}

	path, err := exec.LookPath(execName)
	if err == nil {
		return path, nil
	}

	var commonPaths []string
	switch runtime.GOOS {
	case "windows":
		commonPaths = []string{
			`C:\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
		}
	case "darwin":
		commonPaths = []string{
			"/opt/homebrew/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/usr/bin/ffmpeg",
		}
	default:
		commonPaths = []string{
			"/usr/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/snap/bin/ffmpeg",
			"/system/bin/ffmpeg",
		}
	}

	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", ErrFFmpegNotFound
}

// IsAvailable reports whether ffmpeg can be found.
func IsAvailable() bool {
	_, err := FindFFmpeg()
	return err == nil
}

// Process is a running ffmpeg filter.
type Process struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	chunkSize int

	out     chan []byte
	done    chan struct{}
	readErr error

	stderr *limitedBuffer

	mu          sync.Mutex
	inputClosed bool
	closed      bool
}

// Start launches ffmpeg with args. Stdout is split into chunks of
// chunkSize bytes; a trailing partial chunk is delivered on EOF.
func Start(ffmpegPath string, args []string, chunkSize int) (*Process, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("ffmpegproc: invalid chunk size %d", chunkSize)
	}

	cmd := exec.Command(ffmpegPath, args...)
	stderr := &limitedBuffer{limit: 8 * 1024}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("get stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	p := &Process{
		cmd:       cmd,
		stdin:     stdin,
		chunkSize: chunkSize,
		out:       make(chan []byte, 16),
		done:      make(chan struct{}),
		stderr:    stderr,
	}
	go p.readLoop(stdout)
	return p, nil
}

func (p *Process) readLoop(stdout io.Reader) {
	defer close(p.done)
	defer close(p.out)

	for {
		buf := make([]byte, p.chunkSize)
		n, err := io.ReadFull(stdout, buf)
		if n > 0 {
			p.out <- buf[:n]
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				p.readErr = err
			}
			return
		}
	}
}

// Write sends encoded input to ffmpeg.
func (p *Process) Write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.inputClosed {
		return ErrClosed
	}
	if _, err := p.stdin.Write(data); err != nil {
		return fmt.Errorf("write to ffmpeg: %w (stderr: %s)", err, p.stderr.String())
	}
	return nil
}

// Receive waits up to timeout for one output chunk.
// ok is false when nothing arrived or the output has ended.
func (p *Process) Receive(timeout time.Duration) (chunk []byte, ok bool) {
	if timeout <= 0 {
		select {
		case chunk, ok = <-p.out:
			return chunk, ok
		default:
			return nil, false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case chunk, ok = <-p.out:
		return chunk, ok
	case <-timer.C:
		return nil, false
	}
}

// Drain closes stdin and collects every remaining chunk until ffmpeg exits
// or timeout elapses.
func (p *Process) Drain(timeout time.Duration) ([][]byte, error) {
	p.mu.Lock()
	if !p.inputClosed && !p.closed {
		p.inputClosed = true
		p.stdin.Close()
	}
	p.mu.Unlock()

	var chunks [][]byte
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case chunk, ok := <-p.out:
			if !ok {
				return chunks, p.readErr
			}
			chunks = append(chunks, chunk)
		case <-timer.C:
			return chunks, fmt.Errorf("ffmpegproc: drain timed out after %s", timeout)
		}
	}
}

// Stderr returns the captured tail of ffmpeg's diagnostic output.
func (p *Process) Stderr() string {
	return p.stderr.String()
}

// Exited reports whether ffmpeg closed its output.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Close terminates ffmpeg and waits for it. Safe to call more than once.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if !p.inputClosed {
		p.inputClosed = true
		p.stdin.Close()
	}
	p.mu.Unlock()

	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	// Unblock the reader if it is waiting on a full channel.
	go func() {
		for range p.out {
		}
	}()
	<-p.done
	p.cmd.Wait()
	return nil
}

// limitedBuffer keeps the last limit bytes written to it.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.limit {
		b.buf = b.buf[len(b.buf)-b.limit:]
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
