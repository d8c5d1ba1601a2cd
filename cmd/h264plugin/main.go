// Package main provides the CLI entry point for h264plugin.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/h264plugin/pkg/adapters/aacdecoder"
	"github.com/user/h264plugin/pkg/adapters/filesink"
	"github.com/user/h264plugin/pkg/adapters/ggrenderer"
	"github.com/user/h264plugin/pkg/adapters/h264decoder"
	"github.com/user/h264plugin/pkg/adapters/logger"
	"github.com/user/h264plugin/pkg/adapters/mp4demuxer"
	"github.com/user/h264plugin/pkg/adapters/nullsink"
	"github.com/user/h264plugin/pkg/adapters/osfilesystem"
	"github.com/user/h264plugin/pkg/adapters/otoaudio"
	"github.com/user/h264plugin/pkg/config"
	"github.com/user/h264plugin/pkg/contactsheet"
	"github.com/user/h264plugin/pkg/h264err"
	"github.com/user/h264plugin/pkg/manager"
	"github.com/user/h264plugin/pkg/movie"
	"github.com/user/h264plugin/pkg/player"
	"github.com/user/h264plugin/pkg/ports"
	"github.com/user/h264plugin/pkg/service"
	"github.com/user/h264plugin/pkg/summarizer"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "h264plugin",
		Usage:   l10n.T("Decode and play H.264/AAC MP4 files"),
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: l10n.T("YAML configuration file"), Category: l10n.T("Configuration")},
			&cli.StringFlag{Name: "backend", Aliases: []string{"b"}, Usage: l10n.T("Decoder backend (auto, native, videotoolbox, mediafoundation, ffmpeg)"), Category: l10n.T("Decoder")},
			&cli.StringFlag{Name: "ffmpeg-path", Usage: l10n.T("Path to the ffmpeg executable"), Category: l10n.T("Decoder")},
			&cli.StringFlag{Name: "library-path", Usage: l10n.T("Path to the plugin_h264 library"), Category: l10n.T("Decoder")},
			&cli.BoolFlag{Name: "no-audio", Usage: l10n.T("Skip the audio track"), Category: l10n.T("Decoder")},
			&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Usage: l10n.T("Log level (debug, info, warn, error)"), Category: l10n.T("Logging")},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"Q"}, Usage: l10n.T("Suppress all log output"), Category: l10n.T("Logging")},
		},
		Commands: []*cli.Command{
			infoCommand(),
			decodeCommand(),
			playCommand(),
			nativeCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every command needs: configuration, a logger and a context
// cancelled on SIGINT/SIGTERM.
type env struct {
	cfg    config.Config
	log    ports.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func newEnv(c *cli.Context) (*env, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if c.IsSet("backend") {
		cfg.Decoder.Backend = c.String("backend")
	}
	if c.IsSet("ffmpeg-path") {
		cfg.Decoder.FFmpegPath = c.String("ffmpeg-path")
	}
	if c.IsSet("library-path") {
		cfg.Decoder.LibraryPath = c.String("library-path")
	}
	if c.Bool("no-audio") {
		cfg.Audio.Enabled = false
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var log ports.Logger
	if c.Bool("quiet") {
		log = logger.NewNoop()
	} else {
		log = logger.NewConsole(cfg.Level())
	}

	ctx, cancel := context.WithCancel(c.Context)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Warn("Interrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return &env{cfg: cfg, log: log, ctx: ctx, cancel: cancel}, nil
}

// newManager wires the decoder manager to the configured adapters.
func (e *env) newManager() *manager.Manager {
	factory := manager.Factory{
		Video: func() ports.VideoDecoder {
			return h264decoder.New(e.cfg.ToDecoderOptions(e.log))
		},
		Demuxer: func() ports.Demuxer {
			return mp4demuxer.New(e.log)
		},
	}
	if e.cfg.Audio.Enabled {
		factory.Audio = func() ports.AudioDecoder {
			return aacdecoder.New(e.cfg.ToAudioOptions(e.log))
		}
	}
	return manager.New(factory, osfilesystem.New(), e.log)
}

func inputArg(c *cli.Context) (string, error) {
	if c.NArg() < 1 {
		return "", errors.New(l10n.T("An input file argument is required"))
	}
	return c.Args().First(), nil
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     l10n.T("Show the tracks of an MP4 file"),
		ArgsUsage: "<file.mp4>",
		Action: func(c *cli.Context) error {
			path, err := inputArg(c)
			if err != nil {
				return err
			}
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.cancel()

			mgr := e.newManager()
			defer mgr.Destroy()

			if err := mgr.OpenFile(path); err != nil {
				return err
			}
			tracks, duration, err := mgr.FileInfo()
			if err != nil {
				return err
			}

			fmt.Println(l10n.F("File: %s", path))
			fmt.Println(l10n.F("Duration: %.3fs", duration))
			for _, t := range tracks {
				switch t.Type {
				case ports.TrackVideo:
					fmt.Println(l10n.F("Track %d: %s %s %dx%d, %d samples, %.3fs",
						t.TrackID, t.Type, t.Codec, t.Width, t.Height, t.SampleCount, t.Duration))
				case ports.TrackAudio:
					fmt.Println(l10n.F("Track %d: %s %s %d Hz %d ch, %d samples, %.3fs",
						t.TrackID, t.Type, t.Codec, t.SampleRate, t.Channels, t.SampleCount, t.Duration))
				default:
					fmt.Println(l10n.F("Track %d: %s %s, %d samples, %.3fs",
						t.TrackID, t.Type, t.Codec, t.SampleCount, t.Duration))
				}
			}
			return nil
		},
	}
}

// decodeSummary is written as summary.json by the decode command.
type decodeSummary struct {
	Input        string  `json:"input"`
	Duration     float64 `json:"duration"`
	VideoFrames  int     `json:"video_frames"`
	AudioFrames  int     `json:"audio_frames"`
	Keyframes    int     `json:"keyframes"`
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	SampleRate   int     `json:"sample_rate,omitempty"`
	Channels     int     `json:"channels,omitempty"`
	DecodeErrors int     `json:"decode_errors"`
	ElapsedMs    int64   `json:"elapsed_ms"`
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     l10n.T("Decode every frame of an MP4 file"),
		ArgsUsage: "<file.mp4>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: l10n.T("Output directory"), Category: l10n.T("Output")},
			&cli.BoolFlag{Name: "frames", Usage: l10n.T("Write every frame as PNG"), Category: l10n.T("Output")},
			&cli.BoolFlag{Name: "contact-sheet", Usage: l10n.T("Write a contact sheet of sampled frames"), Category: l10n.T("Output")},
			&cli.IntFlag{Name: "every", Usage: l10n.T("Sample one frame in N for the contact sheet"), Category: l10n.T("Output")},
			&cli.IntFlag{Name: "max-frames", Usage: l10n.T("Stop after N video frames (0 = all)"), Category: l10n.T("Output")},
			&cli.Float64Flag{Name: "start", Usage: l10n.T("Start position in seconds"), Category: l10n.T("Output")},
			&cli.StringFlag{Name: "report", Usage: l10n.T("Write a Markdown decode report to this file"), Category: l10n.T("Output")},
		},
		Action: runDecode,
	}
}

func runDecode(c *cli.Context) error {
	path, err := inputArg(c)
	if err != nil {
		return err
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.cancel()

	out := e.cfg.Output
	if c.IsSet("output") {
		out.Dir = c.String("output")
	}
	if c.IsSet("frames") {
		out.Frames = c.Bool("frames")
	}
	if c.IsSet("contact-sheet") {
		out.ContactSheet = c.Bool("contact-sheet")
	}
	if c.IsSet("every") && c.Int("every") > 0 {
		out.Every = c.Int("every")
	}

	fs := osfilesystem.New()
	renderer := ggrenderer.New()
	var sink ports.FrameSink = nullsink.New()
	if out.Frames || out.Audio || out.ContactSheet {
		if err := fs.MkdirAll(out.Dir); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		sink = filesink.New(out.Dir, fs, renderer)
	}
	defer sink.Close()
	sheet := contactsheet.New(renderer, e.cfg.ToContactSheetOptions())

	mgr := e.newManager()
	defer mgr.Destroy()
	m := movie.New(mgr, e.log)
	if err := m.Load(path); err != nil {
		return err
	}
	defer m.Stop()
	if start := c.Float64("start"); start > 0 {
		if err := m.SeekTo(start); err != nil {
			return err
		}
	}
	m.Play()

	summary := decodeSummary{Input: path, Duration: m.Duration()}
	began := time.Now()
	maxFrames := c.Int("max-frames")

	for !m.PlaybackFinished() {
		if err := e.ctx.Err(); err != nil {
			return err
		}
		if maxFrames > 0 && summary.VideoFrames >= maxFrames {
			break
		}

		progressed, err := m.DecodeNextFrame()
		if err != nil {
			summary.DecodeErrors++
			e.log.Warn("Frame skipped: %v", err)
		}

		if m.HasNewVideoFrame() {
			frame := m.CurrentVideoFrame()
			index := summary.VideoFrames
			summary.VideoFrames++
			summary.Width, summary.Height = frame.Width, frame.Height
			if frame.IsKeyframe {
				summary.Keyframes++
			}
			if out.Frames {
				if err := sink.SaveVideoFrame(index, frame); err != nil {
					e.log.Error("Failed to write output: %s", err.Error())
					return err
				}
			}
			if out.ContactSheet && index%out.Every == 0 {
				sheet.Add(frame)
			}
		}
		if m.HasNewAudioFrame() {
			frame := m.CurrentAudioFrame()
			if out.Audio {
				if err := sink.SaveAudioFrame(summary.AudioFrames, frame); err != nil {
					e.log.Warn("Frame skipped: %v", err)
				}
			}
			summary.AudioFrames++
			summary.SampleRate, summary.Channels = frame.SampleRate, frame.Channels
		}

		if !progressed && err == nil && !m.PlaybackFinished() {
			// Neither stream moved; avoid spinning on a stalled decoder.
			break
		}
	}
	summary.ElapsedMs = time.Since(began).Milliseconds()

	if out.ContactSheet && sheet.Len() > 0 {
		data, err := sheet.Encode(ports.FormatPNG)
		if err != nil {
			return err
		}
		sheetPath := filepath.Join(out.Dir, "contact-sheet.png")
		if err := fs.WriteFile(sheetPath, data); err != nil {
			return err
		}
		e.log.Info("Contact sheet saved to %s", sheetPath)
	}

	if sink.Enabled() {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		if err := sink.SaveSummary(data); err != nil {
			return err
		}
		if err := sink.Close(); err != nil {
			return err
		}
		e.log.Info("Frames written to %s", out.Dir)
	}
	if report := c.String("report"); report != "" {
		if err := writeReport(e, fs, report, m, summary, c.Float64("start"), maxFrames); err != nil {
			return err
		}
		e.log.Info("Summary saved to %s", report)
	}
	e.log.Info("Decoded %d video frames and %d audio frames", summary.VideoFrames, summary.AudioFrames)
	return nil
}

func writeReport(e *env, fs ports.FileSystem, path string, m *movie.Movie, s decodeSummary, start float64, maxFrames int) error {
	var size int64
	if st, err := os.Stat(s.Input); err == nil {
		size = st.Size()
	}
	report := summarizer.NewBuilder().
		WithInput(s.Input, size, s.Duration).
		WithTracks(m.Tracks()).
		WithDecode(summarizer.DecodeInfo{
			VideoFrames: s.VideoFrames,
			AudioFrames: s.AudioFrames,
			Keyframes:   s.Keyframes,
			Errors:      s.DecodeErrors,
			Width:       s.Width,
			Height:      s.Height,
			ElapsedMs:   s.ElapsedMs,
		}).
		WithSettings(summarizer.Settings{
			Backend:      e.cfg.Decoder.Backend,
			AudioEnabled: e.cfg.Audio.Enabled,
			StartSec:     start,
			MaxFrames:    maxFrames,
		}).
		Build()

	formatter := summarizer.NewMarkdownFormatter(
		summarizer.WithTranslator(func(key string) string { return l10n.T(key) }),
		summarizer.WithVersion(version),
	)
	return summarizer.NewWriter(formatter, fs).Write(path, report)
}

func playCommand() *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     l10n.T("Play an MP4 file with audio/video sync"),
		ArgsUsage: "<file.mp4>",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "seek", Usage: l10n.T("Start position in seconds"), Category: l10n.T("Playback")},
			&cli.Float64Flag{Name: "duration", Usage: l10n.T("Stop after N seconds (0 = until the end)"), Category: l10n.T("Playback")},
			&cli.BoolFlag{Name: "device", Usage: l10n.T("Play audio on the system output"), Category: l10n.T("Playback")},
			&cli.BoolFlag{Name: "fast", Usage: l10n.T("Run as fast as decoding allows"), Category: l10n.T("Playback")},
		},
		Action: runPlay,
	}
}

func runPlay(c *cli.Context) error {
	path, err := inputArg(c)
	if err != nil {
		return err
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.cancel()

	if c.IsSet("device") {
		e.cfg.Audio.Device = c.Bool("device")
	}
	if c.Bool("fast") {
		e.cfg.Player.Realtime = false
	}

	mgr := e.newManager()
	defer mgr.Destroy()
	m := movie.New(mgr, e.log)
	if err := m.Load(path); err != nil {
		return err
	}

	p := player.New(m, e.cfg.ToPlayerOptions(e.log))
	defer p.Stop()
	if seek := c.Float64("seek"); seek > 0 {
		if err := p.Seek(seek); err != nil {
			return err
		}
	}
	if err := p.Play(); err != nil {
		return err
	}

	var output ports.AudioOutput
	if e.cfg.Audio.Device && m.HasAudioTrack() {
		output = otoaudio.New(e.log)
		defer output.Close()
	}
	outputOpen := false

	limit := c.Float64("duration")
	tick := time.Duration(e.cfg.Player.TickMs) * time.Millisecond
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for p.IsActive() || !p.AudioCompleted() {
		if e.cfg.Player.Realtime {
			select {
			case <-e.ctx.Done():
				return e.ctx.Err()
			case <-ticker.C:
			}
		} else if err := e.ctx.Err(); err != nil {
			return err
		}

		p.Update(e.cfg.Player.TickMs)

		for f := p.AudioFrame(); f != nil; f = p.AudioFrame() {
			if output == nil {
				continue
			}
			if !outputOpen {
				if err := output.Open(f.SampleRate, f.Channels); err != nil {
					e.log.Warn("Frame skipped: %v", err)
					output = nil
					continue
				}
				outputOpen = true
			}
			if err := output.Write(f); err != nil {
				e.log.Warn("Frame skipped: %v", err)
			}
		}

		if limit > 0 && p.Elapsed() >= limit {
			break
		}
	}

	e.log.Info("Played %.3fs of %.3fs", p.Elapsed(), m.Duration())
	return nil
}

func nativeCommand() *cli.Command {
	return &cli.Command{
		Name:      "native",
		Usage:     l10n.T("Decode the video track through the native library entry points"),
		ArgsUsage: "<file.mp4>",
		Action: func(c *cli.Context) error {
			path, err := inputArg(c)
			if err != nil {
				return err
			}
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.cancel()

			bridge := service.NewBridge(service.BridgeOptions{
				Library: e.cfg.ToLibraryOptions(),
				Logger:  e.log,
			})
			if err := bridge.Load(); err != nil {
				return err
			}
			if err := bridge.InitDecoder(); err != nil {
				return err
			}
			defer bridge.CleanupDecoder()

			f, err := osfilesystem.New().Open(path)
			if err != nil {
				return h264err.Wrap(h264err.FileOpenFailed, "native", err)
			}
			defer f.Close()

			dmx := mp4demuxer.New(e.log)
			if err := dmx.Open(f); err != nil {
				return h264err.Wrap(h264err.UnsupportedFormat, "native", err)
			}
			defer dmx.Close()

			track := -1
			for _, t := range dmx.Tracks() {
				if t.Type == ports.TrackVideo && t.Codec == ports.CodecH264 {
					track = t.TrackID
					break
				}
			}
			if track < 0 {
				return h264err.New(h264err.UnsupportedFormat, "native", "no H.264 video track")
			}

			sps, pps, err := dmx.ParameterSets(track)
			if err != nil {
				return err
			}
			if err := bridge.SendParameterSets(sps, pps); err != nil {
				return err
			}

			counts := map[int]int{}
			for {
				if err := e.ctx.Err(); err != nil {
					return err
				}
				s, err := dmx.ReadNextSample(track)
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}
				au := h264decoder.AVCCToAnnexB(s.Data)
				code := bridge.DecodeFrame(au, len(au))
				switch {
				case code > 0:
					counts[1]++
				case code == 0:
					counts[0]++
				default:
					counts[code]++
				}
			}

			fmt.Println(l10n.F("Pictures: %d, need more data: %d", counts[1], counts[0]))
			for code, n := range counts {
				if code < 0 {
					fmt.Println(l10n.F("Result %d (%s): %d", code, h264err.Code(-code), n))
				}
			}
			return bridge.CleanupDecoder()
		},
	}
}
