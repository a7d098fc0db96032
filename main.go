// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"beatscope/cmd"
	"beatscope/internal/analysis"
	"beatscope/internal/capture"
	"beatscope/internal/config"
	applog "beatscope/internal/log"
	"beatscope/internal/recording"
	"beatscope/internal/source"
	"beatscope/internal/stream"
	"beatscope/internal/transport"
	"beatscope/internal/transport/udp"
	"beatscope/internal/tui"
	"beatscope/pkg/build"

	tea "github.com/charmbracelet/bubbletea"
)

// tuiLogFile receives log output while the meter owns the terminal.
const tuiLogFile = "beatscope.log"

// main is the entry point for the analysis application.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and configuration
//   - Execute one-off commands if requested
//   - Open the audio source, engine and transports
//
// 2. Concurrent Phase (Hot Path):
//   - Stream chunks from the source through gate, recorder and engine
//   - Fan results out to the configured transports
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals or end of input
//   - Close the source, transports and recording
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds run without ldflags; the defaults stand in.
	buildErr := build.Initialize()

	// One thread for the analysis hot path, one for transports and UI.
	runtime.GOMAXPROCS(2)

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatalf("%v", err)
	}
	if opts.Command == "" {
		return
	}

	applog.Configure(opts.Config.LogLevel)
	if buildErr != nil {
		applog.Debugf("build: %v", buildErr)
	}
	applog.Infof("%s", build.GetBuildInfo())

	if opts.Command == cmd.CommandList {
		if err := listDevices(); err != nil {
			applog.Fatalf("list: %v", err)
		}
		return
	}

	if err := run(opts); err != nil {
		applog.Fatalf("%v", err)
	}
}

// listDevices handles the one-off device listing.
func listDevices() error {
	if err := capture.Initialize(); err != nil {
		return err
	}
	defer capture.Terminate()

	devices, err := capture.HostDevices()
	if err != nil {
		return err
	}
	capture.PrintDevices(os.Stdout, devices)
	return nil
}

func run(opts *cmd.Options) (err error) {
	cfg := opts.Config

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := openSource(cfg, opts.Pick)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, src.Close())
	}()

	// The source decides the stream shape: files use their header.
	audioCfg := src.Config()

	engineOpts, err := analysis.OptionsFromConfig(cfg.Analysis)
	if err != nil {
		return err
	}
	engine, err := analysis.NewEngine(audioCfg, engineOpts...)
	if err != nil {
		return err
	}

	var program *tea.Program
	if cfg.Transport.TUI {
		logFile, err := os.OpenFile(tuiLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening %s: %w", tuiLogFile, err)
		}
		defer logFile.Close()
		applog.SetOutput(logFile)
		defer applog.SetOutput(os.Stderr)

		title := fmt.Sprintf("%s %s · %d Hz", build.GetBuildInfo().Name, build.GetBuildInfo().Version, audioCfg.SampleRate)
		program = tea.NewProgram(tui.NewMeter(title), tea.WithAltScreen(), tea.WithContext(ctx))
	}

	out, err := openTransports(cfg.Transport, program)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	runnerOpts := []stream.Option{stream.WithTransport(out)}

	if cfg.Input.GateThreshold > 0 {
		runnerOpts = append(runnerOpts, stream.WithGate(stream.NewGate(cfg.Input.GateThreshold)))
	}

	if cfg.Recording.Enabled {
		path := cfg.Recording.Path
		if path == "" {
			path = recording.DefaultPath(time.Now().UTC())
		}
		rec, recErr := recording.Create(path, audioCfg.SampleRate)
		if recErr != nil {
			return recErr
		}
		defer func() {
			err = errors.Join(err, rec.Close())
			applog.Infof("Recording saved to: %s (%s)", rec.Path(), rec.Duration())
		}()
		runnerOpts = append(runnerOpts, stream.WithRecorder(rec))
	}

	runner, err := stream.NewRunner(engine, runnerOpts...)
	if err != nil {
		return err
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	chunks, err := src.Start(ctx)
	if err != nil {
		return err
	}

	if program == nil {
		_, err = runner.Run(ctx, chunks)
		// ==================== SHUTDOWN PHASE (Cold Path) ====================
		return errors.Join(err, src.Err())
	}

	// The meter owns the main goroutine; quitting it cancels the runner
	// and the end of input quits the meter.
	runCtx, cancel := context.WithCancel(ctx)
	var (
		wg     sync.WaitGroup
		runErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, runErr = runner.Run(runCtx, chunks)
		program.Quit()
	}()

	_, progErr := program.Run()
	cancel()
	wg.Wait()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================
	if progErr != nil && !errors.Is(progErr, tea.ErrProgramKilled) {
		runErr = errors.Join(runErr, fmt.Errorf("tui: %w", progErr))
	}
	return errors.Join(runErr, src.Err())
}

// openSource returns the file or microphone stream the configuration asks
// for. Capture initialises PortAudio; the returned Stream terminates it on
// Close.
func openSource(cfg *config.Config, pick bool) (source.Stream, error) {
	if cfg.Input.File != "" {
		return source.OpenWAV(cfg.Input.File, cfg.Audio.BufferSize, cfg.Input.Realtime)
	}

	if err := capture.Initialize(); err != nil {
		return nil, err
	}

	if pick {
		sel, err := tui.PickDevice(capture.HostDevices)
		if err != nil {
			capture.Terminate()
			return nil, err
		}
		cfg.Input.Device = sel.DeviceID
		cfg.Audio.SampleRate = sel.SampleRate
		applog.Infof("Selected device [%d] %s at %d Hz", sel.DeviceID, sel.Name, sel.SampleRate)
	}

	mic, err := capture.NewMicrophone(cfg.Audio, cfg.Input)
	if err != nil {
		capture.Terminate()
		return nil, err
	}
	return &portAudioStream{Microphone: mic}, nil
}

// portAudioStream ties the PortAudio lifetime to the microphone.
type portAudioStream struct {
	*capture.Microphone
}

func (s *portAudioStream) Close() error {
	delivered, dropped := s.Stats()
	applog.Infof("Capture: %d chunks delivered, %d dropped", delivered, dropped)
	return errors.Join(s.Microphone.Close(), capture.Terminate())
}

// openTransports builds the fan-out of every enabled transport. program
// may be nil.
func openTransports(cfg config.TransportConfig, program *tea.Program) (_ transport.Multi, err error) {
	var out transport.Multi
	defer func() {
		if err != nil {
			out.Close()
		}
	}()

	if cfg.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(cfg.WebSocketAddress)
		if err != nil {
			return nil, err
		}
		out = append(out, ws)
		applog.Infof("WebSocket: serving results at ws://%s%s", ws.Addr(), transport.WebSocketPath)
	}

	if cfg.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.UDPTargetAddress)
		if err != nil {
			return nil, err
		}
		publisher, err := udp.NewUDPPublisher(cfg.UDPSendInterval, sender)
		if err != nil {
			sender.Close()
			return nil, err
		}
		publisher.Start()
		out = append(out, publisher)
	}

	if cfg.LogResults {
		out = append(out, transport.NewLoggingTransport(applog.LevelDebug))
	}

	if program != nil {
		out = append(out, tui.NewProgramTransport(program))
	}

	if len(out) == 0 {
		// Without any sink results are summarised at info level.
		out = append(out, transport.NewLoggingTransport(applog.LevelInfo))
	}
	return out, nil
}
