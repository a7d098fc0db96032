// SPDX-License-Identifier: MIT
//
// Package cmd parses the command line into a validated configuration.
package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"beatscope/internal/config"
	"beatscope/pkg/build"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Commands selected by ParseArgs. An empty Command means cobra already
// handled the invocation (help or version) and there is nothing to run.
const (
	CommandRun     = "run"
	CommandAnalyze = "analyze"
	CommandList    = "list"
)

// Options is the parsed invocation.
type Options struct {
	Command string
	Config  *config.Config
	Pick    bool // Choose the capture device interactively first.
}

// flagValues mirrors the configuration keys exposed as flags. Only flags
// the user actually set are copied over the loaded configuration.
type flagValues struct {
	configPath string

	sampleRate int
	bufferSize int
	channels   int
	device     int
	lowLatency bool
	realtime   bool
	gate       float64

	extended bool
	flux     string
	window   string

	ws          bool
	wsAddr      string
	udp         bool
	udpTarget   string
	udpInterval time.Duration
	logResults  bool
	tui         bool

	record bool
	output string

	verbose  bool
	logLevel string
}

// ParseArgs parses args (without the program name).
func ParseArgs(args []string) (*Options, error) {
	return parse(args, os.Stdout)
}

func parse(args []string, out io.Writer) (*Options, error) {
	buildInfo := build.GetBuildInfo()
	options := &Options{}
	var fv flagValues

	// finish loads the configuration file and applies the flags the user
	// set on top of it.
	finish := func(cmd *cobra.Command, command, file string) error {
		cfg, err := config.LoadConfig(fv.configPath)
		if err != nil {
			return err
		}
		fv.apply(cmd.Flags(), cfg)
		if file != "" {
			cfg.Input.File = file
		}
		if command == CommandList {
			cfg.Input.File = ""
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		options.Command = command
		options.Config = cfg
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := finish(cmd, CommandRun, ""); err != nil {
				return err
			}
			if options.Config.Input.File != "" {
				options.Command = CommandAnalyze
			}
			return nil
		},
	}
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	rootCmd.Flags().BoolVarP(&options.Pick, "pick", "p", false,
		"Choose the input device and sample rate interactively")

	analyzeCmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Analyse a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return finish(cmd, CommandAnalyze, args[0])
		},
	}
	analyzeCmd.Flags().BoolVar(&fv.realtime, "realtime", false,
		"Pace chunks at the rate the file would play back")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return finish(cmd, CommandList, "")
		},
	}
	rootCmd.AddCommand(analyzeCmd, listCmd)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&fv.configPath, "config", "",
		"Path to a YAML config file (default: ./beatscope.yaml or ./config.yaml)")

	// Audio Configuration
	flags.IntVarP(&fv.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz); files use their header rate")
	flags.IntVarP(&fv.bufferSize, "buffer-size", "b", config.DefaultBufferSize,
		"Samples per analysed chunk")
	flags.IntVarP(&fv.channels, "channels", "c", config.DefaultChannels,
		"Number of channels to capture before the mono downmix")

	// Input Configuration
	flags.IntVarP(&fv.device, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	flags.BoolVarP(&fv.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")
	flags.Float64Var(&fv.gate, "gate", 0,
		"Noise gate peak threshold in [0,1], 0 disables")

	// Analysis Configuration
	flags.BoolVarP(&fv.extended, "extended", "x", false,
		"Compute spectral descriptors and instrument confidences")
	flags.StringVar(&fv.flux, "flux", config.DefaultFluxMode,
		"Spectral flux mode: sum or delta")
	flags.StringVar(&fv.window, "window", config.DefaultWindow,
		"FFT window: hann, hamming, blackman, rectangular, ...")

	// Transport Configuration
	flags.BoolVar(&fv.ws, "ws", false, "Broadcast results to WebSocket clients")
	flags.StringVar(&fv.wsAddr, "ws-addr", config.DefaultWebSocketAddress, "WebSocket listen address")
	flags.BoolVar(&fv.udp, "udp", false, "Publish compact results over UDP")
	flags.StringVar(&fv.udpTarget, "udp-target", config.DefaultUDPTarget, "UDP target host:port")
	flags.DurationVar(&fv.udpInterval, "udp-interval", config.DefaultUDPSendInterval, "UDP publish interval")
	flags.BoolVar(&fv.logResults, "log-results", false, "Log a summary of every result")
	flags.BoolVarP(&fv.tui, "tui", "t", false, "Show the live meter")

	// Recording Configuration
	flags.BoolVarP(&fv.record, "record", "r", false,
		"Record the analysed stream to a WAV file")
	flags.StringVarP(&fv.output, "output", "o", "",
		"Output file name. Default is recording-DD-MM-YYYY-HHMMSS.wav")

	// Debug Configuration
	flags.BoolVarP(&fv.verbose, "verbose", "v", false, "Show verbose output (debug logging)")
	flags.StringVar(&fv.logLevel, "log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}

// apply copies every flag the user set onto cfg.
func (fv *flagValues) apply(flags *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, fn func()) {
		if flags.Changed(name) {
			fn()
		}
	}

	set("sample-rate", func() { cfg.Audio.SampleRate = fv.sampleRate })
	set("buffer-size", func() { cfg.Audio.BufferSize = fv.bufferSize })
	set("channels", func() { cfg.Audio.Channels = fv.channels })

	set("device", func() { cfg.Input.Device = fv.device })
	set("low-latency", func() { cfg.Input.LowLatency = fv.lowLatency })
	set("realtime", func() { cfg.Input.Realtime = fv.realtime })
	set("gate", func() { cfg.Input.GateThreshold = fv.gate })

	set("extended", func() { cfg.Analysis.Extended = fv.extended })
	set("flux", func() { cfg.Analysis.FluxMode = fv.flux })
	set("window", func() { cfg.Analysis.Window = fv.window })

	set("ws", func() { cfg.Transport.WebSocketEnabled = fv.ws })
	set("ws-addr", func() { cfg.Transport.WebSocketAddress = fv.wsAddr })
	set("udp", func() { cfg.Transport.UDPEnabled = fv.udp })
	set("udp-target", func() { cfg.Transport.UDPTargetAddress = fv.udpTarget })
	set("udp-interval", func() { cfg.Transport.UDPSendInterval = fv.udpInterval })
	set("log-results", func() { cfg.Transport.LogResults = fv.logResults })
	set("tui", func() { cfg.Transport.TUI = fv.tui })

	set("record", func() { cfg.Recording.Enabled = fv.record })
	set("output", func() {
		cfg.Recording.Path = fv.output
		cfg.Recording.Enabled = true
	})

	set("log-level", func() { cfg.LogLevel = fv.logLevel })
	if fv.verbose {
		cfg.LogLevel = "debug"
	}
}
