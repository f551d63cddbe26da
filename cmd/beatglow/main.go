package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"libdb.so/beatglow"
	"libdb.so/beatglow/capture"
	"libdb.so/beatglow/effect"
	"libdb.so/beatglow/internal/pipeline"
)

var (
	config      = "beatglow.toml"
	verbose     = false
	effectName  = ""
	listEffects = false
	listDevices = false
)

func init() {
	pflag.StringVarP(&config, "config", "c", config, "configuration file")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose output")
	pflag.StringVarP(&effectName, "effect", "e", effectName, "effect to run, overrides the configuration file")
	pflag.BoolVarP(&listEffects, "list-effects", "l", listEffects, "list the available effects and exit")
	pflag.BoolVar(&listDevices, "list-devices", listDevices, "list the audio input devices and exit")
}

func main() {
	pflag.Parse()

	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, pipeline.ErrNoDeviceFound) {
			fmt.Fprintln(os.Stderr, "\nTroubleshooting:")
			for _, hint := range pipeline.Troubleshooting {
				fmt.Fprintln(os.Stderr, "  -", hint)
			}
		}
		os.Exit(1)
	}
}

func run() error {
	if listEffects {
		printEffects(os.Stdout)
		return nil
	}

	cfg, err := readConfig()
	if err != nil {
		return err
	}

	if effectName != "" {
		cfg.Effect = effectName
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if listDevices {
		return printDevices(ctx, os.Stdout, cfg.Audio.Backend)
	}

	d, err := beatglow.NewDaemon(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("daemon failed: %w", err)
	}

	return nil
}

// readConfig reads the configuration file. A missing file is only an error
// if it was given explicitly.
func readConfig() (*beatglow.Config, error) {
	f, err := os.Open(config)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !pflag.CommandLine.Changed("config") {
			slog.Info("no configuration file found, using defaults", "path", config)
			return beatglow.DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	return beatglow.ParseConfig(f)
}

func printEffects(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	for _, def := range effect.All() {
		fmt.Fprintf(tw, "%s\t%s\n", def.Name, def.Description)
	}
}

func printDevices(ctx context.Context, w io.Writer, backendName string) error {
	backend, err := capture.Lookup(backendName)
	if err != nil {
		return err
	}

	devices, err := backend.Devices(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", pipeline.ErrDeviceEnumeration, err)
	}

	// Loopback candidates first.
	sort.SliceStable(devices, func(i, j int) bool {
		return pipeline.IsLoopbackCandidate(devices[i]) && !pipeline.IsLoopbackCandidate(devices[j])
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "INDEX\tNAME\tCHANNELS\tRATE\tFLAGS")
	for _, d := range devices {
		var flags string
		if d.Default {
			flags += "default "
		}
		if pipeline.IsLoopbackCandidate(d) {
			flags += "loopback"
		}
		rate := "-"
		if d.DefaultSampleRate > 0 {
			rate = fmt.Sprintf("%.0f", d.DefaultSampleRate)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n",
			d.Index, d.DisplayName(), d.InputChannels, rate, flags)
	}

	return nil
}
