// Command kloak-v2 runs the anti-fingerprinting input obfuscation
// daemon: it grabs physical input devices exclusively, drives an
// on-screen crosshair, and re-emits events to the compositor through
// virtual input devices with randomized, bounded delay.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ArrayBolt3/kloak-v2/app/internal/evdevio"
	"github.com/ArrayBolt3/kloak-v2/app/internal/pipeline"
	"github.com/ArrayBolt3/kloak-v2/app/internal/waylandio"
	"github.com/ArrayBolt3/kloak-v2/internal/config"
	"github.com/ArrayBolt3/kloak-v2/internal/errs"
)

var (
	flagConfigPath string
	flagMaxDelayMS int
)

func main() {
	root := &cobra.Command{
		Use:          "kloak-v2",
		Short:        "Anti-fingerprinting input obfuscation daemon for Wayland",
		SilenceUsage: true,
		RunE:         run,
	}
	root.Flags().StringVar(&flagConfigPath, "config", "", "path to kloak.toml (overrides the default search path)")
	root.Flags().IntVar(&flagMaxDelayMS, "max-delay-ms", 0, "override DEFAULT_MAX_DELAY_MS (0 = use config/default)")
	root.Version = "2.0.0"

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := log.New(os.Stderr)
	logger.SetLevel(log.InfoLevel)

	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		logger.Fatal("loading configuration", "err", err)
	}
	if flagMaxDelayMS > 0 {
		cfg.MaxDelayMS = flagMaxDelayMS
		cfg.MaxDelay = time.Duration(flagMaxDelayMS) * time.Millisecond
	}

	conn, err := waylandio.Dial(cfg.SeatName)
	if err != nil {
		logger.Fatal("connecting to compositor", "err", err)
	}
	defer conn.Close()

	input, err := evdevio.Open()
	if err != nil {
		logger.Fatal("opening physical input devices", "err", err)
	}
	defer input.Close()

	eng := pipeline.New(conn, input, cfg.CursorRadius, cfg.CursorColor, cfg.MaxDelay, logger)

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		close(stop)
	}()

	logger.Info("kloak-v2 running",
		"max_delay_ms", cfg.MaxDelayMS,
		"cursor_radius", cfg.CursorRadius,
		"poll_timeout_ms", cfg.PollTimeoutMS,
	)

	if err := eng.Run(stop, cfg.PollTimeout); err != nil {
		kind := errs.Classify(err)
		logger.Fatal("fatal pipeline error", "kind", kind.String(), "err", err)
	}
	return nil
}
