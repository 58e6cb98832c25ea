package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	rpio "github.com/stianeikeland/go-rpio/v4"
	"gitlab.com/lologarithm/spa/climate"
	"gitlab.com/lologarithm/spa/panel"
	"gitlab.com/lologarithm/spa/sensor"
	"gitlab.com/lologarithm/spa/spa"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Printf("[Error] %s", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		listen  string
		cfg     Config
	)
	root := &cobra.Command{
		Use:           "spa",
		Short:         "Control a hot tub's set temperature from a web dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Printf("[Error] Failed to load .env: %s", err)
			}
			c, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if listen != "" {
				c.Listen = listen
			}
			cfg = c
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.json", "config file to load")
	root.PersistentFlags().StringVar(&listen, "listen", "", "host:port to serve on, overrides the config")
	root.AddCommand(serveCmd(&cfg), panelCmd(&cfg), demoCmd(&cfg), setCmd(&cfg))
	return root
}

func serveCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard, controlling the spa through the home automation host",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, store, err := connectHost(ctx, *cfg)
			if err != nil {
				return err
			}
			return newServer(ctx, *cfg, store, client, client).serve(ctx)
		},
	}
}

func panelCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "panel",
		Short: "Serve the dashboard, reading the display and pressing buttons through GPIO",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			store := spa.NewStore()

			if err := rpio.Open(); err != nil {
				log.Printf("Unable to open raspberry pi gpio pins: %s\n-----  Buttons will only be logged and no readings will be available.  -----", err)
				buttons := panel.Logged(slices.Collect(maps.Keys(cfg.buttonPins())), cfg.Panel.PressTime)
				return newServer(ctx, *cfg, store, store, buttons).serve(ctx)
			}

			buttons := panel.Open(cfg.buttonPins(), cfg.Panel.PressTime)
			srv := newServer(ctx, *cfg, store, store, buttons)
			cool := spa.Press(cfg.Buttons.Cool)
			display := watchDisplay(ctx, *cfg, store, func() {
				log.Printf("Set temperature not seen for %s, asking the panel to show it.", sensor.SetRefresh)
				go srv.ctrl.Press(ctx, cool)
			})
			err := srv.serve(ctx)

			// The pins are unmapped only once nothing can touch them.
			cancel()
			buttons.Stop()
			<-display
			if cerr := rpio.Close(); cerr != nil {
				log.Printf("[Error] Failed to close gpio: %s", cerr)
			}
			return err
		},
	}
}

func demoCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Serve the dashboard against a simulated spa",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store := spa.NewStore()
			f := newFakeSpa(*cfg, store)
			go f.run(ctx, 3*time.Second)
			return newServer(ctx, *cfg, store, f, f).serve(ctx)
		},
	}
}

func setCmd(cfg *Config) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "set <temp>",
		Short: "Set the spa temperature once and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid temperature %q: %w", args[0], err)
			}
			if err := spa.CheckTarget(target); err != nil {
				return err
			}
			ctx := cmd.Context()
			client, _, err := connectHost(ctx, *cfg)
			if err != nil {
				return err
			}
			if err := waitReadable(ctx, client, cfg.SetEntity, wait); err != nil {
				return err
			}
			ctrl := climate.NewController(client, client, cfg.request(), climate.Hooks{})
			res, _ := ctrl.ConvergeTo(ctx, target)
			if res.Outcome != spa.Reached {
				return errors.New(res.Message())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Spa set to %d\n", res.Target)
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to wait for the host before giving up")
	return cmd
}
