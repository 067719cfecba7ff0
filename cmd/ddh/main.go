package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/golang/geo/r2"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/ddh/internal/config"
	"github.com/cjeanneret/ddh/internal/debug"
	"github.com/cjeanneret/ddh/internal/logic/geometry"
	"github.com/cjeanneret/ddh/internal/logic/gesture"
	"github.com/cjeanneret/ddh/internal/logic/motion"
	"github.com/cjeanneret/ddh/internal/telemetry"
	"github.com/cjeanneret/ddh/internal/web"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatalf("ddh: %v", err)
	}
}

// app carries what the Before hook loads to every command.
type app struct {
	cfg     *config.Config
	cfgPath string
	out     io.Writer
}

func newApp() *cli.App {
	a := &app{}
	port := &webPortFlag{val: 8080, defaultPort: 8080}

	holdFlag := func() cli.Flag {
		return &cli.DurationFlag{
			Name:  "hold",
			Value: 2 * time.Second,
			Usage: "keep the hand armed for `DURATION` after the move (0 = release at once)",
		}
	}

	return &cli.App{
		Name:  "ddh",
		Usage: "drive the two-finger direct-drive hand",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   filepath.Join("configs", "default.yaml"),
				Usage:   "load configuration from `FILE`",
			},
			&cli.IntFlag{
				Name:  "debug",
				Usage: "override defaults.debug_level (0-4)",
			},
		},
		Before: a.load,
		After: func(*cli.Context) error {
			debug.Sync()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the web interface and telemetry stream",
				Flags: []cli.Flag{
					&cli.GenericFlag{Name: "web", Value: port, Usage: "listen on `PORT`"},
				},
				Action: func(c *cli.Context) error { return a.serve(c.Context, port.port()) },
			},
			{
				Name:  "pose",
				Usage: "print actuator readings and finger poses as JSON",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "stream samples at telemetry_hz until interrupted"},
				},
				Action: a.pose,
			},
			{
				Name:  "move",
				Usage: "arm and move one finger",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "side", Aliases: []string{"s"}, Required: true, Usage: "finger `SIDE` (L or R)"},
					&cli.Float64SliceFlag{Name: "a1a2", Usage: "joint angles `A1,A2` in degrees"},
					&cli.Float64SliceFlag{Name: "point", Usage: "distal joint target `X,Y`"},
					&cli.Float64SliceFlag{Name: "tip", Usage: "fingertip target `X,Y`"},
					&cli.Float64SliceFlag{Name: "a1phi", Usage: "yaw and surface angle `A1,PHI` in degrees"},
					holdFlag(),
				},
				Action: a.move,
			},
			{
				Name:  "jaw",
				Usage: "arm and move both fingers to a parallel jaw pose",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "angle", Usage: "jaw opening `ANGLE` in degrees"},
					&cli.Float64Flag{Name: "phi", Usage: "contact surface angle `PHI` in degrees"},
					holdFlag(),
				},
				Action: a.jaw,
			},
			{
				Name:   "dance",
				Usage:  "arm and play the startup dance",
				Action: a.dance,
			},
			{
				Name:  "gains",
				Usage: "set controller gains on the selected fingers",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "select", Value: "LR", Usage: "fingers to update (L, R or LR)"},
					&cli.Float64Flag{Name: "stiffness", Usage: "position gain"},
					&cli.Float64Flag{Name: "vel-gain", Usage: "velocity gain"},
					&cli.Float64Flag{Name: "bandwidth", Usage: "setpoint filter bandwidth"},
				},
				Action: a.gains,
			},
			{
				Name:   "disarm",
				Usage:  "idle every actuator and cut motor power",
				Action: a.disarm,
			},
		},
	}
}

// load validates and reads the config file and initializes logging.
func (a *app) load(c *cli.Context) error {
	a.out = c.App.Writer
	a.cfgPath = c.String("config")
	if err := config.ValidateConfigPath(a.cfgPath); err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	if c.IsSet("debug") {
		lvl := c.Int("debug")
		if lvl < debug.LevelOff || lvl > debug.LevelTrace {
			return fmt.Errorf("debug must be between 0 and 4, got %d", lvl)
		}
		cfg.Defaults.DebugLevel = lvl
	}
	a.cfg = cfg

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", a.cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Mock driver", cfg.Defaults.MockDriver)
	debug.PrintStruct("Geometry", cfg.Geometry)
	return nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	return enc.Encode(v)
}

// withHand opens the hardware, runs fn and releases everything. The hand is
// left disarmed.
func (a *app) withHand(fn func(h *motion.Hand) error) (err error) {
	h, err := openHand(a.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			debug.Error(cerr)
			if err == nil {
				err = cerr
			}
		}
	}()
	return fn(h)
}

func (a *app) arm(h *motion.Hand) error {
	debug.PrintStruct("Gains", a.cfg.Gains)
	return h.Arm(a.cfg.Gains)
}

// hold waits d or until ctx is done.
func hold(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	debug.Live("Holding pose for %v", d)
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (a *app) serve(ctx context.Context, port int) error {
	return a.withHand(func(h *motion.Hand) error {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		defer debug.SetOutput(os.Stdout)

		srv, err := web.NewServer(fmt.Sprintf(":%d", port), h, broadcaster, a.cfg.Gains)
		if err != nil {
			return err
		}

		streamer := telemetry.NewStreamer(h, a.cfg.TelemetryPeriod(), func(s telemetry.Sample) {
			broadcaster.BroadcastData("telemetry", s)
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(gctx) })
		g.Go(func() error {
			if err := streamer.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		return g.Wait()
	})
}

func (a *app) pose(c *cli.Context) error {
	return a.withHand(func(h *motion.Hand) error {
		if !c.Bool("watch") {
			s := telemetry.NewStreamer(h, a.cfg.TelemetryPeriod(), nil).Sample()
			if err := a.print(s); err != nil {
				return err
			}
			if s.Err != "" {
				return errors.New(s.Err)
			}
			return nil
		}
		var printErr error
		streamer := telemetry.NewStreamer(h, a.cfg.TelemetryPeriod(), func(s telemetry.Sample) {
			if printErr == nil {
				printErr = a.print(s)
			}
		})
		if err := streamer.Run(c.Context); !errors.Is(err, context.Canceled) {
			return err
		}
		return printErr
	})
}

func (a *app) move(c *cli.Context) error {
	side, err := geometry.ParseSide(c.String("side"))
	if err != nil {
		return err
	}
	mode, u, v, err := moveTarget(map[string][]float64{
		"a1a2":  c.Float64Slice("a1a2"),
		"point": c.Float64Slice("point"),
		"tip":   c.Float64Slice("tip"),
		"a1phi": c.Float64Slice("a1phi"),
	})
	if err != nil {
		return err
	}
	// Reject unreachable tips before touching the hardware.
	if mode == "tip" {
		if _, err := a.cfg.FingerGeometry().IKTip(side, r2.Point{X: u, Y: v}); err != nil {
			return err
		}
	}

	return a.withHand(func(h *motion.Hand) error {
		if err := a.arm(h); err != nil {
			return err
		}
		var pose motion.FingerPose
		err := h.Do(side, func(f *motion.Finger) error {
			if err := f.Move(mode, u, v); err != nil {
				return err
			}
			var err error
			pose, err = f.Pose()
			return err
		})
		if err != nil {
			return err
		}
		if err := a.print(pose); err != nil {
			return err
		}
		hold(c.Context, c.Duration("hold"))
		return nil
	})
}

func (a *app) jaw(c *cli.Context) error {
	angle, phi := c.Float64("angle"), c.Float64("phi")
	if err := checkFinite("angle", angle); err != nil {
		return err
	}
	if err := checkFinite("phi", phi); err != nil {
		return err
	}
	return a.withHand(func(h *motion.Hand) error {
		if err := a.arm(h); err != nil {
			return err
		}
		if err := h.SetParallelJaw(angle, phi); err != nil {
			return err
		}
		pose, err := h.Pose()
		if err != nil {
			return err
		}
		if err := a.print(pose); err != nil {
			return err
		}
		hold(c.Context, c.Duration("hold"))
		return nil
	})
}

func (a *app) dance(c *cli.Context) error {
	return a.withHand(func(h *motion.Hand) error {
		if err := a.arm(h); err != nil {
			return err
		}
		seq := gesture.StartupDance()
		seq.OnStep = func(i, n int, s gesture.Step) {
			fmt.Fprintf(a.out, "[%d/%d] %s\n", i, n, s.Name)
		}
		err := seq.Run(c.Context, h)
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(a.out, "dance interrupted")
			return nil
		}
		return err
	})
}

func (a *app) gains(c *cli.Context) error {
	sel, err := motion.ParseSelection(c.String("select"))
	if err != nil {
		return err
	}
	type setter struct {
		flag string
		set  func(motion.Selection, float64) error
	}
	return a.withHand(func(h *motion.Hand) error {
		applied := 0
		for _, s := range []setter{
			{"stiffness", h.SetStiffness},
			{"vel-gain", h.SetVelGain},
			{"bandwidth", h.SetBandwidth},
		} {
			if !c.IsSet(s.flag) {
				continue
			}
			v := c.Float64(s.flag)
			if err := checkFinite(s.flag, v); err != nil {
				return err
			}
			if v <= 0 {
				return fmt.Errorf("%s must be > 0, got %g", s.flag, v)
			}
			if err := s.set(sel, v); err != nil {
				return err
			}
			applied++
		}
		if applied == 0 {
			return errors.New("nothing to set: pass --stiffness, --vel-gain or --bandwidth")
		}
		return nil
	})
}

func (a *app) disarm(c *cli.Context) error {
	return a.withHand(func(h *motion.Hand) error {
		if err := h.Disarm(); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "disarmed")
		return nil
	})
}
