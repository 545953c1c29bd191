package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

const statusBroadcastInterval = 100 * time.Millisecond

func printVersion() {
	fmt.Printf("OttoPi v%s\n", version)
	fmt.Println("Four-servo biped walking robot daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  ottopi [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Drives the robot's servos, runs gaits and gestures on request and,")
	fmt.Println("  when the autopilot is engaged, walks around obstacles using a")
	fmt.Println("  time-of-flight ranging sensor.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file (defaults are used when empty)")
	fmt.Println()
	fmt.Println("  -servo-driver string")
	fmt.Println("        Pulse backend: pigpiod, rpio, feetech, null (default \"pigpiod\")")
	fmt.Println()
	fmt.Println("  -pigpiod-addr string")
	fmt.Printf("        pigpiod socket address (default %q)\n", defaultPigpiodURL)
	fmt.Println()
	fmt.Println("  -calibration-file string")
	fmt.Println("        Pin map and home pulse file (default \"~/.ottopi/calibration.yaml\")")
	fmt.Println()
	fmt.Println("  -auto")
	fmt.Println("        Start with the autopilot enabled (waits for the ready gesture)")
	fmt.Println()
	fmt.Println("  -sensor string")
	fmt.Println("        Ranging sensor: vl53l0x, none (default \"vl53l0x\")")
	fmt.Println()
	fmt.Println("  -tcp-port int")
	fmt.Printf("        Line/key protocol port, 0 disables (default %d)\n", defaultTCPPort)
	fmt.Println()
	fmt.Println("  -http-port int")
	fmt.Printf("        Web UI and websocket port, 0 disables (default %d)\n", defaultHTTPPort)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultIPCSocket)
	fmt.Println()
	fmt.Println("  -input-device string")
	fmt.Println("        Linux input event device for a keyboard or remote (e.g. /dev/input/event0)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Run on the robot with the autopilot armed")
	fmt.Println("  ottopi -config /etc/ottopi.yaml -auto")
	fmt.Println()
	fmt.Println("  # Dry run on a laptop without servos or sensor")
	fmt.Println("  ottopi -servo-driver null -sensor none -log-level debug")
	fmt.Println()
	fmt.Println("  # Drive it")
	fmt.Println("  telnet ottopi.local 12345")
	fmt.Println("  ottopi-ctl send forward 4")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath = flag.String("config", "", "YAML config file")

		servoDriver     = flag.String("servo-driver", "", "Pulse backend: pigpiod, rpio, feetech, null")
		pigpiodAddr     = flag.String("pigpiod-addr", "", "pigpiod socket address")
		calibrationFile = flag.String("calibration-file", "", "Pin map and home pulse file")

		autoEnabled = flag.Bool("auto", false, "Start with the autopilot enabled")
		autoSensor  = flag.String("sensor", "", "Ranging sensor: vl53l0x, none")

		tcpPort       = flag.Int("tcp-port", 0, "Line/key protocol port, 0 disables")
		httpPort      = flag.Int("http-port", 0, "Web UI and websocket port, 0 disables")
		ipcSocketPath = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		inputDevice   = flag.String("input-device", "", "Linux input event device")

		logLevelStr = flag.String("log-level", "", "Log level: error, warn, info, debug")
		_           = flag.Bool("version", false, "Print version and exit")
		_           = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}

	// Only flags given on the command line override the file.
	var ov FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "servo-driver":
			ov.ServoDriver = servoDriver
		case "pigpiod-addr":
			ov.PigpiodAddr = pigpiodAddr
		case "calibration-file":
			ov.CalibrationFile = calibrationFile
		case "auto":
			ov.AutoEnabled = autoEnabled
		case "sensor":
			ov.AutoSensor = autoSensor
		case "tcp-port":
			ov.TCPPort = tcpPort
		case "http-port":
			ov.HTTPPort = httpPort
		case "ipc-socket":
			ov.IPCSocketPath = ipcSocketPath
		case "input-device":
			ov.InputDevice = inputDevice
		case "log-level":
			ov.LogLevel = logLevelStr
		}
	})
	ov.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logFormat, err := parseLogFormat(cfg.Logging.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(os.Stdout, logLevel, logFormat)

	if err := run(cfg, logger); err != nil {
		logger.Error("ottopi stopped with error", "error", err)
		os.Exit(1)
	}
}

// run builds the robot, serves every front-end until a signal arrives, then
// parks the robot.
func run(cfg Config, logger *slog.Logger) error {
	cal, err := LoadCalibration(cfg.Calibration.File)
	if err != nil {
		return err
	}
	pins := cal.PinMap()

	driver, err := NewPulseDriver(cfg.Servo, pins, logger)
	if err != nil {
		return fmt.Errorf("open servo driver: %w", err)
	}
	defer driver.Close()

	bank := NewActuatorBank(driver, pins, cal.HomePulses(), cfg.ToBankConfig(), logger)
	if err := bank.Home(0, false); err != nil {
		return fmt.Errorf("move to home: %w", err)
	}

	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	gaits := NewGaitLibrary(bank, cal, rng, logger)
	sup := NewSupervisor(gaits, bank, logger)

	sensor, err := NewRangingSensor(cfg.Autopilot, logger)
	if err != nil {
		logger.Warn("ranging sensor unavailable, autopilot will read far", "sensor", cfg.Autopilot.Sensor, "error", err)
		sensor = NoSensor{}
	}
	defer sensor.Close()

	mode, _ := parseRangingMode(cfg.Autopilot.Mode) // checked by Validate
	auto := NewAutopilot(sensor, sup, cfg.ToAutopilotParams(), mode, nil, logger)
	if err := auto.Start(); err != nil {
		logger.Warn("autopilot not started", "error", err)
	} else if cfg.Autopilot.Enabled {
		if err := auto.Send(ControlEnable); err != nil {
			logger.Warn("autopilot enable failed", "error", err)
		}
	}

	ctrl := NewController(sup, bank, auto, logger)

	logger.Debug("configuration",
		"servo_driver", cfg.Servo.Driver,
		"calibration_file", cal.Path(),
		"pins", pins,
		"home", cal.HomePulses(),
		"sensor", cfg.Autopilot.Sensor,
		"ranging_mode", mode,
		"autopilot_enabled", cfg.Autopilot.Enabled)
	logger.Info("listening",
		"tcp_port", cfg.Server.TCPPort,
		"http_port", cfg.HTTP.Port,
		"ipc", cfg.IPC.SocketPath,
		"input", cfg.Input.Devices)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.TCPPort > 0 {
		addr := fmt.Sprintf(":%d", cfg.Server.TCPPort)
		tcpLogger := componentLogger(logger, "tcp")
		g.Go(func() error { return runTCPServer(gctx, addr, ctrl, tcpLogger) })
	}

	ipcLogger := componentLogger(logger, "ipc")
	g.Go(func() error { return runIPCServer(gctx, cfg.IPC.SocketPath, ctrl, ipcLogger) })

	if cfg.HTTP.Port > 0 {
		ws := NewStateServer(logger, ctrl, StateServerConfig{})
		httpLogger := componentLogger(logger, "http")
		g.Go(func() error { ws.Run(gctx); return nil })
		g.Go(func() error {
			RunStatusBroadcaster(gctx, ws.Hub(), ctrl.Status, statusBroadcastInterval, httpLogger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.HTTP.Port, newHTTPHandler(ctrl, ws, httpLogger), httpLogger)
		})
	}

	if len(cfg.Input.Devices) > 0 {
		inputLogger := componentLogger(logger, "input")
		g.Go(func() error {
			// Losing the keyboard must not take the network front-ends down.
			if err := runInput(gctx, cfg.Input.Devices, ctrl, inputLogger); err != nil {
				inputLogger.Error("input stopped", "error", err)
			}
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		logger.Error("front-end failed, shutting down", "error", err)
	} else {
		logger.Info("shutting down")
	}

	return errors.Join(err, auto.End(), sup.End())
}
