package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/ayusman/kitchenwatch/internal/alert"
	"github.com/ayusman/kitchenwatch/internal/app"
	"github.com/ayusman/kitchenwatch/internal/capture"
	"github.com/ayusman/kitchenwatch/internal/config"
	"github.com/ayusman/kitchenwatch/internal/detector"
	"github.com/ayusman/kitchenwatch/internal/hook"
	"github.com/ayusman/kitchenwatch/internal/logging"
	"github.com/ayusman/kitchenwatch/internal/metrics"
	"github.com/ayusman/kitchenwatch/internal/notify"
	"github.com/ayusman/kitchenwatch/internal/render"
	"github.com/ayusman/kitchenwatch/internal/server"
	"github.com/ayusman/kitchenwatch/internal/store"
	"github.com/ayusman/kitchenwatch/internal/tray"
)

func main() {
	cfg, err := config.Parse("kitchenwatch", os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "kitchenwatch: %v\n", err)
		os.Exit(1)
	}

	if _, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "kitchenwatch: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("kitchenwatch failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Configuration errors: everything below fails before the first frame.
	var labels []string
	if cfg.Labels != "" {
		l, err := detector.LoadLabels(cfg.Labels)
		if err != nil {
			return err
		}
		labels = l
	}

	det, err := detector.NewObjectDetector(cfg.DetectorConfig(labels))
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer det.Close()

	src, err := capture.Open(cfg.Input)
	if err != nil {
		return err
	}
	defer src.Close()

	gate := capture.NewMotionDetector(cfg.MotionGateConfig())
	defer gate.Close()

	slog.Info("kitchenwatch starting",
		"model", cfg.Model,
		"input", cfg.Input,
		"device", cfg.Device,
		"prob_threshold", cfg.ProbThreshold,
		"movement_threshold", cfg.Motion.MovementThreshold,
		"rearm_after", cfg.Alert.RearmAfter,
	)

	var st *store.Store
	if cfg.EventDB != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.EventDB), 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
		st, err = store.New(cfg.EventDB)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer st.Close()
	}

	// Notifiers are built before the machine they acknowledge.
	var machine *alert.Machine
	ack := func() { machine.Acknowledge() }

	notifiers := alert.Fanout{alert.LogNotifier{}}
	var listeners []alert.Listener

	m := metrics.New()
	listeners = append(listeners, m)

	if st != nil {
		listeners = append(listeners, store.NewRecorder(st))
	}

	if cfg.Hooks.Dir != "" {
		mgr := hook.NewManager(cfg.Hooks.Dir)
		if err := mgr.Discover(); err != nil {
			return fmt.Errorf("discover hooks: %w", err)
		}
		slog.Info("hooks loaded", "dir", cfg.Hooks.Dir, "count", len(mgr.List()))
		hooks := hook.NewNotifier(mgr, hook.NewExecutor(cfg.Hooks.Timeout), ack)
		defer hooks.Close()
		notifiers = append(notifiers, hooks)
		listeners = append(listeners, hooks)
	}

	if cfg.MQTT.Broker != "" {
		mq := notify.NewMQTTNotifier(notify.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      byte(cfg.MQTT.QoS),
		}, ack)
		// The broker may come up later; paho keeps retrying in the background.
		if err := mq.Connect(ctx); err != nil {
			slog.Warn("mqtt connect failed", "broker", cfg.MQTT.Broker, "err", err)
		}
		defer mq.Disconnect()
		notifiers = append(notifiers, mq)
		listeners = append(listeners, mq)
	}

	var tr *tray.Tray
	if cfg.Tray {
		enabled := true
		if st != nil {
			enabled = st.Settings().GetBool(store.SettingDetectionEnabled, true)
		}
		tr = tray.New(enabled)
		tr.OnShow(ack)
		notifiers = append(notifiers, tr)
		listeners = append(listeners, tr)
	}

	machine = alert.NewMachine(notifiers, cfg.AlertPolicy(), listeners...)

	appCfg := app.Config{
		Source:   src,
		Motion:   gate,
		Detector: det,
		Alerts:   machine,
		Metrics:  m,
		Banner:   cfg.Alert.Banner,
		Debug:    cfg.Debug,
	}
	if st != nil {
		appCfg.Settings = st.Settings()
	}
	if cfg.Output != "" {
		w := capture.NewWriter(cfg.Output, src.FPS())
		defer w.Close()
		appCfg.Writer = w
	}
	if !cfg.NoShow {
		display := render.NewDisplay()
		defer display.Close()
		appCfg.Display = display
	}

	var hub *server.FrameHub
	if cfg.HTTP.Addr != "" {
		hub = server.NewFrameHub()
		appCfg.Frames = hub
	}

	a, err := app.New(appCfg)
	if err != nil {
		return err
	}

	if cfg.HTTP.Addr != "" {
		events := server.NewEventsHandler(machine.Status)
		machine.AddListener(events)

		staticDir := cfg.HTTP.StaticDir
		if staticDir == "" {
			staticDir = findWebDir()
		}
		srv := server.New(server.Config{
			StaticDir: staticDir,
			Store:     st,
			Alerts:    machine,
			Detection: a,
			Frames:    hub,
			StreamFPS: cfg.HTTP.StreamFPS,
			Events:    events,
			Metrics:   m.Handler(),
		})
		go func() {
			if err := srv.Serve(ctx, cfg.HTTP.Addr); err != nil {
				slog.Error("http server stopped", "err", err)
			}
		}()
	}

	if tr == nil {
		return a.Run(ctx)
	}

	// The tray loop owns the main thread; the frame loop runs beside it.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tr.OnToggle(a.SetEnabled)
	tr.OnQuit(cancel)
	if cfg.HTTP.Addr != "" {
		tr.OnDashboard(func() { openBrowser(dashboardURL(cfg.HTTP.Addr)) })
	}

	errCh := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		errCh <- a.Run(ctx)
		tr.Quit()
	}()
	go func() {
		<-ctx.Done()
		tr.Quit()
	}()

	tr.Run()
	cancel()
	return <-errCh
}

// dashboardURL turns a listen address such as ":8080" into a browsable URL.
func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		slog.Warn("failed to open browser", "url", url, "err", err)
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.kitchenwatch/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".kitchenwatch", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
