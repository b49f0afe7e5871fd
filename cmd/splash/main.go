// Command splash is the single entry point for both roles: by default it
// runs as World, the master coordinator; passed -c/--child <name> it runs
// as that named Scene instead (spec.md §6.4).
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"

	"github.com/paperManu/splash/internal/xdebug"
	"github.com/paperManu/splash/internal/xlog"
	"github.com/paperManu/splash/link"
	"github.com/paperManu/splash/render"
	"github.com/paperManu/splash/root"
	"github.com/paperManu/splash/scene"
	"github.com/paperManu/splash/stats"
	"github.com/paperManu/splash/transport"
	"github.com/paperManu/splash/value"
	"github.com/paperManu/splash/world"
)

// version is overwritten at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "splash"
	app.Usage = "distributed, multi-process video-mapping engine"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "o", Usage: "load configuration file `FILE`"},
		cli.StringFlag{Name: "c, child", Usage: "run as child Scene named `NAME`"},
		cli.BoolFlag{Name: "d", Usage: "verbose debug logs"},
		cli.BoolFlag{Name: "s", Usage: "silent"},
		cli.BoolFlag{Name: "t", Usage: "timing stats"},
		cli.StringFlag{Name: "p", Usage: "socket `PREFIX`"},
		cli.StringFlag{Name: "P", Usage: "attach a Python script at `PATH` (registered as a controller object, never interpreted)"},
		cli.BoolFlag{Name: "H", Usage: "hide windows"},
		cli.BoolFlag{Name: "x", Usage: "do not spawn subprocesses"},
		cli.BoolFlag{Name: "l", Usage: "log to files under /var/log (glog file naming, not a single splash.log)"},
		cli.StringFlag{Name: "metrics-port", Usage: "serve Prometheus /metrics on `PORT` (ambient, empty disables)"},
		cli.Float64Flag{Name: "frame-rate", Usage: "step-loop frame rate", Value: 0},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		xlog.Errorf("splash: %v", err)
		xlog.Flush()
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	configureLogging(c)

	ctx := root.Context{
		SocketPrefix: c.String("p"),
		ChannelKind:  transport.KindSharedMemory,
		ChildName:    c.String("c"),
		FrameRate:    c.Float64("frame-rate"),
	}
	if ctx.SocketPrefix == "" {
		ctx.SocketPrefix = fmt.Sprintf("%d", os.Getpid())
	}

	reg := prometheus.NewRegistry()
	metrics := stats.NewCollector(reg)
	if port := c.String("metrics-port"); port != "" {
		go serveMetrics(reg, port)
	}

	stop := make(chan struct{})
	go waitForSignal(stop)

	if ctx.IsChild() {
		return runScene(ctx, c, metrics, stop)
	}
	return runWorld(ctx, c, metrics, stop)
}

func configureLogging(c *cli.Context) {
	if c.Bool("s") {
		_ = flag.Set("stderrthreshold", "FATAL")
	} else if c.Bool("d") {
		_ = flag.Set("v", "2")
		xdebug.Enabled = true
	}
	if c.Bool("l") {
		_ = flag.Set("log_dir", "/var/log")
		_ = flag.Set("logtostderr", "false")
		_ = flag.Set("alsologtostderr", "false")
	} else if !c.Bool("s") {
		// logtostderr sends every level to stderr regardless of
		// stderrthreshold, so it stays off for -s.
		_ = flag.Set("logtostderr", "true")
	}
}

func serveMetrics(reg *prometheus.Registry, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", stats.Handler(reg))
	addr := ":" + port
	if err := http.ListenAndServe(addr, mux); err != nil {
		xlog.Errorf("splash: metrics server on %s: %v", addr, err)
	}
}

func waitForSignal(stop chan<- struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	close(stop)
}

func runWorld(ctx root.Context, c *cli.Context, metrics *stats.Collector, stop <-chan struct{}) error {
	spawner := world.Spawner(nil)
	if !c.Bool("x") {
		spawner = world.NewExecSpawner("")
	}

	w := world.New(root.WorldName, ctx, spawner, metrics)
	defer w.Shutdown()

	w.AttachLink(link.New(w, transport.Config{Kind: ctx.ChannelKind, Prefix: ctx.SocketPrefix, Name: root.WorldName}))

	if defaults := os.Getenv("SPLASH_DEFAULTS"); defaults != "" {
		if err := w.LoadDefaults(defaults); err != nil {
			xlog.Warningf("splash: load SPLASH_DEFAULTS: %v", err)
		}
	}

	configPath := c.String("o")
	if configPath == "" && c.NArg() > 0 {
		configPath = c.Args().Get(0)
	}
	if configPath == "" {
		return fmt.Errorf("splash: no configuration file given (-o or a positional argument)")
	}
	if err := w.LoadAndApply(configPath); err != nil {
		return fmt.Errorf("configuration-invalid: %w", err)
	}

	if c.Bool("H") {
		w.SendMessage(link.BroadcastName, "runInBackground", []value.Value{value.NewBool(true)})
	}

	if script := c.String("P"); script != "" {
		if _, ok := w.CreateObject("controller", "pythonScript"); ok {
			w.SetValues("pythonScript", "scriptPath", []value.Value{value.NewString(script)}, true)
		}
	}

	w.Run(stop)
	return nil
}

func runScene(ctx root.Context, c *cli.Context, metrics *stats.Collector, stop <-chan struct{}) error {
	var driver render.Driver = render.NewNullDriver()
	s := scene.New(ctx.ChildName, ctx, driver, metrics)
	defer s.Close()

	s.AttachLink(link.New(s, transport.Config{Kind: ctx.ChannelKind, Prefix: ctx.SocketPrefix, Name: ctx.ChildName}))

	if defaults := os.Getenv("SPLASH_DEFAULTS"); defaults != "" {
		if err := s.LoadDefaults(defaults); err != nil {
			xlog.Warningf("splash: load SPLASH_DEFAULTS: %v", err)
		}
	}

	s.ConnectTo(root.WorldName)
	s.Announce()

	s.Run(stop)
	return nil
}
