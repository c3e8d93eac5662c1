package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"pulsera/pkg/config"
	"pulsera/pkg/logging"
)

var Version = "dev"

type CLI struct {
	Config   string           `help:"config file path or URL (toml or yaml)" short:"c" default:"pulsera.toml"`
	LogLevel string           `help:"override log.level" name:"log-level"`
	Version  kong.VersionFlag `help:"print version and exit"`

	Server ServerCmd `cmd:"" default:"1" help:"receive signal reports and fan them out to sinks"`
	Send   SendCmd   `cmd:"" help:"send one signal report over UDP"`
	Mock   MockCmd   `cmd:"" help:"simulate a crossing controller"`
}

// runtime is bound into every command's Run method.
type runtime struct {
	ctx       context.Context
	stdout    io.Writer
	stderr    io.Writer
	configSrc string
	logLevel  string
}

type exitCode int

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			c, ok := r.(exitCode)
			if !ok {
				panic(r)
			}
			code = int(c)
		}
	}()

	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("pulserad"),
		kong.Description("Pedestrian signal report receiver."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(c int) { panic(exitCode(c)) }),
		kong.Vars{"version": Version},
	)
	if err != nil {
		fmt.Fprintln(stderr, "pulserad:", err)
		return 2
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "pulserad: error: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := &runtime{
		ctx:       ctx,
		stdout:    stdout,
		stderr:    stderr,
		configSrc: cli.Config,
		logLevel:  cli.LogLevel,
	}
	if err := kctx.Run(rt); err != nil {
		fmt.Fprintf(stderr, "pulserad: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig treats URLs strictly and lets a missing local file fall back
// to defaults.
func (rt *runtime) loadConfig() (config.Config, error) {
	if strings.Contains(rt.configSrc, "://") {
		return config.Load(rt.ctx, rt.configSrc)
	}
	cfg, _, err := config.LoadOrDefault(rt.configSrc)
	return cfg, err
}

func (rt *runtime) logger(cfg config.Config, out io.Writer) zerolog.Logger {
	level := cfg.Log.Level
	if rt.logLevel != "" {
		level = rt.logLevel
	}
	return logging.Configure("pulserad", logging.Config{
		Level:   level,
		Format:  cfg.Log.Format,
		NoColor: cfg.Log.NoColor,
		Out:     out,
	})
}
