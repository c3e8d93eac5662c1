package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"pulsera/pkg/config"
)

func main() {
	code := run(os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(code)
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	switch args[0] {
	case "init":
		return runInit(args[1:], stdout, stderr)
	case "check":
		return runCheck(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintln(stderr, "unknown command:", args[0])
		printUsage(stderr)
		return 2
	}
}

func runInit(args []string, stdout io.Writer, stderr io.Writer) int {
	finit := flag.NewFlagSet("init", flag.ContinueOnError)
	finit.SetOutput(stderr)

	configPath := finit.String("config", config.DefaultConfigPath, "config path to write (.toml or .yaml)")
	force := finit.Bool("force", false, "overwrite an existing file")

	if err := finit.Parse(args); err != nil {
		return 2
	}

	if _, err := os.Stat(*configPath); err == nil && !*force {
		fmt.Fprintf(stderr, "init failed: %s already exists (use --force)\n", *configPath)
		return 1
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(stderr, "init failed:", err)
		return 1
	}

	cfg := config.Default()
	if err := cfg.Save(*configPath); err != nil {
		fmt.Fprintln(stderr, "init failed:", err)
		return 1
	}
	fmt.Fprintf(stdout, "[Init] Wrote defaults to %s\n", *configPath)
	return 0
}

func runCheck(args []string, stdout io.Writer, stderr io.Writer) int {
	fcheck := flag.NewFlagSet("check", flag.ContinueOnError)
	fcheck.SetOutput(stderr)

	configPath := fcheck.String("config", config.DefaultConfigPath, "config path or URL")

	if err := fcheck.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(context.Background(), *configPath)
	if err != nil {
		fmt.Fprintln(stderr, "check failed:", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "check failed:", err)
		return 1
	}

	fmt.Fprintf(stdout, "[Check] %s ok: receiver=%s addr=%s format=%s\n",
		*configPath, cfg.Receiver.Transport, cfg.Receiver.Addr, cfg.Receiver.DatagramFormat)
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  go run tools/pulsera-conf.go init [--config path] [--force]")
	fmt.Fprintln(w, "  go run tools/pulsera-conf.go check [--config path]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  init    write a default pulsera config")
	fmt.Fprintln(w, "  check   load and validate a config file or URL")
}
