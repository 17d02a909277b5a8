package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"coderush/internal/cli/command"
	"coderush/internal/cli/config"
	"coderush/internal/cli/http"
	"coderush/internal/cli/repl"
	"coderush/internal/cli/state"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override judge service base URL")
	adminURL := flag.String("admin", "", "Override judge admin base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	statePath := flag.String("state", "", "Override session state path")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *adminURL != "" {
		cfg.AdminURL = *adminURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	session, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load session state failed: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := httpclient.New(cfg.BaseURL, cfg.Timeout)
	console := repl.New(client, command.Registry(), &session, cfg.StatePath, cfg.PrettyJSON != nil && *cfg.PrettyJSON)
	console.SetAdminClient(httpclient.New(cfg.AdminURL, cfg.Timeout))
	console.Run(ctx)
}
