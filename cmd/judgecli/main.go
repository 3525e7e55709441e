package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"conqueroj/internal/cli/config"
	httpclient "conqueroj/internal/cli/http"
	"conqueroj/internal/cli/repl"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override submit service base URL")
	judgeURL := flag.String("judge", "", "Override judge worker base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *judgeURL != "" {
		cfg.JudgeURL = *judgeURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if cfg.JudgeURL == "" {
		cfg.JudgeURL = cfg.BaseURL
	}

	client := httpclient.New(cfg.BaseURL, cfg.Timeout)
	judgeClient := httpclient.New(cfg.JudgeURL, cfg.Timeout)

	session := repl.New(client, judgeClient, cfg.HistoryFile)
	if err := session.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
}
