package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/subosito/gotenv"

	"github.com/threadlens/threadlens/internal/config"
	"github.com/threadlens/threadlens/internal/logging"
	"github.com/threadlens/threadlens/internal/server"
	"github.com/threadlens/threadlens/internal/store"
)

const version = "0.1.0"

func main() {
	gotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "load":
		if err := runLoad(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version", "--version", "-v":
		fmt.Printf("threadlens %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath string
	dbPath     string
	dataPath   string
	addr       string
}

func parseFlags(args []string) (cliFlags, error) {
	var f cliFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		value := func() (string, error) {
			if eq := strings.IndexByte(arg, '='); eq >= 0 {
				return arg[eq+1:], nil
			}
			i++
			if i >= len(args) {
				return "", fmt.Errorf("flag %s needs a value", arg)
			}
			return args[i], nil
		}
		var err error
		switch {
		case arg == "--config" || strings.HasPrefix(arg, "--config="):
			f.configPath, err = value()
		case arg == "--db" || strings.HasPrefix(arg, "--db="):
			f.dbPath, err = value()
		case arg == "--data" || strings.HasPrefix(arg, "--data="):
			f.dataPath, err = value()
		case arg == "--addr" || strings.HasPrefix(arg, "--addr="):
			f.addr, err = value()
		default:
			err = fmt.Errorf("unknown flag: %s", arg)
		}
		if err != nil {
			return f, err
		}
	}
	return f, nil
}

func resolve(flags cliFlags) (config.ResolvedConfig, error) {
	return config.ResolveConfig(config.ResolveOptions{
		ConfigPath: flags.configPath,
		CLIDBPath:  flags.dbPath,
		CLIData:    flags.dataPath,
		CLIAddr:    flags.addr,
	})
}

func runServe(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := resolve(flags)
	if err != nil {
		return err
	}
	logging.Init(cfg.LogLevel.Value)

	st, err := store.Open(cfg.DBPath.Value)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DataPath.Value != "" {
		loaded, err := st.LoadJSONL(ctx, cfg.DataPath.Value)
		if err != nil {
			return fmt.Errorf("loading corpus: %w", err)
		}
		slog.Info("[Main] Corpus loaded",
			slog.String("path", cfg.DataPath.Value), slog.Int("posts", loaded))
	}

	total, err := st.TotalPosts(ctx)
	if err != nil {
		return err
	}
	if total == 0 {
		slog.Warn("[Main] Store is empty; pass --data to load a corpus")
	}

	return server.New(st).Serve(ctx, cfg.Addr.Value)
}

func runLoad(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := resolve(flags)
	if err != nil {
		return err
	}
	logging.Init(cfg.LogLevel.Value)

	if cfg.DataPath.Value == "" {
		return fmt.Errorf("usage: threadlens load --data <corpus.jsonl> [--db <path>]")
	}
	if cfg.DBPath.Value == "" {
		return fmt.Errorf("load needs --db: an in-memory store would vanish on exit")
	}

	st, err := store.Open(cfg.DBPath.Value)
	if err != nil {
		return err
	}
	defer st.Close()

	loaded, err := st.LoadJSONL(context.Background(), cfg.DataPath.Value)
	if err != nil {
		return err
	}
	total, err := st.TotalPosts(context.Background())
	if err != nil {
		return err
	}
	slog.Info("[Main] Corpus loaded",
		slog.Int("inserted", loaded), slog.Int("total", total))
	return nil
}

func printUsage() {
	fmt.Println(`threadlens - analytics engine for social media post corpora

Usage:
  threadlens serve [--data corpus.jsonl] [--db path] [--addr :8080] [--config path]
  threadlens load --data corpus.jsonl --db path
  threadlens version

Flags may also come from ~/.threadlens/config.yaml or THREADLENS_* env vars.`)
}
