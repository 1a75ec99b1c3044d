// matchrunner - runs and scores one competitive CS match
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/ernie/matchrunner/internal/api"
	"github.com/ernie/matchrunner/internal/archive"
	"github.com/ernie/matchrunner/internal/auth"
	"github.com/ernie/matchrunner/internal/broker"
	"github.com/ernie/matchrunner/internal/config"
	"github.com/ernie/matchrunner/internal/domain"
	"github.com/ernie/matchrunner/internal/orchestrator"
	"github.com/ernie/matchrunner/internal/rcon"
	"github.com/ernie/matchrunner/internal/scorebot"
	"github.com/ernie/matchrunner/internal/servercfg"
	"github.com/ernie/matchrunner/internal/storage"
	"github.com/ernie/matchrunner/internal/supervisor"
)

var version = "dev"

const defaultConfigPath = "matchrunner.yaml"

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "rcon":
		cmdRcon(os.Args[2:])
	case "parse":
		cmdParse(os.Args[2:])
	case "matches":
		cmdMatches(os.Args[2:])
	case "ratings":
		cmdRatings(os.Args[2:])
	case "token":
		cmdToken(os.Args[2:])
	case "version":
		fmt.Printf("matchrunner %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: matchrunner <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run [--no-http]                     Launch, watch and score the configured match")
	fmt.Println("  rcon [--address A] <command...>     Send one command to the game server console")
	fmt.Println("  parse [--save] [--json] <log>       Score a finished log (.log or .log.zst) offline")
	fmt.Println("  matches [--recent N]                Show recent results (default: 20)")
	fmt.Println("  ratings                             Show accumulated rating changes per player")
	fmt.Println("  token [--admin] <operator>          Issue an access token for the live surface")
	fmt.Println("  version                             Show version")
	fmt.Println("  help                                Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default matchrunner.yaml)")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  MATCHRUNNER_RCON_PASSWORD, MATCHRUNNER_JWT_SECRET, MATCHRUNNER_NATS_URL,")
	fmt.Println("  MATCHRUNNER_LOG_PATH and MATCHRUNNER_LOG_LEVEL override the config file.")
	fmt.Println("  A .env file next to the config file is loaded first.")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  matchrunner run --config /etc/matchrunner/final.yaml")
	fmt.Println("  matchrunner rcon mp_pause_match")
	fmt.Println("  matchrunner parse --save logs/L0415003.log")
	fmt.Println("  matchrunner token --admin referee")
}

// loadConfig loads the config file and applies its log level
func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ConfigureLogging(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	return cfg
}

// cmdRun runs the configured match to completion
func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	noHTTP := fs.Bool("no-http", false, "do not serve the live surface even if enabled in config")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// runMatch returns so its deferred closes flush before the exit
	if err := runMatch(cfg, *noHTTP); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func runMatch(cfg *config.Config, noHTTP bool) error {
	log.Infof("matchrunner %s starting...", version)

	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()
	log.Infof("Database initialized at %s", cfg.Storage.Path)

	hub := api.NewWebSocketHub()
	sinks := []orchestrator.EventSink{hub}

	if cfg.NATS.URL != "" {
		publisher, err := broker.Connect(cfg.NATS.URL, cfg.NATS.Prefix)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
		log.Infof("Publishing events to %s under %s", cfg.NATS.URL, cfg.NATS.Prefix)
	}

	var console orchestrator.Console
	if cfg.Rcon.Address != "" {
		client, err := rcon.New(cfg.Rcon.Client())
		if err != nil {
			return fmt.Errorf("invalid rcon config: %w", err)
		}
		console = client
	}

	var preparer orchestrator.Preparer
	if cfg.Match.ConfigFile != "" {
		preparer = servercfg.FilePreparer{Path: cfg.Match.ConfigFile}
	}

	session := orchestrator.NewSession(cfg.Teams(), cfg.Match.MatchConfig)
	orch, err := orchestrator.New(session, orchestrator.Options{
		Supervisor:        supervisor.New(supervisor.Options{}),
		Watcher:           scorebot.NewWatcher(cfg.Log.Watcher()),
		Console:           console,
		Preparer:          preparer,
		Sinks:             sinks,
		LogPath:           cfg.Log.Path,
		Server:            cfg.Server.Spec(),
		Client:            cfg.Client.Spec(),
		SettleDelay:       cfg.Match.SettleDelay,
		KeepaliveInterval: cfg.Match.KeepaliveInterval,
		CommandTimeout:    cfg.Match.CommandTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}
	log.WithField("match", session.ID).Infof("%s vs %s on %s", session.Teams[0].Name, session.Teams[1].Name, cfg.Match.SelectedMap())

	var authService *auth.Service
	if cfg.Auth.JWTSecret != "" {
		authService = auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	} else {
		log.Warn("No JWT secret configured, admin endpoints are disabled")
	}

	router := api.NewRouter(orch, hub, store, authService, cfg.Log.Path)
	defer router.Close()

	server := &http.Server{
		Addr:        cfg.HTTP.Addr(),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	hubCtx, stopHub := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		hub.Run(hubCtx)
		return nil
	})

	serveHTTP := cfg.HTTP.Enabled && !noHTTP
	if serveHTTP {
		g.Go(func() error {
			log.Infof("HTTP server listening on %s", server.Addr)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	if err := orch.Start(context.Background()); err != nil {
		server.Close()
		stopHub()
		return fmt.Errorf("failed to start match: %w", err)
	}

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			log.Infof("Received signal %v, tearing down match...", sig)
			orch.Teardown()
		case <-gctx.Done():
			log.Warn("Live surface failed, tearing down match...")
			orch.Teardown()
		case <-orch.Done():
		}

		if serveHTTP {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warnf("HTTP server shutdown error: %v", err)
			}
		}
		stopHub()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Errorf("%v", err)
	}

	result, err := orch.Wait(context.Background())
	if err != nil {
		return fmt.Errorf("match did not finish: %w", err)
	}

	if err := store.SaveResult(context.Background(), result); err != nil {
		log.Errorf("Failed to save result: %v", err)
	} else {
		log.WithField("match", result.MatchID).Info("Result saved")
	}

	if cfg.Archive.Dir != "" {
		path, err := archive.Compress(cfg.Log.Path, cfg.Archive.Dir, result.MatchID)
		if err != nil {
			log.Errorf("Failed to archive log: %v", err)
		} else {
			log.Infof("Log archived to %s", path)
		}
	}

	printResult(result)
	return nil
}

func printResult(result *domain.Result) {
	fmt.Printf("Match %s on %s\n", result.MatchID, result.Map)
	fmt.Printf("  %s %d - %d %s (%d rounds)\n",
		result.Teams[domain.TeamA].Name, result.Score[domain.TeamA],
		result.Score[domain.TeamB], result.Teams[domain.TeamB].Name, result.Rounds)
	if result.Score != result.Reported {
		fmt.Printf("  server reported %d - %d\n", result.Reported[domain.TeamA], result.Reported[domain.TeamB])
	}
	switch result.Winner {
	case domain.TeamNone:
		fmt.Println("  draw")
	default:
		fmt.Printf("  winner: %s\n", result.Teams[result.Winner].Name)
	}
	fmt.Printf("  rating: %+d / %+d\n", result.TeamDeltas[domain.TeamA], result.TeamDeltas[domain.TeamB])
}
