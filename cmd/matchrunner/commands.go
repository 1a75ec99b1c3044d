package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/ernie/matchrunner/internal/archive"
	"github.com/ernie/matchrunner/internal/auth"
	"github.com/ernie/matchrunner/internal/rcon"
	"github.com/ernie/matchrunner/internal/scorebot"
	"github.com/ernie/matchrunner/internal/scoring"
	"github.com/ernie/matchrunner/internal/storage"
)

// cmdRcon sends a single console command and prints the reply
func cmdRcon(args []string) {
	fs := flag.NewFlagSet("rcon", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	address := fs.String("address", "", "console address, overrides config")
	transport := fs.String("transport", "", "tcp (Source) or udp (Quake), overrides config")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: matchrunner rcon [--address A] [--transport tcp|udp] <command...>")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	rc := cfg.Rcon.Client()
	if *address != "" {
		rc.Address = *address
	}
	if *transport != "" {
		rc.Transport = *transport
	}
	if rc.Address == "" {
		log.Fatal("No console address configured. Use --address or rcon.address.")
	}
	if rc.Password == "" {
		password, err := readPassword("RCON password: ")
		if err != nil {
			log.Fatalf("%v", err)
		}
		rc.Password = password
	}
	rc.MaxRetries = 1

	client, err := rcon.New(rc)
	if err != nil {
		log.Fatalf("Invalid rcon config: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.Init(ctx); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}

	output, err := client.Send(ctx, strings.Join(fs.Args(), " "))
	if err != nil {
		log.Fatalf("Command failed: %v", err)
	}
	fmt.Print(output)
	if output != "" && !strings.HasSuffix(output, "\n") {
		fmt.Println()
	}
}

// cmdParse scores a finished log without launching anything
func cmdParse(args []string) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	save := fs.Bool("save", false, "store the result in the database")
	asJSON := fs.Bool("json", false, "print the full result as JSON")
	matchID := fs.String("match-id", "", "id to record the result under (default: log file name)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: matchrunner parse [--save] [--json] <log>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg := loadConfig(*configPath)
	if len(cfg.Match.Teams) != 2 {
		log.Fatalf("Config must list exactly 2 teams, got %d", len(cfg.Match.Teams))
	}

	events, err := readLog(path)
	if err != nil {
		log.Fatalf("Failed to read log: %v", err)
	}

	id := *matchID
	if id == "" {
		id = strings.TrimSuffix(strings.TrimSuffix(filepath.Base(path), archive.Extension), ".log")
	}

	result, err := scoring.Reconcile(scoring.Input{
		MatchID:    id,
		Config:     cfg.Match.MatchConfig,
		Teams:      cfg.Teams(),
		Events:     events,
		FinishedAt: lastTimestamp(events),
	})
	if err != nil {
		log.Fatalf("Failed to score %s: %v", path, err)
	}

	if *save {
		store, err := storage.New(cfg.Storage.Path)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer store.Close()
		if err := store.SaveResult(context.Background(), result); err != nil {
			log.Fatalf("Failed to save result: %v", err)
		}
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(result)
		return
	}
	printResult(result)
}

// readLog parses a plain or archived log file
func readLog(path string) ([]scorebot.Event, error) {
	var r io.ReadCloser
	var err error
	if strings.HasSuffix(path, archive.Extension) {
		r, err = archive.Open(path)
	} else {
		r, err = os.Open(path)
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return scorebot.ReadAll(r)
}

func lastTimestamp(events []scorebot.Event) time.Time {
	for i := len(events) - 1; i >= 0; i-- {
		if !events[i].Timestamp.IsZero() {
			return events[i].Timestamp
		}
	}
	return time.Now().UTC()
}

// openStore opens the configured database for read-only commands
func openStore(args []string, name string) (*storage.Store, int) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	limit := fs.Int("recent", 20, "number of rows to show")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	return store, *limit
}

func cmdMatches(args []string) {
	store, limit := openStore(args, "matches")
	defer store.Close()

	matches, err := store.ListResults(context.Background(), limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMAP\tTEAMS\tSCORE\tROUNDS\tRATING\tFINISHED")
	fmt.Fprintln(w, "--\t---\t-----\t-----\t------\t------\t--------")

	for _, m := range matches {
		fmt.Fprintf(w, "%s\t%s\t%s vs %s\t%d-%d\t%d\t%+d/%+d\t%s\n",
			m.MatchID, m.Map, m.Teams[0], m.Teams[1],
			m.Score[0], m.Score[1], m.Rounds,
			m.TeamDeltas[0], m.TeamDeltas[1],
			m.FinishedAt.Local().Format("2006-01-02 15:04"))
	}

	w.Flush()
}

func cmdRatings(args []string) {
	store, limit := openStore(args, "ratings")
	defer store.Close()

	ratings, err := store.PlayerRatings(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tPLAYER\tMATCHES\tDELTA")
	fmt.Fprintln(w, "----\t------\t-------\t-----")

	for i, r := range ratings {
		if i >= limit {
			break
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%+d\n", i+1, r.Name, r.Matches, r.Delta)
	}

	w.Flush()
}

// cmdToken issues a token for the live surface
func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	admin := fs.Bool("admin", false, "grant console and raw log access")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: matchrunner token [--admin] <operator>")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	token, err := authService.GenerateToken(fs.Arg(0), *admin)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}

// readPassword prompts on the terminal without echo
func readPassword(prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no password configured and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}
