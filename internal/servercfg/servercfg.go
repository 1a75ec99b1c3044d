// Package servercfg renders the console commands that configure the game
// server for a match, as a cfg file and as a list to send over RCON.
package servercfg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ernie/matchrunner/internal/domain"
	"github.com/ernie/matchrunner/internal/scorebot"
	"github.com/ernie/matchrunner/internal/scoring"
)

// Commands returns the server commands for a match, in the order they
// should be executed
func Commands(cfg domain.MatchConfig, teams [2]domain.Team) []string {
	rules := scoring.RulesFor(cfg)

	// mp_teamname_1 labels whoever starts on CT
	ctTeam := rules.LogicalTeam(1, scorebot.SideCT)
	tTeam := domain.OtherTeam(ctTeam)

	commands := []string{
		fmt.Sprintf("mp_maxrounds %d", cfg.MaxRounds),
		fmt.Sprintf("mp_overtime_enable %d", boolInt(cfg.Overtime)),
		fmt.Sprintf("mp_overtime_maxrounds %d", cfg.OvertimeRounds),
		fmt.Sprintf("mp_freezetime %d", cfg.FreezeTime),
		fmt.Sprintf(`mp_teamname_1 "%s"`, sanitize(teams[ctTeam].Name)),
		fmt.Sprintf(`mp_teamname_2 "%s"`, sanitize(teams[tTeam].Name)),
		fmt.Sprintf("tv_enable %d", boolInt(cfg.Spectate)),
	}
	if cfg.Bots {
		commands = append(commands, "bot_quota_mode fill", fmt.Sprintf("bot_quota %d", botQuota(teams)))
	} else {
		commands = append(commands, "bot_quota 0", "bot_kick")
	}
	return commands
}

// Render formats commands as a cfg file
func Render(commands []string) []byte {
	var b strings.Builder
	b.WriteString("// generated by matchrunner\n")
	for _, c := range commands {
		b.WriteString(c)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// WriteFile renders the match commands to path
func WriteFile(path string, cfg domain.MatchConfig, teams [2]domain.Team) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating cfg directory: %w", err)
	}
	if err := os.WriteFile(path, Render(Commands(cfg, teams)), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// FilePreparer stages a cfg file the server executes at startup
type FilePreparer struct {
	Path string
}

// Files returns the paths Prepare modifies
func (p FilePreparer) Files() []string {
	return []string{p.Path}
}

// Prepare writes the cfg file
func (p FilePreparer) Prepare(ctx context.Context, cfg domain.MatchConfig, teams [2]domain.Team) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return WriteFile(p.Path, cfg, teams)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// botQuota fills both sides up to the larger roster
func botQuota(teams [2]domain.Team) int {
	n := len(teams[0].Players)
	if m := len(teams[1].Players); m > n {
		n = m
	}
	if n == 0 {
		n = 5
	}
	return 2 * n
}

func sanitize(name string) string {
	return strings.NewReplacer(`"`, "", ";", "", "\n", " ").Replace(name)
}
