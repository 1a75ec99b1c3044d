// Package scorebot turns a game server's text log into structured match events.
package scorebot

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Event is a recognized log line
type Event struct {
	Timestamp time.Time
	Type      string
	Data      interface{}
}

// Event types
const (
	EventPlayerKilled   = "player_killed"
	EventPlayerAssisted = "player_assisted"
	EventRoundOver      = "round_over"
	EventPlayerEntered  = "player_entered"
	EventChatSay        = "chat_say"
	EventGameOver       = "game_over"
)

// Sides as reported by the server, used as the raw round winner index
const (
	SideCT        = 0
	SideT         = 1
	WinnerUnknown = -1
)

// Actor is a participant as printed in the log: "Name<userid><steamid><team>"
type Actor struct {
	Name    string
	UserID  int // in-session id assigned by the server at connect
	SteamID string
	Team    string
}

// IsBot reports whether the actor is a server-controlled bot
func (a Actor) IsBot() bool {
	return a.SteamID == "BOT"
}

// Event data structures
type KillData struct {
	Attacker  Actor
	Victim    Actor
	Weapon    string
	Headshot  bool
	Modifiers []string // e.g. "headshot", "penetrated", "noscope"
}

type AssistData struct {
	Assister Actor
	Victim   Actor
	Flash    bool
}

type RoundOverData struct {
	Winner  int    // SideCT, SideT or WinnerUnknown
	Side    string // team label as logged
	Reason  string // e.g. "CTs_Win", "Target_Bombed"
	CTScore int
	TScore  int
}

type PlayerEnteredData struct {
	Player Actor
}

type SayData struct {
	Player   Actor
	Message  string
	TeamOnly bool
}

type GameOverData struct {
	Mode     string
	MapGroup string
	Map      string
	Score    [2]int // by side at match end: CT, T
	Minutes  int
}

const actorPattern = `"([^"]*?)<(\d+)><([^>]*)><([^>]*)>"`

// Regular expressions for parsing log lines, tried in order
var (
	// L 10/15/2026 - 20:11:03: <content>
	timestampRegex = regexp.MustCompile(`^L (\d{2}/\d{2}/\d{4} - \d{2}:\d{2}:\d{2}): `)

	sayRegex      = regexp.MustCompile(`^` + actorPattern + ` (say|say_team) "(.*)"$`)
	killRegex     = regexp.MustCompile(`^` + actorPattern + `(?: \[[^\]]*\])? killed ` + actorPattern + `(?: \[[^\]]*\])? with "([^"]*)"(?: \(([^)]*)\))?$`)
	assistRegex   = regexp.MustCompile(`^` + actorPattern + ` (flash-)?assisted killing ` + actorPattern + `$`)
	roundRegex    = regexp.MustCompile(`^Team "([^"]*)" triggered "SFUI_Notice_([^"]*)" \(CT "(\d+)"\) \(T "(\d+)"\)$`)
	enteredRegex  = regexp.MustCompile(`^` + actorPattern + ` entered the game$`)
	gameOverRegex = regexp.MustCompile(`^Game Over: (\S+) (\S+) (\S+) score (\d+):(\d+) after (\d+) min$`)
)

// ParseLine classifies a single log line. Lines that match no known
// shape return false and are never an error.
func ParseLine(line string) (*Event, bool) {
	line = strings.TrimRight(line, "\r\n")
	content := line
	var timestamp time.Time

	if match := timestampRegex.FindStringSubmatch(line); match != nil {
		if ts, err := time.ParseInLocation("01/02/2006 - 15:04:05", match[1], time.Local); err == nil {
			timestamp = ts
		}
		content = line[len(match[0]):]
	}
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	event := &Event{Timestamp: timestamp}

	// Chat first so player messages can never be mistaken for game lines
	if match := sayRegex.FindStringSubmatch(content); match != nil {
		event.Type = EventChatSay
		event.Data = SayData{
			Player:   actorFrom(match[1:5]),
			Message:  match[6],
			TeamOnly: match[5] == "say_team",
		}
		return event, true
	}

	if match := killRegex.FindStringSubmatch(content); match != nil {
		var mods []string
		if match[10] != "" {
			mods = strings.Fields(match[10])
		}
		headshot := false
		for _, m := range mods {
			if m == "headshot" {
				headshot = true
			}
		}
		event.Type = EventPlayerKilled
		event.Data = KillData{
			Attacker:  actorFrom(match[1:5]),
			Victim:    actorFrom(match[5:9]),
			Weapon:    match[9],
			Headshot:  headshot,
			Modifiers: mods,
		}
		return event, true
	}

	if match := assistRegex.FindStringSubmatch(content); match != nil {
		event.Type = EventPlayerAssisted
		event.Data = AssistData{
			Assister: actorFrom(match[1:5]),
			Flash:    match[5] != "",
			Victim:   actorFrom(match[6:10]),
		}
		return event, true
	}

	if match := roundRegex.FindStringSubmatch(content); match != nil {
		ct, _ := strconv.Atoi(match[3])
		t, _ := strconv.Atoi(match[4])
		event.Type = EventRoundOver
		event.Data = RoundOverData{
			Winner:  sideIndex(match[1]),
			Side:    match[1],
			Reason:  match[2],
			CTScore: ct,
			TScore:  t,
		}
		return event, true
	}

	if match := enteredRegex.FindStringSubmatch(content); match != nil {
		event.Type = EventPlayerEntered
		event.Data = PlayerEnteredData{Player: actorFrom(match[1:5])}
		return event, true
	}

	if match := gameOverRegex.FindStringSubmatch(content); match != nil {
		a, _ := strconv.Atoi(match[4])
		b, _ := strconv.Atoi(match[5])
		minutes, _ := strconv.Atoi(match[6])
		event.Type = EventGameOver
		event.Data = GameOverData{
			Mode:     match[1],
			MapGroup: match[2],
			Map:      match[3],
			Score:    [2]int{a, b},
			Minutes:  minutes,
		}
		return event, true
	}

	return nil, false
}

// ReadAll parses every recognized line of a complete log
func ReadAll(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if event, ok := ParseLine(scanner.Text()); ok {
			events = append(events, *event)
		}
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("reading log: %w", err)
	}
	return events, nil
}

// actorFrom builds an Actor from name, userid, steamid and team captures
func actorFrom(fields []string) Actor {
	userID, _ := strconv.Atoi(fields[1])
	return Actor{
		Name:    fields[0],
		UserID:  userID,
		SteamID: fields[2],
		Team:    fields[3],
	}
}

// sideIndex maps a logged team label to the raw winner index
func sideIndex(side string) int {
	switch side {
	case "CT":
		return SideCT
	case "TERRORIST":
		return SideT
	default:
		return WinnerUnknown
	}
}
