package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Action is what a line typed into the chat box asks for.
type Action int

const (
	ActionNone Action = iota
	ActionSay
	ActionImage
	ActionVideo
	ActionTimer
	ActionSave
	ActionPeers
	ActionHelp
	ActionLeave
)

// MaxTimer bounds /timer.
const MaxTimer = 24 * time.Hour

// Input is a parsed chat line.
type Input struct {
	Action Action
	Arg    string
	Timer  time.Duration
}

var errMissingArg = errors.New("missing argument")

// ParseInput interprets one line. Lines starting with "/" are commands;
// "//" escapes a leading slash.
func ParseInput(line string) (Input, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Input{Action: ActionNone}, nil
	}
	if strings.HasPrefix(line, "//") {
		return Input{Action: ActionSay, Arg: line[1:]}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return Input{Action: ActionSay, Arg: line}, nil
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "image", "img":
		if arg == "" {
			return Input{}, fmt.Errorf("/image: %w: file path", errMissingArg)
		}
		return Input{Action: ActionImage, Arg: arg}, nil
	case "video":
		if arg == "" {
			return Input{}, fmt.Errorf("/video: %w: file path", errMissingArg)
		}
		return Input{Action: ActionVideo, Arg: arg}, nil
	case "timer":
		d, err := ParseTimer(arg)
		if err != nil {
			return Input{}, fmt.Errorf("/timer: %w", err)
		}
		return Input{Action: ActionTimer, Timer: d}, nil
	case "save":
		if arg == "" {
			arg = "."
		}
		return Input{Action: ActionSave, Arg: arg}, nil
	case "peers":
		return Input{Action: ActionPeers}, nil
	case "help", "?":
		return Input{Action: ActionHelp}, nil
	case "leave", "quit", "exit":
		return Input{Action: ActionLeave}, nil
	}
	return Input{}, fmt.Errorf("unknown command /%s (try /help)", name)
}

// ParseTimer accepts "off", whole seconds or a Go duration.
func ParseTimer(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: seconds, a duration like 30s, or off", errMissingArg)
	}
	if strings.EqualFold(s, "off") {
		return 0, nil
	}

	var d time.Duration
	if n, err := strconv.Atoi(s); err == nil {
		d = time.Duration(n) * time.Second
	} else if d, err = time.ParseDuration(s); err != nil {
		return 0, fmt.Errorf("invalid timer %q", s)
	}
	if d < 0 || d > MaxTimer {
		return 0, fmt.Errorf("timer must be between 0 and %s", MaxTimer)
	}
	return d.Truncate(time.Second), nil
}

const helpText = `/image PATH   send an image (up to 5 MB)
/video PATH   send a video (up to 20 MB)
/timer N      delete new messages after N seconds (0 or off disables)
/save [DIR]   save the last received image or video
/peers        show who is in the room
/leave        leave the room and wipe the conversation`
