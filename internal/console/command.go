// Package console is the line-oriented terminal front end: it parses what
// the user types and prints the current room's messages.
package console

import "strings"

// Kind identifies a parsed input line. Everything that is not a known
// slash command is KindSend, KindEmpty or KindUnknown.
type Kind int

const (
	// KindEmpty is a blank line; it does nothing.
	KindEmpty Kind = iota
	// KindSend posts Arg to the current room.
	KindSend
	// KindJoin switches to the room in Arg (/join, /j).
	KindJoin
	// KindRooms lists the catalogue (/rooms).
	KindRooms
	// KindLogout ends the session and prompts for a new login (/logout).
	KindLogout
	// KindQuit leaves the client (/quit, /exit, /q).
	KindQuit
	// KindHelp prints Help (/help, /?).
	KindHelp
	// KindUnknown is a slash command Parse does not know, or /join without
	// a room. Arg holds the command word.
	KindUnknown
)

// Command is one parsed input line.
type Command struct {
	Kind Kind
	// Arg is the message text for KindSend, the room for KindJoin and the
	// offending word for KindUnknown.
	Arg string
}

// Help lists the commands Parse understands.
const Help = `commands:
  /join <room>   switch to room
  /rooms         list rooms
  /logout        end the session
  /quit          leave the client
  /help          show this text
anything else is sent to the current room`

// Parse turns an input line into a Command. Lines starting with "//" send
// the rest of the line with one slash removed.
func Parse(line string) Command {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Command{Kind: KindEmpty}
	}
	if strings.HasPrefix(trimmed, "//") {
		return Command{Kind: KindSend, Arg: trimmed[1:]}
	}
	if !strings.HasPrefix(trimmed, "/") {
		return Command{Kind: KindSend, Arg: trimmed}
	}

	name, arg, _ := strings.Cut(trimmed[1:], " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "join", "j":
		if arg == "" {
			return Command{Kind: KindUnknown, Arg: "/" + name}
		}
		return Command{Kind: KindJoin, Arg: strings.ToLower(arg)}
	case "rooms":
		return Command{Kind: KindRooms}
	case "logout":
		return Command{Kind: KindLogout}
	case "quit", "exit", "q":
		return Command{Kind: KindQuit}
	case "help", "?":
		return Command{Kind: KindHelp}
	default:
		return Command{Kind: KindUnknown, Arg: "/" + name}
	}
}
