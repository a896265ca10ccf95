package models

import (
	"strings"
	"time"
)

// CommandType enumerates the commands producers can send over WhatsApp.
type CommandType string

const (
	CommandSubmit  CommandType = "submit"
	CommandBalance CommandType = "balance"
	CommandDue     CommandType = "due"
	CommandHelp    CommandType = "help"
	CommandUnknown CommandType = "unknown"
)

// Command represents a parsed producer instruction extracted from WhatsApp text.
type Command struct {
	Type CommandType
	Raw  string
	Args []string
}

// ParseCommand derives a Command from free-form text. The leading slash is optional
// and only the keyword is case-insensitive; arguments are ids and keep their case.
func ParseCommand(message string) Command {
	tokens := strings.Fields(message)
	cmd := Command{Raw: message}

	if len(tokens) == 0 {
		cmd.Type = CommandUnknown
		return cmd
	}

	switch head := strings.ToLower(strings.TrimPrefix(tokens[0], "/")); head {
	case string(CommandSubmit), "milk":
		cmd.Type = CommandSubmit
	case string(CommandBalance), "solde":
		cmd.Type = CommandBalance
	case string(CommandDue):
		cmd.Type = CommandDue
	case string(CommandHelp), "start":
		cmd.Type = CommandHelp
	default:
		cmd.Type = CommandUnknown
	}

	if len(tokens) > 1 {
		cmd.Args = tokens[1:]
	}

	return cmd
}

// ProducerSession remembers what a producer last submitted so later commands
// can omit it.
type ProducerSession struct {
	CollectionPointID string
	MilkType          string
	UpdatedAt         time.Time
}
