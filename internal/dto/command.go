package dto

import (
	"fmt"
	"sort"
)

// commandBytes maps control commands onto the single-character protocol the
// motor board understands.
var commandBytes = map[string]byte{
	"forward":     'w',
	"left":        'a',
	"backward":    's',
	"right":       'd',
	"stop":        'p',
	"suction_on":  'i',
	"suction_off": 'o',
}

// Command is a drive or suction request from a browser.
type Command struct {
	Command string `json:"command"`
}

// Byte returns the wire byte for the command.
func (c Command) Byte() (byte, error) {
	b, ok := commandBytes[c.Command]
	if !ok {
		return 0, fmt.Errorf("unknown command %q", c.Command)
	}
	return b, nil
}

// Commands lists the accepted command names.
func Commands() []string {
	names := make([]string, 0, len(commandBytes))
	for name := range commandBytes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CommandResult acknowledges a control request.
type CommandResult struct {
	Command string `json:"command"`
	Sent    string `json:"sent"`
	Error   string `json:"error,omitempty"`
}
