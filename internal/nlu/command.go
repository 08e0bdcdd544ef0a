package nlu

import (
	"fmt"
	"strings"
)

// Command is the routed intent category of an utterance.
type Command uint

const (
	Unknown Command = iota
	Weather
	Knowledge
	Music
	Search
	Time
	Date
	Greeting
)

var commandNames = map[Command]string{
	Unknown:   "unknown",
	Weather:   "weather",
	Knowledge: "knowledge",
	Music:     "music",
	Search:    "search",
	Time:      "time",
	Date:      "date",
	Greeting:  "greeting",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", uint(c))
}

func (c Command) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Command) UnmarshalText(b []byte) error {
	parsed, err := ParseCommand(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func ParseCommand(name string) (Command, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for cmd, n := range commandNames {
		if n == name {
			return cmd, nil
		}
	}
	return Unknown, fmt.Errorf("unknown command %q", name)
}

// Intent is the router's verdict: one command and the argument text that
// followed (or preceded) its keyword.
type Intent struct {
	Command   Command `json:"command"`
	Arg       string  `json:"arg,omitempty"`
	Keyword   string  `json:"keyword,omitempty"`
	Utterance string  `json:"utterance"`
}
