package tui

import "strings"

// Command represents a parsed command.
type Command struct {
	Name string
	Args []string
}

// ParseCommand parses a command line typed after ':'. The name is
// lowercased; arguments keep their case.
func ParseCommand(input string) Command {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return Command{}
	}
	return Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}
}

// Rest joins the arguments back into one string, as for a search query.
func (c Command) Rest() string {
	return strings.Join(c.Args, " ")
}
