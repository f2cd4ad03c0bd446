package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnexpectedFormat is returned when a response does not have the expected shape.
var ErrUnexpectedFormat = errors.New("unexpected response format")

var (
	listRe = regexp.MustCompile(`(?s)There are (\d+) of a max(?: of)? (\d+) players online:?(.*)`)
	// Color/format codes (§x) some servers put around player names.
	formatCodeRe = regexp.MustCompile(`§.`)
)

// PlayerList holds the structured result of the "list" command.
type PlayerList struct {
	Names  []string
	Online int
	Max    int
}

// ParsePlayerList parses a response such as
// "There are 2 of a max of 20 players online: Steve, Alex".
func ParsePlayerList(raw string) (PlayerList, error) {
	s := strings.TrimSpace(formatCodeRe.ReplaceAllString(raw, ""))

	m := listRe.FindStringSubmatch(s)
	if m == nil {
		return PlayerList{}, fmt.Errorf("%w: list response %q", ErrUnexpectedFormat, raw)
	}

	online, err := strconv.Atoi(m[1])
	if err != nil {
		return PlayerList{}, fmt.Errorf("%w: online count %q", ErrUnexpectedFormat, m[1])
	}
	maxPlayers, err := strconv.Atoi(m[2])
	if err != nil {
		return PlayerList{}, fmt.Errorf("%w: max players %q", ErrUnexpectedFormat, m[2])
	}

	names := []string{}
	for _, part := range strings.Split(m[3], ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		names = append(names, name)
	}

	return PlayerList{Names: names, Online: online, Max: maxPlayers}, nil
}
