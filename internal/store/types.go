package store

import "errors"

var (
	// ErrSessionAlreadyOpen is returned when opening a session for a player who has one open.
	ErrSessionAlreadyOpen = errors.New("session already open")
	// ErrNoOpenSession is returned when closing a session for a player who has none open.
	ErrNoOpenSession = errors.New("no open session")
)

// PlayerTotal is the aggregated playtime of one player over a time range.
type PlayerTotal struct {
	Name         string
	TotalSeconds int64
	SessionCount int
}
