package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mc-dashboard-backend/internal/parse"
	"mc-dashboard-backend/internal/rcon"
)

// ErrorClass groups poll failures for the last_error message.
type ErrorClass string

const (
	ClassTransport   ErrorClass = "transport"
	ClassAuth        ErrorClass = "auth"
	ClassParse       ErrorClass = "parse"
	ClassPersistence ErrorClass = "persistence"
	ClassCancelled   ErrorClass = "cancelled"
)

// Classify maps a source error onto a failure class. Anything not recognized
// is treated as a transport failure.
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, context.Canceled):
		return ClassCancelled
	case errors.Is(err, rcon.ErrAuth):
		return ClassAuth
	// x/crypto/ssh has no sentinel for rejected keys.
	case strings.Contains(err.Error(), "unable to authenticate"):
		return ClassAuth
	case errors.Is(err, parse.ErrUnexpectedFormat):
		return ClassParse
	}
	return ClassTransport
}

func describe(source string, err error) string {
	return fmt.Sprintf("%s %s: %v", source, Classify(err), err)
}
