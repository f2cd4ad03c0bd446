// Package rcon fetches the player list from the game server over RCON.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gorcon/rcon"

	"mc-dashboard-backend/config"
	"mc-dashboard-backend/internal/parse"
)

// ErrAuth is returned when the server rejects the RCON password.
var ErrAuth = errors.New("rcon authentication failed")

// Client opens a short-lived RCON connection per call.
type Client struct {
	addr     string
	password string
	timeout  time.Duration
}

// NewClient creates a client for the configured endpoint.
func NewClient(cfg config.RCONConfig) *Client {
	return &Client{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		password: cfg.Password,
		timeout:  cfg.Timeout,
	}
}

// Execute runs a single command and returns the raw response.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	conn, err := rcon.Dial(c.addr, c.password,
		rcon.SetDialTimeout(c.timeout),
		rcon.SetDeadline(c.timeout),
	)
	if err != nil {
		if errors.Is(err, rcon.ErrAuthFailed) {
			return "", fmt.Errorf("%w: %s", ErrAuth, c.addr)
		}
		return "", fmt.Errorf("rcon dial %s: %w", c.addr, err)
	}
	defer conn.Close()

	resp, err := conn.Execute(command)
	if err != nil {
		return "", fmt.Errorf("rcon %q: %w", command, err)
	}
	return resp, nil
}

// FetchPlayers runs "list" and parses the online players and capacity.
func (c *Client) FetchPlayers(ctx context.Context) (*parse.PlayerList, error) {
	resp, err := c.Execute(ctx, "list")
	if err != nil {
		return nil, err
	}

	list, err := parse.ParsePlayerList(resp)
	if err != nil {
		return nil, err
	}
	return &list, nil
}
