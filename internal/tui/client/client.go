package client

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/mailmirror/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client holds the typed service clients for one session daemon.
type Client struct {
	conn    *grpc.ClientConn
	Session *rpc.SessionServiceClient
	Threads *rpc.ThreadServiceClient
}

// New prepares a client for the daemon socket. Nothing is dialed until the
// first call.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpc.CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}

	return &Client{
		conn:    conn,
		Session: rpc.NewSessionServiceClient(conn),
		Threads: rpc.NewThreadServiceClient(conn),
	}, nil
}

// Ping makes one status call, bounded by timeout.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.Session.GetStatus(ctx, &rpc.Empty{})
	return err
}

// WaitReady pings every interval until the daemon answers or ctx ends, and
// returns the last ping error in the latter case.
func (c *Client) WaitReady(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		err := c.Ping(ctx, interval)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("daemon not ready: %w", err)
		case <-t.C:
		}
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}
