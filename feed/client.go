// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/gaugeworks/gauge/lib/schema"
)

// dialTimeout is the maximum time to wait for a connection to the
// feed socket. Covers only the connect phase.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long a pull request waits for its
// response frame.
const responseReadTimeout = 30 * time.Second

// ServerError is returned when the server answers a request with a
// MessageTypeError frame.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("feed server error: %s", e.Message)
}

// Client is the consumer side of the feed protocol. Each request
// opens its own connection, matching the server's one-request-per-
// connection model; Subscribe holds its connection open for the
// snapshot stream.
type Client struct {
	socketPath string
}

// NewClient creates a client for the feed socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to feed socket %s: %w", c.socketPath, err)
	}
	return conn, nil
}

// call performs one request-response cycle: connect, send the request
// frame, read exactly one response frame, close.
func (c *Client) call(ctx context.Context, requestType byte, request any, wantType byte, result any) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(responseReadTimeout))
	}

	if err := WriteMessage(conn, requestType, request, false); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	response, err := ReadMessage(conn)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if response.Type == MessageTypeError {
		var payload ErrorPayload
		if err := decodePayload(response.Payload, &payload); err != nil {
			return fmt.Errorf("decoding error response: %w", err)
		}
		return &ServerError{Message: payload.Message}
	}
	if response.Type != wantType {
		return fmt.Errorf("unexpected response type %#x, want %#x", response.Type, wantType)
	}

	if err := decodePayload(response.Payload, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// History fetches the retained samples for one metric. Zero bounds
// mean the start of retained history and now respectively.
func (c *Client) History(ctx context.Context, metric schema.MetricID, fromMillis, toMillis int64) ([]schema.ResourceSample, error) {
	var response HistoryResponse
	err := c.call(ctx, MessageTypeHistoryRequest, HistoryRequest{
		MetricID:   metric,
		FromMillis: fromMillis,
		ToMillis:   toMillis,
	}, MessageTypeHistoryResponse, &response)
	if err != nil {
		return nil, err
	}
	return response.Samples, nil
}

// Devices fetches the current device descriptors and static machine
// inventory.
func (c *Client) Devices(ctx context.Context) (DeviceListResponse, error) {
	var response DeviceListResponse
	err := c.call(ctx, MessageTypeDeviceListRequest, struct{}{}, MessageTypeDeviceListResponse, &response)
	return response, err
}

// Status fetches feed server counters.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var response StatusResponse
	err := c.call(ctx, MessageTypeStatusRequest, struct{}{}, MessageTypeStatusResponse, &response)
	return response, err
}

// Subscription is a live snapshot stream. Receive snapshots from
// Snapshots; the channel closes when the stream ends. Call Close to
// end the stream early, then drain Err for the terminal error.
type Subscription struct {
	conn      net.Conn
	snapshots chan schema.Snapshot
	closed    atomic.Bool

	errOnce chan struct{}
	err     error
}

// Snapshots returns the stream channel. The channel closes when the
// connection drops, the server shuts down, or Close is called.
func (sub *Subscription) Snapshots() <-chan schema.Snapshot {
	return sub.snapshots
}

// Err returns the error that ended the stream, nil for a clean Close.
// Valid after the Snapshots channel has closed.
func (sub *Subscription) Err() error {
	<-sub.errOnce
	return sub.err
}

// Close ends the subscription and releases the connection.
func (sub *Subscription) Close() error {
	sub.closed.Store(true)
	return sub.conn.Close()
}

// Subscribe opens a snapshot stream. The server delivers the most
// recent snapshot immediately, then one per sampling cycle. The
// returned subscription must be closed when the consumer is done.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	if err := WriteMessage(conn, MessageTypeSubscribe, struct{}{}, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending subscribe request: %w", err)
	}

	sub := &Subscription{
		conn:      conn,
		snapshots: make(chan schema.Snapshot),
		errOnce:   make(chan struct{}),
	}

	// Close the connection when ctx ends so the reader unblocks.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(sub.snapshots)
		defer close(sub.errOnce)
		for {
			message, err := ReadMessage(conn)
			if err != nil {
				if ctx.Err() == nil && !sub.closed.Load() {
					sub.err = fmt.Errorf("reading snapshot stream: %w", err)
				}
				return
			}
			if message.Type != MessageTypeSnapshot {
				sub.err = fmt.Errorf("unexpected message type %#x in snapshot stream", message.Type)
				return
			}
			var snapshot schema.Snapshot
			if err := decodePayload(message.Payload, &snapshot); err != nil {
				sub.err = fmt.Errorf("decoding snapshot: %w", err)
				return
			}
			select {
			case sub.snapshots <- snapshot:
			case <-ctx.Done():
				return
			}
		}
	}()

	return sub, nil
}
