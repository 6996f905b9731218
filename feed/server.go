// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/gaugeworks/gauge/history"
	"github.com/gaugeworks/gauge/lib/schema"
	"github.com/gaugeworks/gauge/lib/version"
)

// readTimeout is how long the server waits for a client's request
// frame. A well-behaved client sends it immediately after connecting.
const readTimeout = 30 * time.Second

// writeTimeout bounds each response or snapshot frame write. A
// subscriber that cannot accept a frame within this window is
// considered dead and unsubscribed.
const writeTimeout = 10 * time.Second

// DefaultQueueDepth is the per-subscriber snapshot queue depth used
// when Options.QueueDepth is zero.
const DefaultQueueDepth = 8

// Options configures a Server.
type Options struct {
	// SocketPath is the Unix socket to listen on. Any stale socket
	// file at this path is removed before listening.
	SocketPath string

	// Store serves history requests.
	Store *history.Store

	// Machine is the static inventory returned with device lists.
	Machine schema.MachineInfo

	// QueueDepth bounds each subscriber's snapshot queue. When a
	// queue is full the oldest queued snapshot is dropped; the
	// subscriber resumes from the newest data once it catches up.
	QueueDepth int

	// Compress enables zstd compression of large payloads.
	Compress bool

	Logger *slog.Logger
}

// subscriber is one live snapshot stream. Frames are pre-encoded by
// Publish and fanned out; the per-connection writer goroutine drains
// the queue.
type subscriber struct {
	frames chan []byte
}

// Server serves the feed protocol on a Unix socket and fans published
// snapshots out to subscribers. It implements the collector's
// Publisher interface: Publish never blocks on a slow consumer.
type Server struct {
	socketPath string
	store      *history.Store
	machine    schema.MachineInfo
	queueDepth int
	compress   bool
	logger     *slog.Logger

	// activeConnections tracks in-flight connection handlers for
	// graceful shutdown.
	activeConnections sync.WaitGroup

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	latest      schema.Snapshot
	hasLatest   bool
	cycles      uint64
	dropped     uint64
}

// NewServer creates a feed server. Call Serve to start listening.
func NewServer(options Options) *Server {
	queueDepth := options.QueueDepth
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Server{
		socketPath:  options.SocketPath,
		store:       options.Store,
		machine:     options.Machine,
		queueDepth:  queueDepth,
		compress:    options.Compress,
		logger:      options.Logger,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Publish encodes the snapshot once and enqueues the frame for every
// subscriber. A full queue drops its oldest frame so the subscriber
// skips ahead rather than stalling publication.
func (s *Server) Publish(snapshot schema.Snapshot) {
	frame, err := EncodeMessage(MessageTypeSnapshot, snapshot, s.compress)
	if err != nil {
		s.logger.Error("encoding snapshot frame", "cycle", snapshot.Cycle, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = snapshot
	s.hasLatest = true
	s.cycles++
	for sub := range s.subscribers {
		s.enqueueLocked(sub, frame)
	}
}

// enqueueLocked delivers one frame to a subscriber queue with the
// drop-oldest overflow policy. Caller holds s.mu.
func (s *Server) enqueueLocked(sub *subscriber, frame []byte) {
	select {
	case sub.frames <- frame:
		return
	default:
	}

	// Queue full: evict the oldest frame and retry. The writer may
	// drain concurrently, so both selects stay non-blocking.
	select {
	case <-sub.frames:
		s.dropped++
	default:
	}
	select {
	case sub.frames <- frame:
	default:
		s.dropped++
	}
}

// Serve accepts connections until ctx is cancelled, then stops
// listening and waits for active connection handlers to finish. Any
// stale socket file is removed before listening and the socket file
// is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("feed listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// handleConnection reads the client's request frame and dispatches.
// Pull requests get one response frame and the connection closes;
// Subscribe turns the connection into a snapshot stream.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	request, err := ReadMessage(conn)
	if err != nil {
		s.logger.Debug("invalid feed request", "error", err)
		return
	}

	switch request.Type {
	case MessageTypeSubscribe:
		s.serveSubscriber(ctx, conn)

	case MessageTypeHistoryRequest:
		s.serveHistory(conn, request.Payload)

	case MessageTypeDeviceListRequest:
		s.serveDeviceList(conn)

	case MessageTypeStatusRequest:
		s.serveStatus(conn)

	default:
		s.writeError(conn, fmt.Sprintf("unknown message type %#x", request.Type))
	}
}

// serveSubscriber registers the connection for snapshot fan-out and
// writes frames until the subscriber dies or the server shuts down.
// The most recent snapshot is delivered immediately so a new consumer
// renders without waiting out a sampling interval.
func (s *Server) serveSubscriber(ctx context.Context, conn net.Conn) {
	sub := &subscriber{frames: make(chan []byte, s.queueDepth)}

	s.mu.Lock()
	if s.hasLatest {
		frame, err := EncodeMessage(MessageTypeSnapshot, s.latest, s.compress)
		if err == nil {
			sub.frames <- frame
		}
	}
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.subscribers, sub)
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-sub.frames:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := conn.Write(frame); err != nil {
				s.logger.Debug("subscriber write failed, unsubscribing", "error", err)
				return
			}
		}
	}
}

func (s *Server) serveHistory(conn net.Conn, payload []byte) {
	var request HistoryRequest
	if err := decodePayload(payload, &request); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid history request: %v", err))
		return
	}
	if request.MetricID == "" {
		s.writeError(conn, "missing required field: metric_id")
		return
	}

	toMillis := request.ToMillis
	if toMillis == 0 {
		toMillis = math.MaxInt64
	}
	samples := slices.Collect(s.store.ReadRange(request.MetricID, request.FromMillis, toMillis))

	s.writeResponse(conn, MessageTypeHistoryResponse, HistoryResponse{
		MetricID: request.MetricID,
		Samples:  samples,
	})
}

func (s *Server) serveDeviceList(conn net.Conn) {
	s.mu.Lock()
	devices := slices.Clone(s.latest.Devices)
	s.mu.Unlock()

	s.writeResponse(conn, MessageTypeDeviceListResponse, DeviceListResponse{
		Devices: devices,
		Machine: s.machine,
	})
}

func (s *Server) serveStatus(conn net.Conn) {
	s.mu.Lock()
	status := StatusResponse{
		Version:          version.Short(),
		Subscribers:      len(s.subscribers),
		CyclesPublished:  s.cycles,
		DroppedSnapshots: s.dropped,
	}
	s.mu.Unlock()

	s.writeResponse(conn, MessageTypeStatusResponse, status)
}

func (s *Server) writeResponse(conn net.Conn, messageType byte, value any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := WriteMessage(conn, messageType, value, s.compress); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// writeError sends a MessageTypeError frame. Write failures are
// logged at debug level — the connection is closing regardless.
func (s *Server) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := WriteMessage(conn, MessageTypeError, ErrorPayload{Message: message}, false); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}
