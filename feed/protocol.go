// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

// Package feed implements the collector's IPC surface: a framed CBOR
// protocol on a Unix domain socket. Consumers either subscribe to the
// live snapshot stream or issue one-shot pull requests (history,
// device list, status).
//
// The package is organized around the feed data flow:
//
//   - protocol.go: wire format (framed CBOR messages, zstd payloads)
//   - server.go: socket server, per-subscriber fan-out queues
//   - client.go: consumer side, used by the gauge CLI and tests
package feed

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/gaugeworks/gauge/lib/codec"
	"github.com/gaugeworks/gauge/lib/schema"
)

// Message type constants for the feed wire format. Each message is a
// 6-byte header (1 byte type + 1 byte flags + 4 byte big-endian
// payload length) followed by a CBOR payload. These values are
// protocol constants — changing them breaks consumers.
const (
	// MessageTypeSubscribe opens a snapshot stream. Client→server,
	// sent once after connecting; the server then holds the
	// connection open and pushes MessageTypeSnapshot frames.
	MessageTypeSubscribe byte = 0x01

	// MessageTypeSnapshot carries one schema.Snapshot. Server→client
	// only, pushed once per sampling cycle to every subscriber.
	MessageTypeSnapshot byte = 0x02

	// MessageTypeHistoryRequest asks for the stored samples of one
	// metric within a time range. Answered with
	// MessageTypeHistoryResponse and the connection closes.
	MessageTypeHistoryRequest  byte = 0x03
	MessageTypeHistoryResponse byte = 0x04

	// MessageTypeDeviceListRequest asks for the current device
	// descriptors plus static machine inventory.
	MessageTypeDeviceListRequest  byte = 0x05
	MessageTypeDeviceListResponse byte = 0x06

	// MessageTypeStatusRequest asks for feed server counters.
	MessageTypeStatusRequest  byte = 0x07
	MessageTypeStatusResponse byte = 0x08

	// MessageTypeError carries an ErrorPayload in response to a
	// request the server could not serve. The connection closes
	// after this frame.
	MessageTypeError byte = 0x7f
)

// FlagCompressed marks a zstd-compressed payload. The decoded frame
// payload is always plain CBOR; compression is transparent to
// handlers on both sides.
const FlagCompressed byte = 0x01

// messageHeaderLength is the fixed size of a frame header: 1 byte
// type + 1 byte flags + 4 bytes payload length.
const messageHeaderLength = 6

// maxPayloadLength bounds a single frame payload. 16 MB is generous:
// a full snapshot with a large process table encodes well under 1 MB.
const maxPayloadLength = 16 * 1024 * 1024

// compressThreshold is the encoded size above which WriteMessage
// compresses the payload. Small frames (requests, device lists) skip
// compression; snapshot frames with process tables clear it easily.
const compressThreshold = 4 * 1024

// zstd encoder/decoder in stateless EncodeAll/DecodeAll mode, shared
// by all connections.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("feed: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("feed: zstd decoder initialization failed: " + err.Error())
	}
}

// Message is a single feed protocol message: a type byte and a
// decoded (uncompressed) CBOR payload.
type Message struct {
	Type    byte
	Payload []byte
}

// EncodeMessage marshals value to CBOR and frames it, compressing the
// payload when it exceeds the threshold and compress is enabled.
// Returns the complete frame bytes ready for a single Write.
func EncodeMessage(messageType byte, value any, compress bool) ([]byte, error) {
	payload, err := codec.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding payload for message type %#x: %w", messageType, err)
	}

	var flags byte
	if compress && len(payload) > compressThreshold {
		payload = zstdEncoder.EncodeAll(payload, nil)
		flags |= FlagCompressed
	}

	frame := make([]byte, messageHeaderLength+len(payload))
	frame[0] = messageType
	frame[1] = flags
	binary.BigEndian.PutUint32(frame[2:6], uint32(len(payload)))
	copy(frame[messageHeaderLength:], payload)
	return frame, nil
}

// WriteMessage encodes value and writes the frame to w.
func WriteMessage(w io.Writer, messageType byte, value any, compress bool) error {
	frame, err := EncodeMessage(messageType, value, compress)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing message type %#x: %w", messageType, err)
	}
	return nil
}

// ReadMessage reads one frame from r and returns the message with its
// payload decompressed. Returns an error if the stream is malformed
// or the payload exceeds maxPayloadLength.
func ReadMessage(r io.Reader) (Message, error) {
	var header [messageHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, fmt.Errorf("reading message header: %w", err)
	}
	messageType := header[0]
	flags := header[1]
	payloadLength := binary.BigEndian.Uint32(header[2:6])
	if payloadLength > maxPayloadLength {
		return Message{}, fmt.Errorf("payload length %d exceeds maximum %d", payloadLength, maxPayloadLength)
	}

	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Message{}, fmt.Errorf("reading message payload: %w", err)
		}
	}

	if flags&FlagCompressed != 0 {
		decoded, err := zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return Message{}, fmt.Errorf("decompressing message payload: %w", err)
		}
		payload = decoded
	}

	return Message{Type: messageType, Payload: payload}, nil
}

// decodePayload unmarshals a frame payload into value.
func decodePayload(payload []byte, value any) error {
	return codec.Unmarshal(payload, value)
}

// HistoryRequest asks for stored samples of one metric. The bounds
// are inclusive Unix milliseconds; FromMillis zero means the start of
// retained history, ToMillis zero means now.
type HistoryRequest struct {
	MetricID   schema.MetricID `cbor:"metric_id"`
	FromMillis int64           `cbor:"from,omitempty"`
	ToMillis   int64           `cbor:"to,omitempty"`
}

// HistoryResponse carries the samples within the requested range, in
// ascending timestamp order.
type HistoryResponse struct {
	MetricID schema.MetricID         `cbor:"metric_id"`
	Samples  []schema.ResourceSample `cbor:"samples"`
}

// DeviceListResponse carries the device set from the most recent
// sampling cycle plus the static machine inventory.
type DeviceListResponse struct {
	Devices []schema.DeviceDescriptor `cbor:"devices"`
	Machine schema.MachineInfo        `cbor:"machine"`
}

// StatusResponse reports feed server counters for diagnostics.
type StatusResponse struct {
	Version         string `cbor:"version"`
	Subscribers     int    `cbor:"subscribers"`
	CyclesPublished uint64 `cbor:"cycles_published"`

	// DroppedSnapshots counts snapshots discarded by the per-
	// subscriber drop-oldest policy, summed across all subscribers
	// since startup.
	DroppedSnapshots uint64 `cbor:"dropped_snapshots"`
}

// ErrorPayload is the body of a MessageTypeError frame.
type ErrorPayload struct {
	Message string `cbor:"message"`
}
