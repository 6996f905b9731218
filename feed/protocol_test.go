// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/gaugeworks/gauge/lib/schema"
)

func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()

	request := HistoryRequest{
		MetricID:   schema.MetricCPUUtilization,
		FromMillis: 1000,
		ToMillis:   2000,
	}

	var buffer bytes.Buffer
	if err := WriteMessage(&buffer, MessageTypeHistoryRequest, request, false); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	message, err := ReadMessage(&buffer)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if message.Type != MessageTypeHistoryRequest {
		t.Errorf("message type = %#x, want %#x", message.Type, MessageTypeHistoryRequest)
	}

	var decoded HistoryRequest
	if err := decodePayload(message.Payload, &decoded); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if decoded != request {
		t.Errorf("round trip = %+v, want %+v", decoded, request)
	}
}

func TestSmallPayloadNotCompressed(t *testing.T) {
	t.Parallel()

	frame, err := EncodeMessage(MessageTypeStatusRequest, struct{}{}, true)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if frame[1]&FlagCompressed != 0 {
		t.Error("small payload unexpectedly compressed")
	}
}

func TestLargePayloadCompressed(t *testing.T) {
	t.Parallel()

	// A process table large enough to clear the threshold, with
	// repetitive content that compresses well.
	snapshot := schema.Snapshot{Cycle: 7}
	for pid := int32(1); pid <= 500; pid++ {
		snapshot.Processes = append(snapshot.Processes, schema.ProcessRecord{
			PID:  pid,
			Name: "background-worker-process",
		})
	}

	frame, err := EncodeMessage(MessageTypeSnapshot, snapshot, true)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if frame[1]&FlagCompressed == 0 {
		t.Fatal("large payload not compressed")
	}

	// The compressed frame still decodes transparently.
	message, err := ReadMessage(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var decoded schema.Snapshot
	if err := decodePayload(message.Payload, &decoded); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if decoded.Cycle != 7 || len(decoded.Processes) != 500 {
		t.Errorf("decoded cycle=%d processes=%d, want cycle=7 processes=500",
			decoded.Cycle, len(decoded.Processes))
	}
}

func TestCompressionDisabled(t *testing.T) {
	t.Parallel()

	snapshot := schema.Snapshot{}
	for pid := int32(1); pid <= 500; pid++ {
		snapshot.Processes = append(snapshot.Processes, schema.ProcessRecord{PID: pid})
	}

	frame, err := EncodeMessage(MessageTypeSnapshot, snapshot, false)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if frame[1]&FlagCompressed != 0 {
		t.Error("payload compressed with compression disabled")
	}
}

func TestReadMessageRejectsOversizedPayload(t *testing.T) {
	t.Parallel()

	var header [messageHeaderLength]byte
	header[0] = MessageTypeSnapshot
	binary.BigEndian.PutUint32(header[2:6], maxPayloadLength+1)

	_, err := ReadMessage(bytes.NewReader(header[:]))
	if err == nil {
		t.Fatal("ReadMessage accepted oversized payload length")
	}
	if !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("error = %v, want payload length rejection", err)
	}
}

func TestReadMessageTruncatedStream(t *testing.T) {
	t.Parallel()

	frame, err := EncodeMessage(MessageTypeHistoryRequest, HistoryRequest{MetricID: "cpu.utilization"}, false)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	// Header promises more payload than the stream carries.
	_, err = ReadMessage(bytes.NewReader(frame[:len(frame)-1]))
	if err == nil {
		t.Fatal("ReadMessage accepted truncated stream")
	}
}
