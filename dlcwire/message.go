// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// code derived from https://github .com/btcsuite/btcd/blob/master/wire/message.go
// Copyright (C) 2015-2022 The Lightning Network Developers

package dlcwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxMsgBody is the largest payload any message is allowed to carry. DLC
// messages hold one adaptor signature per CET, so they are far larger than
// transport-level Lightning messages; splitting them into transport sized
// segments is left to the transport.
const MaxMsgBody = 1 << 24

// ProtocolVersion is the DLC protocol version written into every message.
const ProtocolVersion uint32 = 1

// MessageType is the unique 2 byte big-endian integer that indicates the type
// of message on the wire.
type MessageType uint16

// The currently defined DLC message types. The numbers are those the DLC
// specification assigns to its offer, accept and sign messages, but the
// payloads use this package's own field encoding, and the adaptor signatures
// they carry use this module's DLEQ proofs. Neither is compatible with other
// DLC implementations, so both parties must run this package.
const (
	MsgDlcOffer  MessageType = 42778
	MsgDlcAccept MessageType = 42780
	MsgDlcSign   MessageType = 42782
	MsgDlcClose  MessageType = 52170
)

// ErrorEncodeMessage is used when failed to encode the message payload.
func ErrorEncodeMessage(err error) error {
	return fmt.Errorf("failed to encode message to buffer, got %w", err)
}

// ErrorWriteMessageType is used when failed to write the message type.
func ErrorWriteMessageType(err error) error {
	return fmt.Errorf("failed to write message type, got %w", err)
}

// ErrorPayloadTooLarge is used when the payload size exceeds the
// MaxMsgBody.
func ErrorPayloadTooLarge(size int) error {
	return fmt.Errorf(
		"message payload is too large - encoded %d bytes, "+
			"but maximum message payload is %d bytes",
		size, MaxMsgBody,
	)
}

// String return the string representation of message type.
func (t MessageType) String() string {
	switch t {
	case MsgDlcOffer:
		return "DlcOffer"
	case MsgDlcAccept:
		return "DlcAccept"
	case MsgDlcSign:
		return "DlcSign"
	case MsgDlcClose:
		return "DlcClose"
	default:
		return "<unknown>"
	}
}

// UnknownMessage is an implementation of the error interface that allows the
// creation of an error in response to an unknown message.
type UnknownMessage struct {
	messageType MessageType
}

// Error returns a human readable string describing the error.
//
// This is part of the error interface.
func (u *UnknownMessage) Error() string {
	return fmt.Sprintf("unable to parse message of unknown type: %d",
		uint16(u.messageType))
}

// Serializable is an interface which defines a DLC wire serializable object.
type Serializable interface {
	// Decode reads the bytes stream and converts it to the object.
	Decode(io.Reader, uint32) error

	// Encode converts object to the bytes stream and write it into the
	// write buffer.
	Encode(*bytes.Buffer, uint32) error
}

// Message is an interface that defines a DLC wire protocol message. The
// interface is general in order to allow implementing types full control over
// the representation of its data.
type Message interface {
	Serializable
	MsgType() MessageType
}

// makeEmptyMessage creates a new empty message of the proper concrete type
// based on the passed message type.
func makeEmptyMessage(msgType MessageType) (Message, error) {
	var msg Message

	switch msgType {
	case MsgDlcOffer:
		msg = &DlcOffer{}
	case MsgDlcAccept:
		msg = &DlcAccept{}
	case MsgDlcSign:
		msg = &DlcSign{}
	case MsgDlcClose:
		msg = &DlcClose{}
	default:
		return nil, &UnknownMessage{msgType}
	}

	return msg, nil
}

// WriteMessage writes a DLC Message to a buffer including the necessary
// header information and returns the number of bytes written. If any error is
// encountered, the buffer passed will be reset to its original state since we
// don't want any broken bytes left. In other words, no bytes will be written
// if there's an error. Either all or none of the message bytes will be written
// to the buffer.
//
// NOTE: this method is not concurrent safe.
func WriteMessage(buf *bytes.Buffer, msg Message, pver uint32) (int, error) {
	// Record the size of the bytes already written in buffer.
	oldByteSize := buf.Len()

	// cleanBrokenBytes is a helper closure that helps reset the buffer to
	// its original state. It truncates all the bytes written in current
	// scope.
	var cleanBrokenBytes = func(b *bytes.Buffer) int {
		b.Truncate(oldByteSize)
		return 0
	}

	// Write the message type.
	var mType [2]byte
	binary.BigEndian.PutUint16(mType[:], uint16(msg.MsgType()))
	msgTypeBytes, err := buf.Write(mType[:])
	if err != nil {
		return cleanBrokenBytes(buf), ErrorWriteMessageType(err)
	}

	// Use the write buffer to encode our message.
	if err := msg.Encode(buf, pver); err != nil {
		return cleanBrokenBytes(buf), ErrorEncodeMessage(err)
	}

	// Enforce maximum overall message payload.
	lenp := buf.Len() - oldByteSize - msgTypeBytes
	if lenp > MaxMsgBody {
		return cleanBrokenBytes(buf), ErrorPayloadTooLarge(lenp)
	}

	return buf.Len() - oldByteSize, nil
}

// ReadMessage reads, validates, and parses the next DLC message from r for
// the provided protocol version. The reader must hold exactly one message:
// trailing bytes are taken as the message's extra data.
func ReadMessage(r io.Reader, pver uint32) (Message, error) {
	// First, we'll read out the first two bytes of the message so we can
	// create the proper empty message.
	var mType [2]byte
	if _, err := io.ReadFull(r, mType[:]); err != nil {
		return nil, err
	}

	msgType := MessageType(binary.BigEndian.Uint16(mType[:]))

	// Now that we know the target message type, we can create the proper
	// empty message type and decode the message into it.
	msg, err := makeEmptyMessage(msgType)
	if err != nil {
		return nil, err
	}
	if err := msg.Decode(io.LimitReader(r, MaxMsgBody), pver); err != nil {
		return nil, fmt.Errorf("decode %v: %w", msgType, err)
	}

	log.Tracef("Read %v message", msgType)

	return msg, nil
}
