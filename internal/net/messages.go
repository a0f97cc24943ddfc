// Package net implements the wire transport: fixed-width big-endian
// framing over TCP, generalized from the teacher's original
// NewOrderMessage/CancelOrderMessage/Report framing to the full order-type
// matrix and integer-tick pricing.
package net

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"fenrir/internal/common"
	"fenrir/internal/engine"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short for declared body")
)

// MessageType tags the wire frame's body shape.
type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	ModifyOrder
	SnapshotRequest
)

// ReportMessageType tags an outbound server->client frame.
type ReportMessageType uint8

const (
	ExecutionReport ReportMessageType = iota
	CancelReport
	ModifyReport
	ErrorReport
	SnapshotReport
)

// Message is any parsed inbound frame.
type Message interface {
	GetType() MessageType
}

const baseHeaderLen = 2 // MessageType, big-endian uint16

type BaseMessage struct {
	TypeOf MessageType
}

func (m BaseMessage) GetType() MessageType { return m.TypeOf }

// ParseMessage strips the common header and dispatches to the body parser
// for typeOf.
func ParseMessage(msg []byte) (Message, error) {
	if len(msg) < baseHeaderLen {
		return nil, ErrMessageTooShort
	}
	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	body := msg[2:]
	switch typeOf {
	case NewOrder:
		return parseNewOrder(body)
	case CancelOrder:
		return parseCancelOrder(body)
	case ModifyOrder:
		return parseModifyOrder(body)
	case SnapshotRequest:
		return SnapshotRequestMessage{}, nil
	default:
		return nil, ErrInvalidMessageType
	}
}

// NewOrderMessage is the wire body for a submission. Fixed-width fields
// carry every order-type parameter the matrix needs (pegged offset,
// trailing offset, stop trigger, GTD deadline); unused fields for a given
// OrderType are simply zero on the wire.
type NewOrderMessage struct {
	BaseMessage
	Side         common.Side
	OrderType    common.OrderType
	Price        int64
	QtyTotal     uint64
	QtyVisible   uint64
	QtyReplenish uint64
	HasExpiry    bool
	TIFExpiry    int64
	PegRef       common.PegReference
	PegOffset    int64
	TrailOffset  int64
	StopTrigger  int64
	UsernameLen  uint8
	Username     string
}

const newOrderHeaderLen = 1 + 1 + 8 + 8 + 8 + 8 + 1 + 8 + 1 + 8 + 8 + 8 + 1 // = 69

// Spec converts the wire message into an engine.OrderSpec.
func (m NewOrderMessage) Spec() engine.OrderSpec {
	spec := engine.OrderSpec{
		Side:         m.Side,
		Price:        m.Price,
		Type:         m.OrderType,
		QtyTotal:     m.QtyTotal,
		QtyVisible:   m.QtyVisible,
		QtyReplenish: m.QtyReplenish,
		PegRef:       m.PegRef,
		PegOffset:    m.PegOffset,
		TrailOffset:  m.TrailOffset,
		StopTrigger:  m.StopTrigger,
		Owner:        m.Username,
	}
	if m.HasExpiry {
		expiry := m.TIFExpiry
		spec.TIFExpiry = &expiry
	}
	return spec
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	if len(msg) < newOrderHeaderLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}
	off := 0

	m.Side = common.Side(msg[off])
	off++
	m.OrderType = common.OrderType(msg[off])
	off++
	m.Price = int64(binary.BigEndian.Uint64(msg[off : off+8]))
	off += 8
	m.QtyTotal = binary.BigEndian.Uint64(msg[off : off+8])
	off += 8
	m.QtyVisible = binary.BigEndian.Uint64(msg[off : off+8])
	off += 8
	m.QtyReplenish = binary.BigEndian.Uint64(msg[off : off+8])
	off += 8
	m.HasExpiry = msg[off] != 0
	off++
	m.TIFExpiry = int64(binary.BigEndian.Uint64(msg[off : off+8]))
	off += 8
	m.PegRef = common.PegReference(msg[off])
	off++
	m.PegOffset = int64(binary.BigEndian.Uint64(msg[off : off+8]))
	off += 8
	m.TrailOffset = int64(binary.BigEndian.Uint64(msg[off : off+8]))
	off += 8
	m.StopTrigger = int64(binary.BigEndian.Uint64(msg[off : off+8]))
	off += 8
	m.UsernameLen = msg[off]
	off++

	if len(msg) < off+int(m.UsernameLen) {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.Username = string(msg[off : off+int(m.UsernameLen)])
	return m, nil
}

// Serialize renders m onto the wire, including the shared message header.
func (m NewOrderMessage) Serialize() []byte {
	buf := make([]byte, baseHeaderLen+newOrderHeaderLen+len(m.Username))
	binary.BigEndian.PutUint16(buf[0:2], uint16(NewOrder))

	off := baseHeaderLen
	buf[off] = byte(m.Side)
	off++
	buf[off] = byte(m.OrderType)
	off++
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(m.Price))
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], m.QtyTotal)
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], m.QtyVisible)
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], m.QtyReplenish)
	off += 8
	if m.HasExpiry {
		buf[off] = 1
	}
	off++
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(m.TIFExpiry))
	off += 8
	buf[off] = byte(m.PegRef)
	off++
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(m.PegOffset))
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(m.TrailOffset))
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(m.StopTrigger))
	off += 8
	buf[off] = uint8(len(m.Username))
	off++
	copy(buf[off:], m.Username)
	return buf
}

// CancelOrderMessage is the wire body for a cancellation.
type CancelOrderMessage struct {
	BaseMessage
	OrderID common.OrderID
}

const cancelOrderHeaderLen = 16

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	if len(msg) < cancelOrderHeaderLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	id, err := uuid.FromBytes(msg[0:16])
	if err != nil {
		return CancelOrderMessage{}, fmt.Errorf("parsing order id: %w", err)
	}
	return CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}, OrderID: id}, nil
}

func (m CancelOrderMessage) Serialize() []byte {
	buf := make([]byte, baseHeaderLen+cancelOrderHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(CancelOrder))
	copy(buf[baseHeaderLen:], m.OrderID[:])
	return buf
}

// ModifyOrderMessage is the wire body for a quantity-decrease modification.
type ModifyOrderMessage struct {
	BaseMessage
	OrderID common.OrderID
	NewQty  uint64
}

const modifyOrderHeaderLen = 16 + 8

func parseModifyOrder(msg []byte) (ModifyOrderMessage, error) {
	if len(msg) < modifyOrderHeaderLen {
		return ModifyOrderMessage{}, ErrMessageTooShort
	}
	id, err := uuid.FromBytes(msg[0:16])
	if err != nil {
		return ModifyOrderMessage{}, fmt.Errorf("parsing order id: %w", err)
	}
	newQty := binary.BigEndian.Uint64(msg[16:24])
	return ModifyOrderMessage{BaseMessage: BaseMessage{TypeOf: ModifyOrder}, OrderID: id, NewQty: newQty}, nil
}

func (m ModifyOrderMessage) Serialize() []byte {
	buf := make([]byte, baseHeaderLen+modifyOrderHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(ModifyOrder))
	copy(buf[baseHeaderLen:baseHeaderLen+16], m.OrderID[:])
	binary.BigEndian.PutUint64(buf[baseHeaderLen+16:baseHeaderLen+24], m.NewQty)
	return buf
}

// SnapshotRequestMessage asks the server for the current depth snapshot.
type SnapshotRequestMessage struct{ BaseMessage }

func (m SnapshotRequestMessage) Serialize() []byte {
	buf := make([]byte, baseHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(SnapshotRequest))
	return buf
}

// Report is the wire body for every outbound server->client frame: fill
// reports, cancel/modify acks, errors, and snapshots piggyback on the same
// shape, with unused fields left zero.
type Report struct {
	Kind         ReportMessageType
	OrderID      common.OrderID
	Status       common.Status
	RejectReason common.RejectReason
	Price        int64
	Qty          uint64
	Timestamp    int64
	ErrStrLen    uint16
	Err          string
}

const reportFixedHeaderLen = 1 + 16 + 1 + 1 + 8 + 8 + 8 + 2

// Serialize renders the report onto the wire.
func (r Report) Serialize() []byte {
	total := reportFixedHeaderLen + len(r.Err)
	buf := make([]byte, total)

	buf[0] = byte(r.Kind)
	copy(buf[1:17], r.OrderID[:])
	buf[17] = byte(r.Status)
	buf[18] = byte(r.RejectReason)
	binary.BigEndian.PutUint64(buf[19:27], uint64(r.Price))
	binary.BigEndian.PutUint64(buf[27:35], r.Qty)
	binary.BigEndian.PutUint64(buf[35:43], uint64(r.Timestamp))
	binary.BigEndian.PutUint16(buf[43:45], uint16(len(r.Err)))
	copy(buf[reportFixedHeaderLen:], r.Err)
	return buf
}

// reportFromOutcome builds a single execution report from an OutcomeReport.
func reportFromOutcome(out engine.OutcomeReport, now int64) Report {
	r := Report{
		Kind:         ExecutionReport,
		OrderID:      out.OrderID,
		Status:       out.Status,
		RejectReason: out.RejectReason,
		Timestamp:    now,
	}
	if len(out.Trades) > 0 {
		last := out.Trades[len(out.Trades)-1]
		r.Price = last.Price
		var qty uint64
		for _, t := range out.Trades {
			qty += t.Qty
		}
		r.Qty = qty
	}
	return r
}

func reportFromError(err error, now int64) Report {
	return Report{Kind: ErrorReport, Timestamp: now, Err: err.Error()}
}
