// Package dtc implements the fixed binary wire protocol spoken to trading
// clients. Every frame is a 4-byte header (size uint16, type uint16,
// little-endian) followed by a fixed-size payload. String fields are
// fixed-width, NUL-padded, and truncated deterministically on overflow.
package dtc

import (
	"encoding/binary"
	"math"

	"main/pkg/exception"
)

// HeaderSize is the byte length of the frame header.
const HeaderSize = 4

// Total encoded frame sizes per message type, header included.
const (
	LogonRequestSize           = HeaderSize + 4 + UsernameCap + PasswordCap + TextCap
	LogonResponseSize          = HeaderSize + 4 + ResultCap
	HeartbeatSize              = HeaderSize
	LogoffSize                 = HeaderSize + ReasonCap
	MarketDataRequestSize      = HeaderSize + 4 + 4 + SymbolCap
	MarketDataUpdateTradeSize  = HeaderSize + 4 + 8 + 8 + 8
	MarketDataUpdateBidAskSize = HeaderSize + 4 + 8 + 8 + 8 + 8 + 8
)

// MaxFrameSize is the largest frame any known type can produce.
const MaxFrameSize = LogonRequestSize

// FrameSize returns the fixed encoded size for a message type.
// The second return reports membership in the closed opcode set.
func FrameSize(t MsgType) (int, bool) {
	switch t {
	case MsgLogonRequest:
		return LogonRequestSize, true
	case MsgLogonResponse:
		return LogonResponseSize, true
	case MsgHeartbeat:
		return HeartbeatSize, true
	case MsgLogoff:
		return LogoffSize, true
	case MsgMarketDataRequest:
		return MarketDataRequestSize, true
	case MsgMarketDataUpdateTrade:
		return MarketDataUpdateTradeSize, true
	case MsgMarketDataUpdateBidAsk:
		return MarketDataUpdateBidAskSize, true
	default:
		return 0, false
	}
}

func putHeader(dst []byte, size int, t MsgType) {
	binary.LittleEndian.PutUint16(dst[0:2], uint16(size))
	binary.LittleEndian.PutUint16(dst[2:4], uint16(t))
}

// putString writes s into dst NUL-padded, truncating past the field width.
func putString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// cstring reads a NUL-terminated fixed-width field.
func cstring(src []byte) string {
	for i := range src {
		if src[i] == 0 {
			return string(src[:i])
		}
	}
	return string(src)
}

func grow(dst []byte, size int) []byte {
	if cap(dst) < size {
		return make([]byte, size)
	}
	return dst[:size]
}

// EncodeLogonRequest serializes a logon request into a full frame.
func EncodeLogonRequest(dst []byte, m LogonRequest) []byte {
	dst = grow(dst, LogonRequestSize)
	putHeader(dst, LogonRequestSize, MsgLogonRequest)
	binary.LittleEndian.PutUint32(dst[4:8], m.ProtocolVersion)
	putString(dst[8:40], m.Username)
	putString(dst[40:72], m.Password)
	putString(dst[72:136], m.GeneralText)
	return dst
}

// EncodeLogonResponse serializes a logon response into a full frame.
func EncodeLogonResponse(dst []byte, m LogonResponse) []byte {
	dst = grow(dst, LogonResponseSize)
	putHeader(dst, LogonResponseSize, MsgLogonResponse)
	binary.LittleEndian.PutUint32(dst[4:8], m.Result)
	putString(dst[8:104], m.ResultText)
	return dst
}

// EncodeHeartbeat serializes an empty heartbeat frame.
func EncodeHeartbeat(dst []byte) []byte {
	dst = grow(dst, HeartbeatSize)
	putHeader(dst, HeartbeatSize, MsgHeartbeat)
	return dst
}

// EncodeLogoff serializes a logoff frame.
func EncodeLogoff(dst []byte, m Logoff) []byte {
	dst = grow(dst, LogoffSize)
	putHeader(dst, LogoffSize, MsgLogoff)
	putString(dst[4:100], m.Reason)
	return dst
}

// EncodeMarketDataRequest serializes a subscribe/unsubscribe request.
func EncodeMarketDataRequest(dst []byte, m MarketDataRequest) []byte {
	dst = grow(dst, MarketDataRequestSize)
	putHeader(dst, MarketDataRequestSize, MsgMarketDataRequest)
	binary.LittleEndian.PutUint32(dst[4:8], m.Action)
	binary.LittleEndian.PutUint32(dst[8:12], m.SymbolID)
	putString(dst[12:36], m.Symbol)
	return dst
}

// EncodeTradeUpdate serializes a trade update frame.
func EncodeTradeUpdate(dst []byte, m MarketDataUpdateTrade) []byte {
	dst = grow(dst, MarketDataUpdateTradeSize)
	putHeader(dst, MarketDataUpdateTradeSize, MsgMarketDataUpdateTrade)
	binary.LittleEndian.PutUint32(dst[4:8], m.SymbolID)
	binary.LittleEndian.PutUint64(dst[8:16], math.Float64bits(m.Price))
	binary.LittleEndian.PutUint64(dst[16:24], math.Float64bits(m.Volume))
	binary.LittleEndian.PutUint64(dst[24:32], m.Timestamp)
	return dst
}

// EncodeBidAskUpdate serializes a top-of-book update frame.
func EncodeBidAskUpdate(dst []byte, m MarketDataUpdateBidAsk) []byte {
	dst = grow(dst, MarketDataUpdateBidAskSize)
	putHeader(dst, MarketDataUpdateBidAskSize, MsgMarketDataUpdateBidAsk)
	binary.LittleEndian.PutUint32(dst[4:8], m.SymbolID)
	binary.LittleEndian.PutUint64(dst[8:16], math.Float64bits(m.BidPrice))
	binary.LittleEndian.PutUint64(dst[16:24], math.Float64bits(m.BidQty))
	binary.LittleEndian.PutUint64(dst[24:32], math.Float64bits(m.AskPrice))
	binary.LittleEndian.PutUint64(dst[32:40], math.Float64bits(m.AskQty))
	binary.LittleEndian.PutUint64(dst[40:48], m.Timestamp)
	return dst
}

// Encode serializes any known message into a full frame.
func Encode(dst []byte, m Message) ([]byte, error) {
	switch msg := m.(type) {
	case LogonRequest:
		return EncodeLogonRequest(dst, msg), nil
	case LogonResponse:
		return EncodeLogonResponse(dst, msg), nil
	case Heartbeat:
		return EncodeHeartbeat(dst), nil
	case Logoff:
		return EncodeLogoff(dst, msg), nil
	case MarketDataRequest:
		return EncodeMarketDataRequest(dst, msg), nil
	case MarketDataUpdateTrade:
		return EncodeTradeUpdate(dst, msg), nil
	case MarketDataUpdateBidAsk:
		return EncodeBidAskUpdate(dst, msg), nil
	default:
		return nil, exception.ErrUnknownType
	}
}

// PeekSize reads the declared frame size from a buffered header.
// Returns false when fewer than HeaderSize bytes are available.
func PeekSize(buf []byte) (int, bool) {
	if len(buf) < HeaderSize {
		return 0, false
	}
	return int(binary.LittleEndian.Uint16(buf[0:2])), true
}

// Decode parses one complete frame. It is all-or-nothing: on any error no
// message is returned and the caller's state is untouched.
func Decode(frame []byte) (Message, error) {
	if len(frame) < HeaderSize {
		return nil, exception.ErrTruncatedHeader
	}
	size := int(binary.LittleEndian.Uint16(frame[0:2]))
	msgType := MsgType(binary.LittleEndian.Uint16(frame[2:4]))
	if size != len(frame) {
		return nil, exception.ErrSizeMismatch
	}
	fixed, known := FrameSize(msgType)
	if !known {
		return nil, exception.ErrUnknownType
	}
	if size < fixed {
		return nil, exception.ErrTruncatedPayload
	}
	if size > fixed {
		return nil, exception.ErrSizeMismatch
	}

	switch msgType {
	case MsgLogonRequest:
		return LogonRequest{
			ProtocolVersion: binary.LittleEndian.Uint32(frame[4:8]),
			Username:        cstring(frame[8:40]),
			Password:        cstring(frame[40:72]),
			GeneralText:     cstring(frame[72:136]),
		}, nil
	case MsgLogonResponse:
		return LogonResponse{
			Result:     binary.LittleEndian.Uint32(frame[4:8]),
			ResultText: cstring(frame[8:104]),
		}, nil
	case MsgHeartbeat:
		return Heartbeat{}, nil
	case MsgLogoff:
		return Logoff{Reason: cstring(frame[4:100])}, nil
	case MsgMarketDataRequest:
		return MarketDataRequest{
			Action:   binary.LittleEndian.Uint32(frame[4:8]),
			SymbolID: binary.LittleEndian.Uint32(frame[8:12]),
			Symbol:   cstring(frame[12:36]),
		}, nil
	case MsgMarketDataUpdateTrade:
		return MarketDataUpdateTrade{
			SymbolID:  binary.LittleEndian.Uint32(frame[4:8]),
			Price:     math.Float64frombits(binary.LittleEndian.Uint64(frame[8:16])),
			Volume:    math.Float64frombits(binary.LittleEndian.Uint64(frame[16:24])),
			Timestamp: binary.LittleEndian.Uint64(frame[24:32]),
		}, nil
	default:
		return MarketDataUpdateBidAsk{
			SymbolID:  binary.LittleEndian.Uint32(frame[4:8]),
			BidPrice:  math.Float64frombits(binary.LittleEndian.Uint64(frame[8:16])),
			BidQty:    math.Float64frombits(binary.LittleEndian.Uint64(frame[16:24])),
			AskPrice:  math.Float64frombits(binary.LittleEndian.Uint64(frame[24:32])),
			AskQty:    math.Float64frombits(binary.LittleEndian.Uint64(frame[32:40])),
			Timestamp: binary.LittleEndian.Uint64(frame[40:48]),
		}, nil
	}
}
