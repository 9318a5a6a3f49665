package dtc

import (
	"encoding/binary"
	"errors"
	"testing"

	"main/pkg/exception"
)

func TestLogonRequestRoundTrip(t *testing.T) {
	in := LogonRequest{
		ProtocolVersion: ProtocolVersion,
		Username:        "trader1",
		Password:        "hunter2",
		GeneralText:     "hello",
	}
	frame := EncodeLogonRequest(nil, in)
	if len(frame) != LogonRequestSize {
		t.Fatalf("frame size = %d, want %d", len(frame), LogonRequestSize)
	}
	if got := binary.LittleEndian.Uint16(frame[0:2]); int(got) != LogonRequestSize {
		t.Fatalf("header size = %d, want %d", got, LogonRequestSize)
	}
	if got := binary.LittleEndian.Uint16(frame[2:4]); MsgType(got) != MsgLogonRequest {
		t.Fatalf("header type = %d, want %d", got, MsgLogonRequest)
	}

	msg, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out, ok := msg.(LogonRequest)
	if !ok {
		t.Fatalf("decoded %T, want LogonRequest", msg)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestLogonResponseRoundTrip(t *testing.T) {
	in := LogonResponse{Result: LogonFailure, ResultText: "invalid credentials"}
	frame := EncodeLogonResponse(nil, in)
	if len(frame) != LogonResponseSize {
		t.Fatalf("frame size = %d, want %d", len(frame), LogonResponseSize)
	}

	msg, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out := msg.(LogonResponse); out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	frame := EncodeHeartbeat(nil)
	if len(frame) != HeartbeatSize {
		t.Fatalf("frame size = %d, want %d", len(frame), HeartbeatSize)
	}
	msg, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := msg.(Heartbeat); !ok {
		t.Fatalf("decoded %T, want Heartbeat", msg)
	}
}

func TestLogoffRoundTrip(t *testing.T) {
	in := Logoff{Reason: "client shutdown"}
	msg, err := Decode(EncodeLogoff(nil, in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out := msg.(Logoff); out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestMarketDataRequestRoundTrip(t *testing.T) {
	in := MarketDataRequest{Action: ActionSubscribe, SymbolID: 7, Symbol: "BTC-USD"}
	msg, err := Decode(EncodeMarketDataRequest(nil, in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out := msg.(MarketDataRequest); out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestTradeUpdateRoundTrip(t *testing.T) {
	in := MarketDataUpdateTrade{
		SymbolID:  3,
		Price:     64250.5,
		Volume:    0.0125,
		Timestamp: 1735689600123,
	}
	frame := EncodeTradeUpdate(nil, in)
	if len(frame) != MarketDataUpdateTradeSize {
		t.Fatalf("frame size = %d, want %d", len(frame), MarketDataUpdateTradeSize)
	}
	msg, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out := msg.(MarketDataUpdateTrade); out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestBidAskUpdateRoundTrip(t *testing.T) {
	in := MarketDataUpdateBidAsk{
		SymbolID:  9,
		BidPrice:  64250.0,
		BidQty:    1.5,
		AskPrice:  64250.5,
		AskQty:    0.75,
		Timestamp: 1735689600456,
	}
	msg, err := Decode(EncodeBidAskUpdate(nil, in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out := msg.(MarketDataUpdateBidAsk); out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestEncodeReusesCapacity(t *testing.T) {
	buf := make([]byte, 0, MaxFrameSize)
	frame := EncodeHeartbeat(buf)
	if &frame[0] != &buf[:1][0] {
		t.Fatal("encode allocated despite sufficient capacity")
	}
}

func TestStringFieldsTruncateAtCapacity(t *testing.T) {
	long := make([]byte, 2*SymbolCap)
	for i := range long {
		long[i] = 'A'
	}
	in := MarketDataRequest{Action: ActionSubscribe, SymbolID: 1, Symbol: string(long)}
	msg, err := Decode(EncodeMarketDataRequest(nil, in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out := msg.(MarketDataRequest)
	if len(out.Symbol) != SymbolCap {
		t.Fatalf("symbol length = %d, want %d", len(out.Symbol), SymbolCap)
	}
}

func TestDecodeTruncatedHeader(t *testing.T) {
	if _, err := Decode([]byte{0x88}); !errors.Is(err, exception.ErrTruncatedHeader) {
		t.Fatalf("1-byte frame: err = %v, want ErrTruncatedHeader", err)
	}
	if _, err := Decode([]byte{0x88, 0x00}); !errors.Is(err, exception.ErrTruncatedHeader) {
		t.Fatalf("2-byte frame: err = %v, want ErrTruncatedHeader", err)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	frame := make([]byte, 8)
	binary.LittleEndian.PutUint16(frame[0:2], 8)
	binary.LittleEndian.PutUint16(frame[2:4], 9999)
	if _, err := Decode(frame); !errors.Is(err, exception.ErrUnknownType) {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
}

func TestDecodeRejectsAdjacentOpcodes(t *testing.T) {
	// Opcodes neighboring the known set must not slip through.
	for _, typ := range []uint16{4, 6, 100, 102, 106, 109} {
		frame := make([]byte, 8)
		binary.LittleEndian.PutUint16(frame[0:2], 8)
		binary.LittleEndian.PutUint16(frame[2:4], typ)
		if _, err := Decode(frame); !errors.Is(err, exception.ErrUnknownType) {
			t.Fatalf("type %d: err = %v, want ErrUnknownType", typ, err)
		}
	}
}

func TestDecodeSizeMismatch(t *testing.T) {
	frame := EncodeHeartbeat(nil)
	binary.LittleEndian.PutUint16(frame[0:2], uint16(len(frame)+1))
	if _, err := Decode(frame); !errors.Is(err, exception.ErrSizeMismatch) {
		t.Fatalf("declared > actual: err = %v, want ErrSizeMismatch", err)
	}
}

func TestDecodeTruncatedPayload(t *testing.T) {
	frame := EncodeLogonRequest(nil, LogonRequest{ProtocolVersion: ProtocolVersion, Username: "u"})
	short := frame[:LogonRequestSize-10]
	binary.LittleEndian.PutUint16(short[0:2], uint16(len(short)))
	if _, err := Decode(short); !errors.Is(err, exception.ErrTruncatedPayload) {
		t.Fatalf("err = %v, want ErrTruncatedPayload", err)
	}
}

func TestDecodeOversizedPayload(t *testing.T) {
	frame := EncodeHeartbeat(nil)
	frame = append(frame, 0, 0)
	binary.LittleEndian.PutUint16(frame[0:2], uint16(len(frame)))
	if _, err := Decode(frame); !errors.Is(err, exception.ErrSizeMismatch) {
		t.Fatalf("err = %v, want ErrSizeMismatch", err)
	}
}

func TestPeekSize(t *testing.T) {
	if _, ok := PeekSize([]byte{0x10}); ok {
		t.Fatal("PeekSize succeeded on a partial header")
	}
	frame := EncodeLogoff(nil, Logoff{})
	size, ok := PeekSize(frame[:HeaderSize])
	if !ok || size != LogoffSize {
		t.Fatalf("PeekSize = %d,%v, want %d,true", size, ok, LogoffSize)
	}
}

func TestFrameSizeCoversAllTypes(t *testing.T) {
	for _, typ := range []MsgType{
		MsgLogonRequest, MsgLogonResponse, MsgHeartbeat, MsgLogoff,
		MsgMarketDataRequest, MsgMarketDataUpdateTrade, MsgMarketDataUpdateBidAsk,
	} {
		if _, ok := FrameSize(typ); !ok {
			t.Fatalf("FrameSize missing for %s", typ)
		}
	}
	if _, ok := FrameSize(MsgType(42)); ok {
		t.Fatal("FrameSize accepted an unknown type")
	}
}
