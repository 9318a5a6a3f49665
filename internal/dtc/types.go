package dtc

// ProtocolVersion is the protocol revision this codec speaks.
const ProtocolVersion uint32 = 8

// MsgType is the numeric discriminator identifying a message's payload layout.
type MsgType uint16

const (
	MsgLogonRequest           MsgType = 1
	MsgLogonResponse          MsgType = 2
	MsgHeartbeat              MsgType = 3
	MsgLogoff                 MsgType = 5
	MsgMarketDataRequest      MsgType = 101
	MsgMarketDataUpdateTrade  MsgType = 107
	MsgMarketDataUpdateBidAsk MsgType = 108
)

// String returns the wire name of the message type.
func (t MsgType) String() string {
	switch t {
	case MsgLogonRequest:
		return "LOGON_REQUEST"
	case MsgLogonResponse:
		return "LOGON_RESPONSE"
	case MsgHeartbeat:
		return "HEARTBEAT"
	case MsgLogoff:
		return "LOGOFF"
	case MsgMarketDataRequest:
		return "MARKET_DATA_REQUEST"
	case MsgMarketDataUpdateTrade:
		return "MARKET_DATA_UPDATE_TRADE"
	case MsgMarketDataUpdateBidAsk:
		return "MARKET_DATA_UPDATE_BID_ASK"
	default:
		return "UNKNOWN"
	}
}

// Fixed-width string field capacities.
const (
	UsernameCap = 32
	PasswordCap = 32
	TextCap     = 64
	ResultCap   = 96
	ReasonCap   = 96
	SymbolCap   = 24
)

// Logon results.
const (
	LogonFailure uint32 = 0
	LogonSuccess uint32 = 1
)

// Market data request actions.
const (
	ActionSubscribe   uint32 = 1
	ActionUnsubscribe uint32 = 2
)

// Message is one decoded wire message.
type Message interface {
	// Type returns the opcode of the message.
	Type() MsgType
}

// LogonRequest opens a session. Credentials are fixed-width strings.
type LogonRequest struct {
	ProtocolVersion uint32
	Username        string
	Password        string
	GeneralText     string
}

func (LogonRequest) Type() MsgType { return MsgLogonRequest }

// LogonResponse reports the outcome of a logon attempt.
type LogonResponse struct {
	Result     uint32
	ResultText string
}

func (LogonResponse) Type() MsgType { return MsgLogonResponse }

// Heartbeat is an empty keepalive frame.
type Heartbeat struct{}

func (Heartbeat) Type() MsgType { return MsgHeartbeat }

// Logoff announces an orderly disconnect.
type Logoff struct {
	Reason string
}

func (Logoff) Type() MsgType { return MsgLogoff }

// MarketDataRequest subscribes or unsubscribes a symbol.
type MarketDataRequest struct {
	Action   uint32
	SymbolID uint32
	Symbol   string
}

func (MarketDataRequest) Type() MsgType { return MsgMarketDataRequest }

// MarketDataUpdateTrade carries one trade print.
type MarketDataUpdateTrade struct {
	SymbolID  uint32
	Price     float64
	Volume    float64
	Timestamp uint64
}

func (MarketDataUpdateTrade) Type() MsgType { return MsgMarketDataUpdateTrade }

// MarketDataUpdateBidAsk carries one top-of-book snapshot.
type MarketDataUpdateBidAsk struct {
	SymbolID  uint32
	BidPrice  float64
	BidQty    float64
	AskPrice  float64
	AskQty    float64
	Timestamp uint64
}

func (MarketDataUpdateBidAsk) Type() MsgType { return MsgMarketDataUpdateBidAsk }
