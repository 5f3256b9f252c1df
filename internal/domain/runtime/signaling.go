package runtime

import "encoding/json"

type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

func (k SignalKind) Valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalCandidate:
		return true
	default:
		return false
	}
}

// SignalingEnvelope живёт только на время пересылки, payload не интерпретируется
type SignalingEnvelope struct {
	FromUserID string
	ToUserID   string
	RoomID     string
	Kind       SignalKind
	Payload    json.RawMessage
}
