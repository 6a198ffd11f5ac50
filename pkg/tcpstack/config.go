package tcpstack

import (
	"math/rand"

	"github.com/google/netstack/tcpip/seqnum"
)

const (
	DEFAULT_CAPACITY   = 64000
	MAX_PAYLOAD_SIZE   = 1000
	TIMEOUT_DFLT       = 1000 // ms
	MAX_RETX_ATTEMPTS  = 8
	MAX_WINDOW_SIZE    = 65535
	EPHEMERAL_PORT_MIN = 49152
)

// Config holds the tunables of a single TCP connection. Times are in ms.
type Config struct {
	RTO                uint64
	SendCapacity       uint64
	RecvCapacity       uint64
	MaxPayloadSize     uint64
	MaxRetransmissions uint64
	// ISN is the initial sequence number of the outbound stream.
	ISN seqnum.Value
}

func DefaultConfig() Config {
	return Config{
		RTO:                TIMEOUT_DFLT,
		SendCapacity:       DEFAULT_CAPACITY,
		RecvCapacity:       DEFAULT_CAPACITY,
		MaxPayloadSize:     MAX_PAYLOAD_SIZE,
		MaxRetransmissions: MAX_RETX_ATTEMPTS,
		ISN:                generateInitialSeqNum(),
	}
}

func generateInitialSeqNum() seqnum.Value {
	return seqnum.Value(rand.Uint32())
}
