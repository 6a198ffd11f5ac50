package tcpstack

import (
	"github.com/google/netstack/tcpip/seqnum"
)

const seqCycle uint64 = 1 << 32

// Wrap converts an absolute sequence number into its 32-bit wire form.
func Wrap(n uint64, zero seqnum.Value) seqnum.Value {
	return zero.Add(seqnum.Size(uint32(n)))
}

// Unwrap returns the absolute sequence number congruent to v that lies
// closest to checkpoint. Ties resolve toward the smaller value.
func Unwrap(v seqnum.Value, zero seqnum.Value, checkpoint uint64) uint64 {
	offset := uint64(zero.Size(v))
	base := checkpoint &^ (seqCycle - 1)

	best := base + offset
	if best >= seqCycle {
		if c := best - seqCycle; distance(c, checkpoint) <= distance(best, checkpoint) {
			best = c
		}
	}
	if c := base + offset + seqCycle; c > base && distance(c, checkpoint) < distance(best, checkpoint) {
		best = c
	}
	return best
}

func distance(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
