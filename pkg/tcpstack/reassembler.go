package tcpstack

import (
	"log/slog"

	"github.com/google/btree"

	"ip-tcp-in-peace/pkg/bytestream"
)

// run is a contiguous block of buffered bytes starting at an absolute stream index.
type run struct {
	index uint64
	data  []byte
}

func (r run) end() uint64 {
	return r.index + uint64(len(r.data))
}

func runLess(a, b run) bool {
	return a.index < b.index
}

// Reassembler writes out-of-order substrings into its output stream in order.
// Buffered runs are kept disjoint and non-adjacent.
type Reassembler struct {
	output  *bytestream.ByteStream
	runs    *btree.BTreeG[run]
	pending uint64

	eofIndex uint64
	hasEOF   bool
}

func NewReassembler(output *bytestream.ByteStream) *Reassembler {
	return &Reassembler{
		output: output,
		runs:   btree.NewG[run](2, runLess),
	}
}

// Insert buffers data starting at absolute stream index first. isLast marks
// the end of data as the end of the stream.
func (r *Reassembler) Insert(first uint64, data []byte, isLast bool) {
	if isLast {
		r.eofIndex = first + uint64(len(data))
		r.hasEOF = true
	}

	if len(data) > 0 {
		r.buffer(first, data)
		r.flush()
	}

	if r.hasEOF && r.FirstUnassembledIndex() >= r.eofIndex {
		r.output.Close()
	}
}

// buffer trims data to the writable window and merges it with every run it touches.
func (r *Reassembler) buffer(first uint64, data []byte) {
	frontier := r.FirstUnassembledIndex()
	windowEnd := frontier + r.output.AvailableCapacity()

	start := max(first, frontier)
	end := min(first+uint64(len(data)), windowEnd)
	if start >= end {
		slog.Debug("Dropping segment outside window", "first", first, "len", len(data), "frontier", frontier, "windowEnd", windowEnd)
		return
	}

	var touched []run
	r.runs.DescendLessOrEqual(run{index: start}, func(prev run) bool {
		if prev.index < start && prev.end() >= start {
			touched = append(touched, prev)
		}
		return false
	})
	r.runs.AscendGreaterOrEqual(run{index: start}, func(next run) bool {
		if next.index > end {
			return false
		}
		touched = append(touched, next)
		return true
	})

	mergedStart, mergedEnd := start, end
	for _, t := range touched {
		mergedStart = min(mergedStart, t.index)
		mergedEnd = max(mergedEnd, t.end())
	}

	merged := make([]byte, mergedEnd-mergedStart)
	for _, t := range touched {
		copy(merged[t.index-mergedStart:], t.data)
		r.runs.Delete(t)
		r.pending -= uint64(len(t.data))
	}
	// Newest bytes win where they overlap older runs.
	copy(merged[start-mergedStart:], data[start-first:end-first])

	r.runs.ReplaceOrInsert(run{index: mergedStart, data: merged})
	r.pending += uint64(len(merged))
}

// flush pushes the run sitting at the frontier, if any, into the output.
func (r *Reassembler) flush() {
	for {
		head, ok := r.runs.Min()
		if !ok || head.index != r.FirstUnassembledIndex() {
			return
		}
		r.runs.Delete(head)
		r.pending -= uint64(len(head.data))
		r.output.Push(head.data)
	}
}

// CountBytesPending is the number of bytes buffered but not yet written.
func (r *Reassembler) CountBytesPending() uint64 {
	return r.pending
}

func (r *Reassembler) FirstUnassembledIndex() uint64 {
	return r.output.BytesPushed()
}

func (r *Reassembler) Output() *bytestream.ByteStream {
	return r.output
}
