package bytestream

import (
	"github.com/smallnest/ringbuffer"
)

// ByteStream is a fixed-capacity byte pipe with one writer and one reader.
// Pushes beyond the free space are truncated, never blocked.
type ByteStream struct {
	buf      *ringbuffer.RingBuffer
	capacity uint64
	pushed   uint64
	popped   uint64
	closed   bool
	err      bool
}

func New(capacity uint64) *ByteStream {
	return &ByteStream{
		buf:      ringbuffer.New(int(capacity)),
		capacity: capacity,
	}
}

// Writer side

// Push appends as much of data as fits and returns the number of bytes taken.
func (s *ByteStream) Push(data []byte) uint64 {
	if s.closed || len(data) == 0 {
		return 0
	}

	n := min(uint64(len(data)), s.AvailableCapacity())
	if n == 0 {
		return 0
	}

	written, _ := s.buf.Write(data[:n])
	s.pushed += uint64(written)
	return uint64(written)
}

func (s *ByteStream) Close() {
	s.closed = true
}

func (s *ByteStream) SetError() {
	s.err = true
}

func (s *ByteStream) IsClosed() bool {
	return s.closed
}

func (s *ByteStream) AvailableCapacity() uint64 {
	return s.capacity - s.BytesBuffered()
}

func (s *ByteStream) BytesPushed() uint64 {
	return s.pushed
}

// Reader side

// Peek returns a copy of every buffered byte without consuming it.
func (s *ByteStream) Peek() []byte {
	if s.BytesBuffered() == 0 {
		return nil
	}
	return s.buf.Bytes(nil)
}

// Pop discards up to n bytes from the front of the stream.
func (s *ByteStream) Pop(n uint64) {
	n = min(n, s.BytesBuffered())
	if n == 0 {
		return
	}

	discard := make([]byte, n)
	read, _ := s.buf.Read(discard)
	s.popped += uint64(read)
}

// Read pops and returns up to n bytes.
func (s *ByteStream) Read(n uint64) []byte {
	n = min(n, s.BytesBuffered())
	if n == 0 {
		return nil
	}

	out := make([]byte, n)
	read, _ := s.buf.Read(out)
	s.popped += uint64(read)
	return out[:read]
}

// IsFinished reports whether the writer closed and every byte was read.
func (s *ByteStream) IsFinished() bool {
	return s.closed && s.BytesBuffered() == 0
}

func (s *ByteStream) HasError() bool {
	return s.err
}

func (s *ByteStream) BytesBuffered() uint64 {
	return s.pushed - s.popped
}

func (s *ByteStream) BytesPopped() uint64 {
	return s.popped
}

func (s *ByteStream) Capacity() uint64 {
	return s.capacity
}
