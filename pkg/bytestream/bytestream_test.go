package bytestream

import (
	"bytes"
	"testing"
)

func TestPushTruncatesAtCapacity(t *testing.T) {
	s := New(5)

	if n := s.Push([]byte("hello world")); n != 5 {
		t.Fatalf("Push = %d, want 5", n)
	}
	if got := s.AvailableCapacity(); got != 0 {
		t.Errorf("AvailableCapacity = %d, want 0", got)
	}
	if n := s.Push([]byte("!")); n != 0 {
		t.Errorf("Push on full stream = %d, want 0", n)
	}
	if got := s.BytesPushed(); got != 5 {
		t.Errorf("BytesPushed = %d, want 5", got)
	}
	if got := s.Peek(); !bytes.Equal(got, []byte("hello")) {
		t.Errorf("Peek = %q, want %q", got, "hello")
	}
}

func TestPopAndReadAcrossWrap(t *testing.T) {
	s := New(4)
	s.Push([]byte("abcd"))
	s.Pop(3)

	if got := s.BytesPopped(); got != 3 {
		t.Fatalf("BytesPopped = %d, want 3", got)
	}
	s.Push([]byte("efg"))

	if got := s.Read(10); !bytes.Equal(got, []byte("defg")) {
		t.Errorf("Read = %q, want %q", got, "defg")
	}
	if got := s.BytesBuffered(); got != 0 {
		t.Errorf("BytesBuffered = %d, want 0", got)
	}
	if got := s.Peek(); got != nil {
		t.Errorf("Peek on empty stream = %q, want nil", got)
	}
}

func TestCapacityInvariant(t *testing.T) {
	s := New(7)
	chunks := []string{"abc", "", "defghij", "k", "lmnopqrstu"}

	for i, c := range chunks {
		s.Push([]byte(c))
		if s.BytesBuffered() > s.Capacity() {
			t.Fatalf("step %d: buffered %d exceeds capacity %d", i, s.BytesBuffered(), s.Capacity())
		}
		s.Pop(2)
	}
}

func TestCloseAndFinish(t *testing.T) {
	s := New(8)
	s.Push([]byte("xy"))
	s.Close()

	if !s.IsClosed() {
		t.Fatal("stream should be closed")
	}
	if s.IsFinished() {
		t.Error("stream with buffered bytes should not be finished")
	}
	if n := s.Push([]byte("z")); n != 0 {
		t.Errorf("Push after close = %d, want 0", n)
	}

	s.Pop(2)
	if !s.IsFinished() {
		t.Error("closed and drained stream should be finished")
	}
}

func TestErrorIsSticky(t *testing.T) {
	s := New(8)
	if s.HasError() {
		t.Fatal("new stream has error")
	}
	s.SetError()
	s.Push([]byte("a"))
	if !s.HasError() {
		t.Error("error flag cleared by push")
	}
}

func TestZeroCapacity(t *testing.T) {
	s := New(0)
	if n := s.Push([]byte("a")); n != 0 {
		t.Errorf("Push = %d, want 0", n)
	}
	s.Pop(1)
	if got := s.Read(1); got != nil {
		t.Errorf("Read = %q, want nil", got)
	}
}
