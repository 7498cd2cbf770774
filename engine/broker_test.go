package engine

import (
	"testing"
	"time"
)

func TestTrySendNonBlocking(t *testing.T) {
	c := make(chan int, 2)
	if !TrySend(c, 1) || !TrySend(c, 2) {
		t.Fatal("sends to a non-full channel failed")
	}
	if TrySend(c, 3) {
		t.Error("send to a full channel claimed success")
	}
	if <-c != 1 || <-c != 2 {
		t.Error("wrong values delivered")
	}
}

func TestTimeoutReceive(t *testing.T) {
	c := make(chan int, 1)
	c <- 42
	if v, ok := TimeoutReceive(c, time.Second); !ok || v != 42 {
		t.Fatalf("got %d, %v", v, ok)
	}
	if _, ok := TimeoutReceive(c, time.Millisecond); ok {
		t.Error("receive from an empty channel succeeded")
	}
	close(c)
	if _, ok := TimeoutReceive(c, time.Second); ok {
		t.Error("receive from a closed channel reported ok")
	}
}

func TestBrokerBufferPool(t *testing.T) {
	b := NewBroker()
	buf := b.GetAudioBuffer()
	if len(*buf) != 0 {
		t.Fatal("pooled buffer not empty")
	}
	*buf = append(*buf, [2]float32{1, 1})
	b.PutAudioBuffer(buf)
	again := b.GetAudioBuffer()
	if len(*again) != 0 {
		t.Error("buffer came back from the pool non-empty")
	}
}
