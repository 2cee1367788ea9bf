package broadcast

import (
	"fmt"
	"testing"
)

func TestPublishReachesEverySubscriberInOrder(t *testing.T) {
	h := NewHub()
	var a, b [][]byte
	unsubA := h.Subscribe("arena", func(f []byte) { a = append(a, f) })
	h.Subscribe("arena", func(f []byte) { b = append(b, f) })
	h.Subscribe("other", func(f []byte) { t.Fatalf("other channel received %s", f) })

	for i := 0; i < 5; i++ {
		if n := h.Publish("arena", []byte(fmt.Sprint(i))); n != 2 {
			t.Fatalf("delivered to %d subscribers, want 2", n)
		}
	}
	for i := 0; i < 5; i++ {
		if string(a[i]) != fmt.Sprint(i) || string(b[i]) != fmt.Sprint(i) {
			t.Fatalf("frame %d out of order: a=%s b=%s", i, a[i], b[i])
		}
	}

	unsubA()
	unsubA()
	if got := h.Subscribers("arena"); got != 1 {
		t.Fatalf("subscribers = %d, want 1", got)
	}
}

func TestPublishCopiesFrame(t *testing.T) {
	h := NewHub()
	var got []byte
	h.Subscribe("c", func(f []byte) { got = f })
	frame := []byte("abc")
	h.Publish("c", frame)
	frame[0] = 'x'
	if string(got) != "abc" {
		t.Fatalf("subscriber saw sender mutation: %s", got)
	}
}
