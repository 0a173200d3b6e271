package realtime

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/Alijeyrad/carelink/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func msgEvent(conv uuid.UUID, seq int64) Event {
	return MessageEvent(&model.Message{
		ID:             uuid.New(),
		ConversationID: conv,
		Seq:            seq,
		SenderID:       uuid.New(),
		Body:           "m",
		Type:           model.MessageUser,
		CreatedAt:      time.Now().UTC(),
	})
}

func drain(t *testing.T, sub *Subscription, n int) []int64 {
	t.Helper()
	var seqs []int64
	timeout := time.After(2 * time.Second)
	for len(seqs) < n {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatalf("stream closed after %v: %v", seqs, sub.Err())
			}
			seqs = append(seqs, ev.Seq())
		case <-timeout:
			t.Fatalf("timed out after %v", seqs)
		}
	}
	return seqs
}

func assertSeqs(t *testing.T, got []int64, want ...int64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSubscriberReceivesOnlyNewMessages(t *testing.T) {
	h := NewHub(DefaultConfig(), nil)
	defer h.Close()
	conv := uuid.New()

	// seq 1 and 2 were committed before the subscription read last_seq.
	sub := h.Subscribe(conv, uuid.New())
	h.Dispatch(msgEvent(conv, 2))
	sub.Seed(2)
	h.Dispatch(msgEvent(conv, 3))

	assertSeqs(t, drain(t, sub, 1), 3)
	sub.Close()
	if sub.Err() != nil {
		t.Errorf("err after Close = %v, want nil", sub.Err())
	}
}

func TestEverySubscriberGetsEveryMessageOnce(t *testing.T) {
	h := NewHub(DefaultConfig(), nil)
	defer h.Close()
	conv := uuid.New()

	subs := make([]*Subscription, 3)
	for i := range subs {
		subs[i] = h.Subscribe(conv, uuid.New())
		subs[i].Seed(0)
	}

	for seq := int64(1); seq <= 5; seq++ {
		h.Dispatch(msgEvent(conv, seq))
		h.Dispatch(msgEvent(conv, seq)) // duplicate from a second bus path
	}

	for _, s := range subs {
		assertSeqs(t, drain(t, s, 5), 1, 2, 3, 4, 5)
		select {
		case ev := <-s.Events():
			t.Fatalf("unexpected extra event seq %d", ev.Seq())
		default:
		}
		s.Close()
	}
}

func TestReorderWithinWindow(t *testing.T) {
	h := NewHub(DefaultConfig(), nil)
	defer h.Close()
	conv := uuid.New()

	sub := h.Subscribe(conv, uuid.New())
	sub.Seed(0)
	for _, seq := range []int64{2, 3, 1, 5, 4} {
		h.Dispatch(msgEvent(conv, seq))
	}
	assertSeqs(t, drain(t, sub, 5), 1, 2, 3, 4, 5)
	sub.Close()
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	h := NewHub(Config{Buffer: 2, ReorderWindow: 8}, nil)
	defer h.Close()
	conv := uuid.New()

	slow := h.Subscribe(conv, uuid.New())
	slow.Seed(0)
	fast := h.Subscribe(conv, uuid.New())
	fast.Seed(0)

	var got []int64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range fast.Events() {
			got = append(got, ev.Seq())
			if len(got) == 4 {
				return
			}
		}
	}()

	for seq := int64(1); seq <= 4; seq++ {
		h.Dispatch(msgEvent(conv, seq))
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()
	assertSeqs(t, got, 1, 2, 3, 4)

	<-slow.Done()
	if !errors.Is(slow.Err(), model.ErrSubscriptionDropped) {
		t.Errorf("slow err = %v, want ErrSubscriptionDropped", slow.Err())
	}
	if h.Watching(conv, slow.UserID) {
		t.Error("dropped subscriber still registered")
	}
	fast.Close()
}

func TestGapTimeoutDrops(t *testing.T) {
	h := NewHub(Config{Buffer: 8, ReorderWindow: 8, GapTimeout: 20 * time.Millisecond}, nil)
	defer h.Close()
	conv := uuid.New()

	sub := h.Subscribe(conv, uuid.New())
	sub.Seed(0)
	h.Dispatch(msgEvent(conv, 1))
	h.Dispatch(msgEvent(conv, 3)) // seq 2 never arrives

	assertSeqs(t, drain(t, sub, 1), 1)
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("gapped subscriber was not dropped")
	}
	if !errors.Is(sub.Err(), model.ErrSubscriptionDropped) {
		t.Errorf("err = %v, want ErrSubscriptionDropped", sub.Err())
	}
	deadline := time.Now().Add(time.Second)
	for h.Live() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if h.Live() != 0 {
		t.Errorf("live = %d, want 0", h.Live())
	}
}

func TestReorderWindowOverflowDrops(t *testing.T) {
	h := NewHub(Config{Buffer: 8, ReorderWindow: 2}, nil)
	defer h.Close()
	conv := uuid.New()

	sub := h.Subscribe(conv, uuid.New())
	sub.Seed(0)
	for _, seq := range []int64{2, 3, 4} {
		h.Dispatch(msgEvent(conv, seq))
	}
	<-sub.Done()
	if !errors.Is(sub.Err(), model.ErrSubscriptionDropped) {
		t.Errorf("err = %v, want ErrSubscriptionDropped", sub.Err())
	}
}

func TestCloseIsImmediateDuringPublish(t *testing.T) {
	h := NewHub(Config{Buffer: 1, ReorderWindow: 4}, nil)
	defer h.Close()
	conv := uuid.New()

	sub := h.Subscribe(conv, uuid.New())
	sub.Seed(0)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for seq := int64(1); ; seq++ {
			select {
			case <-stop:
				return
			default:
				h.Dispatch(msgEvent(conv, seq))
			}
		}
	}()

	closed := make(chan struct{})
	go func() {
		sub.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked")
	}
	close(stop)
	wg.Wait()
}

func TestReadEventsPassThrough(t *testing.T) {
	h := NewHub(DefaultConfig(), nil)
	defer h.Close()
	conv, reader := uuid.New(), uuid.New()

	sub := h.Subscribe(conv, uuid.New())
	sub.Seed(4)
	h.Dispatch(ReadEvent(conv, reader, time.Now()))

	select {
	case ev := <-sub.Events():
		if ev.Kind != EventRead || ev.Read.UserID != reader {
			t.Errorf("got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("read event not delivered")
	}
	sub.Close()
}

func TestHubCloseDropsSubscribers(t *testing.T) {
	h := NewHub(DefaultConfig(), nil)
	sub := h.Subscribe(uuid.New(), uuid.New())
	h.Close()

	if _, ok := <-sub.Events(); ok {
		t.Fatal("stream still open after hub close")
	}
	if !errors.Is(sub.Err(), model.ErrSubscriptionDropped) {
		t.Errorf("err = %v, want ErrSubscriptionDropped", sub.Err())
	}
	sub.Close()
}

func TestViewersAreDistinct(t *testing.T) {
	h := NewHub(Config{Buffer: 4}, nil)
	defer h.Close()
	convA, convB := uuid.New(), uuid.New()
	ann, ben := uuid.New(), uuid.New()

	tabs := []*Subscription{
		h.Subscribe(convA, ann),
		h.Subscribe(convA, ann), // second tab
		h.Subscribe(convA, ben),
		h.Subscribe(convB, ann),
	}

	got := map[Viewer]bool{}
	for _, v := range h.Viewers() {
		if got[v] {
			t.Errorf("viewer %+v listed twice", v)
		}
		got[v] = true
	}
	for _, want := range []Viewer{{convA, ann}, {convA, ben}, {convB, ann}} {
		if !got[want] {
			t.Errorf("missing viewer %+v", want)
		}
	}
	if len(got) != 3 {
		t.Errorf("viewers = %d, want 3", len(got))
	}

	for _, s := range tabs {
		s.Close()
	}
	if v := h.Viewers(); len(v) != 0 {
		t.Errorf("viewers after close = %v", v)
	}
}
