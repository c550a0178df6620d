package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHub_FanOut(t *testing.T) {
	h := NewHub(nil)
	a, cancelA := h.Subscribe(4)
	b, cancelB := h.Subscribe(4)
	defer cancelB()

	h.Publish("sleep-tab", map[string]string{"tab_id": "1"})

	evA := <-a
	evB := <-b
	require.Equal(t, "sleep-tab", evA.Name)
	require.Equal(t, evA.Seq, evB.Seq)

	cancelA()
	cancelA()
	_, open := <-a
	require.False(t, open)

	h.Publish("download-started", nil)
	ev := <-b
	require.Equal(t, uint64(2), ev.Seq)
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(nil)
	ch, cancel := h.Subscribe(1)
	defer cancel()

	h.Publish("a", nil)
	h.Publish("b", nil)

	ev := <-ch
	require.Equal(t, "a", ev.Name)
	require.Empty(t, ch)
}

func TestHub_Close(t *testing.T) {
	h := NewHub(nil)
	ch, cancel := h.Subscribe(1)
	h.Close()
	_, open := <-ch
	require.False(t, open)
	cancel()

	late, _ := h.Subscribe(1)
	_, open = <-late
	require.False(t, open)
	h.Publish("ignored", nil)
}
