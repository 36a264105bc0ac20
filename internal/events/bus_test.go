package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDeliversInOrder(t *testing.T) {
	b := NewBus()
	var got []string
	b.Subscribe(func(e Event) { got = append(got, "first:"+e.Kind.String()) })
	b.Subscribe(func(e Event) { got = append(got, "second:"+e.Kind.String()) })

	b.Publish(Event{Kind: FeedbackChanged})
	b.Publish(Event{Kind: AdminChanged, Admin: true})

	assert.Equal(t, []string{
		"first:feedback_changed", "second:feedback_changed",
		"first:admin_changed", "second:admin_changed",
	}, got)
}

func TestBusSubscribeDuringPublish(t *testing.T) {
	b := NewBus()
	calls := 0
	b.Subscribe(func(Event) {
		calls++
		b.Subscribe(func(Event) { calls += 10 })
	})

	b.Publish(Event{Kind: FeedbackChanged})
	assert.Equal(t, 1, calls)

	b.Publish(Event{Kind: FeedbackChanged})
	assert.Equal(t, 12, calls)
}
