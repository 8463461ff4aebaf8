package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishTyped(t *testing.T) {
	b := NewBus()
	var texts []string
	var prompts []string
	Subscribe(b, func(m Message) { texts = append(texts, m.Text) })
	Subscribe(b, func(p LoginPrompt) { prompts = append(prompts, p.Field) })

	Publish(b, Message{Text: "hello"})
	Publish(b, LoginPrompt{Field: "password"})
	Publish(b, Message{Text: "world"})

	assert.Equal(t, []string{"hello", "world"}, texts)
	assert.Equal(t, []string{"password"}, prompts)
}

func TestSubscribeAllSeesEverything(t *testing.T) {
	b := NewBus()
	var names []string
	b.SubscribeAll(func(ev any) { names = append(names, Name(ev)) })

	Publish(b, LoggedIn{})
	Publish(b, Disconnected{Err: "EOF"})

	assert.Equal(t, []string{"LoggedIn", "Disconnected"}, names)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	assert.NotPanics(t, func() { Publish(NewBus(), RouteStatus{}) })
}
