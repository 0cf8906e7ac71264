package api

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"
)

func TestSubscribePublishUnsubscribe(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := &Client{id: "c1", hub: hub, send: make(chan []byte, 4), subscriptions: make(map[string]bool)}

	hub.Subscribe(client, "guardian")
	if !client.subscriptions["guardian"] {
		t.Fatalf("client subscriptions missing guardian channel")
	}

	hub.publish("guardian", MsgTypeGuardianMode, map[string]string{"mode": "RUNNING"})

	select {
	case raw := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("invalid message: %v", err)
		}
		if msg.Channel != "guardian" || msg.Type != MsgTypeGuardianMode {
			t.Fatalf("got channel=%s type=%s, want guardian/%s", msg.Channel, msg.Type, MsgTypeGuardianMode)
		}
	default:
		t.Fatalf("expected a queued message, got none")
	}

	hub.Unsubscribe(client, "guardian")
	if client.subscriptions["guardian"] {
		t.Fatalf("client still subscribed to guardian after Unsubscribe")
	}

	hub.publish("guardian", MsgTypeGuardianMode, map[string]string{"mode": "HALTED"})
	select {
	case <-client.send:
		t.Fatalf("received a message on a channel the client unsubscribed from")
	default:
	}
}

func TestPublishToChannelWithNoSubscribersIsANoop(t *testing.T) {
	hub := NewHub(zap.NewNop())
	hub.publish("orders", MsgTypeOrderState, map[string]string{"local_id": "L1"})
}
