package kafka

import (
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
)

type samplePayload struct {
	OrderID string `json:"order_id"`
	Qty     int    `json:"qty"`
}

type sampleEnvelope struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

func TestEnvelopeRoundTrip(t *testing.T) {
	raw := MustMarshal(sampleEnvelope{
		EventType: "OrderPlaced",
		Payload:   MustMarshal(samplePayload{OrderID: "o-1", Qty: 3}),
	})

	var env sampleEnvelope
	if err := UnmarshalEnvelope(raw, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	p, err := UnwrapPayload[samplePayload](env.Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if env.EventType != "OrderPlaced" || p.OrderID != "o-1" || p.Qty != 3 {
		t.Errorf("unexpected result: %+v %+v", env, p)
	}
}

func TestUnmarshalEnvelope_Garbage(t *testing.T) {
	var env sampleEnvelope
	if err := UnmarshalEnvelope([]byte("{not json"), &env); err == nil {
		t.Error("expected error")
	}
	if _, err := UnwrapPayload[samplePayload](json.RawMessage(`"str"`)); err == nil {
		t.Error("expected payload type error")
	}
}

func TestMustMarshal_PanicsOnUnsupported(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustMarshal(make(chan int))
}

func TestHeaderValue(t *testing.T) {
	hs := []kafka.Header{{Key: "x-event-type", Value: []byte("OrderCancelled")}}
	if v, ok := HeaderValue(hs, "x-event-type"); !ok || v != "OrderCancelled" {
		t.Errorf("got %q %v", v, ok)
	}
	if _, ok := HeaderValue(hs, "missing"); ok {
		t.Error("missing header reported present")
	}
}

func TestLane_StableAndInRange(t *testing.T) {
	for _, n := range []int{1, 2, 4, 7} {
		for _, topic := range []string{"", "order.placed", "order.cancelled"} {
			for p := 0; p < 12; p++ {
				l := Lane(topic, p, n)
				if l < 0 || l >= n {
					t.Fatalf("lane %d out of range for n=%d", l, n)
				}
				if Lane(topic, p, n) != l {
					t.Fatalf("lane not stable for %s/%d", topic, p)
				}
			}
		}
	}
	if Lane("order.placed", 3, 0) != 0 {
		t.Error("n=0 should map to lane 0")
	}
}
