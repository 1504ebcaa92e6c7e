package adapter

import (
	"testing"
	"time"
)

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		match  bool
	}{
		{"test/topic", "test/topic", true},
		{"test/topic", "test/other", false},

		{"test/+", "test/topic", true},
		{"test/+", "test/other", true},
		{"test/+", "test/topic/sub", false},
		{"test/+/sub", "test/topic/sub", true},
		{"+/topic", "test/topic", true},
		{"+/+", "test/topic", true},

		{"test/#", "test/topic", true},
		{"test/#", "test/topic/sub", true},
		{"test/#", "test/topic/sub/deep", true},
		{"test/#", "other/topic", false},
		{"#", "any/topic/here", true},
		{"test/topic/#", "test/topic", true},
		{"test/topic/#", "test/topic/sub", true},

		{"+/+/#", "test/topic/sub/deep", true},
		{"test/+/#", "test/topic/sub", true},

		{"", "", true},
		{"test", "test", true},
		{"test/", "test/", true},

		// MQTT-4.7.2-1: wildcards never match topics beginning with $.
		{"+/monitor", "$SYS/monitor", false},
		{"#", "$SYS/monitor", false},
		{"$SYS/monitor", "$SYS/monitor", true},
	}

	for _, tt := range tests {
		t.Run(tt.filter+"_vs_"+tt.topic, func(t *testing.T) {
			if got := matchTopic(tt.filter, tt.topic); got != tt.match {
				t.Errorf("matchTopic(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.match)
			}
		})
	}
}

func TestMatchSubscriptions_HighestQoSWins(t *testing.T) {
	t0 := time.Unix(1000, 0)
	subs := []Subscription{
		{TopicFilter: "a/+", QoS: AtMostOnce, CreatedAt: t0},
		{TopicFilter: "a/b", QoS: ExactlyOnce, CreatedAt: t0},
		{TopicFilter: "a/#", QoS: AtLeastOnce, CreatedAt: t0},
	}

	q, ok := matchSubscriptions(subs, "a/b", t0.Add(time.Second), ExactlyOnce)
	if !ok || q != ExactlyOnce {
		t.Fatalf("got (%v, %v), want (ExactlyOnce, true)", q, ok)
	}
}

func TestMatchSubscriptions_CappedByServerMax(t *testing.T) {
	t0 := time.Unix(1000, 0)
	subs := []Subscription{{TopicFilter: "a/b", QoS: ExactlyOnce, CreatedAt: t0}}

	q, ok := matchSubscriptions(subs, "a/b", t0.Add(time.Second), AtLeastOnce)
	if !ok || q != AtLeastOnce {
		t.Fatalf("got (%v, %v), want (AtLeastOnce, true)", q, ok)
	}
}

// TestMatchSubscriptions_TimeGating covers invariant P7 and scenario 2:
// a subscription never matches a message whose CreatedAt is at or before
// the subscription's own CreatedAt.
func TestMatchSubscriptions_TimeGating(t *testing.T) {
	subCreated := time.Unix(2000, 0)
	subs := []Subscription{{TopicFilter: "a/b", QoS: AtLeastOnce, CreatedAt: subCreated}}

	if _, ok := matchSubscriptions(subs, "a/b", subCreated, ExactlyOnce); ok {
		t.Fatalf("message created at the same instant as the subscription must not match")
	}
	if _, ok := matchSubscriptions(subs, "a/b", subCreated.Add(-time.Second), ExactlyOnce); ok {
		t.Fatalf("message predating the subscription must not match")
	}
	if _, ok := matchSubscriptions(subs, "a/b", subCreated.Add(time.Second), ExactlyOnce); !ok {
		t.Fatalf("message postdating the subscription must match")
	}
}

func TestValidateSubscribeTopic(t *testing.T) {
	cases := []struct {
		filter  string
		wantErr bool
	}{
		{"a/b/c", false},
		{"a/+/c", false},
		{"a/#", false},
		{"", true},
		{"a/#/b", true},
		{"a/b#", true},
		{"a/+b", true},
	}
	for _, c := range cases {
		err := validateSubscribeTopic(c.filter, 0)
		if (err != nil) != c.wantErr {
			t.Errorf("validateSubscribeTopic(%q) err=%v, wantErr=%v", c.filter, err, c.wantErr)
		}
	}
}

func TestValidatePayload(t *testing.T) {
	if err := validatePayload(make([]byte, 10), 5); err == nil {
		t.Fatalf("expected error for oversized payload")
	}
	if err := validatePayload(make([]byte, 5), 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
