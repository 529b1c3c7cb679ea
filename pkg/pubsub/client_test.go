package pubsub

import (
	"context"
	"testing"

	"github.com/angelmondragon/marketplace-payouts/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := map[string]string{
		"payout-events":                          "projects/proj/topics/payout-events",
		"  payout-events  ":                      "projects/proj/topics/payout-events",
		"projects/other/topics/payout-events":    "projects/other/topics/payout-events",
		"":                                       "",
	}
	for in, want := range cases {
		if got := topicResourceName("proj", in); got != want {
			t.Fatalf("topicResourceName(%q) = %q, want %q", in, got, want)
		}
	}
	if got := topicResourceName("", "payout-events"); got != "" {
		t.Fatalf("expected empty name without project, got %q", got)
	}
}

func TestNewClientRequiresProjectAndTopic(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.PubSubConfig{NotificationTopic: "t"}, nil); err != errProjectIDRequired {
		t.Fatalf("expected project id error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, nil); err != errNoTopic {
		t.Fatalf("expected topic error, got %v", err)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("x") != nil {
		t.Fatal("nil client should not return a publisher")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping on nil client to fail")
	}
}
