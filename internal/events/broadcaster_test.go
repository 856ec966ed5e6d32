package events

import (
	"strings"
	"testing"
)

func TestPublishReachesProductSubscriber(t *testing.T) {
	b := NewBroadcaster()

	sub := b.Subscribe("sub-1", "elevenst", "123")
	defer b.Unsubscribe("sub-1")

	b.Publish("elevenst", "123", "CRAWLING")

	select {
	case event := <-sub.Events:
		if event.Status != "CRAWLING" {
			t.Errorf("Unexpected event status %q", event.Status)
		}
		if event.Source != "elevenst" || event.SourceProductID != "123" {
			t.Errorf("Unexpected event product: %+v", event)
		}
	default:
		t.Fatal("Expected event to be delivered")
	}
}

func TestPublishFiltersOtherProducts(t *testing.T) {
	b := NewBroadcaster()

	sub := b.Subscribe("sub-1", "elevenst", "123")
	defer b.Unsubscribe("sub-1")

	b.Publish("elevenst", "456", "CRAWLING")
	b.Publish("gmarket", "123", "CRAWLING")

	select {
	case event := <-sub.Events:
		t.Fatalf("Expected no events for other products, got %+v", event)
	default:
	}
}

func TestPublishDropsWhenChannelFull(t *testing.T) {
	b := NewBroadcaster()

	sub := b.Subscribe("sub-1", "elevenst", "123")
	defer b.Unsubscribe("sub-1")

	// Channel buffers 10; the rest must be dropped without blocking
	for i := 0; i < 20; i++ {
		b.Publish("elevenst", "123", "CRAWLING")
	}

	if len(sub.Events) != cap(sub.Events) {
		t.Errorf("Expected full channel, got %d/%d", len(sub.Events), cap(sub.Events))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster()

	sub := b.Subscribe("sub-1", "elevenst", "123")
	b.Unsubscribe("sub-1")

	if _, ok := <-sub.Events; ok {
		t.Error("Expected channel to be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic
	b.Publish("elevenst", "123", "ANALYZED")
}

func TestMarshalEvent(t *testing.T) {
	out, err := MarshalEvent(ProductUpdateEvent{
		Source:          "elevenst",
		SourceProductID: "123",
		Status:          "ANALYZED",
	})
	if err != nil {
		t.Fatalf("MarshalEvent failed: %v", err)
	}

	if !strings.HasPrefix(out, "data: ") || !strings.HasSuffix(out, "\n\n") {
		t.Errorf("Not valid SSE framing: %q", out)
	}
	if !strings.Contains(out, `"status":"ANALYZED"`) {
		t.Errorf("Event body missing status: %q", out)
	}
}
