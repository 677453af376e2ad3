package http

import (
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
)

type fakeNATS struct {
	subjects     []string
	failOn       string
	unsubscribed int
}

func (f *fakeNATS) subscribe(subject string, _ nats.MsgHandler) (*nats.Subscription, error) {
	if subject == f.failOn {
		return nil, errors.New("permissions violation")
	}
	f.subjects = append(f.subjects, subject)
	return &nats.Subscription{Subject: subject}, nil
}

func newTestSubs(f *fakeNATS) *channelSubs {
	cs := newChannelSubs(f.subscribe, func(*nats.Msg) {})
	cs.unsubscribe = func(*nats.Subscription) error {
		f.unsubscribed++
		return nil
	}
	return cs
}

func TestChannelSubs_DefaultFailureReleasesEarlierSubscriptions(t *testing.T) {
	f := &fakeNATS{failOn: "tripsim.notices"}
	cs := newTestSubs(f)

	if err := cs.openDefaults(); err == nil {
		t.Fatal("expected error when notices cannot be subscribed")
	}
	if len(f.subjects) != 1 || f.subjects[0] != "tripsim.routes.>" {
		t.Fatalf("unexpected subscriptions %v", f.subjects)
	}
	if f.unsubscribed != 1 {
		t.Errorf("expected routes subscription released, got %d unsubscribes", f.unsubscribed)
	}
	if cs.has("routes") {
		t.Error("routes should no longer be tracked")
	}
}

func TestChannelSubs_AddRemoveClose(t *testing.T) {
	f := &fakeNATS{}
	cs := newTestSubs(f)

	if err := cs.openDefaults(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cs.add("route:7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cs.add("vehicles"); err == nil {
		t.Error("expected unknown channel to be rejected")
	}
	if !cs.has("route:7") || f.subjects[2] != "tripsim.route.7.>" {
		t.Fatalf("route channel not subscribed: %v", f.subjects)
	}

	if !cs.remove("route:7") || cs.remove("route:7") {
		t.Error("remove should succeed once")
	}

	cs.closeAll()
	if f.unsubscribed != 3 {
		t.Errorf("expected 3 unsubscribes, got %d", f.unsubscribed)
	}
	if cs.has("routes") || cs.has("notices") {
		t.Error("closeAll should drop every channel")
	}
}
