package events

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recorded struct {
	name  EventName
	param string
}

func relayPeer(t *testing.T, url string) (*RelayBus, chan recorded) {
	t.Helper()
	got := make(chan recorded, 16)
	r := NewRegistry()
	handler := func(name EventName) Handler {
		return func(param string) { got <- recorded{name: name, param: param} }
	}
	r.Register(Component{
		Kind: KindLibrary,
		Handlers: map[EventName]Handler{
			EventClickFolder: handler(EventClickFolder),
			EventLogin:       handler(EventLogin),
		},
	})

	bus, err := DialRelay(context.Background(), url, r)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { bus.Close() })
	return bus, got
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRelay_RoundTripExactlyOnce(t *testing.T) {
	relay := NewRelay()
	srv := httptest.NewServer(relay)
	defer srv.Close()

	sender, senderGot := relayPeer(t, wsURL(srv))
	_, receiverGot := relayPeer(t, wsURL(srv))

	if err := sender.Broadcast(EventClickFolder, "folder-7"); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}

	select {
	case ev := <-receiverGot:
		if ev.name != EventClickFolder || ev.param != "folder-7" {
			t.Errorf("received %+v, want clickFolder folder-7", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receiver never saw the envelope")
	}

	// The hub must not echo the frame back to the sender, and the receiver
	// must see it exactly once.
	select {
	case ev := <-senderGot:
		t.Errorf("sender received its own broadcast: %+v", ev)
	case ev := <-receiverGot:
		t.Errorf("receiver saw a duplicate: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRelay_MalformedFrameDropped(t *testing.T) {
	relay := NewRelay()
	srv := httptest.NewServer(relay)
	defer srv.Close()

	_, got := relayPeer(t, wsURL(srv))

	raw, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer raw.Close()

	if err := raw.WriteMessage(websocket.TextMessage, []byte("not an envelope")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := raw.WriteMessage(websocket.TextMessage,
		[]byte(`{"name":"cmis-login","params":["alice:secret"]}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// The malformed frame is dropped; the following valid one still lands.
	select {
	case ev := <-got:
		if ev.name != EventLogin || ev.param != "alice:secret" {
			t.Errorf("received %+v, want the login envelope", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid envelope after a malformed one was not delivered")
	}
}

func TestRelay_ConnCount(t *testing.T) {
	relay := NewRelay()
	srv := httptest.NewServer(relay)
	defer srv.Close()

	a, _ := relayPeer(t, wsURL(srv))
	relayPeer(t, wsURL(srv))

	waitFor(t, func() bool { return relay.ConnCount() == 2 }, "two connections")

	a.Close()
	waitFor(t, func() bool { return relay.ConnCount() == 1 }, "one connection after close")
}

func TestRelayBus_BroadcastAfterClose(t *testing.T) {
	relay := NewRelay()
	srv := httptest.NewServer(relay)
	defer srv.Close()

	bus, _ := relayPeer(t, wsURL(srv))
	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	// A closed bus drops broadcasts without error.
	if err := bus.Broadcast(EventLogout, ""); err != nil {
		t.Errorf("broadcast after close should be dropped, got %v", err)
	}
	// Close is idempotent.
	if err := bus.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
