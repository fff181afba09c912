package events

import (
	"fmt"
	"testing"
)

func TestDispatch_RegistrationOrder(t *testing.T) {
	r := NewRegistry()
	var calls []string
	for i := 0; i < 3; i++ {
		i := i
		r.Register(Component{
			Kind: KindLibrary,
			Handlers: map[EventName]Handler{
				EventClickFolder: func(param string) {
					calls = append(calls, fmt.Sprintf("c%d:%s", i, param))
				},
			},
		})
	}
	// A component without a handler for the event is skipped.
	r.Register(Component{Kind: KindBrowser})

	r.Dispatch(EventClickFolder, "f1")

	want := []string{"c0:f1", "c1:f1", "c2:f1"}
	if len(calls) != len(want) {
		t.Fatalf("expected %d calls, got %d: %v", len(want), len(calls), calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}
	if r.Count() != 4 {
		t.Errorf("Count() = %d, want 4", r.Count())
	}
}

func TestDispatch_UnhandledEventIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Register(Component{
		Kind: KindBrowser,
		Handlers: map[EventName]Handler{
			EventLogin: func(string) { t.Error("login handler should not run") },
		},
	})
	r.Dispatch(EventLogout, "")
}

func TestLocalBus_DeliversExactlyOncePerSubscriber(t *testing.T) {
	r := NewRegistry()
	counts := make(map[string]int)
	r.Register(Component{
		Kind: KindBrowser,
		Handlers: map[EventName]Handler{
			EventDeleteChildren: func(param string) { counts["browser:"+param]++ },
		},
	})
	r.Register(Component{
		Kind: KindLibrary,
		Handlers: map[EventName]Handler{
			EventDeleteChildren: func(param string) { counts["library:"+param]++ },
		},
	})

	bus := NewLocalBus(r)
	if err := bus.Broadcast(EventDeleteChildren, "f9"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if counts["browser:f9"] != 1 || counts["library:f9"] != 1 {
		t.Errorf("expected exactly one delivery per subscriber, got %v", counts)
	}
}

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Envelope
		wantErr bool
	}{
		{
			name: "valid",
			in:   `{"name":"cmis-clickFolder","params":["f1"]}`,
			want: Envelope{Name: EventClickFolder, Params: []string{"f1"}},
		},
		{
			name: "no params",
			in:   `{"name":"cmis-logout","params":[]}`,
			want: Envelope{Name: EventLogout, Params: []string{}},
		},
		{name: "not json", in: `garbage`, wantErr: true},
		{name: "unknown event", in: `{"name":"cmis-reboot","params":[]}`, wantErr: true},
		{name: "empty", in: ``, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEnvelope([]byte(tt.in))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Name != tt.want.Name || got.Param() != tt.want.Param() {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEventNameValid(t *testing.T) {
	for name := range knownEvents {
		if !name.Valid() {
			t.Errorf("%s should be valid", name)
		}
	}
	if EventName("cmis-unknown").Valid() {
		t.Error("unknown name reported valid")
	}
}
