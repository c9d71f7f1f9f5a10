package domain_test

import (
	"encoding/json"
	"strings"
	"testing"

	"parley/internal/domain"
)

func TestRoomKind_WireNames(t *testing.T) {
	for kind, want := range map[domain.RoomKind]string{
		domain.PublicChannel:  `"public"`,
		domain.PrivateChannel: `"private"`,
		domain.Direct:         `"direct"`,
	} {
		b, err := json.Marshal(kind)
		if err != nil {
			t.Fatalf("marshal %v: %v", kind, err)
		}
		if string(b) != want {
			t.Fatalf("marshal %v = %s, want %s", kind, b, want)
		}
		var back domain.RoomKind
		if err := json.Unmarshal(b, &back); err != nil || back != kind {
			t.Fatalf("unmarshal %s = %v, %v", b, back, err)
		}
	}

	var k domain.RoomKind
	if err := json.Unmarshal([]byte(`"secret"`), &k); err == nil {
		t.Fatal("unknown kind must not decode")
	}
}

func TestEnvelope_WrappedKeysAbsentOnPublicPath(t *testing.T) {
	b, err := json.Marshal(domain.Envelope{
		SenderID: "alice",
		RoomID:   "lobby",
		Content:  []byte{1},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Public-path envelopes omit the field entirely rather than
	// sending an empty list.
	if strings.Contains(string(b), "wrapped_keys") {
		t.Fatalf("public envelope leaks wrapped_keys field: %s", b)
	}
}
