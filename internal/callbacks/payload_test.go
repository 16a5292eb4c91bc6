package callbacks

import "testing"

func TestJoinAndParse(t *testing.T) {
	cases := []struct {
		data    string
		action  string
		payload string
	}{
		{"item:3", "item", "3"},
		{"cmd_cancel", "cmd_cancel", ""},
		{"fmt:12", "fmt", "12"},
		{"a:b:c", "a", "b:c"},
	}
	for _, tc := range cases {
		if got := Action(tc.data); got != tc.action {
			t.Errorf("Action(%q) = %q, want %q", tc.data, got, tc.action)
		}
		if got := Payload(tc.data); got != tc.payload {
			t.Errorf("Payload(%q) = %q, want %q", tc.data, got, tc.payload)
		}
	}
	if got := Join("item", "3"); got != "item:3" {
		t.Errorf("Join = %q", got)
	}
	if got := Join("cmd_cancel", ""); got != "cmd_cancel" {
		t.Errorf("Join without payload = %q", got)
	}
}

func TestPayloadInt(t *testing.T) {
	n, err := PayloadInt(JoinInt("fmt", 7))
	if err != nil || n != 7 {
		t.Fatalf("PayloadInt = %d, %v", n, err)
	}
	if _, err := PayloadInt("fmt:abc"); err == nil {
		t.Fatal("expected parse error")
	}
}
