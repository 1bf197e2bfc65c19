package config

import "testing"

func TestDeriveHistoryURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ws://127.0.0.1:8790/ws", "http://127.0.0.1:8790"},
		{"wss://agents.example.com/ws", "https://agents.example.com"},
		{"ws://localhost:9000", "http://localhost:9000"},
		{"", ""},
		{"not a url", ""},
	}
	for _, c := range cases {
		if got := deriveHistoryURL(c.in); got != c.want {
			t.Errorf("deriveHistoryURL(%q)=%q, want %q", c.in, got, c.want)
		}
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("AGENTWIRE_TEST_TOKEN", "secret")

	if got := expandEnv("${AGENTWIRE_TEST_TOKEN}"); got != "secret" {
		t.Fatalf("expandEnv braces=%q, want secret", got)
	}
	if got := expandEnv("$AGENTWIRE_TEST_TOKEN"); got != "secret" {
		t.Fatalf("expandEnv bare=%q, want secret", got)
	}
	if got := expandEnv("literal"); got != "literal" {
		t.Fatalf("expandEnv literal=%q", got)
	}
}
