package config

import "testing"

func TestTableAndDottedKeysAreEquivalent(t *testing.T) {
	for _, input := range []string{
		"[watcher]\ndedup-window-ms = 250\n",
		"watcher.dedup-window-ms = 250\n",
	} {
		store, err := DecodeFile("latera.toml", []byte(input))
		if err != nil {
			t.Fatalf("decode toml: %v", err)
		}
		if got := store.Int("watcher.dedup-window-ms", -1); got != 250 {
			t.Fatalf("expected 250, got %d", got)
		}
	}
}

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"Watcher.WATCH_HIDDEN": "watcher.watch-hidden",
		" notify . redis_addr": "notify.redis-addr",
		"":                     "",
	}
	for input, want := range cases {
		if got := NormalizeKey(input); got != want {
			t.Fatalf("NormalizeKey(%q): expected %q, got %q", input, want, got)
		}
	}
}

func TestYAMLFlattensLikeTOML(t *testing.T) {
	input := `
notify:
  sink: redis
  redis_addr: "127.0.0.1:6379"
server:
  rate-burst: 4
  rate-limit: 2.5
watcher:
  ignore: ["*.tmp", "*.part"]
`
	store, err := DecodeFile("latera.yaml", []byte(input))
	if err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if sink := store.String("notify.sink", ""); sink != "redis" {
		t.Fatalf("expected redis sink, got %q", sink)
	}
	if addr := store.String("notify.redis-addr", ""); addr != "127.0.0.1:6379" {
		t.Fatalf("expected redis addr, got %q", addr)
	}
	if burst := store.Int("server.rate-burst", 0); burst != 4 {
		t.Fatalf("expected burst 4, got %d", burst)
	}
	if limit := store.Float("server.rate-limit", 0); limit != 2.5 {
		t.Fatalf("expected limit 2.5, got %v", limit)
	}
	if ignore := store.List("watcher.ignore"); len(ignore) != 2 || ignore[1] != "*.part" {
		t.Fatalf("unexpected ignore list %v", ignore)
	}
}

func TestAccessorsCoerceStringsAndFallBack(t *testing.T) {
	store := NewStore()
	store.Set("flag", "true")
	store.Set("count", " 7 ")
	store.Set("name", "hello")
	store.Set("ratio", int64(3))

	if !store.Bool("flag", false) {
		t.Fatal("expected string flag to parse as true")
	}
	if got := store.Int("count", 0); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := store.Int("name", -1); got != -1 {
		t.Fatalf("expected fallback for non-numeric string, got %d", got)
	}
	if got := store.Float("ratio", 0); got != 3 {
		t.Fatalf("expected integer to widen to float, got %v", got)
	}
	if got := store.String("missing", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	if store.Set("  ", 1) != "" {
		t.Fatal("expected blank key to be ignored")
	}
}

func TestDecodeFileRejectsBrokenTOML(t *testing.T) {
	if _, err := DecodeFile("latera.toml", []byte("[watcher\n")); err == nil {
		t.Fatal("expected parse error")
	}
}
