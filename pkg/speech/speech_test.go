package speech

import (
	"log/slog"
	"testing"
)

func TestMemoryRecordsInOrder(t *testing.T) {
	m := &Memory{}
	for _, text := range []string{"one", "two", "three"} {
		if err := m.Speak(text); err != nil {
			t.Fatalf("Speak(%q): %v", text, err)
		}
	}

	got := m.Spoken()
	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("spoken = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("spoken[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Mutating the copy must not leak back.
	got[0] = "mutated"
	if m.Spoken()[0] != "one" {
		t.Error("Spoken returned a shared slice")
	}
}

func TestLoggingSpeaksWithoutError(t *testing.T) {
	l := &Logging{Logger: slog.Default()}
	if err := l.Speak("hello"); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	var nilLogger Logging
	if err := nilLogger.Speak("hello"); err != nil {
		t.Fatalf("Speak with nil logger: %v", err)
	}
}
