// Package speech is the client-side synthesis seam. The server never
// synthesises audio; assistant replies arrive as text and the client decides
// how to voice them.
package speech

import (
	"log/slog"
	"os/exec"
	"sync"
)

// Speaker voices assistant replies on the client device.
type Speaker interface {
	// Speak voices text. Implementations block until playback has been
	// handed off, not until it finishes.
	Speak(text string) error
}

// Logging is a Speaker that just logs the reply. It stands in where no audio
// output exists, such as headless runs.
type Logging struct {
	Logger *slog.Logger
}

func (l *Logging) Speak(text string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("assistant says", "text", text)
	return nil
}

// Memory records spoken replies in order. Useful in tests.
type Memory struct {
	mu     sync.Mutex
	spoken []string
}

func (m *Memory) Speak(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spoken = append(m.spoken, text)
	return nil
}

// Spoken returns a copy of everything spoken so far.
func (m *Memory) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.spoken...)
}

// Command voices text by running an external synthesiser, such as macOS
// "say" or espeak, with the text appended as the last argument.
type Command struct {
	Name string
	Args []string
}

func (c *Command) Speak(text string) error {
	args := append(append([]string(nil), c.Args...), text)
	return exec.Command(c.Name, args...).Run()
}

var (
	_ Speaker = (*Logging)(nil)
	_ Speaker = (*Memory)(nil)
	_ Speaker = (*Command)(nil)
)
