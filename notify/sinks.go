package notify

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/halvar/credkeeper/pkg/clierr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConsoleSink writes events through the process logger at a level matching
// the event severity.
type ConsoleSink struct{}

func NewConsoleSink() *ConsoleSink { return &ConsoleSink{} }

func (c *ConsoleSink) Notify(event Event) error {
	var ev *zerolog.Event
	switch event.Severity {
	case Alert:
		ev = log.Error()
	case Notice:
		ev = log.Warn()
	default:
		ev = log.Info()
	}
	ev.Str("service", event.Service).
		Str("kind", string(event.Kind)).
		Str("severity", string(event.Severity)).
		Time("at", event.Timestamp)
	if event.Account != "" {
		ev.Str("account", event.Account)
	}
	ev.Msg(event.Message)
	return nil
}

// FileSink appends events as JSON lines so an external scheduler or human
// can tail the file between runs.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, clierr.New(clierr.Storage, "failed to open notification file", err)
	}
	return &FileSink{file: f}, nil
}

func (s *FileSink) Notify(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return clierr.New(clierr.Unexpected, "failed to encode notification event", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return clierr.New(clierr.Storage, "failed to write notification event", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
