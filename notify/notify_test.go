package notify_test

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/halvar/credkeeper/notify"
	"github.com/halvar/credkeeper/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []notify.Event
	err    error
}

func (r *recordingSink) Notify(event notify.Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func sampleEvent() notify.Event {
	return notify.Event{
		Service:   "northline",
		Kind:      notify.KindResult,
		Severity:  notify.Alert,
		Message:   "refresh failed",
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDispatcher_FansOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	d := notify.NewDispatcher(a, b)

	require.NoError(t, d.Notify(sampleEvent()))

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestDispatcher_SinkFailureDoesNotStopOthers(t *testing.T) {
	broken := &recordingSink{err: errors.New("smtp down")}
	healthy := &recordingSink{}
	d := notify.NewDispatcher(broken, healthy)

	require.NoError(t, d.Notify(sampleEvent()), "a sink failure must never surface to the caller")
	assert.Len(t, healthy.events, 1, "the remaining sinks must still receive the event")
}

func TestSeverityForStatus(t *testing.T) {
	tests := []struct {
		status policy.Status
		want   notify.Severity
	}{
		{policy.Unknown, notify.Info},
		{policy.Valid, notify.Info},
		{policy.Warning, notify.Notice},
		{policy.Critical, notify.Alert},
		{policy.Expired, notify.Alert},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, notify.SeverityForStatus(tt.status), tt.status.String())
	}
}

func TestSeverityForResult(t *testing.T) {
	assert.Equal(t, notify.Info, notify.SeverityForResult(true))
	assert.Equal(t, notify.Alert, notify.SeverityForResult(false))
}

func TestFileSink_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	sink, err := notify.NewFileSink(path)
	require.NoError(t, err)
	defer sink.Close()

	first := sampleEvent()
	second := sampleEvent()
	second.Service = "atlaspay"
	second.Account = "treasury"
	require.NoError(t, sink.Notify(first))
	require.NoError(t, sink.Notify(second))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []notify.Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev notify.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		got = append(got, ev)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, got, 2)
	assert.Equal(t, "northline", got[0].Service)
	assert.Equal(t, "atlaspay", got[1].Service)
	assert.Equal(t, "treasury", got[1].Account)
	assert.Equal(t, first.Timestamp, got[0].Timestamp.UTC())
}
