package sync

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stringlate/appdir/internal/status"
)

func TestObserverFuncs(t *testing.T) {
	t.Parallel()

	// nil fields are skipped
	ObserverFuncs{}.OnProgressUpdate("t", "d")
	ObserverFuncs{}.OnProgressFinished("d", true)

	var gotTitle string
	var gotSuccess bool
	obs := ObserverFuncs{
		Update:   func(title, _ string) { gotTitle = title },
		Finished: func(_ string, success bool) { gotSuccess = success },
	}
	obs.OnProgressUpdate(TitleExtracting, "")
	obs.OnProgressFinished("", true)

	assert.Equal(t, TitleExtracting, gotTitle)
	assert.True(t, gotSuccess)
}

func TestChannelObserver_ClosesAfterFinish(t *testing.T) {
	t.Parallel()

	obs := NewChannelObserver(3)
	obs.OnProgressUpdate(TitleDownloading, "from somewhere")
	obs.OnProgressFinished("boom", false)

	var events []Event
	for ev := range obs.Events() {
		events = append(events, ev)
	}

	require.Len(t, events, 2)
	assert.Equal(t, Event{Title: TitleDownloading, Description: "from somewhere"}, events[0])
	assert.Equal(t, Event{Description: "boom", Finished: true, Success: false}, events[1])
}

func TestLogObserver(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	obs := LogObserver{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	obs.OnProgressUpdate(TitleParsing, "reading")
	obs.OnProgressFinished("no network", false)

	out := buf.String()
	assert.Contains(t, out, "Loading index.xml")
	assert.Contains(t, out, "detail=reading")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, `detail="no network"`)
}

func TestMultiObserver(t *testing.T) {
	t.Parallel()

	first, second := &recordingObserver{}, &recordingObserver{}
	multi := MultiObserver{first, nil, second}

	multi.OnProgressUpdate(TitleDownloading, "")
	multi.OnProgressFinished("done", true)

	for _, r := range []*recordingObserver{first, second} {
		assert.Equal(t, []string{TitleDownloading}, r.titles)
		assert.Equal(t, []bool{true}, r.finished)
	}
}

func TestError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := newError(KindNetwork, status.SyncPhaseDownloading, "Failed to download the index", cause)

	assert.Equal(t, "Failed to download the index: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	var target *Error
	require.ErrorAs(t, error(err), &target)
	assert.Equal(t, KindNetwork, target.Kind)

	bare := &Error{Message: "just a message"}
	assert.Equal(t, "just a message", bare.Error())
}
