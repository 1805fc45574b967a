package sse

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_DecodesEvents(t *testing.T) {
	stream := strings.Join([]string{
		": connected",
		"",
		"event: notification",
		"id: 1",
		`data: {"id":"n1",`,
		`data: "message":"hi"}`,
		"",
		"data: plain",
		"retry: 1500",
		"",
		"",
	}, "\n")

	r := NewReader(strings.NewReader(stream))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "notification", ev.Name())
	assert.Equal(t, "1", ev.ID)
	assert.Equal(t, "{\"id\":\"n1\",\n\"message\":\"hi\"}", string(ev.Data))

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "message", ev.Name())
	assert.Equal(t, "plain", string(ev.Data))
	assert.Equal(t, 1500*time.Millisecond, ev.Retry)
	assert.Equal(t, "1", r.LastEventID())

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReader_CRLFAndNoSpace(t *testing.T) {
	r := NewReader(strings.NewReader("event:notification\r\ndata:x\r\n\r\n"))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "notification", ev.Event)
	assert.Equal(t, "x", string(ev.Data))
}

func TestReader_EventWithoutDataIsSkipped(t *testing.T) {
	r := NewReader(strings.NewReader("event: ping\n\nevent: notification\ndata: y\n\n"))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "notification", ev.Event)
}

func TestReader_IncompleteTrailingEvent(t *testing.T) {
	r := NewReader(strings.NewReader("event: notification\ndata: partial"))

	_, err := r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReader_ReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := NewReader(io.MultiReader(strings.NewReader("data: a\n"), &failingReader{err: boom}))

	_, err := r.Next()
	assert.ErrorIs(t, err, boom)
}

func TestReader_DecodesGinEncoder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sse.Encode(&buf, sse.Event{Event: "notification", Id: "7", Data: map[string]string{"id": "n7"}}))
	require.NoError(t, sse.Encode(&buf, sse.Event{Event: "notification", Data: "line1\nline2"}))

	r := NewReader(&buf)

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "7", ev.ID)
	assert.JSONEq(t, `{"id":"n7"}`, string(ev.Data))

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", string(ev.Data))
}

type failingReader struct {
	err error
}

func (f *failingReader) Read([]byte) (int, error) {
	return 0, f.err
}
