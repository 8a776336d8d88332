package mediasoup

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := newFrameWriter(&buf, 0)

	require.NoError(t, w.WriteFrame([]byte("hello")))
	require.NoError(t, w.WriteFrame([]byte{}))
	require.NoError(t, w.WriteFrame([]byte("world")))

	r := newFrameReader(&buf, 0)

	frame, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(frame))

	frame, err = r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{}, frame)

	frame, err = r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "world", string(frame))

	_, err = r.ReadFrame()
	assert.Equal(t, io.EOF, err)
}

func TestFrameWriterRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	w := newFrameWriter(&buf, 4)

	err := w.WriteFrame([]byte("12345"))
	assert.Equal(t, ErrRequestTooBig, err)
	assert.Equal(t, 0, buf.Len())
}

func TestFrameReaderDropsOversizedFrameAndResynchronizes(t *testing.T) {
	var buf bytes.Buffer
	// Write an oversized frame directly (bypassing frameWriter's own
	// size check) followed by a well-formed one, and confirm the
	// reader discards the former's bytes and resynchronizes on the
	// latter's frame boundary.
	big := newFrameWriter(&buf, 1<<20)
	require.NoError(t, big.WriteFrame(bytes.Repeat([]byte{'x'}, 10)))
	require.NoError(t, big.WriteFrame([]byte("ok")))

	r := newFrameReader(&buf, 4)

	_, err := r.ReadFrame()
	require.Error(t, err)

	frame, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(frame))
}
