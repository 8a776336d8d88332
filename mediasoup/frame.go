package mediasoup

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// DefaultMaxMessageSize bounds a single frame payload, matching the 4 MiB
// ceiling mediasoup worker implementations have historically used.
const DefaultMaxMessageSize = 4 * 1024 * 1024

// frameReader decodes the worker control channel's length-prefixed framing:
// uint32_le length || length bytes of UTF-8/binary payload. It tolerates a
// read delivering multiple frames, a partial frame, or a 0-byte frame.
type frameReader struct {
	r       *bufio.Reader
	maxSize int
}

func newFrameReader(r io.Reader, maxSize int) *frameReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &frameReader{r: bufio.NewReaderSize(r, 64*1024), maxSize: maxSize}
}

// ReadFrame blocks until one full frame has been read, returning io.EOF
// when the peer has shut down its side of the socket.
func (f *frameReader) ReadFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(f.r, lenBuf[:]); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(lenBuf[:])
	if int(length) > f.maxSize {
		// Drop the oversized frame: discard its bytes so the stream
		// resynchronizes on the next frame boundary, then report.
		if _, err := io.CopyN(io.Discard, f.r, int64(length)); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("mediasoup: frame of %d bytes exceeds max %d, dropped", length, f.maxSize)
	}

	if length == 0 {
		return []byte{}, nil
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(f.r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// frameWriter encodes a payload using the same length-prefixed framing.
type frameWriter struct {
	w       io.Writer
	maxSize int
}

func newFrameWriter(w io.Writer, maxSize int) *frameWriter {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &frameWriter{w: w, maxSize: maxSize}
}

func (f *frameWriter) WriteFrame(payload []byte) error {
	if len(payload) > f.maxSize {
		return ErrRequestTooBig
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	if _, err := f.w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := f.w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}
