package frame

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFrameSymmetry covers property 2: reading the frame written by
// WriteFrame yields exactly the original payload, for a range of sizes
// including zero.
func TestFrameSymmetry(t *testing.T) {
	sizes := []int{0, 1, 3, 4, 255, 4096, 70000}

	for _, size := range sizes {
		size := size
		t.Run("", func(t *testing.T) {
			server, client := net.Pipe()
			defer server.Close()
			defer client.Close()

			payload := bytes.Repeat([]byte{0xAB}, size)

			writer := New(client, 0, nil)
			reader := New(server, 0, nil)

			done := make(chan error, 1)
			go func() { done <- writer.WriteFrame(payload) }()

			got, err := reader.ReadFrame()
			require.NoError(t, err)
			require.NoError(t, <-done)
			assert.Equal(t, payload, got)
		})
	}
}

func TestReadFrame_CleanEOF(t *testing.T) {
	server, client := net.Pipe()
	reader := New(server, 0, nil)

	go client.Close()

	_, err := reader.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrame_ShortHeaderIsProtocolError(t *testing.T) {
	server, client := net.Pipe()
	reader := New(server, 0, nil)

	go func() {
		client.Write([]byte{0x00, 0x01})
		client.Close()
	}()

	_, err := reader.ReadFrame()
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestReadFrame_ShortBodyIsProtocolError(t *testing.T) {
	server, client := net.Pipe()
	reader := New(server, 0, nil)

	go func() {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], 10)
		client.Write(header[:])
		client.Write([]byte{1, 2, 3})
		client.Close()
	}()

	_, err := reader.ReadFrame()
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestReadFrame_TooLarge(t *testing.T) {
	server, client := net.Pipe()
	reader := New(server, 8, nil)

	go func() {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], 9)
		client.Write(header[:])
	}()

	_, err := reader.ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestWriteFrame_PeerGoneClassified(t *testing.T) {
	server, client := net.Pipe()
	writer := New(client, 0, nil)
	server.Close()
	client.Close()

	err := writer.WriteFrame([]byte("hello"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPeerGone)
}
