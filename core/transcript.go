package core

import (
	"encoding/binary"

	"github.com/gtank/merlin"
)

type Transcript struct {
	*merlin.Transcript
}

func NewTranscript(name string) *Transcript {
	return &Transcript{merlin.NewTranscript(name)}
}

func (t *Transcript) AppendBytes(label string, bytes []byte) {
	t.AppendMessage([]byte(label), bytes)
}

func (t *Transcript) AppendUint64(label string, value uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	t.AppendMessage([]byte(label), buf[:])
}

// AppendUints appends the length of values followed by every value.
func (t *Transcript) AppendUints(label string, values []uint64) {
	t.AppendUint64(label, uint64(len(values)))
	for _, v := range values {
		t.AppendUint64(label, v)
	}
}

func (t *Transcript) SampleUint64(label string) uint64 {
	bytes := t.ExtractBytes([]byte(label), 8)
	return binary.LittleEndian.Uint64(bytes)
}

func (t *Transcript) Digest(label string, size int) []byte {
	return t.ExtractBytes([]byte(label), size)
}
