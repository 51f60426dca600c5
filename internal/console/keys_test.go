package console

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyReader_PumpDeliversKeys(t *testing.T) {
	k := &KeyReader{in: strings.NewReader("tq"), keys: make(chan rune, 16)}

	k.pump()

	var got []rune
	for r := range k.keys {
		got = append(got, r)
	}
	assert.Equal(t, []rune{'t', 'q'}, got)
}

func TestKeyReader_StartRejectsNonTerminal(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	k := NewKeyReader(r)
	_, err = k.Start()

	assert.ErrorIs(t, err, ErrNotTerminal)
	assert.NoError(t, k.Restore())
}

func TestWriter_TranslatesOnlyWhileRaw(t *testing.T) {
	k := &KeyReader{}
	var buf bytes.Buffer
	w := k.Writer(&buf)

	_, err := w.Write([]byte("a\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", buf.String())

	buf.Reset()
	k.raw.Store(true)
	n, err := w.Write([]byte("a\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "a\r\nb\r\n", buf.String())
}
