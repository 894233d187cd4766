package services

import (
	"bytes"
	"testing"

	"LabelPrinter/app/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscPosEncoder_Layout(t *testing.T) {
	enc, err := NewEscPosEncoder("")
	require.NoError(t, err)

	got := enc.Encode("A100", "Nguyen Van A", 1, 3)

	var want []byte
	want = append(want, 0x1B, 0x40)       // initialize
	want = append(want, 0x1D, 0x21, 0x11) // double width and height
	want = append(want, "A100\n"...)
	want = append(want, 0x1D, 0x21, 0x00) // normal size
	want = append(want, "Nguyen Van A\n"...)
	want = append(want, "BOX: #1/3\n"...)
	want = append(want, '\n', '\n')
	want = append(want, 0x1D, 0x56, 0x00) // full cut

	assert.Equal(t, want, got)
}

func TestEscPosEncoder_Deterministic(t *testing.T) {
	enc, err := NewEscPosEncoder("utf-8")
	require.NoError(t, err)

	a := enc.Encode("A100", "Nguyễn Văn A", 2, 3)
	b := enc.Encode("A100", "Nguyễn Văn A", 2, 3)
	assert.Equal(t, a, b)
	assert.True(t, bytes.Contains(a, []byte("Nguyễn Văn A")))
}

func TestEscPosEncoder_CodePage(t *testing.T) {
	enc, err := NewEscPosEncoder("cp850")
	require.NoError(t, err)
	assert.Equal(t, "cp850", enc.Name())

	got := enc.Encode("A1", "José 漢", 1, 1)
	assert.True(t, bytes.Contains(got, []byte{'J', 'o', 's', 0x82, ' ', '?', '\n'}),
		"é maps to 0x82 and unmappable runes become '?': %q", got)
}

func TestEscPosEncoder_WindowsAlias(t *testing.T) {
	enc, err := NewEscPosEncoder("CP1252")
	require.NoError(t, err)

	got := enc.Encode("A1", "Café", 1, 1)
	assert.True(t, bytes.Contains(got, []byte{'C', 'a', 'f', 0xE9, '\n'}))
}

func TestEscPosEncoder_UnknownEncoding(t *testing.T) {
	_, err := NewEscPosEncoder("klingon-8")
	assert.Error(t, err)
}

func TestEscPosEncoder_EncodeJob(t *testing.T) {
	enc, err := NewEscPosEncoder("")
	require.NoError(t, err)

	long := "Customer name that is far longer than forty characters total"
	label, err := models.NewLabel("A100", long, 3)
	require.NoError(t, err)

	payloads := enc.EncodeJob(label)
	require.Len(t, payloads, 3)
	for i, p := range payloads {
		assert.Equal(t, enc.Encode("A100", long[:40], i+1, 3), p)
	}
	assert.False(t, bytes.Contains(payloads[0], []byte(long)))
}
