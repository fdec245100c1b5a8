package xdr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadding(t *testing.T) {
	assert.Equal(t, 0, Padding(0))
	assert.Equal(t, 3, Padding(1))
	assert.Equal(t, 2, Padding(2))
	assert.Equal(t, 1, Padding(3))
	assert.Equal(t, 0, Padding(4))
	assert.Equal(t, 3, Padding(5))
}

func TestUint32RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	EncodeUint32(&buf, 0xdeadbeef)
	got, err := DecodeUint32(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), got)
}

func TestUint64RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	EncodeUint64(&buf, 0x0102030405060708)
	got, err := DecodeUint64(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), got)
}

func TestBoolRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	EncodeBool(&buf, true)
	EncodeBool(&buf, false)
	got1, err := DecodeBool(&buf)
	require.NoError(t, err)
	got2, err := DecodeBool(&buf)
	require.NoError(t, err)
	assert.True(t, got1)
	assert.False(t, got2)
}

func TestOpaqueRoundTrip(t *testing.T) {
	tests := [][]byte{
		{},
		{1, 2, 3},
		{1, 2, 3, 4},
		[]byte("hello world"),
	}
	for _, data := range tests {
		var buf bytes.Buffer
		EncodeOpaque(&buf, data)
		got, err := DecodeOpaque(&buf)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestOpaqueRejectsOversizeLength(t *testing.T) {
	var buf bytes.Buffer
	EncodeUint32(&buf, MaxOpaqueLen+1)
	_, err := DecodeOpaque(&buf)
	require.ErrorIs(t, err, ErrOpaqueTooLarge)
}

func TestStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	EncodeString(&buf, "/export/foo.txt")
	got, err := DecodeString(&buf)
	require.NoError(t, err)
	assert.Equal(t, "/export/foo.txt", got)
}
