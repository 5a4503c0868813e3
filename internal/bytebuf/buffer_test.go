package bytebuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_AppendGrowsGeometrically(t *testing.T) {
	b := New(4)
	assert.Equal(t, 4, b.Capacity())

	b.Append([]byte{1, 2, 3, 4})
	assert.Equal(t, 4, b.Size())

	b.Append([]byte{5, 6})
	assert.Equal(t, 6, b.Size())
	assert.GreaterOrEqual(t, b.Capacity(), 6)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, b.Bytes())
}

func TestBuffer_ReadAtBoundsEnforced(t *testing.T) {
	b := New(8)
	b.Append([]byte{1, 2, 3, 4})

	_, err := b.ReadAt(0, 4)
	require.NoError(t, err)

	_, err = b.ReadAt(4, 10)
	assert.Error(t, err, "read_at beyond capacity must fail")
}

func TestBuffer_WriteAtBoundsEnforced(t *testing.T) {
	b := New(8)
	b.Append([]byte{0, 0, 0, 0})

	err := b.WriteAt(0, []byte{9, 9}, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 0, 0}, b.Bytes())

	err = b.WriteAt(2, []byte{1, 2, 3}, 3)
	assert.Error(t, err, "write_at past size must fail")
}

func TestBuffer_SeekReadAndRead(t *testing.T) {
	b := New(8)
	b.Append([]byte{10, 20, 30, 40})

	require.NoError(t, b.SeekRead(2))
	out := make([]byte, 2)
	n, err := b.Read(out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{30, 40}, out)
}

func TestBuffer_ResetWriteCursorAllowsResend(t *testing.T) {
	b := New(8)
	b.Append([]byte{1, 2, 3, 4})
	b.wpos = 4
	assert.Equal(t, 4, b.WriteCursor())

	b.ResetWriteCursor()
	assert.Equal(t, 0, b.WriteCursor())
}

func TestBuffer_ClearKeepsBackingArray(t *testing.T) {
	b := New(16)
	b.Append([]byte{1, 2, 3})
	cap0 := b.Capacity()

	b.Clear()
	assert.Equal(t, 0, b.Size())
	assert.Equal(t, 0, b.ReadCursor())
	assert.Equal(t, cap0, b.Capacity())
}
