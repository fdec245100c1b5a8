package memory

import (
	"context"
	"syscall"
	"testing"

	"github.com/riverfs/nfsd3/internal/nfs3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootIsDirectory(t *testing.T) {
	b := New()
	stat, err := b.GetAttr(context.Background(), b.Root())
	require.NoError(t, err)
	assert.Equal(t, nfs3.ModeDir|0755, stat.Mode&(nfs3.ModeFmt|0777))
	assert.Equal(t, uint32(2), stat.Nlink)
}

func TestGetAttrUnknownHandleIsStale(t *testing.T) {
	b := New()
	_, err := b.GetAttr(context.Background(), nfs3.FileHandle(9999))
	assert.ErrorIs(t, err, syscall.ESTALE)
}

func TestCreateThenLookupRoundTrip(t *testing.T) {
	b := New()
	ctx := context.Background()

	res, err := b.Create(ctx, b.Root(), "file.txt", nfs3.ModeReg|0644)
	require.NoError(t, err)
	assert.NotZero(t, res.Handle)

	fh, stat, err := b.Lookup(ctx, b.Root(), "file.txt")
	require.NoError(t, err)
	assert.Equal(t, res.Handle, fh)
	assert.Equal(t, uint64(0), stat.Size)
}

func TestCreateDuplicateNameFails(t *testing.T) {
	b := New()
	ctx := context.Background()
	_, err := b.Create(ctx, b.Root(), "dup", nfs3.ModeReg|0644)
	require.NoError(t, err)
	_, err = b.Create(ctx, b.Root(), "dup", nfs3.ModeReg|0644)
	assert.ErrorIs(t, err, syscall.EEXIST)
}

func TestLookupMissingNameFails(t *testing.T) {
	b := New()
	_, _, err := b.Lookup(context.Background(), b.Root(), "nope")
	assert.ErrorIs(t, err, syscall.ENOENT)
}

func TestLookupIntoNonDirectoryFails(t *testing.T) {
	b := New()
	ctx := context.Background()
	res, err := b.Create(ctx, b.Root(), "file.txt", nfs3.ModeReg|0644)
	require.NoError(t, err)
	_, _, err = b.Lookup(ctx, res.Handle, "anything")
	assert.ErrorIs(t, err, syscall.ENOTDIR)
}

func TestWriteGrowsFileAndUpdatesSize(t *testing.T) {
	b := New()
	ctx := context.Background()
	res, err := b.Create(ctx, b.Root(), "file.txt", nfs3.ModeReg|0644)
	require.NoError(t, err)

	wr, err := b.Write(ctx, res.Handle, []byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), wr.Written)

	stat, err := b.GetAttr(ctx, res.Handle)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), stat.Size)

	wr, err = b.Write(ctx, res.Handle, []byte("!!"), 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), wr.Written)

	stat, err = b.GetAttr(ctx, res.Handle)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), stat.Size)
}

func TestWriteToDirectoryFails(t *testing.T) {
	b := New()
	_, err := b.Write(context.Background(), b.Root(), []byte("x"), 0)
	assert.ErrorIs(t, err, syscall.EINVAL)
}

func TestMkdirNestsUnderParent(t *testing.T) {
	b := New()
	ctx := context.Background()
	res, err := b.Mkdir(ctx, b.Root(), "sub", nfs3.ModeDir|0755)
	require.NoError(t, err)

	parent, err := b.GetParent(ctx, res.Handle)
	require.NoError(t, err)
	assert.Equal(t, b.Root(), parent)

	fh, _, err := b.Lookup(ctx, b.Root(), "sub")
	require.NoError(t, err)
	assert.Equal(t, res.Handle, fh)
}

func TestReadlinkOnNonSymlinkFails(t *testing.T) {
	b := New()
	_, err := b.Readlink(context.Background(), b.Root())
	assert.ErrorIs(t, err, syscall.EINVAL)
}

func TestStatfsReportsUsage(t *testing.T) {
	b := New()
	ctx := context.Background()
	res, err := b.Create(ctx, b.Root(), "file.txt", nfs3.ModeReg|0644)
	require.NoError(t, err)
	_, err = b.Write(ctx, res.Handle, make([]byte, 8192), 0)
	require.NoError(t, err)

	stats, err := b.Statfs(ctx, b.Root())
	require.NoError(t, err)
	assert.Greater(t, stats.TotalBlocks, uint64(0))
	assert.Less(t, stats.FreeBlocks, stats.TotalBlocks)
}

func TestStatfsUnknownHandleIsStale(t *testing.T) {
	b := New()
	_, err := b.Statfs(context.Background(), nfs3.FileHandle(9999))
	assert.ErrorIs(t, err, syscall.ESTALE)
}
