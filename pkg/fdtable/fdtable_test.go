package fdtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"os161/pkg/filetable"
	"os161/pkg/kern/errno"
	"os161/pkg/vfs"
	"os161/pkg/vfs/memfs"
)

func newFiles(t *testing.T) *filetable.Table {
	t.Helper()
	fs := memfs.New()
	require.NoError(t, fs.WriteFile("/f", []byte("data"), 0644))
	return filetable.New(fs, 64, nil)
}

func open(t *testing.T, files *filetable.Table) filetable.Handle {
	t.Helper()
	h, err := files.Acquire("/f", vfs.O_RDONLY, 0)
	require.NoError(t, err)
	return h
}

func TestInstallSkipsStandard(t *testing.T) {
	files := newFiles(t)
	fds := New(6)

	for want := 3; want < 6; want++ {
		fd, err := fds.Install(open(t, files))
		require.NoError(t, err)
		assert.Equal(t, want, fd)
	}

	h := open(t, files)
	_, err := fds.Install(h)
	assert.ErrorIs(t, err, errno.ErrDescriptorTableExhausted)
	require.NoError(t, files.Release(h))
	assert.Equal(t, 3, files.InUse())
}

func TestInstallReusesLowest(t *testing.T) {
	files := newFiles(t)
	fds := New(8)

	for i := 0; i < 3; i++ {
		_, err := fds.Install(open(t, files))
		require.NoError(t, err)
	}
	_, err := fds.Remove(4)
	require.NoError(t, err)

	fd, err := fds.Install(open(t, files))
	require.NoError(t, err)
	assert.Equal(t, 4, fd)
}

func TestLookupRemove(t *testing.T) {
	files := newFiles(t)
	fds := New(8)
	h := open(t, files)
	fd, err := fds.Install(h)
	require.NoError(t, err)

	tests := []struct {
		name string
		fd   int
		err  error
	}{
		{"installed", fd, nil},
		{"negative", -1, errno.ErrBadDescriptor},
		{"too large", 8, errno.ErrBadDescriptor},
		{"standard unmapped", Stdout, errno.ErrBadDescriptor},
		{"empty", fd + 1, errno.ErrBadDescriptor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fds.Lookup(tt.fd)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, h, got)
		})
	}

	got, err := fds.Remove(fd)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	_, err = fds.Remove(fd)
	assert.ErrorIs(t, err, errno.ErrBadDescriptor)
}

func TestInstallAt(t *testing.T) {
	files := newFiles(t)
	fds := New(8)
	a, b := open(t, files), open(t, files)

	prev, err := fds.InstallAt(Stdout, a)
	require.NoError(t, err)
	assert.True(t, prev.IsZero())

	got, err := fds.Lookup(Stdout)
	require.NoError(t, err)
	assert.Equal(t, a, got, "a standard descriptor may be mapped explicitly")

	prev, err = fds.InstallAt(Stdout, b)
	require.NoError(t, err)
	assert.Equal(t, a, prev)

	_, err = fds.InstallAt(99, a)
	assert.ErrorIs(t, err, errno.ErrBadDescriptor)
}

func TestDuplicate(t *testing.T) {
	files := newFiles(t)
	fds := New(8)
	h1, h2 := open(t, files), open(t, files)
	fds.Install(h1)
	fds.Install(h2)

	dup, err := fds.Duplicate(files)
	require.NoError(t, err)
	assert.Equal(t, 2, dup.Len())
	assert.Equal(t, 2, files.InUse(), "duplication shares entries")

	for _, h := range []filetable.Handle{h1, h2} {
		refs, _ := files.Refs(h)
		assert.Equal(t, 2, refs)
	}

	got, err := dup.Lookup(3)
	require.NoError(t, err)
	assert.Equal(t, h1, got)

	for _, h := range fds.Drain() {
		require.NoError(t, files.Release(h))
	}
	assert.Equal(t, 0, fds.Len())
	assert.Equal(t, 2, files.InUse(), "duplicate still holds the entries")

	for _, h := range dup.Drain() {
		require.NoError(t, files.Release(h))
	}
	assert.Equal(t, 0, files.InUse())
}

func TestDuplicateUnwindsOnStaleEntry(t *testing.T) {
	files := newFiles(t)
	fds := New(8)
	good, stale := open(t, files), open(t, files)
	fds.Install(good)
	fds.Install(stale)
	require.NoError(t, files.Release(stale))

	_, err := fds.Duplicate(files)
	assert.ErrorIs(t, err, errno.ErrBadDescriptor)

	refs, _ := files.Refs(good)
	assert.Equal(t, 1, refs, "references taken before the failure are returned")
}

func TestDrainClosesTable(t *testing.T) {
	files := newFiles(t)
	fds := New(8)
	fds.Install(open(t, files))

	for _, h := range fds.Drain() {
		require.NoError(t, files.Release(h))
	}

	h := open(t, files)
	_, err := fds.Install(h)
	assert.ErrorIs(t, err, errno.ErrBadDescriptor)
	_, err = fds.InstallAt(3, h)
	assert.ErrorIs(t, err, errno.ErrBadDescriptor)
	_, err = fds.Duplicate(files)
	assert.ErrorIs(t, err, errno.ErrBadDescriptor)

	assert.Equal(t, 0, fds.Len())
	assert.Empty(t, fds.Drain())
	require.NoError(t, files.Release(h))
	assert.Equal(t, 0, files.InUse())
}

func TestIsStandard(t *testing.T) {
	assert.True(t, IsStandard(Stdin))
	assert.True(t, IsStandard(Stderr))
	assert.False(t, IsStandard(3))
	assert.False(t, IsStandard(-1))
}
