package fd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"rvos/internal/filedisk"
	"rvos/internal/fs"
)

type fakeUart struct {
	in  []byte
	out []byte
}

func (u *fakeUart) ReadByteBlocking() byte {
	b := u.in[0]
	u.in = u.in[1:]
	return b
}

func (u *fakeUart) WriteBytes(buf []byte) { u.out = append(u.out, buf...) }

func TestTableInitStandardDescriptors(t *testing.T) {
	dev := &fakeUart{in: []byte("x")}
	tbl := NewTable()
	tbl.Init(dev)

	buf := make([]byte, 1)
	n, err := mustGet(t, tbl, StdinFD).Read(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte('x'), buf[0])

	n, err = mustGet(t, tbl, StdoutFD).Write([]byte("hi"))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []byte("hi"), dev.out)

	_, err = mustGet(t, tbl, StdoutFD).Read(buf)
	require.ErrorIs(t, err, ErrBadFd)
}

func mustGet(t *testing.T, tbl *Table, n int) Descriptor {
	t.Helper()
	d, err := tbl.Get(n)
	require.NoError(t, err)
	return d
}

func TestAllocFailsWhenTableFull(t *testing.T) {
	tbl := NewTable()
	for i := 0; i < MaxFDs; i++ {
		_, err := tbl.Alloc(&UartFd{mode: UartWrite, dev: &fakeUart{}})
		require.NoError(t, err)
	}
	_, err := tbl.Alloc(&UartFd{mode: UartWrite, dev: &fakeUart{}})
	require.ErrorIs(t, err, ErrTooManyOpen)
}

func TestDup2ClosesExistingTarget(t *testing.T) {
	tbl := NewTable()
	dev := &fakeUart{}
	src, err := tbl.Alloc(NewUartFd(UartWrite, dev))
	require.NoError(t, err)
	dst, err := tbl.Alloc(NewUartFd(UartWrite, dev))
	require.NoError(t, err)

	require.NoError(t, tbl.Dup2(src, dst))
	_, err = mustGet(t, tbl, dst).Write([]byte("y"))
	require.NoError(t, err)
}

func newTestFsFd(t *testing.T) *fs.FS {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := filedisk.Create(path, 32)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return fs.Mount(d)
}

func TestFileFdReadWrite(t *testing.T) {
	fsys := newTestFsFd(t)
	f, err := OpenFile(fsys, "a.txt", FileModeReadWrite())
	require.NoError(t, err)

	n, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	f2, err := OpenFile(fsys, "a.txt", FileModeReadOnly())
	require.NoError(t, err)
	buf := make([]byte, 5)
	n, err = f2.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, []byte("hello"), buf)

	n, err = f2.Read(buf)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestFileFdAppendMode(t *testing.T) {
	fsys := newTestFsFd(t)
	f, err := OpenFile(fsys, "log.txt", FileModeWriteOnly())
	require.NoError(t, err)
	_, err = f.Write([]byte("one"))
	require.NoError(t, err)

	f2, err := OpenFile(fsys, "log.txt", FileModeAppendMode())
	require.NoError(t, err)
	_, err = f2.Write([]byte("two"))
	require.NoError(t, err)

	got, err := fsys.Read("log.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("onetwo"), got)
}

func TestCloneReopensEveryLiveSlot(t *testing.T) {
	dev := &fakeUart{in: []byte("x")}
	tbl := NewTable()
	tbl.Init(dev)

	pt := NewPipeTable()
	id, err := pt.CreatePipe()
	require.NoError(t, err)
	slot, err := tbl.Alloc(NewPipeFd(pt, id, false))
	require.NoError(t, err)

	clone, err := tbl.Clone()
	require.NoError(t, err)

	n, err := pt.Write(id, []byte("hi"))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	cloned, err := clone.Get(slot)
	require.NoError(t, err)
	_, err = cloned.Write([]byte("!"))
	require.NoError(t, err)

	buf := make([]byte, 3)
	n, err = pt.Read(id, buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte("hi!"), buf)
}

func TestPipeIDMatchesCreatePipe(t *testing.T) {
	pt := NewPipeTable()
	id, err := pt.CreatePipe()
	require.NoError(t, err)

	rfd := NewPipeFd(pt, id, true)
	require.Equal(t, id, rfd.PipeID())
}

func TestPipeWriteThenReadRoundTrips(t *testing.T) {
	pt := NewPipeTable()
	id, err := pt.CreatePipe()
	require.NoError(t, err)

	wfd := NewPipeFd(pt, id, false)
	rfd := NewPipeFd(pt, id, true)

	n, err := wfd.Write([]byte("abc"))
	require.NoError(t, err)
	require.Equal(t, 3, n)

	buf := make([]byte, 3)
	n, err = rfd.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte("abc"), buf)
}

func TestPipeReadEmptyWithWriterOpenWouldBlock(t *testing.T) {
	pt := NewPipeTable()
	id, err := pt.CreatePipe()
	require.NoError(t, err)
	rfd := NewPipeFd(pt, id, true)

	_, err = rfd.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestPipeReadEmptyAfterWriterClosedReturnsEOF(t *testing.T) {
	pt := NewPipeTable()
	id, err := pt.CreatePipe()
	require.NoError(t, err)
	wfd := NewPipeFd(pt, id, false)
	rfd := NewPipeFd(pt, id, true)

	require.NoError(t, wfd.Close())
	n, err := rfd.Read(make([]byte, 1))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestPipeWriteAfterReaderClosedIsBrokenPipe(t *testing.T) {
	pt := NewPipeTable()
	id, err := pt.CreatePipe()
	require.NoError(t, err)
	wfd := NewPipeFd(pt, id, false)
	rfd := NewPipeFd(pt, id, true)

	require.NoError(t, rfd.Close())
	_, err = wfd.Write([]byte("x"))
	require.ErrorIs(t, err, ErrBrokenPipe)
}

func TestPipeFillsThenWouldBlock(t *testing.T) {
	pt := NewPipeTable()
	id, err := pt.CreatePipe()
	require.NoError(t, err)
	wfd := NewPipeFd(pt, id, false)

	big := make([]byte, PipeBufSize)
	n, err := wfd.Write(big)
	require.NoError(t, err)
	require.Equal(t, PipeBufSize-1, n) // one byte reserved to disambiguate full/empty

	_, err = wfd.Write([]byte("x"))
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestPipeWakesBlockedWriterOnRead(t *testing.T) {
	var woken []int
	Unblock = func(pid int) { woken = append(woken, pid) }
	defer func() { Unblock = nil }()

	pt := NewPipeTable()
	id, err := pt.CreatePipe()
	require.NoError(t, err)
	require.NoError(t, pt.MarkWriterWaiting(id, 7))

	wfd := NewPipeFd(pt, id, false)
	rfd := NewPipeFd(pt, id, true)
	_, err = wfd.Write([]byte("z"))
	require.NoError(t, err)

	buf := make([]byte, 1)
	_, err = rfd.Read(buf)
	require.NoError(t, err)
	require.Contains(t, woken, 7)
}
