package proc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvos/internal/fd"
	"rvos/internal/trapframe"
)

func TestSpawnAssignsMonotonicPids(t *testing.T) {
	tbl := NewTable()
	p1, err := tbl.Spawn(0x1000, 0x2000, "/bin/a", nil, fd.NewTable(), nil, 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, p1)

	p2, err := tbl.Spawn(0x1000, 0x2000, "/bin/b", nil, fd.NewTable(), nil, 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, p2)
}

func TestSpawnTooManyProcesses(t *testing.T) {
	tbl := NewTable()
	for i := 0; i < MaxProcesses; i++ {
		_, err := tbl.Spawn(0, 0, "/bin/x", nil, fd.NewTable(), nil, 0, 0)
		require.NoError(t, err)
	}
	_, err := tbl.Spawn(0, 0, "/bin/overflow", nil, fd.NewTable(), nil, 0, 0)
	require.Error(t, err)
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	require.Equal(t, SpawnTooManyProcesses, spawnErr.Kind)
}

func TestExitThenWaitReturnsPidAndCode(t *testing.T) {
	tbl := NewTable()
	tbl.SetCurrent(InvalidPid)
	child, err := tbl.Spawn(0, 0, "/bin/child", nil, fd.NewTable(), nil, 0, 0)
	require.NoError(t, err)

	tbl.ExitProcess(child, 7)

	pid, code, ok := tbl.Wait(InvalidPid)
	require.True(t, ok)
	require.Equal(t, child, pid)
	require.EqualValues(t, 7, code)

	_, _, ok = tbl.Wait(InvalidPid)
	require.False(t, ok)
}

func TestWaitWithNoExitedChildReturnsFalse(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Spawn(0, 0, "/bin/child", nil, fd.NewTable(), nil, 0, 0)
	require.NoError(t, err)

	_, _, ok := tbl.Wait(InvalidPid)
	require.False(t, ok)
}

func TestRestoreProcessRegistersInjectsArgcArgvOnFirstSchedule(t *testing.T) {
	tbl := NewTable()
	pid, err := tbl.Spawn(0x1000, 0x2000, "/bin/sh", nil, fd.NewTable(), nil, 3, 0xABC0)
	require.NoError(t, err)

	var tf trapframe.Frame
	tbl.RestoreProcessRegisters(pid, &tf)
	require.Equal(t, int64(3), tf.A0())
	require.EqualValues(t, 0xABC0, tf.Regs[trapframe.RegA1])

	tf.Regs[trapframe.RegA0] = 99
	tbl.SetCurrent(pid)
	tbl.SaveCurrentRegisters(&tf)
	tf = trapframe.Frame{}
	tbl.RestoreProcessRegisters(pid, &tf)
	require.EqualValues(t, 99, tf.Regs[trapframe.RegA0])
}

func TestChildrenAndHasChildren(t *testing.T) {
	tbl := NewTable()
	require.False(t, tbl.HasChildren(InvalidPid))
	c1, _ := tbl.Spawn(0, 0, "/bin/a", nil, fd.NewTable(), nil, 0, 0)
	c2, _ := tbl.Spawn(0, 0, "/bin/b", nil, fd.NewTable(), nil, 0, 0)
	require.True(t, tbl.HasChildren(InvalidPid))
	require.ElementsMatch(t, []Pid{c1, c2}, tbl.Children(InvalidPid))
}
