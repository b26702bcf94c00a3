// Command kernel runs the boot sequence: mount the disk image, install
// the embedded user binaries, bring up the process table, scheduler,
// console and syscall dispatcher, then spawn PID 1.
//
// original_source/src/main.rs wires the same steps inside a
// freestanding _start with a hart-id check and a WFI spin for every
// hart but 0; this exercise targets a hosted build of the kernel's
// logical structure rather than a cross-compiled freestanding binary
// (see SPEC_FULL.md §6), so main() here is that wiring made linear and
// ordinary: there is exactly one hart, modeled by simply not spinning.
package main

import (
	"fmt"
	"os"

	"rvos/internal/bootstrap"
	"rvos/internal/elf"
	"rvos/internal/fd"
	"rvos/internal/filedisk"
	"rvos/internal/fs"
	"rvos/internal/klog"
	"rvos/internal/proc"
	"rvos/internal/sched"
	"rvos/internal/syscall"
	"rvos/internal/uart"
	"rvos/internal/uwindow"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: kernel <disk image, built with cmd/mkfs>")
		os.Exit(1)
	}

	disk, err := filedisk.Open(os.Args[1])
	if err != nil {
		klog.L.Fatalf("opening disk image: %v", err)
	}
	defer disk.Close()

	fsys := fs.Mount(disk)
	klog.L.Printf("mounted disk image %s (%d blocks)", os.Args[1], disk.TotalBlocks())

	if err := bootstrap.InstallEmbeddedBinaries(fsys); err != nil {
		klog.L.Fatalf("installing embedded binaries: %v", err)
	}

	window := &uwindow.Window{}
	procs := proc.NewTable()
	scheduler := sched.New(procs, window)
	pipes := fd.NewPipeTable()

	console := uart.Init(uart.NewSimRegs())
	initFds := fd.NewTable()
	initFds.Init(console)

	k := &syscall.Kernel{
		Procs:  procs,
		Sched:  scheduler,
		Window: window,
		FSys:   fsys,
		Pipes:  pipes,
	}

	if err := spawnInit(procs, window, fsys, initFds); err != nil {
		klog.L.Printf("failed to spawn init process /bin/sh: %v", err)
		klog.L.Println("no init process runnable; halting")
		return
	}

	current, _ := k.Procs.Get(k.Procs.CurrentPid())
	klog.L.Printf("hart 0 idle: pid %d (%s) ready to run, no trap source in this hosted build", current.Pid, current.Path)
}

// spawnInit loads /bin/sh as PID 1, mirroring main.rs's post-bootstrap
// spawn of the shell. The bundled /bin/sh fixture is a placeholder
// text blob rather than a real ELF64 image (see internal/bootstrap's
// doc comment and spec.md's Non-goal excluding a real shell
// implementation), so a parse failure here is an expected, handled
// outcome rather than a fatal boot error.
func spawnInit(procs *proc.Table, window *uwindow.Window, fsys *fs.FS, fds *fd.Table) error {
	data, err := fsys.Read("/bin/sh")
	if err != nil {
		return fmt.Errorf("reading /bin/sh: %w", err)
	}
	program, err := elf.Parse(data)
	if err != nil {
		return fmt.Errorf("parsing /bin/sh: %w", err)
	}
	window.Zero()
	if err := elf.LoadIntoWindow(window, program); err != nil {
		return fmt.Errorf("loading /bin/sh: %w", err)
	}
	stack, err := elf.BuildUserStack(window, nil)
	if err != nil {
		return fmt.Errorf("building initial stack: %w", err)
	}
	var snapshot uwindow.Snapshot
	snapshot.Save(window)

	pid, err := procs.Spawn(program.EntryOffset(), stack.SP, "/bin/sh", nil, fds, &snapshot, stack.Argc, stack.ArgvPtr)
	if err != nil {
		return fmt.Errorf("spawning: %w", err)
	}
	procs.SetCurrent(pid)
	klog.L.Printf("spawned /bin/sh as pid %d", pid)
	return nil
}
