// Package bootstrap installs the kernel's bundled user programs,
// grounded on original_source/src/embedded.rs's install_embedded_bins.
// The real /bin/sh, /bin/cat and /bin/wc are explicitly out of scope
// (see spec.md's Non-goals); what is carried forward is the install
// step itself, seeded here with small placeholder fixtures standing in
// for the real binaries.
package bootstrap

import (
	_ "embed"
	"errors"

	"rvos/internal/fs"
	"rvos/internal/klog"
)

//go:embed fixtures/cat.bin
var catBin []byte

//go:embed fixtures/wc.bin
var wcBin []byte

//go:embed fixtures/sh.bin
var shBin []byte

// InstallEmbeddedBinaries writes /bin/cat, /bin/wc and /bin/sh from the
// linked-in fixtures, skipping any that is already present, so running
// it again on a later boot leaves existing files untouched.
func InstallEmbeddedBinaries(fsys *fs.FS) error {
	klog.L.Println("installing embedded binaries...")

	if err := fsys.Mkdir("/bin"); err != nil && !errors.Is(err, fs.ErrAlreadyExists) {
		return err
	}
	install := func(path string, data []byte) error {
		if _, err := fsys.Read(path); err == nil {
			return nil
		}
		return fsys.Write(path, data)
	}
	if err := install("/bin/cat", catBin); err != nil {
		klog.L.Printf("failed to install /bin/cat: %v", err)
		return err
	}
	if err := install("/bin/wc", wcBin); err != nil {
		klog.L.Printf("failed to install /bin/wc: %v", err)
		return err
	}
	if err := install("/bin/sh", shBin); err != nil {
		klog.L.Printf("failed to install /bin/sh: %v", err)
		return err
	}

	klog.L.Println("installed embedded binaries: cat, wc, sh")
	return nil
}
