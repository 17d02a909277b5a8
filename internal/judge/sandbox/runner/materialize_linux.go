//go:build linux

package runner

import (
	"os"

	"golang.org/x/sys/unix"
)

const memfdExecPath = "/proc/self/fd/3"

// materialize stages the program in a sealed memfd, falling back to a temp
// file in dir when memfd is not available.
func materialize(data []byte, dir string) (*image, error) {
	img, err := materializeMemfd(data)
	if err == nil {
		return img, nil
	}
	return materializeFile(data, dir)
}

func materializeMemfd(data []byte) (*image, error) {
	fd, err := unix.MemfdCreate("coderush-program", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, err
	}
	f := os.NewFile(uintptr(fd), "memfd:coderush-program")
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, err
	}
	seals := unix.F_SEAL_SHRINK | unix.F_SEAL_GROW | unix.F_SEAL_WRITE | unix.F_SEAL_SEAL
	if _, err := unix.FcntlInt(f.Fd(), unix.F_ADD_SEALS, seals); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &image{
		path:  memfdExecPath,
		extra: []*os.File{f},
		close: f.Close,
	}, nil
}
