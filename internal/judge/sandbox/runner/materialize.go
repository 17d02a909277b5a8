package runner

import (
	"os"
)

// image is an executable program staged outside persistent storage.
type image struct {
	// path is passed to execve in the child.
	path string
	// extra is inherited by the child starting at fd 3.
	extra []*os.File
	close func() error
}

// materializeFile writes the program to a private temp file. It is the
// fallback when anonymous memory files are unavailable.
func materializeFile(data []byte, dir string) (*image, error) {
	f, err := os.CreateTemp(dir, "program-")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	if err := f.Chmod(0700); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return &image{
		path:  path,
		close: func() error { return os.Remove(path) },
	}, nil
}
