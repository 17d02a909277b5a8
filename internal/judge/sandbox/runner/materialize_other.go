//go:build !linux

package runner

func materialize(data []byte, dir string) (*image, error) {
	return materializeFile(data, dir)
}
