//go:build !unix

package avctl

// descriptors can't be duplicated portably here; the engine shares the
// caller's fd, which must stay open until the session is reset
func dupDescriptor(fd int) (int, error) {
	return fd, nil
}

func closeDescriptor(int) {}
