//go:build unix

package avctl

import "syscall"

// dupDescriptor duplicates fd so the engine owns its own copy and the
// caller is free to close the original.
func dupDescriptor(fd int) (int, error) {
	return syscall.Dup(fd)
}

func closeDescriptor(fd int) {
	_ = syscall.Close(fd)
}
