//go:build !windows

package report

import (
	stderrors "errors"
	"fmt"
	"os"
	"syscall"
)

// openFileNoFollow opens path with O_NOFOLLOW so a planted symlink at the
// temp name cannot redirect the write.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	if err != nil {
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, fmt.Errorf("cannot write to symlink %s", path)
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}
