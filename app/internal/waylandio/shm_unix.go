package waylandio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// createShm allocates an anonymous shared-memory file sized size
// bytes and maps it for read/write, returning the open descriptor and
// the mapped slice. Grounded on the original implementation's
// create_shm_file: try memfd_create first (no filesystem name
// collision possible), falling back to POSIX shm_open under name for
// kernels without memfd support.
func createShm(name string, size int) (fd int, mem []byte, err error) {
	fd, err = unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		fd, err = shmOpenFallback(name)
		if err != nil {
			return -1, nil, fmt.Errorf("waylandio: create shared memory: %w", err)
		}
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("waylandio: truncate shared memory: %w", err)
	}
	mem, err = unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("waylandio: mmap shared memory: %w", err)
	}
	return fd, mem, nil
}

func shmOpenFallback(name string) (int, error) {
	f, err := os.OpenFile("/dev/shm/"+name[1:], os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return -1, err
	}
	_ = os.Remove(f.Name())
	return int(f.Fd()), nil
}

// writeTmpfile writes data to an anonymous memfd and returns its
// descriptor, rewound to the start, for handing to the virtual
// keyboard's keymap upload request.
func writeTmpfile(data []byte) (int, error) {
	fd, err := unix.MemfdCreate("kloak-v2-keymap", unix.MFD_CLOEXEC)
	if err != nil {
		return -1, err
	}
	if err := unix.Ftruncate(fd, int64(len(data))); err != nil {
		unix.Close(fd)
		return -1, err
	}
	mem, err := unix.Mmap(fd, 0, len(data), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	copy(mem, data)
	unix.Munmap(mem)
	return fd, nil
}
