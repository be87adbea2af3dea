package preflight

import (
	"fmt"
	"syscall"

	"github.com/dustin/go-humanize"
)

const (
	// MinDiskSpaceBytes is the free space the data directory needs.
	MinDiskSpaceBytes = 100 << 20
	// MinFileDescriptors is the lowest acceptable soft open-file limit.
	MinFileDescriptors = 1024
)

// CheckDiskSpace fails when the file system holding path has less than
// MinDiskSpaceBytes available to unprivileged users.
func CheckDiskSpace(path string) Result {
	r := Result{Name: "disk_space", Required: true}

	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		r.Status = Fail
		r.Message = fmt.Sprintf("cannot stat file system of %s: %v", path, err)
		return r
	}

	free := st.Bavail * uint64(st.Bsize)
	r.Message = fmt.Sprintf("%s free (minimum: %s)", humanize.IBytes(free), humanize.IBytes(MinDiskSpaceBytes))
	r.Status = Pass
	if free < MinDiskSpaceBytes {
		r.Status = Fail
		r.Hint = "The index stores chunk text, embeddings and a WAL next to the database"
	}
	return r
}

// CheckFileDescriptors fails when the soft RLIMIT_NOFILE is below
// MinFileDescriptors. The watcher holds one descriptor per directory.
func CheckFileDescriptors() Result {
	r := Result{Name: "file_descriptors", Required: true}

	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		r.Status = Fail
		r.Message = fmt.Sprintf("cannot read open file limit: %v", err)
		return r
	}

	r.Message = fmt.Sprintf("%d (minimum: %d)", lim.Cur, MinFileDescriptors)
	r.Status = Pass
	if lim.Cur < MinFileDescriptors {
		r.Status = Fail
		r.Hint = fmt.Sprintf("Raise the limit, e.g. 'ulimit -n %d'", 4*MinFileDescriptors)
	}
	return r
}
