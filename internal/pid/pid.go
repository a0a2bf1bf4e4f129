// Package pid guards against two controllers driving the same PWM channel.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/iceman/internal/errors"
	"golang.org/x/sys/unix"
)

const (
	pidFile = "iceman.pid"
)

// Path returns the PID file location inside dir, or the OS temp dir when dir
// is empty.
func Path(dir string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, pidFile)
}

// Write writes the current process ID to the PID file in dir. A file naming a
// live process other than this one yields ErrAlreadyRunning; a stale or
// unreadable one is replaced.
func Write(dir string) error {
	errFactory := errors.New()
	path := Path(dir)

	if running, err := alive(path); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	} else if running {
		return errFactory.WithData(errors.ErrAlreadyRunning, path)
	}

	err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600)
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file.
func Remove(dir string) error {
	if err := os.Remove(Path(dir)); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

func alive(path string) (bool, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return false, nil
	}
	// Left behind by an earlier run that had our PID, e.g. PID 1 in a
	// restarted container.
	if pid == os.Getpid() {
		return false, nil
	}

	// Signal 0 only checks for existence; EPERM means someone else's live
	// process.
	err = unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM), nil
}
