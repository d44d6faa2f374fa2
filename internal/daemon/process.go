package daemon

import (
	"fmt"
	"os"
	"strconv"

	"vocalsplit/internal/logging"
)

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func (d *Daemon) removePIDFile() {
	if d.pidPath == "" {
		return
	}
	if err := os.Remove(d.pidPath); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("failed to remove pid file", logging.String("path", d.pidPath), logging.Error(err))
	}
}

// linkCurrentLog points link at target, preferring a symlink and falling
// back to a hard link where symlinks are unavailable.
func linkCurrentLog(link, target string) error {
	if link == "" || target == "" {
		return nil
	}
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log link: %w", err)
	}
	if err := os.Symlink(target, link); err == nil {
		return nil
	}
	if err := os.Link(target, link); err != nil {
		return fmt.Errorf("link current log: %w", err)
	}
	return nil
}
