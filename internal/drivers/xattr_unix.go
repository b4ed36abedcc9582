//go:build darwin || linux

package drivers

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// protectAttr is the extended attribute holding the protect timestamp
const protectAttr = "user." + ProtectTag

var errXattrUnsupported = errors.New("extended attributes not supported")

func setProtectAttr(fullPath, value string) error {
	if err := unix.Setxattr(fullPath, protectAttr, []byte(value), 0); err != nil {
		if errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP) {
			return errXattrUnsupported
		}
		return fmt.Errorf("setxattr failed: %w", err)
	}
	return nil
}

func getProtectAttr(fullPath string) (string, error) {
	// Get size first
	size, err := unix.Getxattr(fullPath, protectAttr, nil)
	if err != nil {
		return "", fmt.Errorf("getxattr size failed: %w", err)
	}

	buf := make([]byte, size)
	n, err := unix.Getxattr(fullPath, protectAttr, buf)
	if err != nil {
		return "", fmt.Errorf("getxattr failed: %w", err)
	}
	return string(buf[:n]), nil
}
