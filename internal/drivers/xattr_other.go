//go:build !darwin && !linux

package drivers

import "errors"

var errXattrUnsupported = errors.New("extended attributes not supported")

func setProtectAttr(fullPath, value string) error {
	return errXattrUnsupported
}

func getProtectAttr(fullPath string) (string, error) {
	return "", errXattrUnsupported
}
