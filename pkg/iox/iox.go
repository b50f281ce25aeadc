// Package iox has small file helpers
package iox

import (
	"io"
	"os"
	"path/filepath"
)

// WriteStreamToFile writes src into a temporary file next to dstFilename, and renames it
// into place once everything has been written. If anything fails, dstFilename is untouched.
func WriteStreamToFile(dstFilename string, src io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dstFilename), filepath.Base(dstFilename)+".tmp*")
	if err != nil {
		return err
	}
	_, err = io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dstFilename)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
