// Package storage is where we keep uploaded recordings and saved reports
package storage

import (
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// Prefixes of the two kinds of files that we store
const (
	RecordingsPrefix = "recordings/"
	ReportsPrefix    = "reports/"
)

var ErrNotFound = errors.New("File not found")
var ErrInvalidName = errors.New("Invalid file name")

// Storage is an abstraction of a blob store (eg GCS)
type Storage interface {
	// When finished, you must close the WriteCloser
	WriteFile(name string) (io.WriteCloser, error)

	// When finished, you must close File.Reader
	ReadFile(name string) (*File, error)

	DeleteFile(name string) error

	// List the files whose names start with prefix, sorted by name
	List(prefix string) ([]FileInfo, error)
}

// File is an element in blob storage.
type File struct {
	Reader     io.ReadCloser
	ModifiedAt time.Time
	Size       int64
}

// FileInfo describes a stored file, without opening it
type FileInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

func WriteFile(s Storage, name string, content io.Reader) error {
	f, err := s.WriteFile(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, content)
	errClose := f.Close()
	if err != nil {
		return err
	}
	return errClose
}

func ReadFile(s Storage, name string) ([]byte, error) {
	f, err := s.ReadFile(name)
	if err != nil {
		return nil, err
	}
	defer f.Reader.Close()
	return io.ReadAll(f.Reader)
}

// ValidateName rejects names that could escape the storage root, or that are not plain relative paths
func ValidateName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.Contains(name, "\\") || strings.HasPrefix(name, "/") || path.Clean(name) != name {
		return ErrInvalidName
	}
	return nil
}

// RecordingName returns the storage name of an uploaded recording.
// Only the base name of filename is used.
func RecordingName(filename string) (string, error) {
	filename = strings.ReplaceAll(filename, "\\", "/")
	base := path.Base(filename)
	if strings.HasSuffix(filename, "/") || base == "." || base == ".." {
		return "", ErrInvalidName
	}
	name := RecordingsPrefix + base
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}
