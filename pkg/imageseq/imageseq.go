// Package imageseq plays back a video that is stored as a zip archive of JPEG frames.
// Frames are played in filename order, and carry an image for the object detector.
package imageseq

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/linecount/pkg/nn"
)

// Frame rate that we assume when the caller doesn't specify one
const DefaultFPS = 30

const (
	MaxFrameBytes = 16 * 1024 * 1024 // Largest compressed frame
	MaxPixels     = 4096 * 4096      // Largest decompressed frame
)

var ErrNoFrames = errors.New("Archive contains no JPEG frames")
var ErrFrameTooLarge = errors.New("Frame is too large")

// IsArchive returns true if name looks like an archive of frames, rather than a detection recording
func IsArchive(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".zip")
}

func isJPEG(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".jpg" || ext == ".jpeg"
}

// Sequence is a decoded archive of frames, with a read cursor
type Sequence struct {
	files      []*zip.File
	fps        float64
	next       int
	numCorrupt int
}

// Decode reads the index of an archive. Frames are only decompressed as they are played.
// If fps is zero, DefaultFPS is used.
func Decode(raw []byte, fps float64) (*Sequence, error) {
	if fps < 0 {
		return nil, fmt.Errorf("Invalid frame rate %v", fps)
	}
	if fps == 0 {
		fps = DefaultFPS
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, err
	}
	s := &Sequence{
		fps: fps,
	}
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() && isJPEG(f.Name) {
			s.files = append(s.files, f)
		}
	}
	if len(s.files) == 0 {
		return nil, ErrNoFrames
	}
	sort.Slice(s.files, func(i, j int) bool {
		return s.files[i].Name < s.files[j].Name
	})
	return s, nil
}

// Write an archive of frames, named so that they play back in the given order
func Write(w io.Writer, frames []*cimg.Image, quality int) error {
	zw := zip.NewWriter(w)
	for i, img := range frames {
		b, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, quality, 0))
		if err != nil {
			return err
		}
		// JPEG is already compressed
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: fmt.Sprintf("frame_%06d.jpg", i), Method: zip.Store})
		if err != nil {
			return err
		}
		if _, err := fw.Write(b); err != nil {
			return err
		}
	}
	return zw.Close()
}

// Probe decodes the first frame, and returns its size
func (s *Sequence) Probe() (width, height int, err error) {
	img, err := decodeFrame(s.files[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%v: %w", s.files[0].Name, err)
	}
	return img.ImageWidth, img.ImageHeight, nil
}

// NextFrame returns the next frame, or io.EOF at the end of the archive.
// A frame that cannot be decoded is returned without an image, which means "no objects".
func (s *Sequence) NextFrame() (*nn.Frame, error) {
	if s.next >= len(s.files) {
		return nil, io.EOF
	}
	idx := s.next
	s.next++
	frame := &nn.Frame{
		Index: idx,
		PTS:   time.Duration(float64(idx) * float64(time.Second) / s.fps),
	}
	img, err := decodeFrame(s.files[idx])
	if err != nil {
		s.numCorrupt++
		return frame, nil
	}
	frame.Image = img
	return frame, nil
}

func decodeFrame(f *zip.File) (*nn.ImageCrop, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	raw, err := io.ReadAll(io.LimitReader(r, MaxFrameBytes+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	// Check the dimensions before we let the decoder allocate
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return nil, fmt.Errorf("%w: %vx%v", ErrFrameTooLarge, cfg.Width, cfg.Height)
	}

	img, err := cimg.Decompress(raw)
	if err != nil {
		return nil, err
	}
	if img.NChan() != 3 {
		img = img.ToRGB()
	}
	pixels := img.Pixels
	rowBytes := img.Width * 3
	if img.Stride != rowBytes {
		pixels = make([]byte, 0, rowBytes*img.Height)
		for y := 0; y < img.Height; y++ {
			pixels = append(pixels, img.Pixels[y*img.Stride:y*img.Stride+rowBytes]...)
		}
	}
	crop := nn.WholeImage(3, pixels, img.Width, img.Height)
	return &crop, nil
}

// FPS returns the frame rate that the archive is played at
func (s *Sequence) FPS() float64 {
	return s.fps
}

// Classes is nil, because the detector's own classes apply
func (s *Sequence) Classes() []string {
	return nil
}

// NumFrames returns the number of frames in the archive
func (s *Sequence) NumFrames() int {
	return len(s.files)
}

// NumCorrupt returns the number of frames played so far that could not be decoded
func (s *Sequence) NumCorrupt() int {
	return s.numCorrupt
}

func (s *Sequence) Close() error {
	return nil
}
