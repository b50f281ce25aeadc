package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cyclopcam/linecount/pkg/counting"
	"github.com/cyclopcam/linecount/pkg/kibi"
	"github.com/cyclopcam/linecount/pkg/tracker"
)

type Storage struct {
	Root      string `json:"root"`      // Filesystem root for recordings and reports. Ignored if GCSBucket is set.
	GCSBucket string `json:"gcsBucket"` // If set, store files in this Google Cloud Storage bucket
}

type Detector struct {
	URL                  string  `json:"url"`                  // Base URL of a remote detection server. If empty, only recordings can be counted.
	TimeoutSeconds       float64 `json:"timeoutSeconds"`       // Per-request timeout
	ProbabilityThreshold float32 `json:"probabilityThreshold"` // Minimum confidence of a detection
	NmsIouThreshold      float32 `json:"nmsIouThreshold"`
}

func (d *Detector) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds * float64(time.Second))
}

type Config struct {
	HTTPAddr         string           `json:"httpAddr"`         // eg ":5001"
	DBFilename       string           `json:"dbFilename"`       // sqlite database of saved statistics
	Storage          Storage          `json:"storage"`
	Detector         Detector         `json:"detector"`
	IOUThreshold     float32          `json:"iouThreshold"`     // Minimum IoU for a track to inherit a detection's class
	Tracker          tracker.Settings `json:"tracker"`          // Default tracker
	DefaultLine      [4]float32       `json:"defaultLine"`      // x1,y1,x2,y2 of the line used by sessions that don't specify one
	MaxSessions      int              `json:"maxSessions"`      // Maximum number of concurrently running sessions
	MaxUpload        string           `json:"maxUpload"`        // Maximum size of an uploaded recording, such as "512MB"
	UploadsPerMinute int              `json:"uploadsPerMinute"` // Per IP rate limit of recording uploads
	VerboseCrossings bool             `json:"verboseCrossings"` // Log every crossing
	PaceSessions     bool             `json:"paceSessions"`     // Run sessions at the native frame rate of their source
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:   ":5001",
		DBFilename: "linecount.sqlite",
		Storage: Storage{
			Root: "storage",
		},
		Detector: Detector{
			TimeoutSeconds:       10,
			ProbabilityThreshold: 0.3,
			NmsIouThreshold:      0.45,
		},
		IOUThreshold:     counting.DefaultIOUThreshold,
		Tracker:          tracker.DefaultSettings(),
		DefaultLine:      [4]float32{337, 391, 917, 387},
		MaxSessions:      4,
		MaxUpload:        "512MB",
		UploadsPerMinute: 10,
		PaceSessions:     true,
	}
}

// LoadConfig reads filename, and fills in defaults for everything that it doesn't specify.
// If filename is empty, "linecount.json" is read if it exists, otherwise the defaults are returned.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	explicit := filename != ""
	if filename == "" {
		filename = "linecount.json"
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid config %v: %w", filename, err)
	}
	return cfg, nil
}

// Line returns the default counting line
func (c *Config) Line() (counting.Line, error) {
	return counting.NewLine(c.DefaultLine[0], c.DefaultLine[1], c.DefaultLine[2], c.DefaultLine[3])
}

// MaxUploadBytes parses MaxUpload
func (c *Config) MaxUploadBytes() (int64, error) {
	return kibi.ParseBytes(c.MaxUpload)
}

func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("httpAddr may not be empty")
	}
	if c.Storage.Root == "" && c.Storage.GCSBucket == "" {
		return errors.New("storage needs either a root or a gcsBucket")
	}
	if c.IOUThreshold < 0 || c.IOUThreshold > 1 {
		return fmt.Errorf("iouThreshold %v must be between 0 and 1", c.IOUThreshold)
	}
	if c.Detector.ProbabilityThreshold < 0 || c.Detector.ProbabilityThreshold > 1 {
		return fmt.Errorf("detector probabilityThreshold %v must be between 0 and 1", c.Detector.ProbabilityThreshold)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("maxSessions %v must be at least 1", c.MaxSessions)
	}
	if n, err := c.MaxUploadBytes(); err != nil || n <= 0 {
		return fmt.Errorf("maxUpload '%v' must be a size such as 512MB", c.MaxUpload)
	}
	if _, err := c.Line(); err != nil {
		return fmt.Errorf("defaultLine: %w", err)
	}
	return nil
}
