// Package nnremote is an object detector that runs on another machine, and is reached over HTTP
package nnremote

import (
	"fmt"
	"strings"
	"time"

	"github.com/cyclopcam/linecount/pkg/nn"
	"github.com/go-resty/resty/v2"
)

// SYNC-DETECT-REQUEST
type detectRequest struct {
	Width                int     `json:"width"`
	Height               int     `json:"height"`
	NChan                int     `json:"nchan"`
	Pixels               []byte  `json:"pixels"` // base64 in JSON
	ProbabilityThreshold float32 `json:"probabilityThreshold"`
	NmsIouThreshold      float32 `json:"nmsIouThreshold"`
}

// SYNC-DETECT-RESPONSE
type detectResponse struct {
	Objects []nn.ObjectDetection `json:"objects"`
}

// Detector is an nn.ObjectDetector that sends images to a detection server
type Detector struct {
	client *resty.Client
	config nn.ModelConfig
}

// New connects to the detection server at baseURL (eg "http://gpu-box:8080"), and fetches its model config
func New(baseURL string, timeout time.Duration) (*Detector, error) {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	d := &Detector{
		client: client,
	}
	resp, err := client.R().SetResult(&d.config).Get("/api/config")
	if err != nil {
		return nil, fmt.Errorf("Failed to reach detector at %v: %w", baseURL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("Detector config request failed: %v %v", resp.Status(), resp.String())
	}
	return d, nil
}

func (d *Detector) Close() {
	d.client.GetClient().CloseIdleConnections()
}

func (d *Detector) Config() *nn.ModelConfig {
	return &d.config
}

func (d *Detector) DetectObjects(img nn.ImageCrop, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	if params == nil {
		params = nn.NewDetectionParams()
	}
	req := detectRequest{
		Width:                img.CropWidth,
		Height:               img.CropHeight,
		NChan:                img.NChan,
		Pixels:               img.Packed(),
		ProbabilityThreshold: params.ProbabilityThreshold,
		NmsIouThreshold:      params.NmsIouThreshold,
	}
	result := detectResponse{}
	resp, err := d.client.R().SetBody(&req).SetResult(&result).Post("/api/detect")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("Detection failed: %v %v", resp.Status(), resp.String())
	}
	// Boxes are relative to the crop, but callers want them relative to the whole image
	if img.CropX != 0 || img.CropY != 0 {
		for i := range result.Objects {
			result.Objects[i].Box = result.Objects[i].Box.Offset(float32(img.CropX), float32(img.CropY))
		}
	}
	return result.Objects, nil
}
