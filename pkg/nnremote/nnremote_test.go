package nnremote

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cyclopcam/linecount/pkg/nn"
	"github.com/stretchr/testify/require"
)

// A fake detection server which reports a single car in the top-left corner of every image
func fakeServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(nn.ModelConfig{Architecture: "yolov8", Width: 4, Height: 2})
	})
	mux.HandleFunc("/api/detect", func(w http.ResponseWriter, r *http.Request) {
		req := detectRequest{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Width*req.Height*req.NChan != len(req.Pixels) {
			http.Error(w, "bad image size", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(detectResponse{
			Objects: []nn.ObjectDetection{{Class: nn.COCOCar, Confidence: req.ProbabilityThreshold + 0.1, Box: nn.MakeBox(0, 0, 1, 1)}},
		})
	})
	return httptest.NewServer(mux)
}

func TestDetect(t *testing.T) {
	srv := fakeServer(t)
	defer srv.Close()

	d, err := New(srv.URL+"/", time.Second)
	require.NoError(t, err)
	defer d.Close()
	require.Equal(t, "yolov8", d.Config().Architecture)

	pixels := make([]byte, 4*2*3)
	img := nn.WholeImage(3, pixels, 4, 2)
	objs, err := d.DetectObjects(img, nil)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Equal(t, nn.COCOCar, objs[0].Class)
	require.Equal(t, nn.MakeBox(0, 0, 1, 1), objs[0].Box)

	// Crops are packed, and the results are moved back into image coordinates
	objs, err = d.DetectObjects(img.Crop(2, 1, 4, 2), nn.NewDetectionParams())
	require.NoError(t, err)
	require.Equal(t, nn.MakeBox(2, 1, 3, 2), objs[0].Box)
}

func TestDetectErrors(t *testing.T) {
	srv := fakeServer(t)
	d, err := New(srv.URL, time.Second)
	require.NoError(t, err)

	// Claim more pixels than we send
	img := nn.ImageCrop{NChan: 3, Pixels: make([]byte, 3), ImageWidth: 1, ImageHeight: 1, CropWidth: 1, CropHeight: 2}
	_, err = d.DetectObjects(img, nil)
	require.Error(t, err)

	srv.Close()
	_, err = New(srv.URL, time.Second)
	require.Error(t, err)
}
