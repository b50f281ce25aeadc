package server

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/cyclopcam/linecount/pkg/imageseq"
	"github.com/cyclopcam/linecount/pkg/kibi"
	"github.com/cyclopcam/linecount/pkg/replay"
	"github.com/cyclopcam/linecount/pkg/www"
	"github.com/cyclopcam/linecount/server/storage"
	"github.com/julienschmidt/httprouter"
)

// SYNC-UPLOAD-RESULT-JSON
type uploadResultJSON struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"` // "detections" or "images"
	NumFrames int    `json:"numFrames"`
	Dropped   int    `json:"dropped"` // Number of malformed objects in the recording, which will be ignored
	Width     int    `json:"width,omitempty"`  // Size of the first frame of an image archive
	Height    int    `json:"height,omitempty"` // Size of the first frame of an image archive
}

func (s *Server) httpRecordingList(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.listFiles(storage.RecordingsPrefix))
}

func (s *Server) httpRecordingDelete(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	name, err := storage.RecordingName(params.ByName("name"))
	www.CheckClient(err)
	www.CheckNotFound(s.Storage.DeleteFile(name), storage.ErrNotFound)
	www.SendOK(w)
}

// Upload a recording as the multipart form field "file".
// A recording is either JSON detections, or a zip archive of JPEG frames for the detector.
// The recording is decoded before it is stored, so that we never store garbage.
func (s *Server) httpRecordingUpload(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	maxBytes, _ := s.Config.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		www.PanicBadRequestf("No file uploaded: %v", err)
	}
	defer file.Close()

	name, err := storage.RecordingName(header.Filename)
	if err != nil {
		www.PanicBadRequestf("Invalid filename '%v'", header.Filename)
	}
	raw, err := io.ReadAll(file)
	if err != nil {
		www.PanicBadRequestf("Failed to read upload (limit %v): %v", kibi.FormatBytes(maxBytes), err)
	}
	result := uploadResultJSON{
		Name: strings.TrimPrefix(name, storage.RecordingsPrefix),
	}
	if imageseq.IsArchive(name) {
		seq, err := imageseq.Decode(raw, 0)
		if err != nil {
			www.PanicBadRequestf("Invalid image archive: %v", err)
		}
		result.Width, result.Height, err = seq.Probe()
		if err != nil {
			www.PanicBadRequestf("Invalid image archive: %v", err)
		}
		result.Kind = "images"
		result.NumFrames = seq.NumFrames()
	} else {
		rec, err := replay.Decode(bytes.NewReader(raw))
		if err != nil {
			www.PanicBadRequestf("Invalid recording: %v", err)
		}
		result.Kind = "detections"
		result.NumFrames = rec.NumFrames()
		result.Dropped = rec.NumDropped()
	}
	if err := storage.WriteFile(s.Storage, name, bytes.NewReader(raw)); err != nil {
		www.PanicServerErrorf("Failed to store recording: %v", err)
	}
	s.Log.Infof("Uploaded %v recording %v (%v, %v frames)", result.Kind, name, kibi.FormatBytes(int64(len(raw))), result.NumFrames)
	www.SendJSON(w, result)
}
