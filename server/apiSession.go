package server

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cyclopcam/linecount/pkg/counting"
	"github.com/cyclopcam/linecount/pkg/imageseq"
	"github.com/cyclopcam/linecount/pkg/replay"
	"github.com/cyclopcam/linecount/pkg/www"
	"github.com/cyclopcam/linecount/server/countdb"
	"github.com/cyclopcam/linecount/server/monitor"
	"github.com/cyclopcam/linecount/server/storage"
	"github.com/julienschmidt/httprouter"
)

const maxJSONBody = 64 * 1024

// SYNC-START-SESSION-JSON
type startSessionJSON struct {
	Recording string      `json:"recording"` // Name of an uploaded recording, with or without the "recordings/" prefix
	LineStart *[2]float32 `json:"lineStart"` // If omitted, the default line is used
	LineEnd   *[2]float32 `json:"lineEnd"`
	FPS       float64     `json:"fps"`  // Override the frame rate of the recording when pacing (image archives default to 30)
	Pace      *bool       `json:"pace"` // Override the server's default pacing
}

// SYNC-LINE-JSON
type lineJSON struct {
	Start [2]float32 `json:"start"`
	End   [2]float32 `json:"end"`
}

// SYNC-STATISTICS-JSON
type statisticsJSON struct {
	Counts     counting.Counts `json:"counts"`
	LastUpdate *time.Time      `json:"lastUpdate"`
}

// SYNC-SAVE-RESULT-JSON
type saveResultJSON struct {
	Report     string                   `json:"report"` // Storage name of the saved report
	Statistics *countdb.DailyStatistics `json:"statistics"`
}

// A recording that is replayed at a different frame rate
type retimedRecording struct {
	*replay.Recording
	fps float64
}

func (r *retimedRecording) FPS() float64 {
	return r.fps
}

func (s *Server) getSession(params httprouter.Params) *monitor.Session {
	sess, err := s.Monitor.GetSession(params.ByName("id"))
	www.CheckNotFound(err, monitor.ErrSessionNotFound)
	return sess
}

func (s *Server) httpSessionStart(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	req := startSessionJSON{}
	www.ReadJSON(w, r, &req, maxJSONBody)

	name := req.Recording
	if !strings.HasPrefix(name, storage.RecordingsPrefix) {
		name = storage.RecordingsPrefix + name
	}
	if err := storage.ValidateName(name); err != nil || req.Recording == "" {
		www.PanicBadRequestf("Invalid recording name '%v'", req.Recording)
	}
	raw, err := storage.ReadFile(s.Storage, name)
	www.CheckNotFound(err, storage.ErrNotFound)
	if req.FPS < 0 {
		www.PanicBadRequestf("Invalid fps %v", req.FPS)
	}

	var source monitor.FrameSource
	if imageseq.IsArchive(name) {
		if !s.Monitor.HasDetector() {
			www.PanicBadRequestf("No detector is configured, so image archive '%v' cannot be counted", req.Recording)
		}
		seq, err := imageseq.Decode(raw, req.FPS)
		if err != nil {
			www.PanicBadRequestf("Invalid image archive '%v': %v", req.Recording, err)
		}
		source = seq
	} else {
		rec, err := replay.Decode(bytes.NewReader(raw))
		if err != nil {
			www.PanicBadRequestf("Invalid recording '%v': %v", req.Recording, err)
		}
		if rec.NumDropped() != 0 {
			s.Log.Warnf("Dropped %v malformed objects from recording %v", rec.NumDropped(), name)
		}
		source = rec
		if req.FPS > 0 {
			source = &retimedRecording{Recording: rec, fps: req.FPS}
		}
	}

	var line counting.Line
	if req.LineStart != nil && req.LineEnd != nil {
		line, err = counting.NewLine(req.LineStart[0], req.LineStart[1], req.LineEnd[0], req.LineEnd[1])
		www.CheckClient(err)
	} else if req.LineStart != nil || req.LineEnd != nil {
		www.PanicBadRequestf("lineStart and lineEnd must be specified together")
	} else {
		line, err = s.Config.Line()
		www.Check(err)
	}

	options := monitor.SessionOptions{
		Name: strings.TrimPrefix(name, storage.RecordingsPrefix),
		Line: &line,
		Pace: s.Config.PaceSessions,
	}
	if req.Pace != nil {
		options.Pace = *req.Pace
	}
	sess, err := s.Monitor.StartSession(source, options)
	if errors.Is(err, monitor.ErrTooManySessions) {
		www.Panic(http.StatusConflict, err.Error())
	}
	www.Check(err)
	www.SendJSON(w, sess.Info())
}

func (s *Server) httpSessionList(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	infos := []monitor.SessionInfo{}
	for _, sess := range s.Monitor.Sessions() {
		infos = append(infos, sess.Info())
	}
	www.SendJSON(w, infos)
}

func (s *Server) httpSessionInfo(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.getSession(params).Info())
}

func (s *Server) httpSessionRemove(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.CheckNotFound(s.Monitor.RemoveSession(params.ByName("id")), monitor.ErrSessionNotFound)
	www.SendOK(w)
}

func (s *Server) httpSessionStop(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sess := s.getSession(params)
	sess.Stop()
	www.SendJSON(w, sess.Info())
}

func (s *Server) httpSessionSetLine(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sess := s.getSession(params)
	req := lineJSON{}
	www.ReadJSON(w, r, &req, maxJSONBody)
	line, err := counting.NewLine(req.Start[0], req.Start[1], req.End[0], req.End[1])
	www.CheckClient(err)
	www.CheckClient(sess.SetLine(line))
	www.SendJSON(w, sess.Info())
}

func (s *Server) httpSessionReset(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sess := s.getSession(params)
	sess.Reset()
	www.SendJSON(w, sess.Info())
}

func (s *Server) httpSessionStatistics(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	counts, lastUpdate := s.getSession(params).Statistics()
	resp := statisticsJSON{
		Counts: counts,
	}
	if !lastUpdate.IsZero() {
		resp.LastUpdate = &lastUpdate
	}
	www.CacheNever(w)
	www.SendJSON(w, resp)
}

func (s *Server) httpSessionReport(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	counts := s.getSession(params).Counts()
	www.CacheNever(w)
	www.SendText(w, counts.Report())
}

// Save the current counts as a text report in blob storage, and as a row in the statistics database
func (s *Server) httpSessionSave(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sess := s.getSession(params)
	counts := sess.Counts()
	now := time.Now()

	name := storage.ReportsPrefix + counting.ReportFilename(now)
	report := bytes.Buffer{}
	www.Check(counts.WriteReport(&report))
	if err := storage.WriteFile(s.Storage, name, &report); err != nil {
		www.PanicServerErrorf("Failed to save report: %v", err)
	}

	row, err := s.CountDB.SaveStatistics(sess.Name(), counts, now)
	if err != nil {
		www.PanicServerErrorf("Failed to save statistics: %v", err)
	}
	s.Log.Infof("Saved statistics of session %v to %v (total %v)", sess.ID, name, counts.Total)
	www.SendJSON(w, saveResultJSON{
		Report:     name,
		Statistics: row,
	})
}
