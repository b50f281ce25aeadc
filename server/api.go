package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/linecount/pkg/www"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupHttpRoutes() {
	router := httprouter.New()

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handle)
	}

	handle("GET", "/api/ping", s.httpPing)

	handle("POST", "/api/sessions", s.httpSessionStart)
	handle("GET", "/api/sessions", s.httpSessionList)
	handle("GET", "/api/sessions/:id", s.httpSessionInfo)
	handle("DELETE", "/api/sessions/:id", s.httpSessionRemove)
	handle("POST", "/api/sessions/:id/stop", s.httpSessionStop)
	handle("POST", "/api/sessions/:id/line", s.httpSessionSetLine)
	handle("POST", "/api/sessions/:id/reset", s.httpSessionReset)
	handle("GET", "/api/sessions/:id/statistics", s.httpSessionStatistics)
	handle("GET", "/api/sessions/:id/report", s.httpSessionReport)
	handle("POST", "/api/sessions/:id/save", s.httpSessionSave)
	handle("GET", "/api/sessions/:id/ws", s.httpSessionWebSocket)

	handle("GET", "/api/statistics/daily", s.httpStatisticsDaily)
	handle("GET", "/api/reports", s.httpReportList)
	handle("GET", "/api/reports/:name", s.httpReportGet)

	handle("GET", "/api/recordings", s.httpRecordingList)
	handle("DELETE", "/api/recordings/:name", s.httpRecordingDelete)
	uploadLimiter := func(next http.Handler) http.Handler { return next }
	if s.Config.UploadsPerMinute > 0 {
		uploadLimiter = www.LimitByIP(s.Config.UploadsPerMinute, time.Minute)
	}
	www.HandleWithMiddleware(s.Log, router, "POST", "/api/recordings/upload", uploadLimiter, s.httpRecordingUpload)

	router.Handler("GET", "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.httpRouter = router
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendText(w, "pong")
}
