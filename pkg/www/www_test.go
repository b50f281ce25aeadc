package www

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

var errMissing = errors.New("Thing not found")

func TestHandlePanics(t *testing.T) {
	log := logs.NewTestingLog(t)
	router := httprouter.New()
	Handle(log, router, "GET", "/bad", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		PanicBadRequestf("Bad value %v", 5)
	})
	Handle(log, router, "GET", "/missing/:id", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		CheckNotFound(errMissing, errMissing)
	})
	Handle(log, router, "GET", "/crash", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var m map[string]int
		m["x"] = 1
	})
	Handle(log, router, "GET", "/conflict", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		Panic(http.StatusConflict, "Busy")
	})
	Handle(log, router, "GET", "/client", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		CheckClient(errors.New("Bad line"))
	})
	Handle(log, router, "GET", "/server", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		PanicServerErrorf("Disk %v full", "/dev/sda")
	})
	Handle(log, router, "GET", "/check", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		Check(errors.New("Database closed"))
	})
	Handle(log, router, "GET", "/limit", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		SendJSON(w, QueryInt(r, "limit"))
	})
	Handle(log, router, "POST", "/echo", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		v := map[string]int{}
		ReadJSON(w, r, &v, 1024)
		SendJSON(w, v)
	})

	cases := []struct {
		method string
		path   string
		body   string
		code   int
		resp   string
	}{
		{"GET", "/bad", "", 400, "Bad value 5"},
		{"GET", "/missing/3", "", 404, "Thing not found"},
		{"GET", "/crash", "", 500, ""},
		{"GET", "/conflict", "", 409, "Busy"},
		{"GET", "/client", "", 400, "Bad line"},
		{"GET", "/server", "", 500, "Disk /dev/sda full"},
		{"GET", "/check", "", 500, "Database closed"},
		{"GET", "/limit?limit=7", "", 200, "7"},
		{"GET", "/limit?limit=x", "", 200, "0"},
		{"POST", "/echo", `{"a":1}`, 200, `{"a":1}`},
		{"POST", "/echo", `{"a":`, 400, ""},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
		router.ServeHTTP(rec, req)
		require.Equal(t, c.code, rec.Code, c.path)
		if c.resp != "" {
			require.Equal(t, c.resp, rec.Body.String())
		}
	}
}

func TestLimitByIP(t *testing.T) {
	log := logs.NewTestingLog(t)
	router := httprouter.New()
	HandleWithMiddleware(log, router, "GET", "/limited/:name", LimitByIP(2, time.Minute), func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		SendText(w, p.ByName("name"))
	})

	codes := []int{}
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/limited/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == 200 {
			require.Equal(t, "x", rec.Body.String())
		}
	}
	require.Equal(t, []int{200, 200, http.StatusTooManyRequests}, codes)
}
