package server

import (
	"net/http"
	"strings"

	"github.com/cyclopcam/linecount/pkg/www"
	"github.com/cyclopcam/linecount/server/storage"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) httpStatisticsDaily(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	rows, err := s.CountDB.RecentStatistics(www.QueryInt(r, "limit"))
	www.Check(err)
	www.CacheNever(w)
	www.SendJSON(w, rows)
}

func (s *Server) httpReportList(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.listFiles(storage.ReportsPrefix))
}

func (s *Server) httpReportGet(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	name := params.ByName("name")
	raw, err := storage.ReadFile(s.Storage, storage.ReportsPrefix+name)
	www.CheckNotFound(err, storage.ErrNotFound)
	www.SendFileDownload(w, name, "text/plain", raw)
}

// List the files under prefix, with the prefix removed from their names
func (s *Server) listFiles(prefix string) []storage.FileInfo {
	files, err := s.Storage.List(prefix)
	www.Check(err)
	for i := range files {
		files[i].Name = strings.TrimPrefix(files[i].Name, prefix)
	}
	return files
}
