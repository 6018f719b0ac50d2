// Package web serves the plot, the loop status and prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"os"
	"strconv"
	"time"

	"codeberg.org/mutker/thermotrend/internal/errors"
	"codeberg.org/mutker/thermotrend/internal/logger"
	"codeberg.org/mutker/thermotrend/internal/metrics"
	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 10000
	shutdownTimeout     = 5 * time.Second
)

// HistorySource returns the newest recorded trend updates, newest first.
type HistorySource interface {
	Recent(ctx context.Context, limit int) ([]metrics.TrendSnapshot, error)
}

type Server struct {
	addr     string
	plotPath string
	monitor  *Monitor
	history  HistorySource
	log      logger.Logger
	handler  http.Handler
}

func NewServer(addr, plotPath string, monitor *Monitor, history HistorySource, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}

	s := &Server{
		addr:     addr,
		plotPath: plotPath,
		monitor:  monitor,
		history:  history,
		log:      log,
	}
	s.handler = handlers.LoggingHandler(logger.Writer(), gziphandler.GzipHandler(s.router()))

	return s
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.index).Methods(http.MethodGet)
	r.HandleFunc("/plot.png", s.plot).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.status).Methods(http.MethodGet)
	r.HandleFunc("/api/history", s.historyHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.monitor.Collectors().Registry(), promhttp.HandlerOpts{})).
		Methods(http.MethodGet)

	return r
}

// Handler returns the full handler chain, access log and compression included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errFactory := errors.New()

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("Status server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return errFactory.Wrap(errors.ErrServeHTTP, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(errors.ErrServeHTTP, err)
	}
	s.log.Debug().Msg("Status server stopped")

	return nil
}

var indexTemplate = template.Must(template.New("index").Funcs(template.FuncMap{
	"deg": func(v *float64) string {
		if v == nil {
			return "n/a"
		}
		return strconv.FormatFloat(*v, 'f', 1, 64)
	},
	"pct": func(v float64) string {
		return strconv.FormatFloat(v*100, 'f', 0, 64) + "%"
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="60">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Title}}</h1>
<img src="/plot.png" alt="temperature history" width="640">
<table>
<tr><td>Temperature</td><td>{{deg .Temperature}} °{{.Units}}</td></tr>
<tr><td>Trend</td><td>{{deg .Slope}} °{{.Units}}/hr ({{.Strategy}}, {{.Points}} points)</td></tr>
<tr><td>LED</td><td>{{if .Monitor}}monitor only{{else}}{{.Channel}} {{pct .Intensity}}{{end}}</td></tr>
<tr><td>History</td><td>{{.Samples}} / {{.Capacity}} samples</td></tr>
{{if .LastError}}<tr><td>Last error</td><td>{{.LastError}}</td></tr>{{end}}
</table>
</body>
</html>
`))

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, s.monitor.Status()); err != nil {
		s.log.Error().Err(err).Msg("Failed to render status page")
	}
}

func (s *Server) plot(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(s.plotPath); err != nil {
		http.Error(w, "plot not rendered yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, s.plotPath)
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Status())
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []metrics.TrendSnapshot{})
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	snapshots, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read trend history")
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if snapshots == nil {
		snapshots = []metrics.TrendSnapshot{}
	}

	writeJSON(w, http.StatusOK, snapshots)
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
