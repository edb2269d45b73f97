// Command eqld is a small HTTP debug surface over the embedded query
// engine, in the spirit of erigon's RPC-over-chi admin endpoints: POST
// /query streams newline-delimited JSON records from a textual query
// (spec.md §6's execute_script), GET /types lists known record types.
package main

import (
	"bufio"
	"flag"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kvquery/eql"
	"github.com/kvquery/eql/internal/applog"
	"github.com/kvquery/eql/internal/eqlconfig"
	"github.com/kvquery/eql/internal/eqlerr"
)

func main() {
	var (
		dbPath string
		addr   string
		debug  bool
	)
	flag.StringVar(&dbPath, "db", "", "database directory")
	flag.StringVar(&addr, "addr", ":8844", "listen address")
	flag.BoolVar(&debug, "debug", false, "verbose development logging")
	flag.Parse()

	applog.SetGlobal(applog.New("eqld", debug))
	log := applog.L()

	if dbPath == "" {
		log.Fatal("--db is required")
	}

	db, err := eql.Open(dbPath, eqlconfig.WithDebug(debug))
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	srv := &server{db: db, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/types", srv.handleTypes)
	r.Post("/query", srv.handleQuery)

	log.Info("listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal("serve", zap.Error(err))
	}
}

type server struct {
	db  *eql.DB
	log *zap.Logger
}

type queryRequest struct {
	Text string `json:"text"`
}

func (s *server) handleTypes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"types": s.db.Types()})
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, &badRequestError{err})
		return
	}

	it, err := s.db.ExecuteScript(r.Context(), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	defer it.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	bw := bufio.NewWriter(w)
	defer bw.Flush()
	enc := json.NewEncoder(bw)
	for it.Next() {
		rec := it.Record()
		if err := enc.Encode(map[string]any{"key": rec.Key, "value": rec.Value}); err != nil {
			s.log.Warn("write response record", zap.Error(err))
			return
		}
		bw.Flush()
	}
	if err := it.Err(); err != nil {
		s.log.Warn("query stream error", zap.Error(err))
	}
}

type badRequestError struct{ err error }

func (e *badRequestError) Error() string { return e.err.Error() }

// writeError maps an engine error to an HTTP status by its eqlerr.Kind
// (spec.md §7): malformed input is a client error, everything else in
// the engine's own error surface is a server error.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if _, ok := err.(*badRequestError); ok {
		status = http.StatusBadRequest
	} else {
		switch eql.KindOf(err) {
		case eqlerr.KindParse, eqlerr.KindDuplicateIndex, eqlerr.KindDynamicConversion:
			status = http.StatusBadRequest
		}
	}
	http.Error(w, err.Error(), status)
}
