// Package httpapi exposes pkg/engine over a thin HTTP surface: PUT/GET
// DELETE JSON endpoints for a single (key, record) value, a document
// endpoint folding every key for a record, and a /healthz liveness
// check. Grounded on the teacher's pack sibling cuemby-warren's
// pkg/api.HealthServer shape (mux + Server with explicit timeouts); no
// authentication and no admin UI, per the specification's non-goals.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lattice-db/lattice/pkg/docview"
	"github.com/lattice-db/lattice/pkg/engine"
	"github.com/lattice-db/lattice/pkg/lerrors"
	"github.com/lattice-db/lattice/pkg/types"
)

// Server wraps an *engine.Engine with the module's HTTP routes.
type Server struct {
	eng *engine.Engine
	log zerolog.Logger
	mux *http.ServeMux
}

// New builds a Server routing requests to eng.
func New(eng *engine.Engine, log zerolog.Logger) *Server {
	s := &Server{eng: eng, log: log.With().Str("component", "httpapi").Logger(), mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("PUT /v1/records/{record}/keys/{key}", s.handlePut)
	s.mux.HandleFunc("GET /v1/records/{record}/keys/{key}", s.handleGet)
	s.mux.HandleFunc("DELETE /v1/records/{record}/keys/{key}", s.handleDelete)
	s.mux.HandleFunc("GET /v1/records/{record}", s.handleDocument)
	return s
}

// ListenAndServe starts an http.Server bound to addr with conservative
// timeouts, the same shape the pack's other HTTP servers use, wrapping
// every request with a generated request id for log correlation.
func (s *Server) ListenAndServe(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.withRequestID(s.mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// withRequestID tags each request with a time-ordered uuid (the same
// generator the teacher's GenerateKey uses for row keys) so a single
// request's log lines can be grepped together.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.NewV7()
		reqID := id.String()
		if err != nil {
			reqID = "unavailable"
		}
		w.Header().Set("X-Request-Id", reqID)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info().Str("request_id", reqID).Str("method", r.Method).Str("path", r.URL.Path).Dur("duration", time.Since(start)).Msg("request served")
	})
}

// Handler exposes the underlying mux, for tests that drive requests
// through httptest.NewServer or httptest.NewRecorder directly.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// valueJSON is the wire form of a single typed Value: the Kind's
// String() form plus a JSON-native representation of its payload.
type valueJSON struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

func (vj valueJSON) toValue() (types.Value, error) {
	switch vj.Type {
	case "BOOLEAN":
		b, ok := vj.Value.(bool)
		if !ok {
			return types.Value{}, fmt.Errorf("BOOLEAN value must be a bool")
		}
		return types.Bool(b), nil
	case "INTEGER":
		n, err := jsonNumber(vj.Value)
		if err != nil {
			return types.Value{}, err
		}
		return types.Int32(int32(n)), nil
	case "LONG":
		n, err := jsonNumber(vj.Value)
		if err != nil {
			return types.Value{}, err
		}
		return types.Int64(int64(n)), nil
	case "FLOAT":
		n, err := jsonNumber(vj.Value)
		if err != nil {
			return types.Value{}, err
		}
		return types.Float32(float32(n)), nil
	case "DOUBLE":
		n, err := jsonNumber(vj.Value)
		if err != nil {
			return types.Value{}, err
		}
		return types.Float64(n), nil
	case "STRING":
		s, ok := vj.Value.(string)
		if !ok {
			return types.Value{}, fmt.Errorf("STRING value must be a string")
		}
		return types.String(s), nil
	case "TAG":
		s, ok := vj.Value.(string)
		if !ok {
			return types.Value{}, fmt.Errorf("TAG value must be a string")
		}
		return types.Tag(s), nil
	case "LINK":
		n, err := jsonNumber(vj.Value)
		if err != nil {
			return types.Value{}, err
		}
		return types.Link(int64(n)), nil
	default:
		return types.Value{}, fmt.Errorf("unknown value type %q", vj.Type)
	}
}

func jsonNumber(v any) (float64, error) {
	n, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("value must be a JSON number")
	}
	return n, nil
}

func valueToJSON(v types.Value) valueJSON {
	switch v.Kind() {
	case types.KindBoolean:
		return valueJSON{Type: "BOOLEAN", Value: v.AsBool()}
	case types.KindInteger:
		return valueJSON{Type: "INTEGER", Value: v.AsInt32()}
	case types.KindLong:
		return valueJSON{Type: "LONG", Value: v.AsInt64()}
	case types.KindFloat:
		return valueJSON{Type: "FLOAT", Value: v.AsFloat32()}
	case types.KindDouble:
		return valueJSON{Type: "DOUBLE", Value: v.AsFloat64()}
	case types.KindString:
		return valueJSON{Type: "STRING", Value: v.AsString()}
	case types.KindTag:
		return valueJSON{Type: "TAG", Value: v.AsString()}
	case types.KindLink:
		return valueJSON{Type: "LINK", Value: v.AsLink()}
	default:
		return valueJSON{}
	}
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	record, key, err := pathParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var vj valueJSON
	if err := json.NewDecoder(r.Body).Decode(&vj); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	value, err := vj.toValue()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.eng.Put(key, value, record); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	record, key, err := pathParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	values, err := s.eng.Get(key, record)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if len(values) == 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("no values for key %q on record %d", key, record))
		return
	}
	out := make([]valueJSON, len(values))
	for i, v := range values {
		out[i] = valueToJSON(v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	record, key, err := pathParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var vj valueJSON
	if err := json.NewDecoder(r.Body).Decode(&vj); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	value, err := vj.toValue()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	op := s.eng.Begin()
	if err := op.Remove(key, value, record); err != nil {
		op.Abort()
		s.writeEngineError(w, err)
		return
	}
	if _, err := op.Commit(); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	record, err := strconv.ParseInt(r.PathValue("record"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid record id: %w", err))
		return
	}
	fields, err := s.eng.Document(record)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	doc := make(docview.Document, len(fields))
	for k, vs := range fields {
		doc[k] = vs
	}
	out, err := doc.ExtJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func pathParams(r *http.Request) (record int64, key string, err error) {
	record, err = strconv.ParseInt(r.PathValue("record"), 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid record id: %w", err)
	}
	key = r.PathValue("key")
	if key == "" {
		return 0, "", fmt.Errorf("key must not be empty")
	}
	return record, key, nil
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var conflict *lerrors.ConflictError
	var usage *lerrors.UsageError
	var durability *lerrors.DurabilityError
	switch {
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &usage):
		writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &durability):
		s.log.Error().Err(err).Msg("durability error serving request")
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
