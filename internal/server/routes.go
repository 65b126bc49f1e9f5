package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/san-kum/lazyfall/internal/dynamo"
)

const invalidIDBody = "Invalid id"

// parseID resolves the {id} path value. ok is false when the response has
// already been written.
func (s *Server) parseID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		http.NotFound(w, r)
		return 0, false
	}
	if id > uint64(s.maxID) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(invalidIDBody))
		return 0, false
	}
	return int(id), true
}

func (s *Server) getPos(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}

	pos, err := s.engine.QueryPosition(id)
	if err != nil {
		s.internalError(w, id, err)
		return
	}

	body, err := json.Marshal(pos)
	if err != nil {
		s.internalError(w, id, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		s.log.Warn("Failed to write position", "id", id, "error", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, id int, err error) {
	if errors.Is(err, dynamo.ErrIndexOutOfRange) {
		s.log.Error("Index passed the boundary check but is not in the population", "id", id, "maxID", s.maxID, "error", err)
	} else {
		s.log.Error("Query failed", "id", id, "error", err)
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
