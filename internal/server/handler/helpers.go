package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// writeJSON encodes v before touching the response so an encoding failure
// can still produce a clean 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt reads a positive integer parameter. Missing or invalid values
// yield def; max > 0 caps the result.
func queryInt(r *http.Request, name string, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		n = def
	}
	if max > 0 {
		n = min(n, max)
	}
	return n
}

// queryTime parses an RFC 3339 timestamp or unix seconds. An absent
// parameter returns nil.
func queryTime(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		t := time.Unix(secs, 0).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC 3339 or unix seconds", name)
	}
	return &t, nil
}

// listOpts maps ?limit, ?offset, ?since, ?until and ?filter onto store
// list options.
func listOpts(r *http.Request, def, max int) (domain.ListOpts, error) {
	opts := domain.ListOpts{
		Limit:  queryInt(r, "limit", def, max),
		Filter: r.URL.Query().Get("filter"),
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		off, err := strconv.Atoi(v)
		if err != nil || off < 0 {
			return opts, fmt.Errorf("offset must be a non-negative integer")
		}
		opts.Offset = off
	}

	var err error
	if opts.Since, err = queryTime(r, "since"); err != nil {
		return opts, err
	}
	if opts.Until, err = queryTime(r, "until"); err != nil {
		return opts, err
	}
	if opts.Since != nil && opts.Until != nil && opts.Until.Before(*opts.Since) {
		return opts, fmt.Errorf("until is before since")
	}
	return opts, nil
}

func scopedLogger(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("handler", name))
}
