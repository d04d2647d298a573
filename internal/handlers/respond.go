package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/clearlane/rewards/internal/middleware"
	"github.com/clearlane/rewards/internal/services"
)

const maxBodyBytes = 1_048_576

// decodeJSON reads exactly one JSON object into dst and writes the error
// response itself when it returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, false)
}

// decodeOptionalJSON is decodeJSON for endpoints where the body may be
// omitted. An empty body leaves dst untouched, whether or not the request
// declared a length.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if optional && err == io.EOF {
			return true
		}
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// requireUser returns the authenticated user id or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return "", false
	}
	return userID, true
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}
