package handler

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/projectdesk/projectdesk/internal/model"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope.
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// urlID extracts the {id} route parameter as an int64. The second return is
// false when the parameter is missing or not a number.
func urlID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// validUsername reports whether the username is within the 3-50 character
// contract.
func validUsername(username string) bool {
	n := len(username)
	return n >= 3 && n <= 50
}

// validEmail reports whether the value is a bare, parseable email address.
// Display names ("Alice <a@b.example>") are rejected.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// validProjectName reports whether the project name is within the 1-255
// character contract.
func validProjectName(name string) bool {
	n := len(name)
	return n >= 1 && n <= 255
}

// isUniqueViolation reports whether a database error came from a unique
// constraint. Duplicate checks run before inserts, so this only catches
// races; it maps to 409 like the explicit checks do.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
