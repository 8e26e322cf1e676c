package rest

import (
	"net/http"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/scrapeerr"
	"github.com/fortuna/touchline/internal/store/repository"
	"github.com/go-playground/validator/v10"
)

// errUnavailable marks a request for a source or store the server was
// started without.
var errUnavailable = crerr.New("not configured")

// rawJSON is a stored JSON payload written through unchanged.
type rawJSON string

func (r rawJSON) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("null"), nil
	}
	return []byte(r), nil
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
		if hints := crerr.GetAllHints(err); len(hints) > 0 {
			response["hints"] = hints
		}
	}
	respondJSON(w, status, response)
}

// respondFailure maps err onto a status and writes it.
func respondFailure(w http.ResponseWriter, message string, err error) {
	respondError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case crerr.As(err, &verrs):
		return http.StatusBadRequest
	case scrapeerr.IsCatalog(err):
		return http.StatusBadRequest
	case crerr.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case crerr.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	case crerr.Is(err, scrapeerr.ErrRetrieval),
		crerr.Is(err, scrapeerr.ErrStructural),
		crerr.Is(err, scrapeerr.ErrAlignment),
		crerr.Is(err, scrapeerr.ErrData):
		// The upstream page could not be fetched or did not look as expected.
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
