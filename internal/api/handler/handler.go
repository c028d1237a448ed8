package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/onboarding-sync/internal/api/middleware"
	"github.com/Rrens/onboarding-sync/internal/api/response"
	"github.com/Rrens/onboarding-sync/internal/domain"
)

var validate = validator.New()

const maxBodyBytes = 1 << 20

type validationFailure struct {
	domain.ErrorBody
	Fields map[string]string `json:"fields,omitempty"`
}

// decode reads a JSON body into dst and validates it. It writes the 400
// response itself and reports whether the handler may continue.
func decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !(optional && errors.Is(err, io.EOF)) {
		response.BadRequest(w, "invalid request body")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			response.BadRequest(w, err.Error())
			return false
		}
		fields := make(map[string]string)
		for _, e := range validationErrors {
			field := e.Field()
			switch tag := e.Tag(); tag {
			case "required":
				fields[field] = "field is required"
			case "min":
				fields[field] = "must be at least " + e.Param()
			case "max":
				fields[field] = "must be at most " + e.Param()
			case "oneof":
				fields[field] = "must be one of " + e.Param()
			default:
				fields[field] = "validation failed on " + tag
			}
		}
		response.Error(w, http.StatusBadRequest, validationFailure{
			ErrorBody: domain.NewErrorBody(domain.ErrInvalidInput),
			Fields:    fields,
		})
		return false
	}
	return true
}

// caller returns the authenticated user and the session named in the URL
func caller(w http.ResponseWriter, r *http.Request) (userID, sessionID string, ok bool) {
	userID, ok = middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w)
		return "", "", false
	}
	sessionID, ok = middleware.GetSessionID(r.Context())
	if !ok {
		response.BadRequest(w, "missing session ID")
		return "", "", false
	}
	return userID, sessionID, true
}

// fail writes err and logs what the client does not get to see
func fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := response.StatusFor(err); status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	response.Fail(w, err)
}
