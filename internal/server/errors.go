package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/hiring-intake/internal/server/ratelimit"
	"github.com/jonathan/hiring-intake/internal/types"
)

// fielded is implemented by validation errors that name offending fields.
type fielded interface {
	Fields() []string
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var kinded types.Kinded
	if !errors.As(err, &kinded) {
		return http.StatusInternalServerError
	}
	switch kinded.Kind() {
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindDuplicate:
		return http.StatusConflict
	case types.KindThrottled:
		return http.StatusTooManyRequests
	case types.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError translates err into a JSON response. Store failures are logged
// and answered with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)

	var dup *types.DuplicateError
	if errors.As(err, &dup) {
		s.jsonResponse(w, status, types.DuplicateResponse{
			Reason:       string(types.KindDuplicate),
			Message:      dup.Error(),
			SubmittedAt:  dup.SubmittedAt,
			ReapplyAfter: dup.ReapplyAfter,
		})
		return
	}

	var throttled *types.ThrottledError
	if errors.As(err, &throttled) {
		s.setRateLimitHeaders(w, ratelimit.Info{Limit: throttled.Limit, ResetTime: throttled.ResetAt})
		retry := int(throttled.RetryAfter.Round(time.Second) / time.Second)
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		s.logger.Info("rate limit exceeded", zap.String("client", clientIP(r)), zap.Int("limit", throttled.Limit))
	}

	resp := types.ValidationResponse{Error: errorCode(err, status), Message: err.Error()}
	var f fielded
	var verr *types.ValidationError
	switch {
	case errors.As(err, &f):
		resp.Fields = f.Fields()
	case errors.As(err, &verr):
		resp.Fields = verr.Fields
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path),
			zap.String("request_id", requestID(r)), zap.Error(err))
		resp.Message = "internal error, please retry later"
	}
	s.jsonResponse(w, status, resp)
}

func errorCode(err error, status int) string {
	var kinded types.Kinded
	if errors.As(err, &kinded) {
		return string(kinded.Kind())
	}
	if status == http.StatusInternalServerError {
		return string(types.KindStoreFailure)
	}
	return http.StatusText(status)
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, code, message string) {
	s.jsonResponse(w, status, types.ValidationResponse{Error: code, Message: message})
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		if !info.ResetTime.IsZero() {
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
		}
	}
}
