package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/jonathan/hiring-intake/internal/types"
)

// PurgeSecretHeader carries the shared secret of a manual purge.
const PurgeSecretHeader = "X-Purge-Secret"

// handlePurge runs the retention purge on demand.
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	if !s.purgeSecret.Verify(r.Header.Get(PurgeSecretHeader)) {
		s.logger.Warn("purge rejected", zap.String("client", clientIP(r)))
		s.writeError(w, r, &types.UnauthorizedError{Message: "invalid purge secret"})
		return
	}

	res, err := s.purge.PurgeExpired(r.Context())
	if err != nil {
		status := HTTPStatus(err)
		s.logger.Error("purge failed",
			zap.Int("removed", res.Removed), zap.Time("cutoff", res.Cutoff),
			zap.String("request_id", requestID(r)), zap.Error(err))
		s.jsonResponse(w, status, types.PurgeFailureResponse{
			Error:   errorCode(err, status),
			Message: "purge stopped early, please retry later",
			Removed: res.Removed,
			Cutoff:  res.Cutoff,
		})
		return
	}
	s.jsonResponse(w, http.StatusOK, types.PurgeResponse{Removed: res.Removed, Cutoff: res.Cutoff})
}
