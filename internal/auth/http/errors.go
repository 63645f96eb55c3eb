package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// writeServiceError maps a service failure onto the closed set of wire
// errors. Internal detail is logged, never returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	if kind, ok := service.KindOf(err); ok {
		switch kind {
		case service.KindCredential:
			authsdk.ErrInvalidCredential.WriteError(w)
		case service.KindChallenge:
			// Missing, expired, wrong and consumed all read the same.
			authsdk.ErrMFAFailed.WriteError(w)
		case service.KindToken:
			authsdk.ErrInvalidToken.WriteError(w)
		case service.KindInfrastructure:
			log.Error("dependency failure", slog.Any("error", err))
			authsdk.ErrTemporarilyUnavailable.WriteError(w)
		default:
			log.Error("unmapped service error", slog.Any("error", err))
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidName):
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
	case errors.Is(err, service.ErrRoleNotFound), errors.Is(err, service.ErrPermissionNotFound):
		authsdk.ErrNotFound.WithDescription(err.Error()).WriteError(w)
	case errors.Is(err, service.ErrAlreadyExists):
		authsdk.ErrConflict.WithDescription(err.Error()).WriteError(w)
	default:
		log.Error("request failed", slog.Any("error", err))
		authsdk.ErrServerError.WriteError(w)
	}
}
