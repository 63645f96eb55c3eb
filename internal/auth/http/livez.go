package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
)

// LivezHandler godoc
//
//	@Summary		Liveness check
//	@Description	Always 200 while the process is serving
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version"
//	@Router			/livez [get].
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).Truncate(time.Second).String(),
			Version: version,
		})
	}
}
