package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
)

// Pinger is satisfied by the rights store and every OTP store driver.
type Pinger interface {
	Ping(ctx context.Context) error
}

const readyTimeout = 2 * time.Second

// ReadyzHandler godoc
//
//	@Summary		Readiness check
//	@Description	Pings the rights database and the OTP store
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	authsdk.HealthResponse	"one or more dependencies failing"
//	@Router			/readyz [get].
func ReadyzHandler(startTime time.Time, version string, db, otp Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := &authsdk.HealthChecks{
			Database: pingStatus(ctx, db),
			OTPStore: pingStatus(ctx, otp),
		}

		status, code := "ok", http.StatusOK
		if checks.Database != "ok" || checks.OTPStore != "ok" {
			status, code = "degraded", http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, authsdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Truncate(time.Second).String(),
			Version: version,
			Checks:  checks,
		})
	}
}

func pingStatus(ctx context.Context, p Pinger) string {
	if p == nil {
		return "error: not configured"
	}
	if err := p.Ping(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}
