package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
	"github.com/pquerna/otp"
)

// IdentityVerifier checks an external ID token and returns who it belongs to.
type IdentityVerifier interface {
	Verify(ctx context.Context, externalToken string) (domain.VerifiedIdentity, error)
}

// Notifier delivers a one-time code to the user out of band.
type Notifier interface {
	SendOTP(ctx context.Context, email, code string) error
}

// RightsResolver returns the roles and permissions to embed in access tokens.
type RightsResolver interface {
	Resolve(ctx context.Context, userID string) (domain.Rights, error)
}

// ChallengeStore is the slice of OTPStore the flow depends on.
type ChallengeStore interface {
	Issue(ctx context.Context, userID, email, rawCode string, now time.Time) (domain.OTPChallenge, error)
	FindValid(ctx context.Context, userID string, now time.Time) (domain.OTPChallenge, bool, error)
	BeginAttempt(ctx context.Context, ch domain.OTPChallenge) (int, bool, error)
	RecordMiss(ctx context.Context, ch domain.OTPChallenge, attempt int, now time.Time) (bool, error)
	MarkVerified(ctx context.Context, ch domain.OTPChallenge, now time.Time) (bool, error)
}

// AuthFlow drives login, OTP verification and refresh. Each operation reads
// the clock once and uses that instant for every check it makes.
type AuthFlow struct {
	Identity   IdentityVerifier
	Notifier   Notifier
	Challenges ChallengeStore
	Hasher     cryptox.Hasher
	Rights     RightsResolver
	Tokens     *TokenService

	// CodeDigits defaults to six.
	CodeDigits otp.Digits

	// RequireVerifiedEmail rejects identities whose provider has not
	// confirmed the email address.
	RequireVerifiedEmail bool

	Now func() time.Time
}

func (f *AuthFlow) now() time.Time {
	if f.Now == nil {
		return time.Now().UTC()
	}
	return f.Now().UTC()
}

// Login verifies the first factor and sends a fresh one-time code. The code
// is never returned or logged.
func (f *AuthFlow) Login(ctx context.Context, externalToken string) (domain.LoginResult, error) {
	now := f.now()
	l := slogx.FromContext(ctx)

	// 1. First factor
	id, err := f.Identity.Verify(ctx, externalToken)
	if err != nil {
		l.Info("identity verification failed", slog.Any("error", err))
		return domain.LoginResult{}, credentialError(ErrIdentityInvalid)
	}
	id.Email = strings.TrimSpace(id.Email)
	if id.ProviderUserID == "" || id.Email == "" {
		l.Info("identity missing subject or email")
		return domain.LoginResult{}, credentialError(ErrIdentityInvalid)
	}
	if f.RequireVerifiedEmail && !id.EmailVerified {
		l.Info("identity email not verified", slog.String("user_id", id.ProviderUserID))
		return domain.LoginResult{}, credentialError(ErrIdentityInvalid)
	}

	// 2. New challenge, superseding any outstanding one
	digits := f.CodeDigits
	if digits == 0 {
		digits = cryptox.DefaultCodeDigits
	}
	code, err := cryptox.GenerateNumericCode(digits)
	if err != nil {
		return domain.LoginResult{}, infraError("generate otp", err)
	}
	ch, err := f.Challenges.Issue(ctx, id.ProviderUserID, id.Email, code, now)
	if err != nil {
		return domain.LoginResult{}, err
	}

	// 3. Deliver
	if err := f.Notifier.SendOTP(ctx, id.Email, code); err != nil {
		l.Error("otp delivery failed",
			slog.String("user_id", id.ProviderUserID),
			slog.String("challenge_id", ch.ID),
			slog.Any("error", err),
		)
		return domain.LoginResult{}, infraError("send otp", err)
	}

	l.Info("login first factor accepted",
		slog.String("user_id", id.ProviderUserID),
		slog.String("challenge_id", ch.ID),
	)
	return domain.LoginResult{UserID: id.ProviderUserID, Email: id.Email, MFARequired: true}, nil
}

// VerifyMFA redeems the user's current challenge and issues a token pair.
func (f *AuthFlow) VerifyMFA(ctx context.Context, userID, code string) (domain.AuthTokens, error) {
	now := f.now()
	l := slogx.FromContext(ctx)

	// 1. Current challenge
	ch, ok, err := f.Challenges.FindValid(ctx, userID, now)
	if err != nil {
		return domain.AuthTokens{}, err
	}
	if !ok {
		l.Info("mfa verify without valid challenge", slog.String("user_id", userID))
		return domain.AuthTokens{}, challengeError(ErrOTPNotFound)
	}

	// 2. Count the try before comparing, so concurrent guesses share one budget
	attempt, ok, err := f.Challenges.BeginAttempt(ctx, ch)
	if err != nil {
		return domain.AuthTokens{}, err
	}
	if !ok {
		l.Warn("mfa challenge out of attempts or superseded", slog.String("user_id", userID), slog.String("challenge_id", ch.ID))
		return domain.AuthTokens{}, challengeError(ErrOTPExhausted)
	}

	// 3. Code check
	if !f.Hasher.Verify(code, ch.OTPHash) {
		exhausted, err := f.Challenges.RecordMiss(ctx, ch, attempt, now)
		if err != nil {
			l.Error("failed to expire exhausted challenge", slog.String("challenge_id", ch.ID), slog.Any("error", err))
		}
		l.Info("mfa code mismatch",
			slog.String("user_id", userID),
			slog.String("challenge_id", ch.ID),
			slog.Int("attempt", attempt),
			slog.Bool("exhausted", exhausted),
		)
		return domain.AuthTokens{}, challengeError(ErrOTPMismatch)
	}

	// 4. Consume. Losing to a concurrent submission or a newer login is a failure.
	won, err := f.Challenges.MarkVerified(ctx, ch, now)
	if err != nil {
		return domain.AuthTokens{}, err
	}
	if !won {
		l.Warn("mfa challenge consumed or superseded", slog.String("user_id", userID), slog.String("challenge_id", ch.ID))
		return domain.AuthTokens{}, challengeError(ErrOTPConsumed)
	}

	// 5. Rights and tokens
	rights, err := f.Rights.Resolve(ctx, userID)
	if err != nil {
		return domain.AuthTokens{}, err
	}
	tokens, err := f.Tokens.MintPair(userID, ch.Email, rights, now)
	if err != nil {
		return domain.AuthTokens{}, err
	}

	l.Info("mfa verified", slog.String("user_id", userID), slog.String("challenge_id", ch.ID))
	return tokens, nil
}

// Refresh exchanges a valid refresh token for a new pair with freshly
// resolved rights. The presented token stays valid until it expires.
func (f *AuthFlow) Refresh(ctx context.Context, refreshToken string) (domain.AuthTokens, error) {
	now := f.now()
	l := slogx.FromContext(ctx)

	claims, err := f.Tokens.ParseAt(refreshToken, now)
	if err != nil {
		l.Info("refresh token rejected", slog.Any("error", err))
		return domain.AuthTokens{}, tokenError(ErrRefreshInvalid, errors.Unwrap(err))
	}
	if claims.TokenUse != jwtx.UseRefresh {
		l.Info("refresh attempted with non-refresh token", slog.String("user_id", claims.Subject))
		return domain.AuthTokens{}, tokenError(ErrRefreshInvalid, errors.New("not a refresh token"))
	}

	rights, err := f.Rights.Resolve(ctx, claims.Subject)
	if err != nil {
		return domain.AuthTokens{}, err
	}
	tokens, err := f.Tokens.MintPair(claims.Subject, claims.Email, rights, now)
	if err != nil {
		return domain.AuthTokens{}, err
	}

	l.Info("tokens refreshed", slog.String("user_id", claims.Subject))
	return tokens, nil
}
