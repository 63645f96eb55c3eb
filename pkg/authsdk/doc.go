/*
Package authsdk is the Go client for the gatehouse authentication service,
plus a local verifier for services that accept its access tokens.

# Signing in

Authentication has two steps. Login submits an identity provider ID token
and triggers an emailed one-time code; Authenticate submits that code and
returns a Session:

	client := authsdk.NewSDKClient("https://auth.example.com")

	login, err := client.Login(ctx, idToken)
	if err != nil {
		return err
	}

	// ... ask the user for the code they were emailed ...

	session, err := client.Authenticate(ctx, login.UserID, code)
	if errors.Is(err, authsdk.ErrMFAFailed) {
		// wrong, expired or already used code
	}

# Sessions

A Session refreshes its access token 30 seconds before expiry, so callers
never handle refresh themselves. Sessions are safe for concurrent use.

	me, err := session.Me(ctx)
	roles, err := session.ListRoles(ctx) // requires iam:read

Sessions refuse calls their token has no permission for before sending
them. Set SDKClient.CheckPermissions to false to leave the decision to the
server.

# Errors

Failed responses decode to *APIError. Compare with errors.Is against the
predefined values (ErrInvalidCredential, ErrMFAFailed, ErrInvalidToken,
ErrInsufficientPermission, ErrRateLimited, ErrTemporarilyUnavailable, ...);
matching is on the error code only.

# Verifying tokens in other services

Downstream services verify access tokens locally with the shared secret:

	v, err := authsdk.NewLocalVerifier(secret, "https://auth.example.com")
	mux.Handle("GET /orders", httpx.Chain(ordersHandler,
		httpx.AuthnMiddleware(v),
		httpx.RequirePermission("orders:read"),
	))
*/
package authsdk
