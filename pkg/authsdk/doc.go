/*
Package authsdk provides a small client for the gatehouse JSON API and the
error/response types the server writes.

# Client

	client := authsdk.NewSDKClient("https://auth.example.com")

	// Check service health
	health, err := client.GetLiveness(ctx)

	// Bootstrap the service (one-time setup)
	resp, err := client.Bootstrap(ctx, token, authsdk.BootstrapRequest{...})

Session-bound calls need the session cookie issued by the HTML login form:

	me, err := client.WithSession(cookie).GetUserInfo(ctx)

# Errors

Every non-2xx response is returned as *APIError. Compare with errors.Is
against the predefined values:

	if errors.Is(err, authsdk.ErrNotAuthenticated) {
		// redirect to the login page
	}
*/
package authsdk
