package authsdk

import (
	"net/http"
	"strings"
	"time"
)

// SessionCookieName is the cookie carrying the encoded session token.
const SessionCookieName = "gatehouse_session"

// SDKClient is a client for the gatehouse JSON API.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// SessionCookie is the raw value of the session cookie issued at login.
	// When set it is sent with every request.
	SessionCookie string
}

// NewSDKClient creates a new gatehouse client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithSession returns a copy of c that presents cookie as the session.
func (c *SDKClient) WithSession(cookie string) *SDKClient {
	cp := *c
	cp.SessionCookie = cookie
	return &cp
}
