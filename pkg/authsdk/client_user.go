package authsdk

import (
	"context"
	"net/http"
)

// GetUserInfo returns the signed-in user. Without a live session it fails
// with an error matching ErrNotAuthenticated.
func (c *SDKClient) GetUserInfo(ctx context.Context) (*UserInfoResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/user-info", nil, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, err
	}

	var info UserInfoResponse
	if err := decodeJSON(resp, &info, http.StatusOK); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetSessionInfo describes the presented session, if any.
func (c *SDKClient) GetSessionInfo(ctx context.Context) (*SessionInfoResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/session-info", nil, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, err
	}

	var info SessionInfoResponse
	if err := decodeJSON(resp, &info, http.StatusOK); err != nil {
		return nil, err
	}
	return &info, nil
}
