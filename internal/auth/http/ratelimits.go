package http

import (
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
)

// RateLimits is the request budget of each rate-limited route group. A zero
// httpx.Limit turns limiting off for that group.
type RateLimits struct {
	Login          httpx.Limit // POST /login, per IP and username
	Register       httpx.Limit // POST /register, per IP
	ForgotPassword httpx.Limit // POST /forgot-password, per IP; every hit may send mail
	ResetPassword  httpx.Limit // POST /reset-password/{token}, per IP
	ChangePassword httpx.Limit // POST /change-password, per user
	AccountWrite   httpx.Limit // profile edits, per user
	AdminWrite     httpx.Limit // admin toggles, per user
	Bootstrap      httpx.Limit // POST /v1/bootstrap, per IP
	Read           httpx.Limit // index, JSON API and health checks, per IP or user
}

func DefaultRateLimits() RateLimits {
	return RateLimits{
		Login:          httpx.PerMinute(5),
		Register:       httpx.PerMinute(20),
		ForgotPassword: httpx.PerMinute(5),
		ResetPassword:  httpx.PerMinute(5),
		ChangePassword: httpx.PerMinute(5),
		AccountWrite:   httpx.PerMinute(20),
		AdminWrite:     httpx.PerMinute(20),
		Bootstrap:      httpx.PerMinute(5),
		Read:           httpx.PerMinute(100),
	}
}
