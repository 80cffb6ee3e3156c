package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
	"github.com/gorilla/csrf"

	_ "github.com/aussiebroadwan/gatehouse/api/gatehouse" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// csrfMaxAge matches the longest session lifetime so a remembered login
// never meets a stale form token.
const csrfMaxAge = 24 * 60 * 60

// Options configures cookie and CSRF handling.
type Options struct {
	BuildVersion   string
	SessionBackend string // "sql" or "redis", reported by /readyz

	// CookieHashKey authenticates the session and flash cookies (32 or 64
	// bytes); CookieBlockKey encrypts them (16, 24 or 32 bytes).
	CookieHashKey  []byte
	CookieBlockKey []byte
	CSRFKey        []byte // 32 bytes
	CookieSecure   bool   // set Secure on every cookie; disable only for plain-HTTP development

	// RateLimits defaults to DefaultRateLimits when nil.
	RateLimits *RateLimits
}

// Router holds shared dependencies for HTTP handlers.
//
// Mux carries the JSON endpoints directly. Every HTML page lives on a second
// mux wrapped in CSRF protection and mounted at "/".
type Router struct {
	Mux         *http.ServeMux
	pages       *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion   string
	sessionBackend string
	startTime      time.Time
	logger         *slog.Logger

	store  store.Store
	web    web
	csrf   httpx.Middleware
	limits RateLimits

	UserService          *service.UserService
	SessionService       *service.SessionService
	PasswordResetService *service.PasswordResetService
	AdminService         *service.AdminService
	BootstrapService     *service.BootstrapService
}

func NewRouter(st store.Store, logger *slog.Logger, opts Options) *Router {
	r := &Router{
		Mux:            http.NewServeMux(),
		pages:          http.NewServeMux(),
		buildVersion:   opts.BuildVersion,
		sessionBackend: opts.SessionBackend,
		startTime:      time.Now(),
		store:          st,
		logger:         logger,
		web: web{
			views:   loadViews(),
			cookies: newCookieJar(opts.CookieHashKey, opts.CookieBlockKey, opts.CookieSecure),
		},
	}
	if r.sessionBackend == "" {
		r.sessionBackend = "sql"
	}
	r.limits = DefaultRateLimits()
	if opts.RateLimits != nil {
		r.limits = *opts.RateLimits
	}

	r.csrf = csrf.Protect(
		opts.CSRFKey,
		csrf.Path("/"),
		csrf.MaxAge(csrfMaxAge),
		csrf.Secure(opts.CookieSecure),
		csrf.HttpOnly(true),
		csrf.CookieName("gatehouse_csrf"),
		csrf.FieldName("csrf_token"),
		csrf.ErrorHandler(http.HandlerFunc(r.csrfFailed)),
	)

	return r
}

// ApplyRoutes registers every route. Services must be set beforehand.
func (r *Router) ApplyRoutes() {
	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		SessionMiddleware(r.SessionService, r.web.cookies),
	}

	r.registerAuth()
	r.registerAccount()
	r.registerPasswordReset()
	r.registerUsers()
	r.registerAdmin()
	r.pages.HandleFunc("/", r.web.notFound)

	r.registerAPI()
	r.registerSystem()
	r.registerBootstrap()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
	r.Mux.Handle("/", httpx.Chain(r.pages, r.csrf))
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title						Gatehouse Account Service API
//	@version					0.1.0
//	@description				JSON endpoints of the gatehouse account service. Sign-in, registration and password
//	@description				recovery are HTML forms; the endpoints below read the session cookie they issue.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/gatehouse
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	SessionCookie
//	@in							cookie
//	@name						gatehouse_session
//	@description				Session cookie set by POST /login.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		web:            r.web,
		UserService:    r.UserService,
		SessionService: r.SessionService,
	}

	r.pages.HandleFunc("GET /login", h.HandleLoginForm)

	r.pages.Handle("POST /login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimit("login", r.limits.Login, httpx.ByIPAndField("username")),
		),
	)

	r.pages.Handle("POST /logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			r.web.RequireUser(),
		),
	)

	r.pages.HandleFunc("GET /register", h.HandleRegisterForm)
	r.pages.Handle("POST /register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimit("register", r.limits.Register, httpx.ByIP),
		),
	)
}

func (r *Router) registerAccount() {
	h := &AccountHandler{web: r.web, UserService: r.UserService}
	user := r.web.RequireUser()

	r.pages.Handle("GET /profile", httpx.Chain(http.HandlerFunc(h.HandleProfile), user))
	r.pages.Handle("GET /profile/edit", httpx.Chain(http.HandlerFunc(h.HandleEditProfileForm), user))
	r.pages.Handle("POST /profile/edit",
		httpx.Chain(http.HandlerFunc(h.HandleEditProfile),
			user,
			httpx.RateLimit("account", r.limits.AccountWrite, httpx.ByUser),
		),
	)
	r.pages.Handle("GET /change-password", httpx.Chain(http.HandlerFunc(h.HandleChangePasswordForm), user))

	// The current password is re-checked here, so it gets the login budget.
	r.pages.Handle("POST /change-password",
		httpx.Chain(http.HandlerFunc(h.HandleChangePassword),
			user,
			httpx.RateLimit("change_password", r.limits.ChangePassword, httpx.ByUser),
		),
	)
}

func (r *Router) registerPasswordReset() {
	h := &ResetHandler{web: r.web, PasswordResetService: r.PasswordResetService}

	r.pages.HandleFunc("GET /forgot-password", h.HandleForgotForm)

	r.pages.Handle("POST /forgot-password",
		httpx.Chain(http.HandlerFunc(h.HandleForgot),
			httpx.RateLimit("forgot_password", r.limits.ForgotPassword, httpx.ByIP),
		),
	)

	r.pages.HandleFunc("GET /reset-password/{token}", h.HandleResetForm)
	r.pages.Handle("POST /reset-password/{token}",
		httpx.Chain(http.HandlerFunc(h.HandleReset),
			httpx.RateLimit("reset_password", r.limits.ResetPassword, httpx.ByIP),
		),
	)
}

func (r *Router) registerUsers() {
	h := &UsersHandler{
		web:          r.web,
		UserService:  r.UserService,
		AdminService: r.AdminService,
	}
	user := r.web.RequireUser()

	r.pages.Handle("GET /{$}",
		httpx.Chain(http.HandlerFunc(h.HandleIndex),
			httpx.RateLimit("read", r.limits.Read, httpx.ByIP),
		),
	)
	r.pages.Handle("GET /users", httpx.Chain(http.HandlerFunc(h.HandleList), user))
	r.pages.Handle("GET /users/{id}", httpx.Chain(http.HandlerFunc(h.HandleDetail), user))
}

func (r *Router) registerAdmin() {
	h := &AdminHandler{web: r.web, AdminService: r.AdminService}
	admin := r.web.RequireAdmin()

	r.pages.Handle("GET /admin", httpx.Chain(http.HandlerFunc(h.HandleDashboard), admin))
	r.pages.Handle("GET /admin/users", httpx.Chain(http.HandlerFunc(h.HandleUsers), admin))

	// Both toggles draw from one budget per admin.
	writes := httpx.RateLimit("admin", r.limits.AdminWrite, httpx.ByUser)
	r.pages.Handle("POST /admin/users/{id}/toggle-active",
		httpx.Chain(http.HandlerFunc(h.HandleToggleActive), admin, writes),
	)
	r.pages.Handle("POST /admin/users/{id}/toggle-admin",
		httpx.Chain(http.HandlerFunc(h.HandleToggleAdmin), admin, writes),
	)
}

func (r *Router) registerAPI() {
	r.Mux.Handle("GET /api/user-info",
		httpx.Chain(http.HandlerFunc(HandleUserInfo),
			r.web.RequireUser(),
			httpx.RateLimit("read", r.limits.Read, httpx.ByUser),
		),
	)
	r.Mux.Handle("GET /api/session-info",
		httpx.Chain(http.HandlerFunc(HandleSessionInfo),
			httpx.RateLimit("read", r.limits.Read, httpx.ByUser),
		),
	)
	r.Mux.HandleFunc("/api/", HandleAPINotFound)
}

func (r *Router) registerBootstrap() {
	bootstrapHandler := &BootstrapHandler{BootstrapService: r.BootstrapService}
	r.Mux.Handle("POST /v1/bootstrap",
		httpx.Chain(bootstrapHandler,
			httpx.RateLimit("bootstrap", r.limits.Bootstrap, httpx.ByIP),
		),
	)
}

func (r *Router) registerSystem() {
	// Monitoring polls these, so they share the read budget per IP.
	health := httpx.RateLimit("health", r.limits.Read, httpx.ByIP)
	r.Mux.Handle("GET /livez", httpx.Chain(LivezHandler(r.startTime, r.buildVersion), health))
	r.Mux.Handle("GET /readyz", httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.sessionBackend), health))
}

// csrfFailed answers a form post whose CSRF token is missing or stale.
func (r *Router) csrfFailed(w http.ResponseWriter, req *http.Request) {
	slogx.FromContext(req.Context()).Warn("csrf check failed", slog.Any("reason", csrf.FailureReason(req)))
	if httpx.WantsJSON(req) {
		authsdk.NewAPIError(http.StatusForbidden, authsdk.ErrorCodeInvalidRequest, "CSRF token missing or invalid").WriteError(w)
		return
	}
	r.web.render(w, req, http.StatusForbidden, "error", page{
		Title: "Form Expired",
		Data:  errorPage{Code: http.StatusForbidden, Message: "The form has expired. Go back, reload the page and try again."},
	})
}
