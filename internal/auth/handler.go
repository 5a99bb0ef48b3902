package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/mtadic/portfolio-backend/internal/telemetry/metrics"
	"github.com/mtadic/portfolio-backend/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// CookieName is the admin session cookie. HTTP-only, SameSite=Strict,
// Secure outside of development.
const CookieName = "admin-token"

type Handler struct {
	authService    *Service
	metricsManager *metrics.Manager
	cookieSecure   bool
}

func NewHandler(
	authService *Service,
	metricsManager *metrics.Manager,
	cookieSecure bool,
) *Handler {
	return &Handler{
		authService:    authService,
		metricsManager: metricsManager,
		cookieSecure:   cookieSecure,
	}
}

func (handler *Handler) SetupRoutes(
	mainRouter *mux.Router,
	middlewares ...mux.MiddlewareFunc,
) {
	authRouter := mainRouter.PathPrefix("/a").Subrouter()
	authRouter.HandleFunc("/login", handler.handleLogin).Methods("POST", "OPTIONS").Name("login")
	authRouter.HandleFunc("/logout", handler.handleLogout).Methods("GET", "OPTIONS").Name("logout")
	authRouter.HandleFunc("/verify", handler.handleVerify).Methods("GET", "OPTIONS").Name("verify")
	authRouter.HandleFunc("/credentials", handler.handleUpdateCredentials).Methods("POST", "OPTIONS").Name("update-credentials")
	authRouter.HandleFunc("/init", handler.handleInit).Methods("POST", "OPTIONS").Name("init-credentials")

	// rate limit the whole auth subrouter to prevent abuse, on top of
	// the per-source-address login lockout
	for _, m := range middlewares {
		authRouter.Use(m)
	}
}

func (handler *Handler) setSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   handler.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (handler *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	type loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	var loginReq loginRequest
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
			log.Errorf("login, unmarshal json params: %s", err)
			http.Error(w, "login failed", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("login failed, parse form error: %s", err)
			http.Error(w, "parse form error", http.StatusInternalServerError)
			return
		}
		loginReq = loginRequest{
			Email:    r.Form.Get("email"),
			Password: r.Form.Get("password"),
		}
	}

	if loginReq.Email == "" {
		http.Error(w, "error, email empty", http.StatusBadRequest)
		return
	}
	if loginReq.Password == "" {
		http.Error(w, "error, password empty", http.StatusBadRequest)
		return
	}

	sourceAddr, err := pkg.ReadUserIP(r)
	if err != nil {
		log.Errorf("login, read source address: %s", err)
		sourceAddr = r.RemoteAddr
	}

	token, err := handler.authService.Login(r.Context(), loginReq.Email, loginReq.Password, sourceAddr)
	if err != nil {
		var tooMany *TooManyAttemptsError
		switch {
		case errors.As(err, &tooMany):
			handler.metricsManager.CounterLoginLockout.Inc()
			waitMinutes := int(math.Ceil(tooMany.RetryAfter.Minutes()))
			http.Error(
				w,
				fmt.Sprintf("too many failed login attempts, try again in %d minute(s)", waitMinutes),
				http.StatusTooManyRequests,
			)
		case errors.Is(err, ErrWrongCredentials):
			handler.metricsManager.CounterLoginFailure.Inc()
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
		case errors.Is(err, ErrCredentialsUnavailable):
			http.Error(
				w,
				"credentials unavailable - initialize the admin account or check the store connection",
				http.StatusInternalServerError,
			)
		default:
			log.Errorf("login failed: %s", err)
			http.Error(w, "login failed", http.StatusInternalServerError)
		}
		return
	}

	handler.metricsManager.CounterLoginSuccess.Inc()
	handler.setSessionCookie(w, token, int(DefaultTTL.Seconds()))
	pkg.WriteJSONResponseOK(w, `{"success":true}`)
}

func (handler *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "GET, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	if cookie, err := r.Cookie(CookieName); err == nil {
		if err := handler.authService.Logout(r.Context(), cookie.Value); err != nil {
			// logout is idempotent, a dead token still clears the cookie
			log.Tracef("logout with invalid token: %s", err)
		}
	}

	handler.setSessionCookie(w, "", -1)
	pkg.WriteTextResponseOK(w, "logged-out")
}

func (handler *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "GET, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil {
		pkg.WriteJSONResponseOK(w, `{"authenticated":false}`)
		return
	}

	claims, err := handler.authService.Authenticate(r.Context(), cookie.Value)
	if err != nil {
		log.Tracef("verify, not authenticated: %s", err)
		pkg.WriteJSONResponseOK(w, `{"authenticated":false}`)
		return
	}

	resp, err := json.Marshal(struct {
		Authenticated bool   `json:"authenticated"`
		User          string `json:"user"`
	}{true, claims.Subject})
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, resp)
}

func (handler *Handler) handleUpdateCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	// the auth middleware already let this request through, the cookie
	// is read again only to know whose session to replace
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	claims, err := handler.authService.Authenticate(r.Context(), cookie.Value)
	if err != nil {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	type updateRequest struct {
		CurrentPassword string `json:"currentPassword"`
		NewEmail        string `json:"newEmail"`
		NewPassword     string `json:"newPassword"`
	}

	var updateReq updateRequest
	if err := json.NewDecoder(r.Body).Decode(&updateReq); err != nil {
		log.Errorf("update credentials, unmarshal json params: %s", err)
		http.Error(w, "update credentials failed", http.StatusBadRequest)
		return
	}

	if updateReq.CurrentPassword == "" {
		http.Error(w, "error, current password empty", http.StatusBadRequest)
		return
	}

	err = handler.authService.UpdateCredentials(
		r.Context(),
		claims.Subject,
		updateReq.CurrentPassword,
		updateReq.NewEmail,
		updateReq.NewPassword,
	)
	if err != nil {
		var validationErr *ValidationError
		switch {
		case errors.Is(err, ErrWrongCredentials):
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
		case errors.As(err, &validationErr):
			errBytes, marshalErr := json.Marshal(validationErr)
			if marshalErr != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			pkg.WriteResponseBytes(w, pkg.ContentType.JSON, errBytes, http.StatusBadRequest)
		case errors.Is(err, ErrCredentialsUnavailable):
			http.Error(
				w,
				"credentials unavailable - check the store connection",
				http.StatusInternalServerError,
			)
		default:
			log.Errorf("update credentials failed: %s", err)
			http.Error(w, "update credentials failed", http.StatusInternalServerError)
		}
		return
	}

	log.Printf("credentials updated for [%s]", claims.Subject)

	// the old session is gone, force a fresh login
	handler.setSessionCookie(w, "", -1)
	pkg.WriteJSONResponseOK(w, `{"success":true}`)
}

func (handler *Handler) handleInit(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	created, defaultPassword, err := handler.authService.Initialize(r.Context())
	if err != nil {
		log.Errorf("initialize credentials: %s", err)
		http.Error(
			w,
			"initialization failed - check the store connection",
			http.StatusInternalServerError,
		)
		return
	}

	if !created {
		pkg.WriteJSONResponseOK(w, `{"initialized":false,"message":"already initialized"}`)
		return
	}

	resp, err := json.Marshal(struct {
		Initialized bool   `json:"initialized"`
		Email       string `json:"email"`
		Password    string `json:"password"`
	}{true, DefaultAdminEmail, defaultPassword})
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, resp, http.StatusCreated)
}
