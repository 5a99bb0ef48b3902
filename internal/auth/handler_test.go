package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mtadic/portfolio-backend/internal/telemetry/metrics"

	"github.com/go-redis/redismock/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, *Service, redismock.ClientMock, *mux.Router) {
	t.Helper()
	svc, mock := newTestService(t)
	handler := NewHandler(svc, metrics.NewTestManager(), false)

	r := mux.NewRouter()
	handler.SetupRoutes(r)

	return handler, svc, mock, r
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == CookieName {
			return cookie
		}
	}
	return nil
}

func TestHandler_Login(t *testing.T) {
	_, _, mock, r := newTestHandler(t)

	mock.ExpectGet(credentialsKey).SetVal(storedTestCredentials(t))
	mock.Regexp().ExpectSet(sessionKeyPrefix+testEmail, `.+`, time.Hour).SetVal("OK")

	req := httptest.NewRequest(
		"POST", "/a/login",
		strings.NewReader(`{"email":"admin@portfolio.com","password":"testpass"}`),
	)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "95.90.24.77:51001"

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"success":true`)

	cookie := sessionCookie(rr.Result())
	require.NotNil(t, cookie, "login must set the session cookie")
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Login_WrongCredentials(t *testing.T) {
	_, _, mock, r := newTestHandler(t)

	mock.ExpectGet(credentialsKey).SetVal(storedTestCredentials(t))

	req := httptest.NewRequest(
		"POST", "/a/login",
		strings.NewReader(`{"email":"admin@portfolio.com","password":"wrong-pass"}`),
	)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "95.90.24.77:51001"

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	// deliberately generic, no hint whether email or password was wrong
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid credentials")
	assert.Nil(t, sessionCookie(rr.Result()), "failed login must not set a cookie")
}

func TestHandler_Login_MissingFields(t *testing.T) {
	_, _, _, r := newTestHandler(t)

	for name, body := range map[string]string{
		"no email":    `{"password":"testpass"}`,
		"no password": `{"email":"admin@portfolio.com"}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/a/login", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestHandler_Login_RateLimited(t *testing.T) {
	_, _, mock, r := newTestHandler(t)

	// 5 failed attempts from one address, the 6th answers 429, not 401
	for i := 0; i < MaxFailedAttempts; i++ {
		mock.ExpectGet(credentialsKey).SetVal(storedTestCredentials(t))

		req := httptest.NewRequest(
			"POST", "/a/login",
			strings.NewReader(`{"email":"admin@portfolio.com","password":"wrong-pass"}`),
		)
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "95.90.24.77:51001"

		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}

	req := httptest.NewRequest(
		"POST", "/a/login",
		strings.NewReader(`{"email":"admin@portfolio.com","password":"testpass"}`),
	)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "95.90.24.77:51001"

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), "try again in")
	assert.Contains(t, rr.Body.String(), "minute")
}

func TestHandler_Login_CredentialsUnavailable(t *testing.T) {
	_, _, mock, r := newTestHandler(t)

	mock.ExpectGet(credentialsKey).RedisNil()

	req := httptest.NewRequest(
		"POST", "/a/login",
		strings.NewReader(`{"email":"admin@portfolio.com","password":"testpass"}`),
	)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "initialize the admin account")
}

func TestHandler_Verify(t *testing.T) {
	_, svc, mock, r := newTestHandler(t)

	// no cookie
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/a/verify", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"authenticated":false`)

	// valid cookie backed by a live session
	token, err := svc.tokens.Issue(testEmail)
	require.NoError(t, err)
	mock.ExpectGet(sessionKeyPrefix + testEmail).SetVal(token)

	req := httptest.NewRequest("GET", "/a/verify", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"authenticated":true`)
	assert.Contains(t, rr.Body.String(), testEmail)

	// valid token, superseded session
	mock.ExpectGet(sessionKeyPrefix + testEmail).SetVal("a-newer-token")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"authenticated":false`)
}

func TestHandler_Logout(t *testing.T) {
	_, svc, mock, r := newTestHandler(t)

	token, err := svc.tokens.Issue(testEmail)
	require.NoError(t, err)

	mock.ExpectDel(sessionKeyPrefix + testEmail).SetVal(1)

	req := httptest.NewRequest("GET", "/a/logout", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "logged-out", rr.Body.String())

	cookie := sessionCookie(rr.Result())
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)

	// logout with no cookie at all still succeeds
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/a/logout", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_UpdateCredentials_WrongCurrentPassword(t *testing.T) {
	_, svc, mock, r := newTestHandler(t)

	token, err := svc.tokens.Issue(testEmail)
	require.NoError(t, err)

	// authenticate again, then reject on the wrong current password
	mock.ExpectGet(sessionKeyPrefix + testEmail).SetVal(token)
	mock.ExpectGet(credentialsKey).SetVal(storedTestCredentials(t))

	req := httptest.NewRequest(
		"POST", "/a/credentials",
		strings.NewReader(`{"currentPassword":"wrong-pass","newPassword":"N3w-Passw0rd!"}`),
	)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_UpdateCredentials_WeakPassword(t *testing.T) {
	_, svc, mock, r := newTestHandler(t)

	token, err := svc.tokens.Issue(testEmail)
	require.NoError(t, err)

	mock.ExpectGet(sessionKeyPrefix + testEmail).SetVal(token)
	mock.ExpectGet(credentialsKey).SetVal(storedTestCredentials(t))

	req := httptest.NewRequest(
		"POST", "/a/credentials",
		strings.NewReader(`{"currentPassword":"testpass","newPassword":"weak"}`),
	)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	// past authentication, field-level messages are fine here
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "newPassword")
}

func TestHandler_Init(t *testing.T) {
	_, _, mock, r := newTestHandler(t)

	// fresh system: default credentials surfaced exactly once
	mock.ExpectGet(credentialsKey).RedisNil()
	mock.Regexp().ExpectSet(credentialsKey, `.+`, 0).SetVal("OK")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("POST", "/a/init", nil))

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), DefaultAdminEmail)
	assert.Contains(t, rr.Body.String(), DefaultAdminPassword)

	// second call: noop
	mock.ExpectGet(credentialsKey).SetVal(storedTestCredentials(t))

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("POST", "/a/init", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "already initialized")

	require.NoError(t, mock.ExpectationsWereMet())
}
