package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarcoPoloResearchLab/lectern/backend/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubSessionValidator struct {
	claims auth.SessionClaims
	err    error
}

func (s stubSessionValidator) ValidateRequest(*http.Request) (auth.SessionClaims, error) {
	return s.claims, s.err
}

func runAuthorizeAdmin(t *testing.T, validateErr error) (*httptest.ResponseRecorder, *gin.Context, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/admin/dashboard", http.NoBody)

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionValidator{
			claims: auth.SessionClaims{UserID: "admin-1", UserRoles: []string{auth.RoleAdmin}},
			err:    validateErr,
		},
		logger: zap.New(core),
	}
	handler.authorizeAdmin(ctx)
	return recorder, ctx, logs
}

func TestAuthorizeAdminLogsExpiredSessionAtInfoLevel(t *testing.T) {
	recorder, _, logs := runAuthorizeAdmin(t, auth.ErrExpiredSessionToken)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired session, got %s", entry.Level)
	}
	if entry.Message != "admin session validation failed" {
		t.Fatalf("unexpected log message: %q", entry.Message)
	}
	hasExpired := false
	for _, field := range entry.Context {
		if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), auth.ErrExpiredSessionToken) {
			hasExpired = true
			break
		}
	}
	if !hasExpired {
		t.Fatalf("expected expired session error context, got %v", entry.Context)
	}
}

func TestAuthorizeAdminLogsInvalidSessionAtWarnLevel(t *testing.T) {
	recorder, _, logs := runAuthorizeAdmin(t, auth.ErrInvalidSessionToken)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for invalid session, got %s", entries[0].Level)
	}
}

func TestAuthorizeAdminRejectsMissingRoleWithForbidden(t *testing.T) {
	recorder, _, _ := runAuthorizeAdmin(t, auth.ErrMissingSessionRole)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusForbidden)
	}
}

func TestAuthorizeAdminStoresClaims(t *testing.T) {
	recorder, ctx, logs := runAuthorizeAdmin(t, nil)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d", recorder.Code)
	}
	if ctx.IsAborted() {
		t.Fatalf("did not expect the request to be aborted")
	}
	value, ok := ctx.Get(sessionClaimsContextKey)
	if !ok {
		t.Fatalf("expected session claims on the context")
	}
	if claims := value.(auth.SessionClaims); claims.UserID != "admin-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if logs.Len() != 0 {
		t.Fatalf("expected no log entries, got %d", logs.Len())
	}
}

func TestAdminRoutesRequireSession(t *testing.T) {
	h := newServerHarness(t)

	response := h.serve(httptest.NewRequest(http.MethodGet, "/admin/dashboard", http.NoBody))
	if response.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", response.Code)
	}

	request := httptest.NewRequest(http.MethodGet, "/admin/dashboard", http.NoBody)
	request.AddCookie(&http.Cookie{Name: testCookieName, Value: signAdminSession(t, "reader")})
	response = h.serve(request)
	if response.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without the admin role, got %d", response.Code)
	}

	response = h.serve(h.adminRequest(t, http.MethodGet, "/admin/dashboard", nil, ""))
	if response.Code != http.StatusOK {
		t.Fatalf("expected 200 with an admin session, got %d: %s", response.Code, response.Body.String())
	}
}
