package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/useraccounts/user-accounts/internal/api/handler"
	"github.com/useraccounts/user-accounts/internal/core/domain"
	"github.com/useraccounts/user-accounts/internal/core/service"
	"github.com/useraccounts/user-accounts/internal/infrastructure/db/memory"
	"github.com/useraccounts/user-accounts/internal/infrastructure/ratelimit"
	"github.com/useraccounts/user-accounts/internal/infrastructure/security"
	"github.com/useraccounts/user-accounts/internal/infrastructure/storage"
)

const testSecret = "router-test-secret"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	e      *echo.Echo
	tokens *security.JWTService
	clock  *fakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := memory.NewUserRepository()
	hasher := security.NewBcryptHasher(nil, bcrypt.MinCost)
	tokens := security.NewJWTService(testSecret, time.Hour)
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}

	media, err := storage.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("disk store: %v", err)
	}

	reg := prometheus.NewRegistry()
	e := NewRouter(Deps{
		Log:           zerolog.Nop(),
		AuthService:   service.NewAuthService(repo, hasher, tokens, zerolog.Nop()),
		UserService:   service.NewUserService(repo, hasher, zerolog.Nop()),
		Tokens:        tokens,
		Media:         media,
		GlobalLimiter: ratelimit.NewFixedWindow(1000, time.Minute).WithClock(clock.Now),
		LoginLimiter:  ratelimit.NewFixedWindow(3, time.Minute).WithClock(clock.Now),
		HealthChecks:  map[string]handler.PingFunc{"store": repo.Ping},
		Registerer:    reg,
		Gatherer:      reg,
	})
	return &testServer{e: e, tokens: tokens, clock: clock}
}

func (s *testServer) do(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	req.RemoteAddr = "192.0.2.10:40000"
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
	return m
}

func (s *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := s.do(http.MethodPost, "/auth/login", `{"email":"`+email+`","password":"`+password+`"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d %s", email, rec.Code, rec.Body.String())
	}
	token, _ := decode(t, rec)["accessToken"].(string)
	return token
}

func TestRouter_AnaScenario(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/auth/register", `{"name":"Ana","email":"ana@x.com","password":"secret1"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(strings.ToLower(rec.Body.String()), "password") {
		t.Fatalf("register response leaks password: %s", rec.Body.String())
	}
	user := decode(t, rec)
	if user["role"] != "USER" || user["email"] != "ana@x.com" {
		t.Fatalf("unexpected user: %+v", user)
	}

	rec = s.do(http.MethodPost, "/auth/login", `{"email":"ana@x.com","password":"secret1"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["message"] != "Login successful" {
		t.Fatalf("unexpected message: %v", body["message"])
	}
	token, _ := body["accessToken"].(string)
	identity, err := s.tokens.Verify(token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if identity.ID != int64(user["id"].(float64)) || identity.Role != domain.RoleUser {
		t.Fatalf("claims do not match user: %+v", identity)
	}

	rec = s.do(http.MethodPost, "/auth/login", `{"email":"ana@x.com","password":"wrong"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"message":"Invalid credentials"}` {
		t.Fatalf("unexpected body: %s", got)
	}

	rec = s.do(http.MethodGet, "/auth/me", "", token)
	if rec.Code != http.StatusOK || decode(t, rec)["name"] != "Ana" {
		t.Fatalf("me: expected Ana's profile, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_InvalidCredentialsAreUniform(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/auth/register", `{"name":"Bo","email":"bo@x.com","password":"secret1"}`, "")

	wrongPassword := s.do(http.MethodPost, "/auth/login", `{"email":"bo@x.com","password":"nope123"}`, "")
	unknownEmail := s.do(http.MethodPost, "/auth/login", `{"email":"nobody@x.com","password":"nope123"}`, "")

	if wrongPassword.Code != http.StatusUnauthorized || unknownEmail.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", wrongPassword.Code, unknownEmail.Code)
	}
	if wrongPassword.Body.String() != unknownEmail.Body.String() {
		t.Fatalf("bodies differ: %q vs %q", wrongPassword.Body.String(), unknownEmail.Body.String())
	}
}

func TestRouter_RoleGuard(t *testing.T) {
	s := newTestServer(t)

	s.do(http.MethodPost, "/auth/register", `{"name":"Usr","email":"usr@x.com","password":"secret1"}`, "")
	s.do(http.MethodPost, "/auth/register", `{"name":"Adm","email":"adm@x.com","password":"secret1","role":"ADMIN"}`, "")
	userToken := s.login(t, "usr@x.com", "secret1")
	adminToken := s.login(t, "adm@x.com", "secret1")

	rec := s.do(http.MethodGet, "/users", "", userToken)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("USER on admin route: expected 403, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"message":"Forbidden"}` {
		t.Fatalf("unexpected body: %s", got)
	}

	rec = s.do(http.MethodGet, "/users?limit=1&page=2", "", adminToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("ADMIN on admin route: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	page := decode(t, rec)
	if page["total"].(float64) != 2 || page["page"].(float64) != 2 || len(page["data"].([]any)) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}

	rec = s.do(http.MethodGet, "/users", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous on admin route: expected 401, got %d", rec.Code)
	}
}

func TestRouter_AdminCRUD(t *testing.T) {
	s := newTestServer(t)
	admin, _, _ := s.tokens.Issue(domain.Identity{ID: 1000, Role: domain.RoleAdmin})

	rec := s.do(http.MethodPost, "/users", `{"name":"Cy","email":"cy@x.com","password":"secret1"}`, admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	id := int(decode(t, rec)["id"].(float64))
	path := "/users/" + strconv.Itoa(id)

	// Admin-created accounts can log in, so the password was hashed.
	s.login(t, "cy@x.com", "secret1")

	rec = s.do(http.MethodPatch, path, `{"name":"Cyrus","isActive":false}`, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if body := decode(t, rec); body["name"] != "Cyrus" || body["isActive"] != false {
		t.Fatalf("unexpected update result: %+v", body)
	}

	rec = s.do(http.MethodPost, "/auth/login", `{"email":"cy@x.com","password":"secret1"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("inactive login: expected 401, got %d", rec.Code)
	}

	rec = s.do(http.MethodPatch, path, `{"unknown":1}`, admin)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d", rec.Code)
	}
	errs, _ := decode(t, rec)["errors"].([]any)
	if len(errs) != 1 {
		t.Fatalf("expected one field error, got %s", rec.Body.String())
	}

	if rec = s.do(http.MethodDelete, path, "", admin); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	if rec = s.do(http.MethodGet, path, "", admin); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: expected 404, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"message":"User not found"}` {
		t.Fatalf("unexpected body: %s", got)
	}
}

func TestRouter_DuplicateRegistration(t *testing.T) {
	s := newTestServer(t)
	body := `{"name":"Di","email":"di@x.com","password":"secret1"}`

	if rec := s.do(http.MethodPost, "/auth/register", body, ""); rec.Code != http.StatusCreated {
		t.Fatalf("first: expected 201, got %d", rec.Code)
	}
	rec := s.do(http.MethodPost, "/auth/register", body, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second: expected 409, got %d", rec.Code)
	}
}

func TestRouter_ValidationBody(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/auth/register", `{"name":"","email":"bad","password":"1"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["message"] != "validation failed" {
		t.Fatalf("unexpected message: %v", body["message"])
	}
	if errs, _ := body["errors"].([]any); len(errs) != 3 {
		t.Fatalf("expected 3 field errors, got %v", body["errors"])
	}
}

func TestRouter_PasswordOverBcryptLimit(t *testing.T) {
	s := newTestServer(t)

	// 40 characters pass the handler's character cap but encode to 80 bytes.
	body := `{"name":"Ed","email":"ed@x.com","password":"` + strings.Repeat("é", 40) + `"}`
	rec := s.do(http.MethodPost, "/auth/register", body, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body.String())
	}
	errs, _ := decode(t, rec)["errors"].([]any)
	if len(errs) != 1 || errs[0].(map[string]any)["field"] != "password" {
		t.Fatalf("expected a password field error, got %s", rec.Body.String())
	}
}

func TestRouter_MalformedLoginEmailIsInvalidCredentials(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/auth/login", `{"email":"not-an-email","password":"secret1"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"message":"Invalid credentials"}` {
		t.Fatalf("unexpected body: %s", got)
	}
}

func TestRouter_RolesAreCaseInsensitive(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/auth/register", `{"name":"Fay","email":"fay@x.com","password":"secret1","role":"admin"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	if role := decode(t, rec)["role"]; role != "ADMIN" {
		t.Fatalf("expected ADMIN, got %v", role)
	}

	rec = s.do(http.MethodPost, "/auth/register", `{"name":"Gus","email":"gus@x.com","password":"secret1","role":"root"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown role: expected 400, got %d", rec.Code)
	}
}

func TestRouter_ExpiredAndTamperedTokensLookTheSame(t *testing.T) {
	s := newTestServer(t)

	past := security.NewJWTService(testSecret, time.Hour).
		WithClock(func() time.Time { return time.Now().Add(-3 * time.Hour) })
	expired, _, err := past.Issue(domain.Identity{ID: 1, Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	valid, _, _ := s.tokens.Issue(domain.Identity{ID: 1, Role: domain.RoleAdmin})
	parts := strings.Split(valid, ".")
	payload := []byte(parts[1])
	if payload[0] == 'e' {
		payload[0] = 'f'
	} else {
		payload[0] = 'e'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	expiredRec := s.do(http.MethodGet, "/auth/me", "", expired)
	tamperedRec := s.do(http.MethodGet, "/auth/me", "", tampered)

	if expiredRec.Code != http.StatusUnauthorized || tamperedRec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", expiredRec.Code, tamperedRec.Code)
	}
	if expiredRec.Body.String() != tamperedRec.Body.String() {
		t.Fatalf("bodies differ: %q vs %q", expiredRec.Body.String(), tamperedRec.Body.String())
	}
	if got := strings.TrimSpace(expiredRec.Body.String()); got != `{"message":"Unauthorized"}` {
		t.Fatalf("unexpected body: %s", got)
	}
}

func TestRouter_LoginRateLimit(t *testing.T) {
	s := newTestServer(t)
	attempt := `{"email":"x@x.com","password":"whatever"}`

	for i := 1; i <= 3; i++ {
		if rec := s.do(http.MethodPost, "/auth/login", attempt, ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rec.Code)
		}
		s.clock.Advance(5 * time.Second)
	}

	rec := s.do(http.MethodPost, "/auth/login", attempt, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("4th attempt: expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "45" {
		t.Fatalf("expected Retry-After 45, got %q", got)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"message":"Too many requests"}` {
		t.Fatalf("unexpected body: %s", got)
	}

	// Registration is on the global budget and is unaffected.
	if rec := s.do(http.MethodPost, "/auth/register", `{"name":"E","email":"e@x.com","password":"secret1"}`, ""); rec.Code != http.StatusCreated {
		t.Fatalf("register during login lockout: expected 201, got %d", rec.Code)
	}

	s.clock.Advance(45 * time.Second)
	if rec := s.do(http.MethodPost, "/auth/login", attempt, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("after window: expected 401, got %d", rec.Code)
	}
}

func TestRouter_MediaUploadRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	user, _, _ := s.tokens.Issue(domain.Identity{ID: 5, Role: domain.RoleUser})

	if rec := s.do(http.MethodPost, "/users/media", "", user); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health", "/health/ready", "/metrics"} {
		if rec := s.do(http.MethodGet, path, "", ""); rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}

	rec := s.do(http.MethodGet, "/health", "", "")
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatalf("expected a request id header")
	}
	if rec.Header().Get(echo.HeaderXContentTypeOptions) != "nosniff" {
		t.Fatalf("expected security headers")
	}
}

func TestRouter_MetricsDisabledWithoutRegisterer(t *testing.T) {
	e := NewRouter(Deps{
		Log:          zerolog.Nop(),
		AuthService:  service.NewAuthService(memory.NewUserRepository(), security.NewBcryptHasher(nil, bcrypt.MinCost), security.NewJWTService("s", time.Hour), zerolog.Nop()),
		UserService:  service.NewUserService(memory.NewUserRepository(), security.NewBcryptHasher(nil, bcrypt.MinCost), zerolog.Nop()),
		Tokens:       security.NewJWTService("s", time.Hour),
		HealthChecks: map[string]handler.PingFunc{"noop": func(context.Context) error { return nil }},
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a registerer, got %d", rec.Code)
	}
}
