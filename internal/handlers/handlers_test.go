package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/devsys-hq/apiserver/internal/authz"
	"github.com/devsys-hq/apiserver/internal/mailer"
	"github.com/devsys-hq/apiserver/internal/services"
	"github.com/devsys-hq/apiserver/internal/store/storetest"
	"github.com/devsys-hq/apiserver/types"
)

// recordingBackend captures outbound email instead of delivering it.
type recordingBackend struct {
	messages []mailer.Message
}

func (b *recordingBackend) Send(_ context.Context, msg mailer.Message) error {
	b.messages = append(b.messages, msg)
	return nil
}

// fakeMigrationRunner serves a canned pending list.
type fakeMigrationRunner struct {
	pending []types.Migration
}

func (f *fakeMigrationRunner) ListPending(context.Context) ([]types.Migration, error) {
	return f.pending, nil
}

func (f *fakeMigrationRunner) RunPending(context.Context) ([]types.Migration, error) {
	applied := f.pending
	f.pending = []types.Migration{}
	return applied, nil
}

// fakeStatusRepository serves fixed database health figures.
type fakeStatusRepository struct{}

func (fakeStatusRepository) DatabaseVersion(context.Context) (string, error) { return "16.3", nil }
func (fakeStatusRepository) MaxConnections(context.Context) (int, error)     { return 100, nil }
func (fakeStatusRepository) OpenedConnections(context.Context) (int, error)  { return 1, nil }

type testApp struct {
	router *chi.Mux

	users       *services.UserService
	sessions    *services.SessionService
	activations *services.ActivationService

	sessionRepo *storetest.MemSessionRepository
	tokenRepo   *storetest.MemActivationTokenRepository
	backend     *recordingBackend
	migrations  *fakeMigrationRunner
}

func newTestApp() *testApp {
	userRepo := storetest.NewMemUserRepository()
	sessionRepo := storetest.NewMemSessionRepository()
	tokenRepo := storetest.NewMemActivationTokenRepository()
	backend := &recordingBackend{}

	userService := services.NewUserServiceWithCost(userRepo, bcrypt.MinCost)
	sessionService := services.NewSessionService(sessionRepo)
	activationService := services.NewActivationService(tokenRepo, userService, mailer.New(backend), "https://devsys.example")
	authenticationService := services.NewAuthenticationService(userService)
	statusService := services.NewStatusService(fakeStatusRepository{})
	migrations := &fakeMigrationRunner{pending: []types.Migration{
		{Path: "internal/db/migrations/20240115093000_create_users.up.sql", Name: "create_users", Timestamp: time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)},
	}}

	resp := Responder{
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Cookies: Cookies{MaxAge: int(services.SessionTTL.Seconds())},
	}
	identity := InjectAnonymousOrUser(sessionService, userService, resp)

	router := chi.NewRouter()
	router.MethodNotAllowed(resp.MethodNotAllowed)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(identity)
		r.Route("/users", func(r chi.Router) {
			UserRouter(r, userService, activationService, resp)
		})
		r.Route("/sessions", func(r chi.Router) {
			SessionRouter(r, sessionService, authenticationService, resp)
		})
		r.Route("/activations", func(r chi.Router) {
			ActivationRouter(r, activationService, resp)
		})
		r.Route("/migrations", func(r chi.Router) {
			MigrationRouter(r, migrations, resp)
		})
		r.Route("/status", func(r chi.Router) {
			StatusRouter(r, statusService, resp)
		})
	})

	return &testApp{
		router:      router,
		users:       userService,
		sessions:    sessionService,
		activations: activationService,
		sessionRepo: sessionRepo,
		tokenRepo:   tokenRepo,
		backend:     backend,
		migrations:  migrations,
	}
}

func (app *testApp) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	return nil
}

// register creates an account through the API and returns the response body.
func (app *testApp) register(t *testing.T, username, email, password string) map[string]any {
	t.Helper()
	rec := app.do(t, http.MethodPost, "/api/v1/users", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody(t, rec)
}

// activate consumes the latest activation token of the named user.
func (app *testApp) activate(t *testing.T, username string) {
	t.Helper()
	ctx := context.Background()
	user, err := app.users.FindOneByUsername(ctx, username)
	require.NoError(t, err)
	token, err := app.activations.FindOneByUserID(ctx, user.ID)
	require.NoError(t, err)

	rec := app.do(t, http.MethodPatch, "/api/v1/activations/"+token.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// login authenticates and returns the issued session cookie.
func (app *testApp) login(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	rec := app.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	return cookie
}

func TestRegistrationFlow(t *testing.T) {
	app := newTestApp()

	body := app.register(t, "RegistrationFlow", "registration.flow@dev.com", "registration-flow")

	assert.Equal(t, "RegistrationFlow", body["username"])
	assert.Equal(t, []any{"read:activation_token"}, body["features"])

	// The registration response is redacted: no email, no password.
	assert.NotContains(t, body, "email")
	assert.NotContains(t, body, "password")

	// The activation email reaches the new user and embeds the token id.
	require.Len(t, app.backend.messages, 1)
	msg := app.backend.messages[0]
	assert.Equal(t, "registration.flow@dev.com", msg.To)
	assert.Contains(t, msg.Body, "RegistrationFlow")

	ctx := context.Background()
	user, err := app.users.FindOneByUsername(ctx, "RegistrationFlow")
	require.NoError(t, err)
	token, err := app.activations.FindOneByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Contains(t, msg.Body, token.ID.String())

	// Login before activation is forbidden.
	rec := app.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{
		"email":    "registration.flow@dev.com",
		"password": "registration-flow",
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Activate, then login succeeds and sets the session cookie.
	app.activate(t, "RegistrationFlow")
	cookie := app.login(t, "registration.flow@dev.com", "registration-flow")
	assert.Equal(t, "/", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, int(services.SessionTTL.Seconds()), cookie.MaxAge)

	// The authenticated user reading their own profile sees the email.
	rec = app.do(t, http.MethodGet, "/api/v1/users/RegistrationFlow", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeBody(t, rec)
	assert.Equal(t, "registration.flow@dev.com", profile["email"])
	assert.NotContains(t, profile, "password")
}

func TestCreateUserValidation(t *testing.T) {
	app := newTestApp()
	app.register(t, "alice", "a@x.com", "p")

	t.Run("duplicate email differing only in case", func(t *testing.T) {
		rec := app.do(t, http.MethodPost, "/api/v1/users", map[string]string{
			"username": "other",
			"email":    "A@X.COM",
			"password": "p",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "ValidationError", decodeBody(t, rec)["name"])
	})

	t.Run("duplicate username differing only in case", func(t *testing.T) {
		rec := app.do(t, http.MethodPost, "/api/v1/users", map[string]string{
			"username": "ALICE",
			"email":    "new@x.com",
			"password": "p",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "ValidationError", decodeBody(t, rec)["name"])
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := app.do(t, http.MethodPost, "/api/v1/users", map[string]string{
			"username": "incomplete",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		app.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetUser(t *testing.T) {
	app := newTestApp()
	app.register(t, "alice", "a@x.com", "p")

	t.Run("anonymous sees the public view", func(t *testing.T) {
		rec := app.do(t, http.MethodGet, "/api/v1/users/ALICE", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "alice", body["username"])
		assert.NotContains(t, body, "email")
		assert.NotContains(t, body, "password")
	})

	t.Run("unknown username", func(t *testing.T) {
		rec := app.do(t, http.MethodGet, "/api/v1/users/nobody", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NotFoundError", decodeBody(t, rec)["name"])
	})
}

func TestUpdateUser(t *testing.T) {
	app := newTestApp()
	app.register(t, "alice", "a@x.com", "p")
	app.register(t, "bob", "b@x.com", "p")
	app.activate(t, "alice")
	app.activate(t, "bob")

	aliceCookie := app.login(t, "a@x.com", "p")

	t.Run("anonymous caller lacks update:user", func(t *testing.T) {
		rec := app.do(t, http.MethodPatch, "/api/v1/users/alice", map[string]string{"username": "hacked"}, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("self update allowed", func(t *testing.T) {
		rec := app.do(t, http.MethodPatch, "/api/v1/users/alice", map[string]string{"username": "alice2"}, aliceCookie)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.Equal(t, "alice2", body["username"])
		// Self view includes the email.
		assert.Equal(t, "a@x.com", body["email"])
	})

	t.Run("updating another user requires update:user:others", func(t *testing.T) {
		rec := app.do(t, http.MethodPatch, "/api/v1/users/bob", map[string]string{"username": "rename"}, aliceCookie)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "ForbiddenError", decodeBody(t, rec)["name"])
	})

	t.Run("update:user:others unlocks editing others", func(t *testing.T) {
		ctx := context.Background()
		alice, err := app.users.FindOneByUsername(ctx, "alice2")
		require.NoError(t, err)
		_, err = app.users.AddFeatures(ctx, alice.ID, []string{authz.FeatureUpdateUserOthers})
		require.NoError(t, err)

		rec := app.do(t, http.MethodPatch, "/api/v1/users/bob", map[string]string{"username": "bobby"}, aliceCookie)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.Equal(t, "bobby", body["username"])
		// Not alice's own record, so the public view applies.
		assert.NotContains(t, body, "email")
	})
}

func TestActivationEndpoint(t *testing.T) {
	app := newTestApp()

	t.Run("nonexistent token", func(t *testing.T) {
		rec := app.do(t, http.MethodPatch, "/api/v1/activations/"+uuid.NewString(), nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "NotFoundError", body["name"])
		assert.Contains(t, body["message"], "not found in the system or has expired")
	})

	t.Run("malformed token id looks nonexistent", func(t *testing.T) {
		rec := app.do(t, http.MethodPatch, "/api/v1/activations/not-a-uuid", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("valid token activates exactly once", func(t *testing.T) {
		app.register(t, "carol", "c@x.com", "p")
		ctx := context.Background()
		carol, err := app.users.FindOneByUsername(ctx, "carol")
		require.NoError(t, err)
		token, err := app.activations.FindOneByUserID(ctx, carol.ID)
		require.NoError(t, err)

		rec := app.do(t, http.MethodPatch, "/api/v1/activations/"+token.ID.String(), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, token.ID.String(), body["id"])
		assert.NotNil(t, body["used_at"])

		activated, err := app.users.FindOneByUsername(ctx, "carol")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"create:session", "read:session", "update:user"}, activated.Features)

		// The second consumption attempt hits the terminal state.
		rec = app.do(t, http.MethodPatch, "/api/v1/activations/"+token.ID.String(), nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		app.register(t, "dave", "d@x.com", "p")
		ctx := context.Background()
		dave, err := app.users.FindOneByUsername(ctx, "dave")
		require.NoError(t, err)
		token, err := app.activations.FindOneByUserID(ctx, dave.ID)
		require.NoError(t, err)
		app.tokenRepo.ExpireToken(token.ID)

		rec := app.do(t, http.MethodPatch, "/api/v1/activations/"+token.ID.String(), nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSessionLifecycle(t *testing.T) {
	app := newTestApp()
	app.register(t, "alice", "a@x.com", "p")
	app.activate(t, "alice")

	t.Run("wrong credentials", func(t *testing.T) {
		rec := app.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{
			"email":    "a@x.com",
			"password": "wrong",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "UnauthorizedError", decodeBody(t, rec)["name"])
	})

	t.Run("login, use, logout", func(t *testing.T) {
		cookie := app.login(t, "a@x.com", "p")

		rec := app.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{
			"email":    "a@x.com",
			"password": "p",
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		loginBody := decodeBody(t, rec)
		assert.NotEmpty(t, loginBody["token"])
		assert.NotEmpty(t, loginBody["expires_at"])

		// Logout expires the session and clears the cookie.
		rec = app.do(t, http.MethodDelete, "/api/v1/sessions", nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		cleared := sessionCookie(rec)
		require.NotNil(t, cleared)
		assert.Equal(t, "invalid", cleared.Value)
		assert.Less(t, cleared.MaxAge, 0)

		// The expired token no longer authenticates and the stale cookie
		// is cleared again on the failure path.
		rec = app.do(t, http.MethodDelete, "/api/v1/sessions", nil, cookie)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		require.NotNil(t, sessionCookie(rec))
	})

	t.Run("stale cookie on any route is unauthorized and cleared", func(t *testing.T) {
		stale := &http.Cookie{Name: sessionCookieName, Value: "nonexistent-token"}
		rec := app.do(t, http.MethodGet, "/api/v1/users/alice", nil, stale)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		cleared := sessionCookie(rec)
		require.NotNil(t, cleared)
		assert.Less(t, cleared.MaxAge, 0)
	})

	t.Run("logout without a cookie", func(t *testing.T) {
		rec := app.do(t, http.MethodDelete, "/api/v1/sessions", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestMigrationEndpoints(t *testing.T) {
	app := newTestApp()
	app.register(t, "alice", "a@x.com", "p")
	app.activate(t, "alice")
	cookie := app.login(t, "a@x.com", "p")

	t.Run("anonymous is forbidden", func(t *testing.T) {
		rec := app.do(t, http.MethodGet, "/api/v1/migrations", nil, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "ForbiddenError", body["name"])
		assert.Contains(t, body["action"], "read:migration")
	})

	t.Run("default user is forbidden", func(t *testing.T) {
		rec := app.do(t, http.MethodPost, "/api/v1/migrations", nil, cookie)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, decodeBody(t, rec)["action"], "create:migration")
	})

	t.Run("privileged user lists and runs", func(t *testing.T) {
		ctx := context.Background()
		alice, err := app.users.FindOneByUsername(ctx, "alice")
		require.NoError(t, err)
		_, err = app.users.AddFeatures(ctx, alice.ID, []string{
			authz.FeatureReadMigration,
			authz.FeatureCreateMigration,
		})
		require.NoError(t, err)

		rec := app.do(t, http.MethodGet, "/api/v1/migrations", nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		var pending []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
		require.Len(t, pending, 1)
		assert.Equal(t, "create_users", pending[0]["name"])

		// First run applies the pending migration.
		rec = app.do(t, http.MethodPost, "/api/v1/migrations", nil, cookie)
		assert.Equal(t, http.StatusCreated, rec.Code)

		// Second run finds nothing to do.
		rec = app.do(t, http.MethodPost, "/api/v1/migrations", nil, cookie)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})
}

func TestStatusEndpoint(t *testing.T) {
	app := newTestApp()

	rec := app.do(t, http.MethodGet, "/api/v1/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["updated_at"])
	deps := body["dependencies"].(map[string]any)
	database := deps["database"].(map[string]any)
	assert.Equal(t, "16.3", database["version"])
	assert.Equal(t, float64(100), database["max_connections"])
	assert.Equal(t, float64(1), database["opened_connections"])
}

func TestMethodNotAllowed(t *testing.T) {
	app := newTestApp()

	rec := app.do(t, http.MethodPut, "/api/v1/users", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "MethodNotAllowedError", decodeBody(t, rec)["name"])
}
