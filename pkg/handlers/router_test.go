package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"genalixir-backend/pkg/config"
	"genalixir-backend/pkg/database"
	"genalixir-backend/pkg/logging"
	"genalixir-backend/pkg/mailer"
	"genalixir-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	logging.SetOutput(io.Discard)
}

const (
	adminEmailAddr = "admin@ecodreum.com"
	adminPassword  = "s3cret-admin"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		Total int `json:"total"`
	} `json:"meta"`
}

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T, mode string) *testServer {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{
		Environment:      "test",
		JWTSecret:        "router-test-secret",
		TokenTTLHours:    168,
		BcryptCost:       bcrypt.MinCost,
		AdminAccounts:    []config.AdminAccount{{Email: adminEmailAddr, PasswordHash: string(hash)}},
		LoginPerMinute:   1000,
		RegistrationMode: mode,
		AllowedOrigins:   []string{"*"},
	}
	db, err := database.NewLocalDatabase("")
	require.NoError(t, err)
	return &testServer{t: t, handler: NewRouter(cfg, db, mailer.Noop{})}
}

func (s *testServer) do(method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func (s *testServer) adminToken() string {
	s.t.Helper()
	status, env := s.do(http.MethodPost, "/api/admin/login", "", map[string]string{
		"email": adminEmailAddr, "password": adminPassword,
	})
	require.Equal(s.t, http.StatusOK, status)
	return decode[struct {
		Token string `json:"token"`
	}](s.t, env.Data).Token
}

func adhesionBody(email string) map[string]interface{} {
	return map[string]interface{}{
		"first_name": "Jean",
		"last_name":  "Dupont",
		"email":      email,
		"country":    "France",
		"pole":       "Développement",
		"skills":     []string{"React"},
		"aura":       "leadership",
	}
}

// memberToken submits, validates and logs in a new member.
func (s *testServer) memberToken(admin, email string) (string, string) {
	s.t.Helper()
	status, env := s.do(http.MethodPost, "/api/adhesions", "", adhesionBody(email))
	require.Equal(s.t, http.StatusCreated, status)
	adhesion := decode[struct {
		Adhesion models.AdhesionRequest `json:"adhesion"`
	}](s.t, env.Data).Adhesion

	status, env = s.do(http.MethodPost, "/api/admin/adhesions/"+adhesion.ID+"/validate", admin, nil)
	require.Equal(s.t, http.StatusOK, status)
	validated := decode[struct {
		Pin    string `json:"pin"`
		Member struct {
			ID string `json:"id"`
		} `json:"member"`
	}](s.t, env.Data)

	status, env = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "pin": validated.Pin})
	require.Equal(s.t, http.StatusOK, status)
	return decode[struct {
		Token string `json:"token"`
	}](s.t, env.Data).Token, validated.Member.ID
}

func TestAdhesionToLoginFlow(t *testing.T) {
	s := newTestServer(t, config.RegistrationReview)
	admin := s.adminToken()

	status, env := s.do(http.MethodPost, "/api/adhesions", "", adhesionBody("jean@x.com"))
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, env.Success)

	status, env = s.do(http.MethodGet, "/api/admin/adhesions?status=pending", admin, nil)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, env.Meta.Total)
	pending := decode[[]models.AdhesionRequest](t, env.Data)
	require.Len(t, pending, 1)

	status, env = s.do(http.MethodPost, "/api/admin/adhesions/"+pending[0].ID+"/validate", admin, nil)
	require.Equal(t, http.StatusOK, status)
	result := decode[struct {
		Pin         string `json:"pin"`
		GenAlixirID string `json:"gen_alixir_id"`
	}](t, env.Data)
	assert.Regexp(t, `^\d{6}$`, result.Pin)
	assert.NotEmpty(t, result.GenAlixirID)

	status, env = s.do(http.MethodPost, "/api/admin/adhesions/"+pending[0].ID+"/reject", admin, map[string]string{"reason": "late"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_STATE", env.Error.Code)

	status, env = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "jean@x.com", "pin": result.Pin})
	require.Equal(t, http.StatusOK, status)
	token := decode[struct {
		Token string `json:"token"`
	}](t, env.Data).Token

	status, env = s.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	me := decode[struct {
		Profile models.Profile `json:"profile"`
	}](t, env.Data)
	assert.Equal(t, result.GenAlixirID, me.Profile.GenAlixirID)
	assert.NotContains(t, string(env.Data), "pin_hash")
}

func TestLoginFailureIsGeneric(t *testing.T) {
	s := newTestServer(t, config.RegistrationReview)

	status, env := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ghost@x.com", "pin": "123456"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
	assert.Equal(t, "incorrect email or PIN", env.Error.Message)
}

func TestRegisterDirectMode(t *testing.T) {
	s := newTestServer(t, config.RegistrationDirect)

	status, env := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "direct@x.com", "full_name": "Awa Diallo", "country": "Sénégal",
	})
	require.Equal(t, http.StatusCreated, status)
	result := decode[struct {
		Pin         string `json:"pin"`
		MemberID    string `json:"member_id"`
		GenAlixirID string `json:"gen_alixir_id"`
	}](t, env.Data)
	assert.Regexp(t, `^\d{6}$`, result.Pin)
	assert.NotEmpty(t, result.MemberID)
	assert.NotEmpty(t, result.GenAlixirID)
}

func TestProjectCapacityOverHTTP(t *testing.T) {
	s := newTestServer(t, config.RegistrationReview)
	admin := s.adminToken()
	ownerToken, _ := s.memberToken(admin, "a@x.com")
	bToken, _ := s.memberToken(admin, "b@x.com")
	cToken, _ := s.memberToken(admin, "c@x.com")

	status, env := s.do(http.MethodPost, "/api/projects", ownerToken, map[string]interface{}{
		"name": "Projet Alpha", "description": "Une plateforme pour la diaspora", "max_members": 2,
	})
	require.Equal(t, http.StatusCreated, status)
	project := decode[models.Project](t, env.Data)

	status, _ = s.do(http.MethodPost, "/api/projects/"+project.ID+"/join", bToken, nil)
	assert.Equal(t, http.StatusCreated, status)

	status, env = s.do(http.MethodPost, "/api/projects/"+project.ID+"/join", cToken, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CAPACITY_EXCEEDED", env.Error.Code)

	status, env = s.do(http.MethodPost, "/api/projects/"+project.ID+"/leave", ownerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = s.do(http.MethodGet, "/api/projects/"+project.ID+"/members", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, env.Meta.Total)

	status, _ = s.do(http.MethodDelete, "/api/projects/"+project.ID, bToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = s.do(http.MethodDelete, "/api/projects/"+project.ID, ownerToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(http.MethodGet, "/api/projects/"+project.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestModerationRoute(t *testing.T) {
	s := newTestServer(t, config.RegistrationReview)
	admin := s.adminToken()
	ownerToken, _ := s.memberToken(admin, "owner@x.com")
	modToken, modID := s.memberToken(admin, "mod@x.com")

	_, env := s.do(http.MethodPost, "/api/projects", ownerToken, map[string]interface{}{
		"name": "Projet Beta", "description": "Une description suffisante", "max_members": 5,
	})
	project := decode[models.Project](t, env.Data)

	patch := map[string]interface{}{"name": "Projet Beta modéré"}
	status, _ := s.do(http.MethodPut, "/api/moderation/projects/"+project.ID, modToken, patch)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(http.MethodPut, "/api/admin/members/"+modID+"/role", admin, map[string]string{"role": "MODERATOR"})
	require.Equal(t, http.StatusOK, status)

	status, env = s.do(http.MethodPut, "/api/moderation/projects/"+project.ID, modToken, patch)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Projet Beta modéré", decode[models.Project](t, env.Data).Name)
}

func TestAuthGuards(t *testing.T) {
	s := newTestServer(t, config.RegistrationReview)
	admin := s.adminToken()
	member, _ := s.memberToken(admin, "guard@x.com")

	status, env := s.do(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, _ = s.do(http.MethodGet, "/api/admin/stats", member, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(http.MethodGet, "/api/auth/me", admin, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = s.do(http.MethodGet, "/api/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, status)
	stats := decode[models.Stats](t, env.Data)
	assert.Equal(t, 1, stats.Members)
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t, config.RegistrationReview)

	body := adhesionBody("x@x.com")
	body["is_admin"] = true
	status, env := s.do(http.MethodPost, "/api/adhesions", "", body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	body = adhesionBody("x@x.com")
	body["skills"] = []string{"React", "React"}
	status, env = s.do(http.MethodPost, "/api/adhesions", "", body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	status, env = s.do(http.MethodGet, "/api/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestSendContract(t *testing.T) {
	s := newTestServer(t, config.RegistrationReview)
	admin := s.adminToken()

	status, _ := s.do(http.MethodPost, "/api/admin/contracts/send", admin, map[string]string{
		"email":      "jean@x.com",
		"full_name":  "Jean Dupont",
		"filename":   "contrat.pdf",
		"pdf_base64": base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 contrat")),
	})
	assert.Equal(t, http.StatusOK, status)

	status, env := s.do(http.MethodPost, "/api/admin/contracts/send", admin, map[string]string{
		"email":      "jean@x.com",
		"full_name":  "Jean Dupont",
		"filename":   "contrat.pdf",
		"pdf_base64": base64.StdEncoding.EncodeToString([]byte("<html>")),
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, config.RegistrationReview)

	status, env := s.do(http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"status":"ok"`)

	s.do(http.MethodGet, "/api/projects", "", nil)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), fmt.Sprintf(`route="%s"`, "/api/projects"))
}

func TestRejectAcceptsChunkedEmptyBody(t *testing.T) {
	s := newTestServer(t, config.RegistrationReview)
	admin := s.adminToken()

	status, env := s.do(http.MethodPost, "/api/adhesions", "", adhesionBody("chunked@x.com"))
	require.Equal(t, http.StatusCreated, status)
	adhesion := decode[struct {
		Adhesion models.AdhesionRequest `json:"adhesion"`
	}](t, env.Data).Adhesion

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/adhesions/"+adhesion.ID+"/reject", bytes.NewBufferString(body))
		req.ContentLength = -1
		req.TransferEncoding = []string{"chunked"}
		req.Header.Set("Authorization", "Bearer "+admin)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := send(`{"reason":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send("")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	rejected := decode[models.AdhesionRequest](t, got.Data)
	assert.Equal(t, models.AdhesionRejected, rejected.Status)
	assert.Nil(t, rejected.RejectionReason)
}
