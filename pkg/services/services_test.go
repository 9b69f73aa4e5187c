package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"genalixir-backend/pkg/config"
	"genalixir-backend/pkg/database"
	"genalixir-backend/pkg/logging"
	"genalixir-backend/pkg/models"
	"genalixir-backend/pkg/utils"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	logging.SetOutput(io.Discard)
}

type sentMail struct {
	kind string
	to   string
	pin  string
}

// recordingMailer captures outgoing emails; fail makes every send error.
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

func (m *recordingMailer) record(mail sentMail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	if m.fail {
		return fmt.Errorf("smtp unavailable")
	}
	return nil
}

func (m *recordingMailer) SendCredentials(ctx context.Context, to, fullName, genAlixirID, pin string) error {
	return m.record(sentMail{kind: "credentials", to: to, pin: pin})
}

func (m *recordingMailer) SendRejection(ctx context.Context, to, fullName string, reason *string) error {
	return m.record(sentMail{kind: "rejection", to: to})
}

func (m *recordingMailer) SendContract(ctx context.Context, to, fullName, filename string, pdf []byte) error {
	return m.record(sentMail{kind: "contract", to: to})
}

func (m *recordingMailer) all() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

type testEnv struct {
	db         database.DatabaseInterface
	mail       *recordingMailer
	creds      *CredentialIssuer
	membership *MembershipService
	auth       *AuthService
	profiles   *ProfileService
	projects   *ProjectService
	admin      *AdminService
}

const testAdminEmail = "admin@ecodreum.com"
const testAdminPassword = "correct horse battery"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.NewLocalDatabase("")
	require.NoError(t, err)
	return newTestEnvWithDB(t, db, config.RegistrationReview)
}

func newTestEnvWithDB(t *testing.T, db database.DatabaseInterface, mode string) *testEnv {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	mail := &recordingMailer{}
	creds := NewCredentialIssuer(utils.NewJWTService("test-secret", 0), bcrypt.MinCost)
	return &testEnv{
		db:         db,
		mail:       mail,
		creds:      creds,
		membership: NewMembershipService(db, creds, mail, mode),
		auth:       NewAuthService(db, creds, []config.AdminAccount{{Email: testAdminEmail, PasswordHash: string(hash)}}),
		profiles:   NewProfileService(db),
		projects:   NewProjectService(db),
		admin:      NewAdminService(db, mail),
	}
}

func adhesionForm(email string) models.AdhesionSubmitRequest {
	return models.AdhesionSubmitRequest{
		FirstName: "Jean",
		LastName:  "Dupont",
		Email:     email,
		Country:   "France",
		Pole:      "Développement",
		Skills:    []string{"React"},
		Aura:      "leadership",
	}
}

// newMember runs the full submit/validate flow and returns the member with its PIN.
func (e *testEnv) newMember(t *testing.T, email string) (*models.Member, string) {
	t.Helper()
	ctx := context.Background()
	req, err := e.membership.Submit(ctx, adhesionForm(email))
	require.NoError(t, err)
	result, err := e.membership.Validate(ctx, req.ID, testAdminEmail)
	require.NoError(t, err)
	return result.Member, result.Pin
}

func (e *testEnv) newProject(t *testing.T, ownerID string, maxMembers int) *models.Project {
	t.Helper()
	project, err := e.projects.Create(context.Background(), ownerID, models.ProjectCreateRequest{
		Name:        "Plateforme GEN",
		Description: "Incubation d'une plateforme communautaire",
		MaxMembers:  maxMembers,
	})
	require.NoError(t, err)
	return project
}
