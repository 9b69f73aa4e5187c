package services

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"genalixir-backend/pkg/apperror"
	"genalixir-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPINRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 20; i++ {
		pin, err := env.creds.GeneratePIN()
		require.NoError(t, err)
		require.True(t, ValidPIN(pin), pin)
		assert.NotEqual(t, byte('0'), pin[0])

		hash, err := env.creds.HashPIN(pin)
		require.NoError(t, err)
		assert.True(t, env.creds.VerifyPIN(pin, hash))

		other := "999999"
		if pin == other {
			other = "100000"
		}
		assert.False(t, env.creds.VerifyPIN(other, hash))
	}

	_, err := env.creds.HashPIN("12ab56")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.False(t, env.creds.VerifyPIN("12345", "whatever"))
}

func TestGenAlixirIDFormat(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	id, err := env.creds.GenerateGenAlixirID(now)
	require.NoError(t, err)
	assert.Regexp(t, `^GA-2025-[A-HJ-NP-Z2-9]{6}$`, id)
}

func TestMemberLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	member, pin := env.newMember(t, "login@x.com")

	result, err := env.auth.Login(ctx, models.MemberLoginRequest{Email: " LOGIN@x.com", Pin: pin})
	require.NoError(t, err)
	assert.Equal(t, member.ID, result.Member.ID)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), result.ExpiresAt, time.Minute)

	claims, err := env.creds.VerifyToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, member.ID, claims.MemberID)
	assert.Equal(t, models.TokenTypeMember, claims.Type)

	me, err := env.auth.Me(ctx, claims.MemberID)
	require.NoError(t, err)
	assert.Equal(t, "login@x.com", me.Email)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, pin := env.newMember(t, "login@x.com")

	wrong := "111111"
	if pin == wrong {
		wrong = "222222"
	}
	_, wrongPinErr := env.auth.Login(ctx, models.MemberLoginRequest{Email: "login@x.com", Pin: wrong})
	_, unknownErr := env.auth.Login(ctx, models.MemberLoginRequest{Email: "nobody@x.com", Pin: pin})

	require.ErrorIs(t, wrongPinErr, apperror.ErrUnauthenticated)
	require.ErrorIs(t, unknownErr, apperror.ErrUnauthenticated)
	assert.Equal(t, wrongPinErr.Error(), unknownErr.Error())

	_, err := env.auth.Login(ctx, models.MemberLoginRequest{Email: "login@x.com", Pin: "12"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestAdminLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.auth.AdminLogin(ctx, models.AdminLoginRequest{Email: testAdminEmail, Password: testAdminPassword})
	require.NoError(t, err)
	claims, err := env.creds.VerifyToken(result.Token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, testAdminEmail, claims.Email)

	_, err = env.auth.AdminLogin(ctx, models.AdminLoginRequest{Email: testAdminEmail, Password: "wrong"})
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
	_, err = env.auth.AdminLogin(ctx, models.AdminLoginRequest{Email: "intruder@x.com", Password: testAdminPassword})
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.creds.VerifyToken("not.a.token")
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestUpdateProfileKeepsVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	member, _ := env.newMember(t, "profile@x.com")
	lead, _ := env.newMember(t, "lead@x.com")
	_, err := env.profiles.SetRole(ctx, lead.ID, models.RoleProjectLead)
	require.NoError(t, err)

	_, err = env.profiles.VerifyAura(ctx, lead.ID, member.ID, "leadership")
	require.NoError(t, err)

	updated, err := env.profiles.UpdateProfile(ctx, member.ID, models.ProfileUpdateRequest{
		Auras:    &[]string{"leadership", "rigueur"},
		Skills:   &[]string{"Go", "DevOps"},
		FullName: strPtr("Jean-Pierre Dupont"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.AuraTraits{
		{Name: "leadership", Verified: true, VerifiedBy: lead.ID},
		{Name: "rigueur"},
	}, updated.Auras)
	assert.Equal(t, []string{"Go", "DevOps"}, []string(updated.Skills))
	assert.Equal(t, "Jean-Pierre Dupont", updated.FullName)

	_, err = env.profiles.UpdateProfile(ctx, member.ID, models.ProfileUpdateRequest{
		Skills: &[]string{"Go", "DevOps", "React", "Finance"},
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = env.profiles.UpdateProfile(ctx, member.ID, models.ProfileUpdateRequest{
		Auras: &[]string{"rigueur", "rigueur"},
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestVerifyAuraRequiresHigherRank(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	member, _ := env.newMember(t, "member@x.com")
	peer, _ := env.newMember(t, "peer@x.com")

	_, err := env.profiles.VerifyAura(ctx, peer.ID, member.ID, "leadership")
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = env.profiles.SetRole(ctx, peer.ID, models.RoleModerator)
	require.NoError(t, err)
	_, err = env.profiles.SetRole(ctx, member.ID, models.RoleModerator)
	require.NoError(t, err)
	_, err = env.profiles.VerifyAura(ctx, peer.ID, member.ID, "leadership")
	assert.ErrorIs(t, err, apperror.ErrForbidden, "equal rank")

	_, err = env.profiles.SetRole(ctx, peer.ID, models.RoleFounder)
	require.NoError(t, err)
	_, err = env.profiles.VerifyAura(ctx, peer.ID, member.ID, "sagesse")
	assert.ErrorIs(t, err, apperror.ErrValidation, "aura not on profile")

	verified, err := env.profiles.VerifyAura(ctx, peer.ID, member.ID, "leadership")
	require.NoError(t, err)
	assert.True(t, verified.Auras[0].Verified)
}

func TestSetRoleExactMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	member, _ := env.newMember(t, "role@x.com")

	for _, role := range []models.Role{"founder", "CHEF", "FOUNDER ", "SUPER_FOUNDER"} {
		_, err := env.profiles.SetRole(ctx, member.ID, role)
		assert.ErrorIs(t, err, apperror.ErrValidation, string(role))
	}

	_, err := env.profiles.SetRole(ctx, "missing", models.RoleFounder)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSendContract(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF-1.7 contrat"))

	require.NoError(t, env.admin.SendContract(ctx, models.ContractSendRequest{
		Email: "jean@x.com", FullName: "Jean Dupont", Filename: "contrat", PDFBase64: pdf,
	}))
	assert.Equal(t, sentMail{kind: "contract", to: "jean@x.com"}, env.mail.all()[0])

	notPDF := base64.StdEncoding.EncodeToString([]byte("hello"))
	err := env.admin.SendContract(ctx, models.ContractSendRequest{
		Email: "jean@x.com", FullName: "Jean Dupont", Filename: "contrat.pdf", PDFBase64: notPDF,
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	huge := base64.StdEncoding.EncodeToString([]byte("%PDF-" + strings.Repeat("x", MaxContractSize)))
	err = env.admin.SendContract(ctx, models.ContractSendRequest{
		Email: "jean@x.com", FullName: "Jean Dupont", Filename: "contrat.pdf", PDFBase64: huge,
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	env.mail.fail = true
	err = env.admin.SendContract(ctx, models.ContractSendRequest{
		Email: "jean@x.com", FullName: "Jean Dupont", Filename: "contrat.pdf", PDFBase64: pdf,
	})
	assert.ErrorIs(t, err, apperror.ErrInternal)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, _ := env.newMember(t, "owner@x.com")
	_, err := env.membership.Submit(ctx, adhesionForm("pending@x.com"))
	require.NoError(t, err)
	env.newProject(t, owner.ID, 3)

	stats, err := env.admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Members)
	assert.Equal(t, 1, stats.Adhesions[models.AdhesionPending])
	assert.Equal(t, 1, stats.Adhesions[models.AdhesionValidated])
	assert.Equal(t, 1, stats.Projects[models.ProjectPlanning])
}
