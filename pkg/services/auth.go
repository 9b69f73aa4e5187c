package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"genalixir-backend/pkg/apperror"
	"genalixir-backend/pkg/config"
	"genalixir-backend/pkg/database"
	"genalixir-backend/pkg/logging"
	"genalixir-backend/pkg/metrics"
	"genalixir-backend/pkg/models"
	"genalixir-backend/pkg/utils"
)

// login failures never reveal whether the email exists
const invalidCredentials = "incorrect email or PIN"

// LoginResult 登录成功返回的令牌
type LoginResult struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Member    *models.Member `json:"member,omitempty"`
}

// AuthService 成员与管理员登录
type AuthService struct {
	db     database.DatabaseInterface
	creds  *CredentialIssuer
	admins []config.AdminAccount
	// dummyHash keeps the unknown-email path as slow as a real comparison
	dummyHash string
}

func NewAuthService(db database.DatabaseInterface, creds *CredentialIssuer, admins []config.AdminAccount) *AuthService {
	dummy, err := creds.HashPIN("000000")
	if err != nil {
		logging.WithComponent("auth").WithError(err).Warn("⚠️  Failed to prepare dummy hash")
	}
	return &AuthService{db: db, creds: creds, admins: admins, dummyHash: dummy}
}

// Login 成员使用邮箱与 PIN 登录
func (s *AuthService) Login(ctx context.Context, req models.MemberLoginRequest) (result *LoginResult, err error) {
	defer func() { metrics.RecordLogin(models.TokenTypeMember, err) }()

	req.Email = normalizeEmail(req.Email)
	req.Pin = strings.TrimSpace(req.Pin)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	member, err := s.db.GetMemberByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			return nil, storeError(err, "member")
		}
		s.creds.VerifyPIN(req.Pin, s.dummyHash)
		return nil, apperror.Unauthenticated(invalidCredentials)
	}
	if !s.creds.VerifyPIN(req.Pin, member.PinHash) {
		logging.FromContext(ctx).WithField("member_id", member.ID).Warn("🔐 Member login failed")
		return nil, apperror.Unauthenticated(invalidCredentials)
	}

	token, expiresAt, err := s.creds.IssueToken(member)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).WithField("member_id", member.ID).Info("🔓 Member logged in")
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Member: member}, nil
}

// AdminLogin 管理员登录，密码与配置中的 bcrypt 哈希比对
func (s *AuthService) AdminLogin(ctx context.Context, req models.AdminLoginRequest) (result *LoginResult, err error) {
	defer func() { metrics.RecordLogin(models.TokenTypeAdmin, err) }()

	req.Email = normalizeEmail(req.Email)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	hash := s.dummyHash
	found := false
	for _, account := range s.admins {
		if account.Email == req.Email {
			hash = account.PasswordHash
			found = true
			break
		}
	}
	if !s.creds.VerifyPassword(req.Password, hash) || !found {
		logging.FromContext(ctx).Warn("🔐 Admin login failed")
		return nil, apperror.Unauthenticated("incorrect email or password")
	}

	token, expiresAt, err := s.creds.IssueAdminToken(req.Email)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).WithField("admin", req.Email).Info("🔓 Admin logged in")
	return &LoginResult{Token: token, ExpiresAt: expiresAt}, nil
}

// Me 返回令牌对应的成员
func (s *AuthService) Me(ctx context.Context, memberID string) (*models.Member, error) {
	member, err := s.db.GetMemberByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperror.Unauthenticated("member no longer exists")
		}
		return nil, storeError(err, "member")
	}
	return member, nil
}
