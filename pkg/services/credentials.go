// Package services holds the membership, project and credential workflows.
package services

import (
	"fmt"
	"strconv"
	"time"

	"genalixir-backend/pkg/apperror"
	"genalixir-backend/pkg/models"
	"genalixir-backend/pkg/utils"

	"golang.org/x/crypto/bcrypt"
)

const (
	pinMin = 100000
	pinMax = 999999

	// no 0/O/1/I so ids survive being read aloud or retyped
	genIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	genIDSuffix   = 6
)

// CredentialIssuer 生成并校验 PIN、GEN ALIXIR ID 与令牌
type CredentialIssuer struct {
	tokens     *utils.JWTService
	bcryptCost int
}

func NewCredentialIssuer(tokens *utils.JWTService, bcryptCost int) *CredentialIssuer {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &CredentialIssuer{tokens: tokens, bcryptCost: bcryptCost}
}

// GeneratePIN 返回 [100000, 999999] 内均匀分布的6位数字
func (c *CredentialIssuer) GeneratePIN() (string, error) {
	n, err := utils.RandomIntInRange(pinMin, pinMax)
	if err != nil {
		return "", fmt.Errorf("failed to generate pin: %w", err)
	}
	return strconv.FormatInt(n, 10), nil
}

// ValidPIN 是否为6位数字
func ValidPIN(pin string) bool {
	if len(pin) != 6 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// HashPIN bcrypt 哈希；原始 PIN 之后不再保留
func (c *CredentialIssuer) HashPIN(pin string) (string, error) {
	if !ValidPIN(pin) {
		return "", apperror.Validation("pin must be 6 digits")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), c.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash pin: %w", err)
	}
	return string(hash), nil
}

// VerifyPIN 使用 bcrypt 自带的比较
func (c *CredentialIssuer) VerifyPIN(pin, hash string) bool {
	if !ValidPIN(pin) || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

// VerifyPassword 校验管理员密码
func (c *CredentialIssuer) VerifyPassword(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateGenAlixirID 生成 GA-<年份>-<6位字符>
func (c *CredentialIssuer) GenerateGenAlixirID(now time.Time) (string, error) {
	suffix, err := utils.RandomString(genIDAlphabet, genIDSuffix)
	if err != nil {
		return "", fmt.Errorf("failed to generate gen alixir id: %w", err)
	}
	return fmt.Sprintf("GA-%d-%s", now.Year(), suffix), nil
}

// IssueToken 为成员签发7天有效的令牌
func (c *CredentialIssuer) IssueToken(member *models.Member) (string, time.Time, error) {
	token, exp, err := c.tokens.GenerateMemberToken(member)
	if err != nil {
		return "", time.Time{}, apperror.Internal(err, "failed to issue token")
	}
	return token, time.Unix(exp, 0).UTC(), nil
}

// IssueAdminToken 为管理员签发令牌
func (c *CredentialIssuer) IssueAdminToken(email string) (string, time.Time, error) {
	token, exp, err := c.tokens.GenerateAdminToken(email)
	if err != nil {
		return "", time.Time{}, apperror.Internal(err, "failed to issue token")
	}
	return token, time.Unix(exp, 0).UTC(), nil
}

// VerifyToken 任何失败都视为未认证
func (c *CredentialIssuer) VerifyToken(token string) (*models.TokenClaims, error) {
	claims, err := c.tokens.ValidateToken(token)
	if err != nil {
		return nil, apperror.Unauthenticated("invalid or expired token")
	}
	return claims, nil
}
