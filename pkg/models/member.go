package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
)

// Member represents a validated GEN ALIXIR member
type Member struct {
	ID          string         `json:"id" db:"id"`
	GenAlixirID string         `json:"gen_alixir_id" db:"gen_alixir_id"`
	Email       string         `json:"email" db:"email"`
	PinHash     string         `json:"-" db:"pin_hash"` // Never return PIN hash in JSON
	FullName    string         `json:"full_name" db:"full_name"`
	Country     string         `json:"country" db:"country"`
	Pole        string         `json:"pole,omitempty" db:"pole"`
	PCO         int            `json:"pco" db:"pco"`
	Skills      pq.StringArray `json:"skills" db:"skills"`
	Auras       AuraTraits     `json:"auras" db:"auras"`
	Role        Role           `json:"role" db:"role"`
	AdhesionID  *string        `json:"adhesion_id,omitempty" db:"adhesion_id"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// AuraTrait 成员的Aura，可由更高等级成员认证
type AuraTrait struct {
	Name       string `json:"name"`
	Verified   bool   `json:"verified"`
	VerifiedBy string `json:"verified_by,omitempty"`
}

// AuraTraits is stored as a JSON column.
type AuraTraits []AuraTrait

func (a AuraTraits) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	return string(b), err
}

func (a *AuraTraits) Scan(value interface{}) error {
	if value == nil {
		*a = AuraTraits{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported aura column type %T", value)
	}
	return json.Unmarshal(bytes, a)
}

// Names 返回Aura名称列表
func (a AuraTraits) Names() []string {
	names := make([]string, 0, len(a))
	for _, t := range a {
		names = append(names, t.Name)
	}
	return names
}

// Profile is the public-facing part of a member
type Profile struct {
	GenAlixirID string     `json:"gen_alixir_id"`
	FullName    string     `json:"full_name"`
	Country     string     `json:"country"`
	Pole        string     `json:"pole,omitempty"`
	PCO         int        `json:"pco"`
	Skills      []string   `json:"skills"`
	Auras       AuraTraits `json:"auras"`
	Role        Role       `json:"role"`
}

// Profile 提取成员档案
func (m *Member) Profile() Profile {
	skills := []string(m.Skills)
	if skills == nil {
		skills = []string{}
	}
	auras := m.Auras
	if auras == nil {
		auras = AuraTraits{}
	}
	return Profile{
		GenAlixirID: m.GenAlixirID,
		FullName:    m.FullName,
		Country:     m.Country,
		Pole:        m.Pole,
		PCO:         m.PCO,
		Skills:      skills,
		Auras:       auras,
		Role:        m.Role,
	}
}

// MemberLoginRequest represents the request payload for member login
type MemberLoginRequest struct {
	Email string `json:"email" validate:"required,email"`
	Pin   string `json:"pin" validate:"required,len=6,numeric"`
}

// AdminLoginRequest represents the request payload for admin login
type AdminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents the request payload for registration
type RegisterRequest struct {
	Email      string   `json:"email" validate:"required,email,max=254"`
	FullName   string   `json:"full_name" validate:"required,max=120"`
	Country    string   `json:"country" validate:"required,country"`
	FirstName  string   `json:"first_name,omitempty" validate:"max=60"`
	LastName   string   `json:"last_name,omitempty" validate:"max=60"`
	Pole       string   `json:"pole,omitempty" validate:"omitempty,pole"`
	Skills     []string `json:"skills,omitempty" validate:"omitempty,unique,dive,skill"`
	Aura       string   `json:"aura,omitempty" validate:"omitempty,aura"`
	Motivation string   `json:"motivation,omitempty" validate:"max=2000"`
}

// ProfileUpdateRequest represents PUT /api/profile
type ProfileUpdateRequest struct {
	Skills   *[]string `json:"skills,omitempty" validate:"omitempty,max=3,unique,dive,skill"`
	Auras    *[]string `json:"auras,omitempty" validate:"omitempty,max=3,unique,dive,aura"`
	FullName *string   `json:"full_name,omitempty" validate:"omitempty,min=1,max=120"`
	Country  *string   `json:"country,omitempty" validate:"omitempty,country"`
}

// VerifyAuraRequest represents POST /api/members/{id}/auras/verify
type VerifyAuraRequest struct {
	Aura string `json:"aura" validate:"required,aura"`
}

// SetRoleRequest represents PUT /api/admin/members/{id}/role
type SetRoleRequest struct {
	Role Role `json:"role" validate:"required,role"`
}

// Token types
const (
	TokenTypeMember = "member"
	TokenTypeAdmin  = "admin"
)

// TokenClaims represents the JWT token claims
type TokenClaims struct {
	MemberID string `json:"member_id,omitempty"`
	Email    string `json:"email"`
	Role     Role   `json:"role,omitempty"`
	Type     string `json:"type"` // "member" or "admin"
	Exp      int64  `json:"exp"`
	Iat      int64  `json:"iat"`
}

// IsAdmin 是否为管理员令牌
func (c *TokenClaims) IsAdmin() bool {
	return c.Type == TokenTypeAdmin
}

// GetExpirationTime implements jwt.Claims interface
func (c *TokenClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

// GetIssuedAt implements jwt.Claims interface
func (c *TokenClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

// GetNotBefore implements jwt.Claims interface
func (c *TokenClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

// GetIssuer implements jwt.Claims interface
func (c *TokenClaims) GetIssuer() (string, error) {
	return "", nil
}

// GetSubject implements jwt.Claims interface
func (c *TokenClaims) GetSubject() (string, error) {
	if c.MemberID != "" {
		return c.MemberID, nil
	}
	return c.Email, nil
}

// GetAudience implements jwt.Claims interface
func (c *TokenClaims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}
