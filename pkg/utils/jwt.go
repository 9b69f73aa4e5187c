package utils

import (
	"errors"
	"fmt"
	"time"

	"genalixir-backend/pkg/models"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers malformed, tampered and expired tokens alike.
var ErrInvalidToken = errors.New("invalid token")

// JWTService JWT服务
type JWTService struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewJWTService 创建JWT服务，ttl <= 0 时默认7天
func NewJWTService(secretKey string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &JWTService{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		now:       time.Now,
	}
}

// TTL 令牌有效期
func (j *JWTService) TTL() time.Duration {
	return j.ttl
}

// GenerateMemberToken 为成员签发令牌
func (j *JWTService) GenerateMemberToken(member *models.Member) (string, int64, error) {
	return j.sign(&models.TokenClaims{
		MemberID: member.ID,
		Email:    member.Email,
		Role:     member.Role,
		Type:     models.TokenTypeMember,
	})
}

// GenerateAdminToken 为管理员签发令牌
func (j *JWTService) GenerateAdminToken(email string) (string, int64, error) {
	return j.sign(&models.TokenClaims{
		Email: email,
		Type:  models.TokenTypeAdmin,
	})
}

func (j *JWTService) sign(claims *models.TokenClaims) (string, int64, error) {
	now := j.now()
	expiry := now.Add(j.ttl)
	claims.Iat = now.Unix()
	claims.Exp = expiry.Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, claims.Exp, nil
}

// ValidateToken 验证令牌
func (j *JWTService) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	// 检查是否过期
	if j.now().Unix() > claims.Exp {
		return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}

	switch claims.Type {
	case models.TokenTypeMember:
		if claims.MemberID == "" {
			return nil, fmt.Errorf("%w: member token without subject", ErrInvalidToken)
		}
	case models.TokenTypeAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown token type %q", ErrInvalidToken, claims.Type)
	}

	return claims, nil
}
