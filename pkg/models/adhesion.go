package models

import (
	"time"

	"github.com/lib/pq"
)

type AdhesionStatus string

const (
	AdhesionPending   AdhesionStatus = "pending"
	AdhesionValidated AdhesionStatus = "validated"
	AdhesionRejected  AdhesionStatus = "rejected"
)

// Valid 是否为已知状态
func (s AdhesionStatus) Valid() bool {
	switch s {
	case AdhesionPending, AdhesionValidated, AdhesionRejected:
		return true
	}
	return false
}

// AdhesionRequest is an applicant's membership submission awaiting an admin decision
type AdhesionRequest struct {
	ID              string         `json:"id" db:"id"`
	FirstName       string         `json:"first_name" db:"first_name"`
	LastName        string         `json:"last_name" db:"last_name"`
	Email           string         `json:"email" db:"email"`
	Country         string         `json:"country" db:"country"`
	Pole            string         `json:"pole" db:"pole"`
	Skills          pq.StringArray `json:"skills" db:"skills"`
	Aura            string         `json:"aura" db:"aura"`
	Motivation      string         `json:"motivation,omitempty" db:"motivation"`
	Status          AdhesionStatus `json:"status" db:"status"`
	ValidatedBy     *string        `json:"validated_by,omitempty" db:"validated_by"`
	ValidatedAt     *time.Time     `json:"validated_at,omitempty" db:"validated_at"`
	RejectionReason *string        `json:"rejection_reason,omitempty" db:"rejection_reason"`
	MemberID        *string        `json:"member_id,omitempty" db:"member_id"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// FullName 组合姓名
func (a *AdhesionRequest) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// AdhesionSubmitRequest represents POST /api/adhesions
type AdhesionSubmitRequest struct {
	FirstName  string   `json:"first_name" validate:"required,max=60"`
	LastName   string   `json:"last_name" validate:"required,max=60"`
	Email      string   `json:"email" validate:"required,email,max=254"`
	Country    string   `json:"country" validate:"required,country"`
	Pole       string   `json:"pole" validate:"required,pole"`
	Skills     []string `json:"skills" validate:"required,min=1,unique,dive,skill"`
	Aura       string   `json:"aura" validate:"required,aura"`
	Motivation string   `json:"motivation,omitempty" validate:"max=2000"`
}

// AdhesionRejectRequest represents POST /api/admin/adhesions/{id}/reject
type AdhesionRejectRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=1000"`
}

// ValidationResult is returned exactly once when a request is validated.
// The plaintext PIN is never persisted.
type ValidationResult struct {
	Member      *Member          `json:"member"`
	Adhesion    *AdhesionRequest `json:"adhesion"`
	GenAlixirID string           `json:"gen_alixir_id"`
	Pin         string           `json:"pin"`
}
