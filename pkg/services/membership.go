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
	"genalixir-backend/pkg/mailer"
	"genalixir-backend/pkg/metrics"
	"genalixir-backend/pkg/models"
	"genalixir-backend/pkg/utils"
)

const (
	// SelfRegistration is recorded as the validator in direct registration mode.
	SelfRegistration = "self-registration"

	maxGenIDAttempts = 8
	maxMemberSkills  = 3
)

// MembershipService 入会申请流程：提交、审核通过、拒绝
type MembershipService struct {
	db    database.DatabaseInterface
	creds *CredentialIssuer
	mail  mailer.Mailer
	mode  string
	now   func() time.Time
}

func NewMembershipService(db database.DatabaseInterface, creds *CredentialIssuer, mail mailer.Mailer, registrationMode string) *MembershipService {
	if registrationMode == "" {
		registrationMode = config.RegistrationReview
	}
	return &MembershipService{
		db:    db,
		creds: creds,
		mail:  mail,
		mode:  registrationMode,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// RegistrationResult is returned by Register. Credentials are only set in direct mode.
type RegistrationResult struct {
	Mode        string                  `json:"mode"`
	Adhesion    *models.AdhesionRequest `json:"adhesion,omitempty"`
	MemberID    string                  `json:"member_id,omitempty"`
	GenAlixirID string                  `json:"gen_alixir_id,omitempty"`
	Pin         string                  `json:"pin,omitempty"`
}

// Submit 提交入会申请
func (s *MembershipService) Submit(ctx context.Context, req models.AdhesionSubmitRequest) (result *models.AdhesionRequest, err error) {
	defer func() { metrics.RecordAdhesion("submit", err) }()

	req.Email = normalizeEmail(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Motivation = strings.TrimSpace(req.Motivation)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	adhesion := &models.AdhesionRequest{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Country:    req.Country,
		Pole:       req.Pole,
		Skills:     req.Skills,
		Aura:       req.Aura,
		Motivation: req.Motivation,
		Status:     models.AdhesionPending,
	}
	if err := s.create(ctx, adhesion); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithField("adhesion_id", adhesion.ID).Info("📝 Adhesion request submitted")
	return adhesion, nil
}

// create 检查邮箱未被成员或其他待审核申请占用后写入
func (s *MembershipService) create(ctx context.Context, adhesion *models.AdhesionRequest) error {
	if _, err := s.db.GetMemberByEmail(ctx, adhesion.Email); err == nil {
		return apperror.Conflict("email already belongs to a member")
	} else if !errors.Is(err, database.ErrNotFound) {
		return storeError(err, "member")
	}

	pending, err := s.db.HasPendingAdhesion(ctx, adhesion.Email)
	if err != nil {
		return storeError(err, "adhesion request")
	}
	if pending {
		return apperror.Conflict("a pending adhesion request already exists for this email")
	}

	if err := s.db.CreateAdhesionRequest(ctx, adhesion); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return apperror.Conflict("a pending adhesion request already exists for this email")
		}
		return storeError(err, "adhesion request")
	}
	return nil
}

// Validate 审核通过：生成 PIN 与 GEN ALIXIR ID，并原子地创建成员
// The plaintext PIN is only ever present in the returned result.
func (s *MembershipService) Validate(ctx context.Context, requestID, validatedBy string) (result *models.ValidationResult, err error) {
	defer func() { metrics.RecordAdhesion("validate", err) }()

	adhesion, err := s.db.GetAdhesionRequest(ctx, requestID)
	if err != nil {
		return nil, storeError(err, "adhesion request")
	}
	if adhesion.Status != models.AdhesionPending {
		return nil, apperror.InvalidState("adhesion request is already %s", adhesion.Status)
	}

	pin, err := s.creds.GeneratePIN()
	if err != nil {
		return nil, apperror.Internal(err, "failed to generate credentials")
	}
	pinHash, err := s.creds.HashPIN(pin)
	if err != nil {
		return nil, apperror.Internal(err, "failed to generate credentials")
	}

	skills := []string(adhesion.Skills)
	if len(skills) > maxMemberSkills {
		skills = skills[:maxMemberSkills]
	}
	var auras models.AuraTraits
	if adhesion.Aura != "" {
		auras = models.AuraTraits{{Name: adhesion.Aura}}
	}

	now := s.now()
	member := &models.Member{
		Email:    adhesion.Email,
		PinHash:  pinHash,
		FullName: adhesion.FullName(),
		Country:  adhesion.Country,
		Pole:     adhesion.Pole,
		Skills:   append([]string(nil), skills...),
		Auras:    auras,
		Role:     models.RoleMember,
	}

	promoted := false
	for attempt := 1; attempt <= maxGenIDAttempts; attempt++ {
		genID, err := s.creds.GenerateGenAlixirID(now)
		if err != nil {
			return nil, apperror.Internal(err, "failed to generate credentials")
		}
		member.GenAlixirID = genID

		err = s.db.PromoteAdhesion(ctx, database.PromoteParams{
			RequestID:   adhesion.ID,
			ValidatedBy: validatedBy,
			ValidatedAt: now,
			Member:      member,
		})
		if errors.Is(err, database.ErrDuplicateGenID) {
			logging.FromContext(ctx).WithField("attempt", attempt).Warn("🔁 GEN ALIXIR ID collision, retrying")
			continue
		}
		if err != nil {
			return nil, storeError(err, "adhesion request")
		}
		promoted = true
		break
	}
	if !promoted {
		return nil, apperror.Internal(errors.New("gen alixir id space exhausted"), "failed to allocate a GEN ALIXIR ID")
	}

	adhesion.Status = models.AdhesionValidated
	adhesion.ValidatedBy = &validatedBy
	adhesion.ValidatedAt = &now
	adhesion.MemberID = &member.ID
	adhesion.UpdatedAt = now

	logging.FromContext(ctx).
		WithField("adhesion_id", adhesion.ID).
		WithField("member_id", member.ID).
		WithField("validated_by", validatedBy).
		Info("✅ Adhesion request validated")

	if validatedBy != SelfRegistration {
		notify(ctx, "credentials", func(ctx context.Context) error {
			return s.mail.SendCredentials(ctx, member.Email, member.FullName, member.GenAlixirID, pin)
		})
	}

	return &models.ValidationResult{
		Member:      member,
		Adhesion:    adhesion,
		GenAlixirID: member.GenAlixirID,
		Pin:         pin,
	}, nil
}

// Reject 拒绝申请，原因可选
func (s *MembershipService) Reject(ctx context.Context, requestID, validatedBy, reason string) (result *models.AdhesionRequest, err error) {
	defer func() { metrics.RecordAdhesion("reject", err) }()

	reason = strings.TrimSpace(reason)
	if len([]rune(reason)) > 1000 {
		return nil, apperror.Validation("reason must be at most 1000 characters")
	}
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}

	rejected, err := s.db.RejectAdhesion(ctx, database.RejectParams{
		RequestID:   requestID,
		ValidatedBy: validatedBy,
		Reason:      reasonPtr,
		RejectedAt:  s.now(),
	})
	if err != nil {
		return nil, storeError(err, "adhesion request")
	}

	logging.FromContext(ctx).
		WithField("adhesion_id", rejected.ID).
		WithField("validated_by", validatedBy).
		Info("🚫 Adhesion request rejected")

	notify(ctx, "rejection", func(ctx context.Context) error {
		return s.mail.SendRejection(ctx, rejected.Email, rejected.FullName(), rejected.RejectionReason)
	})
	return rejected, nil
}

// Register 注册：review 模式生成待审核申请，direct 模式立即发放凭证
func (s *MembershipService) Register(ctx context.Context, req models.RegisterRequest) (*RegistrationResult, error) {
	req.Email = normalizeEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	firstName, lastName := strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName)
	if firstName == "" && lastName == "" {
		firstName, lastName = splitFullName(req.FullName)
	}

	adhesion := &models.AdhesionRequest{
		FirstName:  firstName,
		LastName:   lastName,
		Email:      req.Email,
		Country:    req.Country,
		Pole:       req.Pole,
		Skills:     req.Skills,
		Aura:       req.Aura,
		Motivation: strings.TrimSpace(req.Motivation),
		Status:     models.AdhesionPending,
	}
	if err := s.create(ctx, adhesion); err != nil {
		metrics.RecordAdhesion("submit", err)
		return nil, err
	}
	metrics.RecordAdhesion("submit", nil)

	if s.mode != config.RegistrationDirect {
		return &RegistrationResult{Mode: config.RegistrationReview, Adhesion: adhesion}, nil
	}

	validated, err := s.Validate(ctx, adhesion.ID, SelfRegistration)
	if err != nil {
		s.withdraw(ctx, adhesion.ID)
		return nil, err
	}
	return &RegistrationResult{
		Mode:        config.RegistrationDirect,
		MemberID:    validated.Member.ID,
		GenAlixirID: validated.GenAlixirID,
		Pin:         validated.Pin,
	}, nil
}

// withdraw 直接注册失败时关闭待审核申请，避免同一邮箱的重试被判为冲突
func (s *MembershipService) withdraw(ctx context.Context, requestID string) {
	reason := "registration failed"
	_, err := s.db.RejectAdhesion(context.WithoutCancel(ctx), database.RejectParams{
		RequestID:   requestID,
		ValidatedBy: SelfRegistration,
		Reason:      &reason,
		RejectedAt:  s.now(),
	})
	if err != nil && !errors.Is(err, database.ErrNotPending) {
		logging.FromContext(ctx).WithError(err).WithField("adhesion_id", requestID).Warn("⚠️  Failed to withdraw registration")
	}
}

func splitFullName(fullName string) (string, string) {
	parts := strings.Fields(fullName)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// List 列出入会申请，status 为空时返回全部
func (s *MembershipService) List(ctx context.Context, status string) ([]models.AdhesionRequest, error) {
	st := models.AdhesionStatus(strings.ToLower(strings.TrimSpace(status)))
	if st != "" && !st.Valid() {
		return nil, apperror.Validation("unknown adhesion status %q", status)
	}
	requests, err := s.db.ListAdhesionRequests(ctx, st)
	if err != nil {
		return nil, storeError(err, "adhesion request")
	}
	return requests, nil
}

// Get 获取单个申请
func (s *MembershipService) Get(ctx context.Context, id string) (*models.AdhesionRequest, error) {
	req, err := s.db.GetAdhesionRequest(ctx, id)
	if err != nil {
		return nil, storeError(err, "adhesion request")
	}
	return req, nil
}
