package services

import (
	"context"
	"errors"
	"strings"

	"genalixir-backend/pkg/apperror"
	"genalixir-backend/pkg/database"
	"genalixir-backend/pkg/logging"
	"genalixir-backend/pkg/models"
	"genalixir-backend/pkg/utils"
)

// ProfileService 成员档案、Aura 认证与角色
type ProfileService struct {
	db database.DatabaseInterface
}

func NewProfileService(db database.DatabaseInterface) *ProfileService {
	return &ProfileService{db: db}
}

// GetMember 获取成员
func (s *ProfileService) GetMember(ctx context.Context, id string) (*models.Member, error) {
	member, err := s.db.GetMemberByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "member")
	}
	return member, nil
}

// ListMembers 列出所有成员
func (s *ProfileService) ListMembers(ctx context.Context) ([]models.Member, error) {
	members, err := s.db.ListMembers(ctx)
	if err != nil {
		return nil, storeError(err, "member")
	}
	return members, nil
}

// UpdateProfile 更新档案；合并在存储层行锁内完成，保留仍存在的 Aura 的认证状态
func (s *ProfileService) UpdateProfile(ctx context.Context, memberID string, req models.ProfileUpdateRequest) (*models.Member, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	patch := database.MemberPatch{Country: req.Country, Skills: req.Skills, Auras: req.Auras}
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return nil, apperror.Validation("full_name must not be empty")
		}
		patch.FullName = &name
	}

	member, err := s.db.UpdateMemberProfile(ctx, memberID, patch)
	if err != nil {
		return nil, storeError(err, "member")
	}
	logging.FromContext(ctx).WithField("member_id", memberID).Info("👤 Profile updated")
	return member, nil
}

// VerifyAura 高等级成员认证他人的 Aura
func (s *ProfileService) VerifyAura(ctx context.Context, verifierID, targetID, aura string) (*models.Member, error) {
	if err := utils.ValidateStruct(models.VerifyAuraRequest{Aura: aura}); err != nil {
		return nil, err
	}
	if verifierID == targetID {
		return nil, apperror.Forbidden("members cannot verify their own aura")
	}

	verifier, err := s.db.GetMemberByID(ctx, verifierID)
	if err != nil {
		return nil, storeError(err, "verifier")
	}
	target, err := s.db.GetMemberByID(ctx, targetID)
	if err != nil {
		return nil, storeError(err, "member")
	}

	if !verifier.Role.Can(models.CapVerifyAura) || !verifier.Role.Outranks(target.Role) {
		return nil, apperror.Forbidden("only a higher-ranked member can verify this aura")
	}

	target, err = s.db.VerifyMemberAura(ctx, targetID, aura, verifier.ID)
	if err != nil {
		if errors.Is(err, database.ErrAuraMissing) {
			return nil, apperror.Validation("aura %q is not on this profile", aura)
		}
		return nil, storeError(err, "member")
	}
	logging.FromContext(ctx).
		WithField("member_id", target.ID).
		WithField("verifier_id", verifier.ID).
		WithField("aura", aura).
		Info("🌟 Aura verified")
	return target, nil
}

// SetRole 管理员设置成员角色
func (s *ProfileService) SetRole(ctx context.Context, memberID string, role models.Role) (*models.Member, error) {
	if err := utils.ValidateStruct(models.SetRoleRequest{Role: role}); err != nil {
		return nil, err
	}
	if err := s.db.UpdateMemberRole(ctx, memberID, role); err != nil {
		return nil, storeError(err, "member")
	}
	member, err := s.db.GetMemberByID(ctx, memberID)
	if err != nil {
		return nil, storeError(err, "member")
	}
	logging.FromContext(ctx).WithField("member_id", memberID).WithField("role", role).Info("🎖️  Role updated")
	return member, nil
}
