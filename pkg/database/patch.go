package database

import (
	"time"

	"genalixir-backend/pkg/models"
)

// ProjectPatch 项目部分更新；nil 字段保持不变
//
// The gates are evaluated against the locked row, inside the same atomic unit
// as the write.
type ProjectPatch struct {
	Name           *string
	Description    *string
	Status         *models.ProjectStatus
	MaxMembers     *int
	SkillsRequired *[]string

	// RequireOwner rejects the update with ErrNotOwner unless it owns the project.
	RequireOwner string
	// Monotonic rejects a status move backwards with ErrStatusRegression.
	Monotonic bool
	// Now stamps completed_at on the first transition into COMPLETED.
	Now time.Time
}

// apply 在已锁定的项目上执行检查并写入非空字段；count 含所有者
func (p ProjectPatch) apply(project *models.Project, count int) error {
	if p.RequireOwner != "" && project.OwnerID != p.RequireOwner {
		return ErrNotOwner
	}
	if p.Status != nil && p.Monotonic && p.Status.Before(project.Status) {
		return ErrStatusRegression
	}
	if p.MaxMembers != nil && *p.MaxMembers < count {
		return ErrCapacityExceeded
	}

	if p.Name != nil {
		project.Name = *p.Name
	}
	if p.Description != nil {
		project.Description = *p.Description
	}
	if p.SkillsRequired != nil {
		project.SkillsRequired = append([]string{}, (*p.SkillsRequired)...)
	}
	if p.MaxMembers != nil {
		project.MaxMembers = *p.MaxMembers
	}
	if p.Status != nil {
		project.Status = *p.Status
		if project.Status == models.ProjectCompleted && project.CompletedAt == nil {
			now := p.Now
			if now.IsZero() {
				now = time.Now().UTC()
			}
			project.CompletedAt = &now
		}
	}
	project.MemberCount = count
	return nil
}

// MemberPatch 成员档案部分更新；nil 字段保持不变
type MemberPatch struct {
	FullName *string
	Country  *string
	Skills   *[]string
	Auras    *[]string
}

// apply 写入非空字段；仍保留的 Aura 沿用当前的认证状态
func (p MemberPatch) apply(m *models.Member) {
	if p.FullName != nil {
		m.FullName = *p.FullName
	}
	if p.Country != nil {
		m.Country = *p.Country
	}
	if p.Skills != nil {
		m.Skills = append([]string{}, (*p.Skills)...)
	}
	if p.Auras != nil {
		current := make(map[string]models.AuraTrait, len(m.Auras))
		for _, trait := range m.Auras {
			current[trait.Name] = trait
		}
		auras := make(models.AuraTraits, 0, len(*p.Auras))
		for _, name := range *p.Auras {
			if trait, ok := current[name]; ok {
				auras = append(auras, trait)
				continue
			}
			auras = append(auras, models.AuraTrait{Name: name})
		}
		m.Auras = auras
	}
}

// markAuraVerified 认证成员已有的 Aura
func markAuraVerified(m *models.Member, aura, verifierID string) error {
	for i := range m.Auras {
		if m.Auras[i].Name == aura {
			m.Auras[i].Verified = true
			m.Auras[i].VerifiedBy = verifierID
			return nil
		}
	}
	return ErrAuraMissing
}
