package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"genalixir-backend/pkg/apperror"
	"genalixir-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusPtr(s models.ProjectStatus) *models.ProjectStatus { return &s }
func intPtr(n int) *int                                      { return &n }
func strPtr(s string) *string                                { return &s }

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)
	owner, _ := env.newMember(t, "owner@x.com")
	ctx := context.Background()

	cases := map[string]models.ProjectCreateRequest{
		"short name":        {Name: "ab", Description: "une description valide", MaxMembers: 5},
		"short description": {Name: "Projet", Description: "court", MaxMembers: 5},
		"too few members":   {Name: "Projet", Description: "une description valide", MaxMembers: 1},
		"too many members":  {Name: "Projet", Description: "une description valide", MaxMembers: 51},
		"unknown skill":     {Name: "Projet", Description: "une description valide", MaxMembers: 5, SkillsRequired: []string{"Cobol"}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.projects.Create(ctx, owner.ID, req)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}

	project := env.newProject(t, owner.ID, 5)
	assert.Equal(t, models.ProjectPlanning, project.Status)
	assert.Equal(t, 1, project.MemberCount)
	assert.Equal(t, owner.ID, project.OwnerID)
}

func TestJoinCapacityScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, _ := env.newMember(t, "a@x.com")
	b, _ := env.newMember(t, "b@x.com")
	c, _ := env.newMember(t, "c@x.com")

	project := env.newProject(t, a.ID, 2)

	_, err := env.projects.Join(ctx, project.ID, b.ID)
	require.NoError(t, err)
	loaded, err := env.projects.Get(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.MemberCount)

	_, err = env.projects.Join(ctx, project.ID, c.ID)
	assert.ErrorIs(t, err, apperror.ErrCapacityExceeded)

	_, err = env.projects.Join(ctx, project.ID, b.ID)
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestOwnerCannotJoinOrLeave(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, _ := env.newMember(t, "a@x.com")
	project := env.newProject(t, a.ID, 3)

	_, err := env.projects.Join(ctx, project.ID, a.ID)
	require.ErrorIs(t, err, apperror.ErrConflict)
	assert.Contains(t, err.Error(), "already owner")

	err = env.projects.Leave(ctx, project.ID, a.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestLeaveWithoutMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, _ := env.newMember(t, "a@x.com")
	b, _ := env.newMember(t, "b@x.com")
	project := env.newProject(t, a.ID, 3)

	assert.ErrorIs(t, env.projects.Leave(ctx, project.ID, b.ID), apperror.ErrNotFound)

	_, err := env.projects.Join(ctx, project.ID, b.ID)
	require.NoError(t, err)
	require.NoError(t, env.projects.Leave(ctx, project.ID, b.ID))

	members, err := env.projects.Members(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestJoinClosedProject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, _ := env.newMember(t, "a@x.com")
	b, _ := env.newMember(t, "b@x.com")

	for _, status := range []models.ProjectStatus{models.ProjectCompleted, models.ProjectArchived} {
		project := env.newProject(t, a.ID, 3)
		_, err := env.projects.Update(ctx, project.ID, a.ID, models.ProjectUpdateRequest{Status: statusPtr(status)})
		require.NoError(t, err)

		_, err = env.projects.Join(ctx, project.ID, b.ID)
		assert.ErrorIs(t, err, apperror.ErrInvalidState, string(status))
	}

	_, err := env.projects.Join(ctx, "missing", b.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestConcurrentJoinNeverExceedsCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, _ := env.newMember(t, "owner@x.com")
	const maxMembers = 4
	project := env.newProject(t, owner.ID, maxMembers)

	joiners := make([]*models.Member, 12)
	for i := range joiners {
		joiners[i], _ = env.newMember(t, fmt.Sprintf("joiner%d@x.com", i))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, capacity := 0, 0
	for _, m := range joiners {
		wg.Add(1)
		go func(memberID string) {
			defer wg.Done()
			_, err := env.projects.Join(ctx, project.ID, memberID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperror.KindOf(err) == apperror.KindCapacityExceeded:
				capacity++
			}
		}(m.ID)
	}
	wg.Wait()

	assert.Equal(t, maxMembers-1, succeeded)
	assert.Equal(t, len(joiners)-(maxMembers-1), capacity)

	loaded, err := env.projects.Get(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, maxMembers, loaded.MemberCount)
}

func TestCompletedAtStampedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, _ := env.newMember(t, "owner@x.com")
	project := env.newProject(t, owner.ID, 3)
	assert.Nil(t, project.CompletedAt)

	completed, err := env.projects.Update(ctx, project.ID, owner.ID, models.ProjectUpdateRequest{Status: statusPtr(models.ProjectCompleted)})
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)
	first := *completed.CompletedAt

	again, err := env.projects.Update(ctx, project.ID, owner.ID, models.ProjectUpdateRequest{Status: statusPtr(models.ProjectCompleted)})
	require.NoError(t, err)
	require.NotNil(t, again.CompletedAt)
	assert.True(t, first.Equal(*again.CompletedAt))

	loaded, err := env.projects.Get(ctx, project.ID)
	require.NoError(t, err)
	assert.True(t, first.Equal(*loaded.CompletedAt))
}

func TestUpdateRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, _ := env.newMember(t, "owner@x.com")
	other, _ := env.newMember(t, "other@x.com")
	third, _ := env.newMember(t, "third@x.com")
	project := env.newProject(t, owner.ID, 3)

	_, err := env.projects.Update(ctx, project.ID, other.ID, models.ProjectUpdateRequest{Name: strPtr("Nouveau nom")})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	updated, err := env.projects.Update(ctx, project.ID, owner.ID, models.ProjectUpdateRequest{
		Name:           strPtr("  Nouveau nom "),
		Status:         statusPtr(models.ProjectActive),
		SkillsRequired: &[]string{"Go"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Nouveau nom", updated.Name)
	assert.Equal(t, models.ProjectActive, updated.Status)
	assert.Equal(t, []string{"Go"}, []string(updated.SkillsRequired))

	_, err = env.projects.Update(ctx, project.ID, owner.ID, models.ProjectUpdateRequest{Status: statusPtr(models.ProjectPlanning)})
	assert.ErrorIs(t, err, apperror.ErrInvalidState)

	_, err = env.projects.Update(ctx, project.ID, owner.ID, models.ProjectUpdateRequest{Status: statusPtr("DONE")})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = env.projects.Join(ctx, project.ID, other.ID)
	require.NoError(t, err)
	_, err = env.projects.Join(ctx, project.ID, third.ID)
	require.NoError(t, err)

	_, err = env.projects.Update(ctx, project.ID, owner.ID, models.ProjectUpdateRequest{MaxMembers: intPtr(2)})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	grown, err := env.projects.Update(ctx, project.ID, owner.ID, models.ProjectUpdateRequest{MaxMembers: intPtr(10)})
	require.NoError(t, err)
	assert.Equal(t, 10, grown.MaxMembers)
}

func TestAdminUpdateSkipsGates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, _ := env.newMember(t, "owner@x.com")
	project := env.newProject(t, owner.ID, 3)

	_, err := env.projects.Update(ctx, project.ID, owner.ID, models.ProjectUpdateRequest{Status: statusPtr(models.ProjectArchived)})
	require.NoError(t, err)

	reopened, err := env.projects.AdminUpdate(ctx, project.ID, models.ProjectUpdateRequest{Status: statusPtr(models.ProjectActive)})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectActive, reopened.Status)
}

func TestModeratorUpdateRequiresCapability(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, _ := env.newMember(t, "owner@x.com")
	moderator, _ := env.newMember(t, "moderator@x.com")
	project := env.newProject(t, owner.ID, 3)

	_, err := env.projects.ModeratorUpdate(ctx, project.ID, moderator.ID, models.ProjectUpdateRequest{Name: strPtr("Modéré")})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = env.profiles.SetRole(ctx, moderator.ID, models.RoleModerator)
	require.NoError(t, err)

	updated, err := env.projects.ModeratorUpdate(ctx, project.ID, moderator.ID, models.ProjectUpdateRequest{Name: strPtr("Modéré")})
	require.NoError(t, err)
	assert.Equal(t, "Modéré", updated.Name)
}

func TestDeleteCascadesMemberships(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, _ := env.newMember(t, "owner@x.com")
	member, _ := env.newMember(t, "member@x.com")
	project := env.newProject(t, owner.ID, 3)

	_, err := env.projects.Join(ctx, project.ID, member.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, env.projects.Delete(ctx, project.ID, member.ID), apperror.ErrForbidden)
	require.NoError(t, env.projects.Delete(ctx, project.ID, owner.ID))

	_, err = env.projects.Get(ctx, project.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	rows, err := env.db.ListProjectMembers(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestListProjects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, _ := env.newMember(t, "a@x.com")
	b, _ := env.newMember(t, "b@x.com")
	env.newProject(t, a.ID, 3)
	p := env.newProject(t, b.ID, 3)
	_, err := env.projects.Update(ctx, p.ID, b.ID, models.ProjectUpdateRequest{Status: statusPtr(models.ProjectActive)})
	require.NoError(t, err)

	active, err := env.projects.List(ctx, "active", "")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, p.ID, active[0].ID)

	owned, err := env.projects.List(ctx, "", a.ID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, a.ID, owned[0].OwnerID)

	_, err = env.projects.List(ctx, "paused", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
