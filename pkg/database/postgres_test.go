package database

import (
	"context"
	"regexp"
	"testing"
	"time"

	"genalixir-backend/pkg/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*PostgresDatabase, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return NewPostgresFromDB(sqlx.NewDb(raw, "postgres")), mock
}

func TestPostgresPromoteAdhesion(t *testing.T) {
	db, mock := newMockPostgres(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM adhesion_requests WHERE id = $1 FOR UPDATE`)).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO members`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("member-1"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE adhesion_requests`)).
		WithArgs("req-1", "admin@ecodreum.com", now, "member-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	member := &models.Member{GenAlixirID: "GA-2025-ABCDEF", Email: "a@b.co", Role: models.RoleMember}
	err := db.PromoteAdhesion(context.Background(), PromoteParams{
		RequestID:   "req-1",
		ValidatedBy: "admin@ecodreum.com",
		ValidatedAt: now,
		Member:      member,
	})
	require.NoError(t, err)
	assert.Equal(t, "member-1", member.ID)
	require.NotNil(t, member.AdhesionID)
	assert.Equal(t, "req-1", *member.AdhesionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPromoteAdhesionNotPending(t *testing.T) {
	db, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM adhesion_requests`)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("validated"))
	mock.ExpectRollback()

	err := db.PromoteAdhesion(context.Background(), PromoteParams{RequestID: "req-1", Member: &models.Member{}})
	assert.ErrorIs(t, err, ErrNotPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPromoteAdhesionDuplicateGenID(t *testing.T) {
	db, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM adhesion_requests`)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO members`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "members_gen_alixir_id_key"})
	mock.ExpectRollback()

	err := db.PromoteAdhesion(context.Background(), PromoteParams{RequestID: "req-1", Member: &models.Member{}})
	assert.ErrorIs(t, err, ErrDuplicateGenID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRejectAdhesionNotPending(t *testing.T) {
	db, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE adhesion_requests`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM adhesion_requests WHERE id = $1`)).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("req-1", "rejected"))

	_, err := db.RejectAdhesion(context.Background(), RejectParams{RequestID: "req-1", ValidatedBy: "admin", RejectedAt: time.Now()})
	assert.ErrorIs(t, err, ErrNotPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddProjectMemberCapacity(t *testing.T) {
	db, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, owner_id, max_members FROM projects WHERE id = $1 FOR UPDATE`)).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "owner_id", "max_members"}).AddRow("ACTIVE", "owner", 2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 + COUNT(*) FROM project_memberships`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := db.AddProjectMember(context.Background(), &models.ProjectMembership{ProjectID: "p1", MemberID: "m1"})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddProjectMemberClosed(t *testing.T) {
	db, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, owner_id, max_members FROM projects`)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "owner_id", "max_members"}).AddRow("ARCHIVED", "owner", 5))
	mock.ExpectRollback()

	err := db.AddProjectMember(context.Background(), &models.ProjectMembership{ProjectID: "p1", MemberID: "m1"})
	assert.ErrorIs(t, err, ErrProjectClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddProjectMemberInserts(t *testing.T) {
	db, mock := newMockPostgres(t)
	joined := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, owner_id, max_members FROM projects`)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "owner_id", "max_members"}).AddRow("PLANNING", "owner", 5))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 + COUNT(*) FROM project_memberships`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO project_memberships`)).
		WithArgs("p1", "m1", models.ProjectRoleMember).
		WillReturnRows(sqlmock.NewRows([]string{"id", "joined_at"}).AddRow("pm-1", joined))
	mock.ExpectCommit()

	membership := &models.ProjectMembership{ProjectID: "p1", MemberID: "m1", Role: models.ProjectRoleMember}
	require.NoError(t, db.AddProjectMember(context.Background(), membership))
	assert.Equal(t, "pm-1", membership.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var projectColumns = []string{
	"id", "name", "description", "status", "owner_id", "max_members",
	"skills_required", "completed_at", "created_at", "updated_at",
}

func lockedProjectRow(status string) *sqlmock.Rows {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(projectColumns).
		AddRow("p1", "Solar kiosk", "Pay-as-you-go solar kiosks", status, "owner", 5, "{}", nil, created, created)
}

func TestPostgresUpdateProjectBelowCount(t *testing.T) {
	db, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM projects WHERE id = $1 FOR UPDATE`)).
		WithArgs("p1").
		WillReturnRows(lockedProjectRow("ACTIVE"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 + COUNT(*) FROM project_memberships`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectRollback()

	three := 3
	_, err := db.UpdateProject(context.Background(), "p1", ProjectPatch{MaxMembers: &three})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateProjectChecksLockedStatus(t *testing.T) {
	db, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM projects WHERE id = $1 FOR UPDATE`)).
		WillReturnRows(lockedProjectRow("ARCHIVED"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 + COUNT(*) FROM project_memberships`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	active := models.ProjectActive
	_, err := db.UpdateProject(context.Background(), "p1", ProjectPatch{Status: &active, RequireOwner: "owner", Monotonic: true})
	assert.ErrorIs(t, err, ErrStatusRegression)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateProjectWritesLockedRow(t *testing.T) {
	db, mock := newMockPostgres(t)
	updated := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM projects WHERE id = $1 FOR UPDATE`)).
		WillReturnRows(lockedProjectRow("ARCHIVED"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 + COUNT(*) FROM project_memberships`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE projects`)).
		WithArgs("p1", "Solar kiosk v2", "Pay-as-you-go solar kiosks", models.ProjectArchived, 5, sqlmock.AnyArg(), nil).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(updated))
	mock.ExpectCommit()

	name := "Solar kiosk v2"
	project, err := db.UpdateProject(context.Background(), "p1", ProjectPatch{Name: &name, RequireOwner: "owner", Monotonic: true})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectArchived, project.Status)
	assert.Equal(t, 2, project.MemberCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateProjectNotOwner(t *testing.T) {
	db, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM projects WHERE id = $1 FOR UPDATE`)).
		WillReturnRows(lockedProjectRow("PLANNING"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 + COUNT(*) FROM project_memberships`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	name := "Hijacked"
	_, err := db.UpdateProject(context.Background(), "p1", ProjectPatch{Name: &name, RequireOwner: "someone-else"})
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVerifyMemberAuraMissing(t *testing.T) {
	db, mock := newMockPostgres(t)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM members WHERE id = $1 FOR UPDATE`)).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "auras", "created_at", "updated_at"}).
			AddRow("m1", "Awa", []byte(`[{"name":"vision","verified":false}]`), created, created))
	mock.ExpectRollback()

	_, err := db.VerifyMemberAura(context.Background(), "m1", "leadership", "lead-1")
	assert.ErrorIs(t, err, ErrAuraMissing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteProjectMissing(t *testing.T) {
	db, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM projects WHERE id = $1`)).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, db.DeleteProject(context.Background(), "p1"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStats(t *testing.T) {
	db, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, COUNT(*) AS n FROM adhesion_requests`)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "n"}).AddRow("pending", 3).AddRow("validated", 2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM members`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, COUNT(*) AS n FROM projects`)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "n"}).AddRow("ACTIVE", 1))

	stats, err := db.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Adhesions[models.AdhesionPending])
	assert.Equal(t, 2, stats.Members)
	assert.Equal(t, 1, stats.Projects[models.ProjectActive])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslatePQError(t *testing.T) {
	assert.ErrorIs(t, translatePQError(&pq.Error{Code: "23505", Constraint: "members_email_key"}), ErrDuplicateEmail)
	assert.ErrorIs(t, translatePQError(&pq.Error{Code: "23505", Constraint: "project_memberships_project_member_key"}), ErrConflict)
	assert.ErrorIs(t, translatePQError(&pq.Error{Code: "22P02"}), ErrNotFound)
}
