package models

import (
	"time"

	"github.com/lib/pq"
)

type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "PLANNING"
	ProjectActive    ProjectStatus = "ACTIVE"
	ProjectCompleted ProjectStatus = "COMPLETED"
	ProjectArchived  ProjectStatus = "ARCHIVED"
)

var projectStatusOrder = map[ProjectStatus]int{
	ProjectPlanning:  1,
	ProjectActive:    2,
	ProjectCompleted: 3,
	ProjectArchived:  4,
}

// Valid 是否为已知项目状态
func (s ProjectStatus) Valid() bool {
	_, ok := projectStatusOrder[s]
	return ok
}

// Before reports whether s comes strictly before other in the lifecycle.
func (s ProjectStatus) Before(other ProjectStatus) bool {
	return projectStatusOrder[s] < projectStatusOrder[other]
}

// Joinable 只有规划中和进行中的项目可以加入
func (s ProjectStatus) Joinable() bool {
	return s == ProjectPlanning || s == ProjectActive
}

// Project limits
const (
	ProjectNameMin        = 3
	ProjectNameMax        = 100
	ProjectDescriptionMin = 10
	ProjectDescriptionMax = 2000
	ProjectMinMembers     = 2
	ProjectMaxMembers     = 50
)

// Project is an incubated project owned by one member
type Project struct {
	ID             string         `json:"id" db:"id"`
	Name           string         `json:"name" db:"name"`
	Description    string         `json:"description" db:"description"`
	Status         ProjectStatus  `json:"status" db:"status"`
	OwnerID        string         `json:"owner_id" db:"owner_id"`
	MaxMembers     int            `json:"max_members" db:"max_members"`
	SkillsRequired pq.StringArray `json:"skills_required" db:"skills_required"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
	// MemberCount includes the owner.
	MemberCount int `json:"member_count" db:"member_count"`
}

type ProjectMemberRole string

// ProjectRoleMember is the only role stored on membership rows; ownership lives on Project.OwnerID.
const ProjectRoleMember ProjectMemberRole = "MEMBER"

// ProjectMembership relates members to projects. The owner never has a row.
type ProjectMembership struct {
	ID        string            `json:"id" db:"id"`
	ProjectID string            `json:"project_id" db:"project_id"`
	MemberID  string            `json:"member_id" db:"member_id"`
	Role      ProjectMemberRole `json:"role" db:"role"`
	JoinedAt  time.Time         `json:"joined_at" db:"joined_at"`
}

// ProjectCreateRequest represents POST /api/projects
type ProjectCreateRequest struct {
	Name           string   `json:"name" validate:"required,min=3,max=100"`
	Description    string   `json:"description" validate:"required,min=10,max=2000"`
	MaxMembers     int      `json:"max_members" validate:"required,min=2,max=50"`
	SkillsRequired []string `json:"skills_required,omitempty" validate:"omitempty,unique,dive,skill"`
}

// ProjectUpdateRequest represents PUT /api/projects/{id}; nil fields are left untouched
type ProjectUpdateRequest struct {
	Name           *string        `json:"name,omitempty" validate:"omitempty,min=3,max=100"`
	Description    *string        `json:"description,omitempty" validate:"omitempty,min=10,max=2000"`
	Status         *ProjectStatus `json:"status,omitempty" validate:"omitempty,project_status"`
	MaxMembers     *int           `json:"max_members,omitempty" validate:"omitempty,min=2,max=50"`
	SkillsRequired *[]string      `json:"skills_required,omitempty" validate:"omitempty,unique,dive,skill"`
}

// ProjectFilter narrows project listings
type ProjectFilter struct {
	Status  ProjectStatus
	OwnerID string
}

// ContractSendRequest represents POST /api/admin/contracts/send
type ContractSendRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FullName  string `json:"full_name" validate:"required,max=120"`
	Filename  string `json:"filename" validate:"required,max=120"`
	PDFBase64 string `json:"pdf_base64" validate:"required,base64"`
}

// Stats 管理面板统计
type Stats struct {
	Adhesions map[AdhesionStatus]int `json:"adhesions"`
	Members   int                    `json:"members"`
	Projects  map[ProjectStatus]int  `json:"projects"`
}
