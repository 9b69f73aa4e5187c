package models

// Role 成员角色
type Role string

const (
	RoleMember      Role = "MEMBER"
	RoleProjectLead Role = "PROJECT_LEAD"
	RoleModerator   Role = "MODERATOR"
	RoleFounder     Role = "FOUNDER"
)

// Capability is a permission granted to a role.
type Capability string

const (
	CapVerifyAura       Capability = "verify_aura"
	CapModerateProjects Capability = "moderate_projects"
)

// roleRank orders roles for "higher-ranked member" checks.
var roleRank = map[Role]int{
	RoleMember:      1,
	RoleProjectLead: 2,
	RoleModerator:   3,
	RoleFounder:     4,
}

var roleCapabilities = map[Role][]Capability{
	RoleMember:      {},
	RoleProjectLead: {CapVerifyAura},
	RoleModerator:   {CapVerifyAura, CapModerateProjects},
	RoleFounder:     {CapVerifyAura, CapModerateProjects},
}

// Valid 是否为已知角色（精确匹配）
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Rank 返回角色等级，未知角色为0
func (r Role) Rank() int {
	return roleRank[r]
}

// Outranks reports whether r is strictly above other.
func (r Role) Outranks(other Role) bool {
	return r.Rank() > other.Rank()
}

// Can 检查角色是否拥有某项能力
func (r Role) Can(c Capability) bool {
	for _, have := range roleCapabilities[r] {
		if have == c {
			return true
		}
	}
	return false
}
