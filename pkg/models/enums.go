package models

// 封闭枚举：技能、Aura、国家、能力领域（pôle de compétence）

// Skills 可选技能列表
var Skills = []string{
	"React",
	"Vue.js",
	"Node.js",
	"Go",
	"Python",
	"Mobile",
	"DevOps",
	"Blockchain",
	"IA / Machine Learning",
	"Data Science",
	"Cybersécurité",
	"Design UI/UX",
	"Marketing Digital",
	"Communication",
	"Gestion de projet",
	"Finance",
	"Juridique",
	"Ressources Humaines",
}

// Auras 可选的性格特质
var Auras = []string{
	"leadership",
	"créativité",
	"rigueur",
	"empathie",
	"audace",
	"sagesse",
	"résilience",
	"curiosité",
	"intégrité",
}

// Countries 支持的国家
var Countries = []string{
	"France",
	"Belgique",
	"Suisse",
	"Canada",
	"Sénégal",
	"Côte d'Ivoire",
	"Cameroun",
	"Mali",
	"Burkina Faso",
	"Bénin",
	"Togo",
	"Guinée",
	"Niger",
	"Gabon",
	"Congo",
	"RD Congo",
	"Madagascar",
	"Maroc",
	"Tunisie",
	"Algérie",
}

// Poles 能力领域
var Poles = []string{
	"Développement",
	"Design",
	"Marketing",
	"Communication",
	"Finance",
	"Juridique",
	"Ressources Humaines",
	"Stratégie",
	"Data & IA",
}

var (
	skillSet   = toSet(Skills)
	auraSet    = toSet(Auras)
	countrySet = toSet(Countries)
	poleSet    = toSet(Poles)
)

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// IsSkill 检查技能是否在枚举中
func IsSkill(s string) bool {
	_, ok := skillSet[s]
	return ok
}

// IsAura 检查Aura是否在枚举中
func IsAura(s string) bool {
	_, ok := auraSet[s]
	return ok
}

// IsCountry 检查国家是否在枚举中
func IsCountry(s string) bool {
	_, ok := countrySet[s]
	return ok
}

// IsPole 检查能力领域是否在枚举中
func IsPole(s string) bool {
	_, ok := poleSet[s]
	return ok
}
