package population

import (
	"fmt"

	"github.com/charmbracelet/log"

	"contagion/internal/dist"
)

// Spec describes a population to generate. It is embedded in scenario files.
type Spec struct {
	Size           int                 `yaml:"size" json:"size"`
	Workers        int                 `yaml:"workers,omitempty" json:"workers,omitempty"`
	FamilyPatterns []FamilyPatternSpec `yaml:"family_patterns" json:"family_patterns"`
	CommunityTypes []CommunityTypeSpec `yaml:"community_types" json:"community_types"`
}

type MemberSpec struct {
	Age    dist.Spec `yaml:"age" json:"age"`
	Health dist.Spec `yaml:"health" json:"health"`
	Gender string    `yaml:"gender" json:"gender"`
}

type FamilyPatternSpec struct {
	Probability float64        `yaml:"probability" json:"probability"`
	Members     []MemberSpec   `yaml:"members" json:"members"`
	Location    dist.PointSpec `yaml:"location" json:"location"`
}

type RoleSpec struct {
	Age          dist.Spec      `yaml:"age" json:"age"`
	Gender       dist.Spec      `yaml:"gender" json:"gender"`
	TimeCycle    dist.CycleSpec `yaml:"time_cycle" json:"time_cycle"`
	Profession   bool           `yaml:"profession,omitempty" json:"profession,omitempty"`
	Priority     int            `yaml:"priority" json:"priority"`
	PresenceProb *float64       `yaml:"presence_prob,omitempty" json:"presence_prob,omitempty"`
}

type SubCommunitySpec struct {
	Name         string    `yaml:"name" json:"name"`
	Role         RoleSpec  `yaml:"role" json:"role"`
	Members      dist.Spec `yaml:"members" json:"members"`
	Connectivity dist.Spec `yaml:"connectivity" json:"connectivity"`
	Potential    dist.Spec `yaml:"potential" json:"potential"`
}

type CommunityTypeSpec struct {
	Name              string             `yaml:"name" json:"name"`
	Count             int                `yaml:"count" json:"count"`
	Location          dist.PointSpec     `yaml:"location" json:"location"`
	SubCommunities    []SubCommunitySpec `yaml:"sub_communities" json:"sub_communities"`
	InterConnectivity [][]dist.Spec      `yaml:"inter_connectivity,omitempty" json:"inter_connectivity,omitempty"`
	InterPotential    [][]dist.Spec      `yaml:"inter_potential,omitempty" json:"inter_potential,omitempty"`
}

func parseGender(s string) (Gender, error) {
	switch s {
	case "female", "f", "":
		return Female, nil
	case "male", "m":
		return Male, nil
	}
	return Female, fmt.Errorf("unknown gender %q", s)
}

// Generator validates the spec and compiles it into a Generator.
func (s Spec) Generator(logger *log.Logger) (*Generator, error) {
	if s.Size <= 0 {
		return nil, fmt.Errorf("population size must be positive")
	}
	if len(s.FamilyPatterns) == 0 {
		return nil, fmt.Errorf("at least one family pattern is required")
	}
	g := &Generator{size: s.Size, workers: s.Workers, logger: logger}
	total := 0.0
	for i, fp := range s.FamilyPatterns {
		if fp.Probability < 0 {
			return nil, fmt.Errorf("family pattern %d: negative probability", i)
		}
		if len(fp.Members) == 0 {
			return nil, fmt.Errorf("family pattern %d: no members", i)
		}
		total += fp.Probability
		bp := familyBlueprint{weight: fp.Probability}
		loc, err := fp.Location.Build()
		if err != nil {
			return nil, fmt.Errorf("family pattern %d location: %w", i, err)
		}
		bp.location = loc
		for j, m := range fp.Members {
			age, err := m.Age.Build()
			if err != nil {
				return nil, fmt.Errorf("family pattern %d member %d age: %w", i, j, err)
			}
			health, err := m.Health.Build()
			if err != nil {
				return nil, fmt.Errorf("family pattern %d member %d health: %w", i, j, err)
			}
			gender, err := parseGender(m.Gender)
			if err != nil {
				return nil, fmt.Errorf("family pattern %d member %d: %w", i, j, err)
			}
			bp.members = append(bp.members, memberBlueprint{age: age, health: health, gender: gender})
		}
		g.families = append(g.families, bp)
	}
	if total <= 0 {
		return nil, fmt.Errorf("family pattern probabilities must sum to a positive value")
	}
	names := make(map[string]struct{})
	for i, ct := range s.CommunityTypes {
		if ct.Name == "" {
			return nil, fmt.Errorf("community type %d: name is required", i)
		}
		if _, ok := names[ct.Name]; ok {
			return nil, fmt.Errorf("duplicate community type %s", ct.Name)
		}
		names[ct.Name] = struct{}{}
		tb, err := buildType(ct)
		if err != nil {
			return nil, fmt.Errorf("community type %s: %w", ct.Name, err)
		}
		g.types = append(g.types, tb)
	}
	return g, nil
}

func buildType(ct CommunityTypeSpec) (typeBlueprint, error) {
	tb := typeBlueprint{name: ct.Name, count: ct.Count}
	if ct.Count < 0 {
		return tb, fmt.Errorf("negative count")
	}
	loc, err := ct.Location.Build()
	if err != nil {
		return tb, fmt.Errorf("location: %w", err)
	}
	tb.location = loc
	if len(ct.SubCommunities) == 0 {
		return tb, fmt.Errorf("at least one sub-community is required")
	}
	for _, sc := range ct.SubCommunities {
		sb, err := buildSub(sc)
		if err != nil {
			return tb, fmt.Errorf("sub-community %s: %w", sc.Name, err)
		}
		tb.subs = append(tb.subs, sb)
	}
	n := len(ct.SubCommunities)
	if tb.interConnectivity, err = buildMatrix(ct.InterConnectivity, n); err != nil {
		return tb, fmt.Errorf("inter_connectivity: %w", err)
	}
	if tb.interPotential, err = buildMatrix(ct.InterPotential, n); err != nil {
		return tb, fmt.Errorf("inter_potential: %w", err)
	}
	return tb, nil
}

func buildSub(sc SubCommunitySpec) (subBlueprint, error) {
	sb := subBlueprint{name: sc.Name, priority: sc.Role.Priority, profession: sc.Role.Profession, presence: 1}
	if sc.Name == "" {
		return sb, fmt.Errorf("name is required")
	}
	if sc.Role.PresenceProb != nil {
		if *sc.Role.PresenceProb < 0 || *sc.Role.PresenceProb > 1 {
			return sb, fmt.Errorf("presence_prob outside [0,1]")
		}
		sb.presence = *sc.Role.PresenceProb
	}
	var err error
	if sb.age, err = sc.Role.Age.Build(); err != nil {
		return sb, fmt.Errorf("role age: %w", err)
	}
	if sb.gender, err = sc.Role.Gender.Build(); err != nil {
		return sb, fmt.Errorf("role gender: %w", err)
	}
	if sb.cycle, err = sc.Role.TimeCycle.Build(); err != nil {
		return sb, fmt.Errorf("role time cycle: %w", err)
	}
	if sb.members, err = sc.Members.Build(); err != nil {
		return sb, fmt.Errorf("members: %w", err)
	}
	if sb.connectivity, err = sc.Connectivity.Build(); err != nil {
		return sb, fmt.Errorf("connectivity: %w", err)
	}
	if sb.potential, err = sc.Potential.Build(); err != nil {
		return sb, fmt.Errorf("potential: %w", err)
	}
	return sb, nil
}

// buildMatrix compiles an n x n matrix. Missing matrices and cells without a
// kind mean "never".
func buildMatrix(rows [][]dist.Spec, n int) ([][]dist.Distribution, error) {
	out := make([][]dist.Distribution, n)
	for i := range out {
		out[i] = make([]dist.Distribution, n)
		for j := range out[i] {
			out[i][j] = dist.Constant{}
		}
	}
	if len(rows) == 0 {
		return out, nil
	}
	if len(rows) != n {
		return nil, fmt.Errorf("expected %d rows, got %d", n, len(rows))
	}
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("row %d: expected %d cells, got %d", i, n, len(row))
		}
		for j, cell := range row {
			if cell.Kind == "" {
				continue
			}
			d, err := cell.Build()
			if err != nil {
				return nil, fmt.Errorf("cell %d,%d: %w", i, j, err)
			}
			out[i][j] = d
		}
	}
	return out, nil
}
