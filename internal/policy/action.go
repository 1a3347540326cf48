package policy

import (
	"fmt"

	"github.com/charmbracelet/log"

	"contagion/internal/dist"
	"contagion/internal/engine"
	"contagion/internal/population"
)

// Action is a mutation a command applies to the population once its
// condition is satisfied. The set of actions is closed; see Apply.
type Action interface {
	Name() string
	isAction()
}

// Nope does nothing. Unknown command kinds parse to Nope.
type Nope struct{}

type QuarantineCommunity struct {
	Type  string
	Index int
}

type UnquarantineCommunity struct {
	Type  string
	Index int
}

type QuarantineCommunityType struct{ Type string }

type UnquarantineCommunityType struct{ Type string }

type QuarantineFamily struct{ ID int }

type UnquarantineFamily struct{ ID int }

type QuarantineFamilies struct{ IDs []int }

type UnquarantineFamilies struct{ IDs []int }

type QuarantinePerson struct{ ID int }

type UnquarantinePerson struct{ ID int }

type QuarantinePeople struct{ IDs []int }

type UnquarantinePeople struct{ IDs []int }

type QuarantineAllPeople struct{}

type UnquarantineAllPeople struct{}

// QuarantineDiseased quarantines everyone incubating or contagious.
type QuarantineDiseased struct{}

// QuarantineDiseasedNoisy detects each diseased person with Probability.
type QuarantineDiseasedNoisy struct{ Probability float64 }

type UnquarantineDiseased struct{}

// RestrictRoles sets the presence probability of Role to 1 - Ratio.
type RestrictRoles struct {
	Role  string
	Ratio float64
}

const (
	ActionNope                      = "nope"
	ActionQuarantineCommunity       = "quarantine_single_community"
	ActionUnquarantineCommunity     = "unquarantine_single_community"
	ActionQuarantineCommunityType   = "quarantine_community_type"
	ActionUnquarantineCommunityType = "unquarantine_community_type"
	ActionQuarantineFamily          = "quarantine_single_family"
	ActionUnquarantineFamily        = "unquarantine_single_family"
	ActionQuarantineFamilies        = "quarantine_multiple_families"
	ActionUnquarantineFamilies      = "unquarantine_multiple_families"
	ActionQuarantinePerson          = "quarantine_single_person"
	ActionUnquarantinePerson        = "unquarantine_single_person"
	ActionQuarantinePeople          = "quarantine_multiple_people"
	ActionUnquarantinePeople        = "unquarantine_multiple_people"
	ActionQuarantineAllPeople       = "quarantine_all_people"
	ActionUnquarantineAllPeople     = "unquarantine_all_people"
	ActionQuarantineDiseased        = "quarantine_diseased_people"
	ActionQuarantineDiseasedNoisy   = "quarantine_diseased_people_noisy"
	ActionUnquarantineDiseased      = "unquarantine_diseased_people"
	ActionRestrictRoles             = "restrict_certain_roles"
)

func (Nope) Name() string                      { return ActionNope }
func (QuarantineCommunity) Name() string       { return ActionQuarantineCommunity }
func (UnquarantineCommunity) Name() string     { return ActionUnquarantineCommunity }
func (QuarantineCommunityType) Name() string   { return ActionQuarantineCommunityType }
func (UnquarantineCommunityType) Name() string { return ActionUnquarantineCommunityType }
func (QuarantineFamily) Name() string          { return ActionQuarantineFamily }
func (UnquarantineFamily) Name() string        { return ActionUnquarantineFamily }
func (QuarantineFamilies) Name() string        { return ActionQuarantineFamilies }
func (UnquarantineFamilies) Name() string      { return ActionUnquarantineFamilies }
func (QuarantinePerson) Name() string          { return ActionQuarantinePerson }
func (UnquarantinePerson) Name() string        { return ActionUnquarantinePerson }
func (QuarantinePeople) Name() string          { return ActionQuarantinePeople }
func (UnquarantinePeople) Name() string        { return ActionUnquarantinePeople }
func (QuarantineAllPeople) Name() string       { return ActionQuarantineAllPeople }
func (UnquarantineAllPeople) Name() string     { return ActionUnquarantineAllPeople }
func (QuarantineDiseased) Name() string        { return ActionQuarantineDiseased }
func (QuarantineDiseasedNoisy) Name() string   { return ActionQuarantineDiseasedNoisy }
func (UnquarantineDiseased) Name() string      { return ActionUnquarantineDiseased }
func (RestrictRoles) Name() string             { return ActionRestrictRoles }

func (Nope) isAction()                      {}
func (QuarantineCommunity) isAction()       {}
func (UnquarantineCommunity) isAction()     {}
func (QuarantineCommunityType) isAction()   {}
func (UnquarantineCommunityType) isAction() {}
func (QuarantineFamily) isAction()          {}
func (UnquarantineFamily) isAction()        {}
func (QuarantineFamilies) isAction()        {}
func (UnquarantineFamilies) isAction()      {}
func (QuarantinePerson) isAction()          {}
func (UnquarantinePerson) isAction()        {}
func (QuarantinePeople) isAction()          {}
func (UnquarantinePeople) isAction()        {}
func (QuarantineAllPeople) isAction()       {}
func (UnquarantineAllPeople) isAction()     {}
func (QuarantineDiseased) isAction()        {}
func (QuarantineDiseasedNoisy) isAction()   {}
func (UnquarantineDiseased) isAction()      {}
func (RestrictRoles) isAction()             {}

// Validate checks that every id and name a references exists in pop.
func Validate(a Action, pop *population.Population) error {
	switch a := a.(type) {
	case QuarantineCommunity:
		_, err := pop.Community(a.Type, a.Index)
		return err
	case UnquarantineCommunity:
		_, err := pop.Community(a.Type, a.Index)
		return err
	case QuarantineCommunityType:
		_, err := pop.CommunityType(a.Type)
		return err
	case UnquarantineCommunityType:
		_, err := pop.CommunityType(a.Type)
		return err
	case QuarantineFamily:
		_, err := pop.Family(a.ID)
		return err
	case UnquarantineFamily:
		_, err := pop.Family(a.ID)
		return err
	case QuarantineFamilies:
		return checkFamilies(pop, a.IDs)
	case UnquarantineFamilies:
		return checkFamilies(pop, a.IDs)
	case QuarantinePerson:
		_, err := pop.Person(a.ID)
		return err
	case UnquarantinePerson:
		_, err := pop.Person(a.ID)
		return err
	case QuarantinePeople:
		return checkPeople(pop, a.IDs)
	case UnquarantinePeople:
		return checkPeople(pop, a.IDs)
	case QuarantineDiseasedNoisy:
		if a.Probability < 0 || a.Probability > 1 {
			return fmt.Errorf("detection probability %v outside [0,1]", a.Probability)
		}
	case RestrictRoles:
		if len(pop.RoleByName(a.Role)) == 0 {
			return fmt.Errorf("%w: %s", engine.ErrUnknownRole, a.Role)
		}
		if a.Ratio < 0 || a.Ratio > 1 {
			return fmt.Errorf("restriction ratio %v outside [0,1]", a.Ratio)
		}
	}
	return nil
}

func checkFamilies(pop *population.Population, ids []int) error {
	for _, id := range ids {
		if _, err := pop.Family(id); err != nil {
			return err
		}
	}
	return nil
}

func checkPeople(pop *population.Population, ids []int) error {
	for _, id := range ids {
		if _, err := pop.Person(id); err != nil {
			return err
		}
	}
	return nil
}

// Apply performs a against the simulator's population.
func Apply(a Action, s *engine.Simulator, logger *log.Logger) error {
	pop := s.Population()
	switch a := a.(type) {
	case Nope:
		return nil
	case QuarantineCommunity:
		c, err := pop.Community(a.Type, a.Index)
		if err != nil {
			return err
		}
		c.Quarantine()
		logger.Debug("community quarantined", "type", a.Type, "index", a.Index)
	case UnquarantineCommunity:
		c, err := pop.Community(a.Type, a.Index)
		if err != nil {
			return err
		}
		c.Unquarantine()
		logger.Debug("community unquarantined", "type", a.Type, "index", a.Index)
	case QuarantineCommunityType:
		return eachCommunity(pop, a.Type, (*population.Community).Quarantine)
	case UnquarantineCommunityType:
		return eachCommunity(pop, a.Type, (*population.Community).Unquarantine)
	case QuarantineFamily:
		return pop.QuarantineFamily(a.ID)
	case UnquarantineFamily:
		return pop.UnquarantineFamily(a.ID)
	case QuarantineFamilies:
		for _, id := range a.IDs {
			if err := pop.QuarantineFamily(id); err != nil {
				return err
			}
			logger.Debug("family quarantined", "family", id)
		}
	case UnquarantineFamilies:
		for _, id := range a.IDs {
			if err := pop.UnquarantineFamily(id); err != nil {
				return err
			}
			logger.Debug("family unquarantined", "family", id)
		}
	case QuarantinePerson:
		return pop.QuarantinePerson(a.ID)
	case UnquarantinePerson:
		return pop.UnquarantinePerson(a.ID)
	case QuarantinePeople:
		for _, id := range a.IDs {
			if err := pop.QuarantinePerson(id); err != nil {
				return err
			}
			logger.Debug("person quarantined", "person", id)
		}
	case UnquarantinePeople:
		for _, id := range a.IDs {
			if err := pop.UnquarantinePerson(id); err != nil {
				return err
			}
			logger.Debug("person unquarantined", "person", id)
		}
	case QuarantineAllPeople:
		for _, p := range pop.People {
			p.Quarantine()
		}
	case UnquarantineAllPeople:
		for _, p := range pop.People {
			p.Unquarantine()
		}
	case QuarantineDiseased:
		for _, p := range pop.People {
			if p.Diseased() {
				p.Quarantine()
				logger.Debug("person quarantined", "person", p.ID)
			}
		}
	case QuarantineDiseasedNoisy:
		for _, p := range pop.People {
			if p.Diseased() && dist.FlipCoin(s.Rand(), a.Probability) {
				p.Quarantine()
				logger.Debug("person quarantined", "person", p.ID)
			}
		}
	case UnquarantineDiseased:
		for _, p := range pop.People {
			if p.Diseased() {
				p.Unquarantine()
				logger.Debug("person unquarantined", "person", p.ID)
			}
		}
	case RestrictRoles:
		roles := pop.RoleByName(a.Role)
		if len(roles) == 0 {
			return fmt.Errorf("%w: %s", engine.ErrUnknownRole, a.Role)
		}
		for _, r := range roles {
			r.PresenceProb = 1 - a.Ratio
		}
	default:
		return fmt.Errorf("unhandled action %T", a)
	}
	return nil
}

func eachCommunity(pop *population.Population, typeName string, fn func(*population.Community)) error {
	ct, err := pop.CommunityType(typeName)
	if err != nil {
		return err
	}
	for _, c := range pop.Communities[ct.Index] {
		fn(c)
	}
	return nil
}
