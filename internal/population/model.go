// Package population models people, families, communities and the directed
// contact graph between them.
package population

import (
	"fmt"

	"contagion/internal/dist"
)

// Status is the health status of a living or dead person.
type Status int

const (
	Clean Status = iota
	Incubating
	Contagious
)

func (s Status) String() string {
	switch s {
	case Clean:
		return "clean"
	case Incubating:
		return "incubating"
	case Contagious:
		return "contagious"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

type Gender int

const (
	Female Gender = iota
	Male
)

func (g Gender) String() string {
	if g == Male {
		return "male"
	}
	return "female"
}

// Edge is a directed potential-transmission relationship. Each side can be
// made available or quarantined independently.
type Edge struct {
	From      int
	To        int
	Potential float64

	FromAvailable   bool
	ToAvailable     bool
	FromQuarantined bool
	ToQuarantined   bool
}

// Active reports whether the edge can carry a transmission right now.
func (e *Edge) Active() bool {
	return e.FromAvailable && e.ToAvailable && !e.FromQuarantined && !e.ToQuarantined
}

// ResetAvailability clears both availability flags.
func (e *Edge) ResetAvailability() {
	e.FromAvailable = false
	e.ToAvailable = false
}

// Initialize clears every flag.
func (e *Edge) Initialize() {
	e.ResetAvailability()
	e.FromQuarantined = false
	e.ToQuarantined = false
}

// Role is shared by every member of a sub-community type.
type Role struct {
	Priority     int
	PresenceProb float64
	Cycle        dist.TimeCycle
	Profession   bool
}

// SubCommunityType names a role-homogeneous group inside a community type.
// Its name doubles as the role name.
type SubCommunityType struct {
	Name string
	Role *Role
}

type CommunityType struct {
	Index int
	Name  string
	Subs  []*SubCommunityType
}

// Membership places a person in one sub-community of a community.
type Membership struct {
	Community *Community
	Sub       int
}

func (m Membership) SubType() *SubCommunityType {
	return m.Community.Type.Subs[m.Sub]
}

func (m Membership) Role() *Role {
	return m.SubType().Role
}

// Place is a person's current location: their family when Community is nil,
// otherwise a sub-community of Community.
type Place struct {
	Community *Community
	Sub       int
}

func (p Place) AtFamily() bool { return p.Community == nil }

type Person struct {
	ID            int
	Age           int
	Gender        Gender
	Health        float64
	Family        int
	Status        Status
	Alive         bool
	Quarantined   bool
	Place         Place
	TimesInfected int
	HasProfession bool

	Memberships []Membership
	Out         []*Edge
	In          []*Edge

	// Transmissions lists the ids this person infected, one entry per successful transmission.
	Transmissions []int
}

// HasRole reports whether any membership is in the named sub-community type.
func (p *Person) HasRole(name string) bool {
	for _, m := range p.Memberships {
		if m.SubType().Name == name {
			return true
		}
	}
	return false
}

// Roles returns the distinct role names of the person in membership order.
func (p *Person) Roles() []string {
	var out []string
	seen := make(map[string]struct{}, len(p.Memberships))
	for _, m := range p.Memberships {
		name := m.SubType().Name
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func (p *Person) Quarantine() {
	p.Quarantined = true
	for _, e := range p.Out {
		e.FromQuarantined = true
	}
	for _, e := range p.In {
		e.ToQuarantined = true
	}
}

func (p *Person) Unquarantine() {
	p.Quarantined = false
	for _, e := range p.Out {
		e.FromQuarantined = false
	}
	for _, e := range p.In {
		e.ToQuarantined = false
	}
}

// Diseased reports whether the person currently carries an infection.
func (p *Person) Diseased() bool {
	return p.Status == Incubating || p.Status == Contagious
}

// Initialize puts the person back at home, healthy and never infected, with
// every incident edge cleared.
func (p *Person) Initialize() {
	p.Status = Clean
	p.Alive = true
	p.TimesInfected = 0
	p.Transmissions = nil
	p.Quarantined = false
	p.Place = Place{}
	for _, e := range p.Out {
		e.Initialize()
	}
	for _, e := range p.In {
		e.Initialize()
	}
}

func (p *Person) resetAvailability() {
	for _, e := range p.Out {
		e.ResetAvailability()
	}
	for _, e := range p.In {
		e.ResetAvailability()
	}
}

type Family struct {
	ID          int
	Members     []int
	Location    dist.Point
	Quarantined bool

	out map[int][]*Edge
	in  map[int][]*Edge
}

// OutEdges returns the family edges leaving person id.
func (f *Family) OutEdges(id int) []*Edge { return f.out[id] }

// InEdges returns the family edges entering person id.
func (f *Family) InEdges(id int) []*Edge { return f.in[id] }

type slot struct {
	person int
	sub    int
}

type Community struct {
	ID       int
	Index    int
	Type     *CommunityType
	Members  [][]int
	Location dist.Point

	open []bool
	out  map[slot][]*Edge
	in   map[slot][]*Edge
}

// OutEdges returns the edges leaving person id while present in sub-community sub.
func (c *Community) OutEdges(id, sub int) []*Edge { return c.out[slot{id, sub}] }

// InEdges returns the edges entering person id while present in sub-community sub.
func (c *Community) InEdges(id, sub int) []*Edge { return c.in[slot{id, sub}] }

func (c *Community) Quarantine() {
	for i := range c.open {
		c.open[i] = false
	}
}

func (c *Community) Unquarantine() {
	for i := range c.open {
		c.open[i] = true
	}
}

func (c *Community) QuarantineSub(sub int) error {
	if sub < 0 || sub >= len(c.open) {
		return fmt.Errorf("community %s/%d has no sub-community %d", c.Type.Name, c.Index, sub)
	}
	c.open[sub] = false
	return nil
}

func (c *Community) UnquarantineSub(sub int) error {
	if sub < 0 || sub >= len(c.open) {
		return fmt.Errorf("community %s/%d has no sub-community %d", c.Type.Name, c.Index, sub)
	}
	c.open[sub] = true
	return nil
}

// IsOpen reports whether sub-community sub is open.
func (c *Community) IsOpen(sub int) bool {
	return sub >= 0 && sub < len(c.open) && c.open[sub]
}

// Closed reports whether every sub-community is closed.
func (c *Community) Closed() bool {
	for _, o := range c.open {
		if o {
			return false
		}
	}
	return true
}

// OpenMask returns a copy of the open flags.
func (c *Community) OpenMask() []bool {
	return append([]bool(nil), c.open...)
}
