package population

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"contagion/internal/dist"
)

var (
	ErrUnknownPerson    = errors.New("unknown person")
	ErrUnknownFamily    = errors.New("unknown family")
	ErrUnknownCommunity = errors.New("unknown community")
)

// Population is the roster arena. People, families and communities are
// indexed by id; cross references are ids or pointers into these slices.
type Population struct {
	People      []*Person
	Families    []*Family
	Types       []*CommunityType
	Communities [][]*Community

	nextCommunityID int
}

func New() *Population {
	return &Population{}
}

func (p *Population) Size() int { return len(p.People) }

// AddPerson appends a living, clean person and returns it. The family is
// assigned by AddFamily.
func (p *Population) AddPerson(age int, gender Gender, health float64) *Person {
	person := &Person{
		ID:     len(p.People),
		Age:    age,
		Gender: gender,
		Health: health,
		Family: -1,
		Alive:  true,
	}
	p.People = append(p.People, person)
	return person
}

// AddFamily groups members into a family and connects every ordered pair of
// members with a potential-1 edge.
func (p *Population) AddFamily(location dist.Point, members []int) (*Family, error) {
	f := &Family{
		ID:       len(p.Families),
		Members:  append([]int(nil), members...),
		Location: location,
		out:      make(map[int][]*Edge),
		in:       make(map[int][]*Edge),
	}
	for _, id := range members {
		person, err := p.Person(id)
		if err != nil {
			return nil, err
		}
		if person.Family >= 0 {
			return nil, fmt.Errorf("person %d already belongs to family %d", id, person.Family)
		}
		person.Family = f.ID
	}
	for _, i := range members {
		for _, j := range members {
			if i == j {
				continue
			}
			e := p.link(i, j, 1)
			f.out[i] = append(f.out[i], e)
			f.in[j] = append(f.in[j], e)
		}
	}
	p.Families = append(p.Families, f)
	return f, nil
}

// AddType registers a community type.
func (p *Population) AddType(name string, subs ...*SubCommunityType) *CommunityType {
	ct := &CommunityType{Index: len(p.Types), Name: name, Subs: subs}
	p.Types = append(p.Types, ct)
	p.Communities = append(p.Communities, nil)
	return ct
}

// AddCommunity creates an open community of type ct; members[i] lists the
// people of sub-community i.
func (p *Population) AddCommunity(ct *CommunityType, location dist.Point, members [][]int) (*Community, error) {
	if ct.Index >= len(p.Types) || p.Types[ct.Index] != ct {
		return nil, fmt.Errorf("community type %s is not registered", ct.Name)
	}
	if len(members) != len(ct.Subs) {
		return nil, fmt.Errorf("community type %s has %d sub-communities, got %d member lists", ct.Name, len(ct.Subs), len(members))
	}
	c := &Community{
		ID:       p.nextCommunityID,
		Index:    len(p.Communities[ct.Index]),
		Type:     ct,
		Members:  make([][]int, len(members)),
		Location: location,
		open:     make([]bool, len(ct.Subs)),
		out:      make(map[slot][]*Edge),
		in:       make(map[slot][]*Edge),
	}
	for sub, ids := range members {
		c.Members[sub] = append([]int(nil), ids...)
		for _, id := range ids {
			person, err := p.Person(id)
			if err != nil {
				return nil, err
			}
			person.Memberships = append(person.Memberships, Membership{Community: c, Sub: sub})
		}
	}
	c.Unquarantine()
	p.nextCommunityID++
	p.Communities[ct.Index] = append(p.Communities[ct.Index], c)
	return c, nil
}

// Connect adds a community edge from (from, fromSub) to (to, toSub).
func (p *Population) Connect(c *Community, from, fromSub, to, toSub int, potential float64) (*Edge, error) {
	if _, err := p.Person(from); err != nil {
		return nil, err
	}
	if _, err := p.Person(to); err != nil {
		return nil, err
	}
	if fromSub < 0 || fromSub >= len(c.open) || toSub < 0 || toSub >= len(c.open) {
		return nil, fmt.Errorf("community %s/%d: sub-community out of range", c.Type.Name, c.Index)
	}
	if potential < 0 || potential > 1 {
		return nil, fmt.Errorf("transmission potential %v outside [0,1]", potential)
	}
	e := p.link(from, to, potential)
	c.out[slot{from, fromSub}] = append(c.out[slot{from, fromSub}], e)
	c.in[slot{to, toSub}] = append(c.in[slot{to, toSub}], e)
	return e, nil
}

func (p *Population) link(from, to int, potential float64) *Edge {
	e := &Edge{From: from, To: to, Potential: potential}
	p.People[from].Out = append(p.People[from].Out, e)
	p.People[to].In = append(p.People[to].In, e)
	return e
}

func (p *Population) Person(id int) (*Person, error) {
	if id < 0 || id >= len(p.People) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPerson, id)
	}
	return p.People[id], nil
}

func (p *Population) Family(id int) (*Family, error) {
	if id < 0 || id >= len(p.Families) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFamily, id)
	}
	return p.Families[id], nil
}

// CommunityType looks a type up by name.
func (p *Population) CommunityType(name string) (*CommunityType, error) {
	for _, ct := range p.Types {
		if ct.Name == name {
			return ct, nil
		}
	}
	return nil, fmt.Errorf("%w: type %s", ErrUnknownCommunity, name)
}

// Community returns the index-th community of the named type.
func (p *Population) Community(typeName string, index int) (*Community, error) {
	ct, err := p.CommunityType(typeName)
	if err != nil {
		return nil, err
	}
	list := p.Communities[ct.Index]
	if index < 0 || index >= len(list) {
		return nil, fmt.Errorf("%w: %s/%d", ErrUnknownCommunity, typeName, index)
	}
	return list[index], nil
}

// AllCommunities flattens communities in type order.
func (p *Population) AllCommunities() []*Community {
	var out []*Community
	for _, list := range p.Communities {
		out = append(out, list...)
	}
	return out
}

// Roles returns every role name, sorted.
func (p *Population) Roles() []string {
	seen := make(map[string]struct{})
	for _, ct := range p.Types {
		for _, sub := range ct.Subs {
			seen[sub.Name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RoleByName returns every Role object registered under name.
func (p *Population) RoleByName(name string) []*Role {
	var out []*Role
	for _, ct := range p.Types {
		for _, sub := range ct.Subs {
			if sub.Name == name {
				out = append(out, sub.Role)
			}
		}
	}
	return out
}

// EdgeCount is the number of directed edges in the contact graph.
func (p *Population) EdgeCount() int {
	n := 0
	for _, person := range p.People {
		n += len(person.Out)
	}
	return n
}

// Initialize returns every person to their family with cleared edges and
// reopens every community.
func (p *Population) Initialize() {
	for _, person := range p.People {
		person.Initialize()
	}
	for _, f := range p.Families {
		f.Quarantined = false
	}
	for _, c := range p.AllCommunities() {
		c.Unquarantine()
	}
}

func (p *Population) QuarantinePerson(id int) error {
	person, err := p.Person(id)
	if err != nil {
		return err
	}
	person.Quarantine()
	return nil
}

func (p *Population) UnquarantinePerson(id int) error {
	person, err := p.Person(id)
	if err != nil {
		return err
	}
	person.Unquarantine()
	return nil
}

// QuarantineFamily quarantines the family and each of its members.
func (p *Population) QuarantineFamily(id int) error {
	f, err := p.Family(id)
	if err != nil {
		return err
	}
	f.Quarantined = true
	for _, m := range f.Members {
		p.People[m].Quarantine()
	}
	return nil
}

func (p *Population) UnquarantineFamily(id int) error {
	f, err := p.Family(id)
	if err != nil {
		return err
	}
	f.Quarantined = false
	for _, m := range f.Members {
		p.People[m].Unquarantine()
	}
	return nil
}

// ResetAvailability clears the availability flags of every edge.
func (p *Population) ResetAvailability() {
	for _, person := range p.People {
		person.resetAvailability()
	}
}

// ActivatePlace marks the person's side of every edge of their current place
// as available.
func (p *Population) ActivatePlace(person *Person) {
	var out, in []*Edge
	if person.Place.AtFamily() {
		if person.Family < 0 {
			return
		}
		f := p.Families[person.Family]
		out, in = f.OutEdges(person.ID), f.InEdges(person.ID)
	} else {
		c := person.Place.Community
		out, in = c.OutEdges(person.ID, person.Place.Sub), c.InEdges(person.ID, person.Place.Sub)
	}
	for _, e := range out {
		e.FromAvailable = true
	}
	for _, e := range in {
		e.ToAvailable = true
	}
}

// Location resolves the person's current position with location noise.
func (p *Population) Location(person *Person, r *rand.Rand) dist.Point {
	base := dist.Point{}
	if person.Place.AtFamily() {
		if person.Family >= 0 {
			base = p.Families[person.Family].Location
		}
	} else {
		base = person.Place.Community.Location
	}
	return base.Add(dist.LocationNoise.Sample(r))
}
