package population

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"contagion/internal/dist"
)

type memberBlueprint struct {
	age, health dist.Distribution
	gender      Gender
}

type familyBlueprint struct {
	weight   float64
	members  []memberBlueprint
	location dist.PointSampler
}

type subBlueprint struct {
	name       string
	priority   int
	presence   float64
	profession bool
	cycle      dist.TimeCycle

	age, gender                      dist.Distribution
	members, connectivity, potential dist.Distribution
}

type typeBlueprint struct {
	name              string
	count             int
	location          dist.PointSampler
	subs              []subBlueprint
	interConnectivity [][]dist.Distribution
	interPotential    [][]dist.Distribution
}

// Generator builds a Population from compiled blueprints.
type Generator struct {
	size     int
	workers  int
	families []familyBlueprint
	types    []typeBlueprint
	logger   *log.Logger
}

type edgePlan struct {
	from, fromSub, to, toSub int
	potential                float64
}

type communityPlan struct {
	location dist.Point
	members  [][]int
	edges    []edgePlan
}

// Generate builds families on the calling goroutine, plans every community
// type in parallel against the read-only roster, then merges the plans in
// type order. The result depends only on seed.
func (g *Generator) Generate(ctx context.Context, seed uint64) (*Population, error) {
	r := dist.NewRand(seed)
	pop := New()
	if err := g.splitFamilies(r, pop); err != nil {
		return nil, err
	}

	plans := make([][]communityPlan, len(g.types))
	eg, ctx := errgroup.WithContext(ctx)
	workers := g.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	eg.SetLimit(workers)
	for ti := range g.types {
		jobRand := dist.NewRand(seed + uint64(ti+1)*0x9e3779b97f4a7c15)
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			plans[ti] = g.planType(jobRand, pop, g.types[ti])
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for ti, tb := range g.types {
		if err := g.merge(pop, tb, plans[ti]); err != nil {
			return nil, fmt.Errorf("community type %s: %w", tb.name, err)
		}
	}
	if g.logger != nil {
		g.logger.Info("population generated",
			"people", pop.Size(), "families", len(pop.Families),
			"communities", len(pop.AllCommunities()), "edges", pop.EdgeCount())
	}
	return pop, nil
}

func (g *Generator) splitFamilies(r *rand.Rand, pop *Population) error {
	total := 0.0
	for _, f := range g.families {
		total += f.weight
	}
	for remaining := g.size; remaining > 0; {
		pattern := g.pickPattern(r, total)
		n := min(len(pattern.members), remaining)
		ids := make([]int, 0, n)
		for _, m := range pattern.members[:n] {
			age := int(math.Round(m.age.Sample(r)))
			health := math.Min(math.Max(m.health.Sample(r), 0), 1)
			ids = append(ids, pop.AddPerson(max(age, 0), m.gender, health).ID)
		}
		if _, err := pop.AddFamily(pattern.location.Sample(r), ids); err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}

func (g *Generator) pickPattern(r *rand.Rand, total float64) familyBlueprint {
	x := r.Float64() * total
	for _, f := range g.families {
		if x < f.weight {
			return f
		}
		x -= f.weight
	}
	return g.families[len(g.families)-1]
}

func (g *Generator) planType(r *rand.Rand, pop *Population, tb typeBlueprint) []communityPlan {
	plans := make([]communityPlan, 0, tb.count)
	professionals := make(map[int]bool)
	for range tb.count {
		cp := communityPlan{location: tb.location.Sample(r), members: make([][]int, len(tb.subs))}
		for si, sb := range tb.subs {
			n := int(sb.members.Sample(r))
			cp.members[si] = selectMembers(pop, sb, cp.location, n, professionals)
			if sb.profession {
				for _, id := range cp.members[si] {
					professionals[id] = true
				}
			}
		}
		for si, sb := range tb.subs {
			connectivity := sb.connectivity.Sample(r)
			for _, i := range cp.members[si] {
				for _, j := range cp.members[si] {
					if i != j && dist.FlipCoin(r, connectivity) {
						cp.edges = append(cp.edges, edgePlan{i, si, j, si, clampUnit(sb.potential.Sample(r))})
					}
				}
			}
		}
		for s1 := range tb.subs {
			for s2 := range tb.subs {
				if s1 == s2 {
					continue
				}
				connectivity := tb.interConnectivity[s1][s2].Sample(r)
				if connectivity <= 0 {
					continue
				}
				for _, i := range cp.members[s1] {
					for _, j := range cp.members[s2] {
						if i != j && dist.FlipCoin(r, connectivity) {
							cp.edges = append(cp.edges, edgePlan{i, s1, j, s2, clampUnit(tb.interPotential[s1][s2].Sample(r))})
						}
					}
				}
			}
		}
		plans = append(plans, cp)
	}
	return plans
}

// selectMembers takes the n most likely people for the role, weighting the
// role likelihood of age and gender by proximity to the community.
func selectMembers(pop *Population, sb subBlueprint, location dist.Point, n int, professionals map[int]bool) []int {
	if n <= 0 {
		return nil
	}
	type candidate struct {
		id     int
		weight float64
	}
	var cands []candidate
	for _, p := range pop.People {
		if sb.profession && professionals[p.ID] {
			continue
		}
		w := sb.age.PDF(float64(p.Age)) * sb.gender.PDF(float64(p.Gender))
		if w <= 0 {
			continue
		}
		d := pop.Families[p.Family].Location.Distance(location)
		cands = append(cands, candidate{p.ID, w / (1 + d)})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].weight > cands[j].weight })
	if len(cands) > n {
		cands = cands[:n]
	}
	ids := make([]int, len(cands))
	for i, c := range cands {
		ids[i] = c.id
	}
	sort.Ints(ids)
	return ids
}

func (g *Generator) merge(pop *Population, tb typeBlueprint, plans []communityPlan) error {
	subs := make([]*SubCommunityType, len(tb.subs))
	for i, sb := range tb.subs {
		subs[i] = &SubCommunityType{
			Name: sb.name,
			Role: &Role{Priority: sb.priority, PresenceProb: sb.presence, Cycle: sb.cycle, Profession: sb.profession},
		}
	}
	ct := pop.AddType(tb.name, subs...)
	for _, cp := range plans {
		dropped := make(map[slot]bool)
		members := make([][]int, len(cp.members))
		for si, ids := range cp.members {
			for _, id := range ids {
				if tb.subs[si].profession {
					if pop.People[id].HasProfession {
						dropped[slot{id, si}] = true
						continue
					}
					pop.People[id].HasProfession = true
				}
				members[si] = append(members[si], id)
			}
		}
		c, err := pop.AddCommunity(ct, cp.location, members)
		if err != nil {
			return err
		}
		for _, e := range cp.edges {
			if dropped[slot{e.from, e.fromSub}] || dropped[slot{e.to, e.toSub}] {
				continue
			}
			if _, err := pop.Connect(c, e.from, e.fromSub, e.to, e.toSub, e.potential); err != nil {
				return err
			}
		}
	}
	return nil
}

func clampUnit(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
