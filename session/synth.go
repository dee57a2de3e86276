package session

import (
	"io"
	"log/slog"
	"sort"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/resolve"
)

// Synthesizer derives the operation table of a graph.
type Synthesizer struct {
	graph    *graph.Graph
	resolver *resolve.Resolver
	depth    int
	logger   *slog.Logger
}

// SynthOption configures a Synthesizer.
type SynthOption func(*Synthesizer)

// WithDepth sets the maximum eager-load path length. Zero disables eager
// loading.
func WithDepth(depth int) SynthOption {
	return func(s *Synthesizer) { s.depth = depth }
}

// WithSynthLogger sets the logger of the synthesizer.
func WithSynthLogger(l *slog.Logger) SynthOption {
	return func(s *Synthesizer) { s.logger = l }
}

// NewSynthesizer returns a synthesizer over the graph.
func NewSynthesizer(g *graph.Graph, opts ...SynthOption) *Synthesizer {
	s := &Synthesizer{
		graph:  g,
		depth:  graph.DefaultDepth,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resolver = resolve.New(g, resolve.WithLogger(s.logger))
	return s
}

// Synthesize builds the operation table: for every entity its create,
// createByArgs, retrieve, update, updateByArgs, delete and list operations,
// then the relationship operations of every hop starting at the entity.
// Reverse hops of bidirectionally declared edges are not hops, so they
// produce no operations; any other duplicate name fails with a
// NameCollisionError.
func (s *Synthesizer) Synthesize() (*Table, error) {
	if err := s.resolver.Validate(); err != nil {
		return nil, err
	}
	t := newTable(s.graph)
	for _, ent := range s.graph.Entities() {
		if err := s.entity(t, ent); err != nil {
			return nil, err
		}
		hops, err := s.graph.Hops(ent.Name)
		if err != nil {
			return nil, err
		}
		for _, h := range hops {
			if err := s.relationship(t, h); err != nil {
				return nil, err
			}
		}
	}
	s.logger.Debug("operations synthesized", "entities", len(s.graph.Entities()), "operations", t.Len())
	return t, nil
}

func (s *Synthesizer) entity(t *Table, ent *graph.Entity) error {
	paths, loads, flags, err := s.eager(ent.Name)
	if err != nil {
		return err
	}
	id := Param{Name: "id", Kind: ParamID, Type: ent.IDType()}
	fields := make([]Param, 0, len(ent.Fields()))
	for _, name := range ent.Fields() {
		a, _ := ent.Attributes.Lookup(name)
		fields = append(fields, Param{Name: graph.LowerCamel(name), Kind: ParamField, Type: a.Type})
	}
	data := Param{Name: "data", Kind: ParamData}
	options := Param{Name: "options", Kind: ParamOptions}
	ops := []*Operation{
		{Name: graph.MethodName("create", ent.Name), Verb: relgraph.OpCreate, Params: []Param{data}},
		{Name: graph.MethodName("create", ent.Name) + "ByArgs", Verb: relgraph.OpCreate, ByArgs: true, Params: fields},
		{Name: graph.MethodName("retrieve", ent.Name), Verb: relgraph.OpRetrieve, Params: []Param{id, options}},
		{Name: graph.MethodName("update", ent.Name), Verb: relgraph.OpUpdate, Params: []Param{id, data}},
		{Name: graph.MethodName("update", ent.Name) + "ByArgs", Verb: relgraph.OpUpdate, ByArgs: true, Params: append([]Param{id}, fields...)},
		{Name: graph.MethodName("delete", ent.Name), Verb: relgraph.OpDelete, Params: []Param{id}},
		{Name: graph.MethodName("list", graph.Plural(ent.Name)), Verb: relgraph.OpList, Params: []Param{{Name: "filter", Kind: ParamFilter}, options}},
	}
	for _, op := range ops {
		op.Entity = ent.Name
		op.idField = ent.IDField
		op.fields = ent.Fields()
		if op.Verb.Is(relgraph.OpRetrieve | relgraph.OpList) {
			op.Flags, op.paths, op.loads = flags, paths, loads
		}
		if err := t.add(op); err != nil {
			return err
		}
	}
	return nil
}

// eager discovers the eager-load paths of an entity and resolves the fetch
// of every hop prefix, keyed by path key.
func (s *Synthesizer) eager(name string) (map[string]graph.Path, map[string]*resolve.Resolution, []string, error) {
	paths, err := s.graph.Traverse(name, s.depth)
	if err != nil {
		return nil, nil, nil, err
	}
	byFlag := make(map[string]graph.Path, len(paths))
	loads := make(map[string]*resolve.Resolution, len(paths))
	flags := make([]string, 0, len(paths))
	for _, p := range paths {
		flag := p.Flag()
		if prev, ok := byFlag[flag]; ok {
			return nil, nil, nil, &relgraph.NameCollisionError{
				Name:   flag,
				First:  "eager path " + prev.Key() + " of " + name,
				Second: "eager path " + p.Key() + " of " + name,
			}
		}
		byFlag[flag] = p
		flags = append(flags, flag)
		res, err := s.resolver.Resolve(p.Last(), relgraph.OpGet)
		if err != nil {
			return nil, nil, nil, err
		}
		loads[p.Key()] = res
	}
	sort.Strings(flags)
	return byFlag, loads, flags, nil
}

func (s *Synthesizer) relationship(t *Table, h graph.Hop) error {
	from, err := s.graph.Entity(h.From())
	if err != nil {
		return err
	}
	to, err := s.graph.Entity(h.To())
	if err != nil {
		return err
	}
	id := Param{Name: "id", Kind: ParamID, Type: from.IDType()}
	verbs := resolve.ToOneOps
	if h.ToMany() {
		verbs = resolve.ToManyOps
	}
	for _, verb := range splitOps(verbs) {
		res, err := s.resolver.Resolve(h, verb)
		if err != nil {
			return err
		}
		op := &Operation{
			Name:    res.Name,
			Verb:    verb,
			Entity:  h.From(),
			Target:  h.To(),
			Alias:   h.Role(),
			Params:  []Param{id},
			idField: from.IDField,
			res:     res,
		}
		switch verb {
		case relgraph.OpSet, relgraph.OpIs:
			op.Params = append(op.Params, Param{Name: graph.LowerCamel(h.Role(), "id"), Kind: ParamTarget, Type: to.IDType()})
		case relgraph.OpAdd, relgraph.OpRemove, relgraph.OpSetMany, relgraph.OpHas:
			op.Params = append(op.Params, Param{Name: graph.LowerCamel(h.Role(), "ids"), Kind: ParamTargets, Type: to.IDType()})
		}
		if err := t.add(op); err != nil {
			return err
		}
	}
	return nil
}

// splitOps returns the single verbs of a combined op in bit order.
func splitOps(ops relgraph.Op) []relgraph.Op {
	var out []relgraph.Op
	for bit := relgraph.Op(1); bit != 0 && bit <= ops; bit <<= 1 {
		if ops&bit != 0 {
			out = append(out, bit)
		}
	}
	return out
}
