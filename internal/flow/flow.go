// Package flow drives one user interaction from free text (or a selection token) to a
// reply: resolve the name, render a unique match, offer choices for several, or answer
// negatively.
//
// No session is kept between calls. A selection token carries everything needed to find
// the record again, so a reply to a list shown hours ago is handled like any other.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/denisok6893-rgb/estatebot/internal/compose"
	"github.com/denisok6893-rgb/estatebot/internal/domain"
	"github.com/denisok6893-rgb/estatebot/internal/matching"
	"github.com/denisok6893-rgb/estatebot/internal/metrics"
)

type State int

const (
	AwaitingQuery State = iota
	Resolving
	UniqueMatch
	MultipleMatches
	AwaitingSelection
	NoMatch
	Done
)

var stateNames = [...]string{
	AwaitingQuery:     "awaiting_query",
	Resolving:         "resolving",
	UniqueMatch:       "unique_match",
	MultipleMatches:   "multiple_matches",
	AwaitingSelection: "awaiting_selection",
	NoMatch:           "no_match",
	Done:              "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

type EventKind int

const (
	// Text is a free-text query from the user.
	Text EventKind = iota
	// Selection is a token from a previously presented choice list.
	Selection
	// advance moves through internal states without new input.
	advance
)

// Action is what to do with the record once it is found.
type Action string

const (
	Info  Action = "q"
	Files Action = "f"
)

func parseAction(s string) (Action, bool) {
	switch Action(s) {
	case Info, Files:
		return Action(s), true
	}
	return "", false
}

func (a Action) String() string {
	if a == Files {
		return "files"
	}
	return "info"
}

// Kind tells the presentation layer which message to build.
type Kind string

const (
	KindRecord      Kind = "record"
	KindChoices     Kind = "choices"
	KindDocuments   Kind = "documents"
	KindNoDocuments Kind = "no_documents"
	KindNegative    Kind = "negative"
)

type Input struct {
	Action Action
	Kind   EventKind
	Text   string
	Token  string
}

type Choice struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

type Reply struct {
	Action    Action            `json:"action"`
	Kind      Kind              `json:"kind"`
	States    []State           `json:"-"`
	Text      string            `json:"text,omitempty"`
	Choices   []Choice          `json:"choices,omitempty"`
	Total     int               `json:"total,omitempty"`
	Project   *domain.Project   `json:"project,omitempty"`
	Response  *compose.Response `json:"response,omitempty"`
	Documents []domain.Document `json:"documents,omitempty"`
}

// Final is the state the reply ended in.
func (r Reply) Final() State {
	if len(r.States) == 0 {
		return AwaitingQuery
	}
	return r.States[len(r.States)-1]
}

type Resolver interface {
	Resolve(ctx context.Context, query string) (domain.SearchResult, error)
}

// Lookup re-reads a record when a selection comes back.
type Lookup interface {
	FindByName(ctx context.Context, name string) ([]domain.Project, error)
	GetProject(ctx context.Context, id int) (domain.Project, bool, error)
}

// DocumentFinder lists the documents filed under a project's display key.
type DocumentFinder interface {
	Find(ctx context.Context, displayKey string) ([]domain.Document, error)
}

type Config struct {
	// LabelLimit is the longest choice label in runes.
	LabelLimit int `koanf:"label_limit" yaml:"label_limit"`
	// TokenLimit is the longest choice token in bytes.
	TokenLimit int `koanf:"token_limit" yaml:"token_limit"`
	// MaxChoices caps the rendered list; similarity results are already capped upstream.
	MaxChoices int `koanf:"max_choices" yaml:"max_choices"`
}

func DefaultConfig() Config {
	return Config{LabelLimit: 64, TokenLimit: 64, MaxChoices: 10}
}

func (c Config) Validate() error {
	if c.LabelLimit <= 0 || c.TokenLimit <= 0 || c.MaxChoices <= 0 {
		return fmt.Errorf("flow limits must be > 0: %+v", c)
	}
	// the id form must always fit
	if c.TokenLimit < len("q:i:")+10 {
		return fmt.Errorf("flow.token_limit %d is too small for id tokens", c.TokenLimit)
	}
	return nil
}

type Flow struct {
	resolver Resolver
	lookup   Lookup
	composer *compose.Composer
	docs     DocumentFinder
	cfg      Config
	log      *slog.Logger
	table    map[State]map[EventKind]handler
}

// handler runs the work of one state and names the next one.
type handler func(ctx context.Context, r *run) State

// run is the scratch space of a single Handle call.
type run struct {
	in      Input
	action  Action
	result  domain.SearchResult
	project domain.Project
	reply   Reply
}

// New builds a flow. docs may be nil, in which case Files always finds nothing.
func New(resolver Resolver, lookup Lookup, composer *compose.Composer, docs DocumentFinder, cfg Config, log *slog.Logger) *Flow {
	if log == nil {
		log = slog.Default()
	}
	f := &Flow{
		resolver: resolver,
		lookup:   lookup,
		composer: composer,
		docs:     docs,
		cfg:      cfg,
		log:      log.With(slog.String("component", "flow")),
	}
	f.table = map[State]map[EventKind]handler{
		AwaitingQuery:     {Text: f.acceptQuery},
		Resolving:         {advance: f.resolve},
		UniqueMatch:       {advance: f.render},
		MultipleMatches:   {advance: f.present},
		AwaitingSelection: {Selection: f.acceptSelection},
		NoMatch:           {advance: f.negative},
	}
	return f
}

// Handle runs the state machine for one input until it is done or waits for a selection.
// Errors never escape: they are logged and the user gets the negative reply.
func (f *Flow) Handle(ctx context.Context, in Input) Reply {
	r := &run{in: in, action: in.Action}
	if r.action == "" {
		r.action = Info
	}

	state := AwaitingQuery
	if in.Kind == Selection {
		state = AwaitingSelection
	}
	event := in.Kind
	r.reply.States = append(r.reply.States, state)

	for {
		h, ok := f.table[state][event]
		if !ok {
			f.log.Error("no transition", slog.String("state", state.String()), slog.Int("event", int(event)))
			state = f.negative(ctx, r)
			r.reply.States = append(r.reply.States, state)
			break
		}
		next := h(ctx, r)
		r.reply.States = append(r.reply.States, next)
		if next == Done || next == AwaitingSelection {
			break
		}
		state, event = next, advance
	}

	r.reply.Action = r.action
	metrics.RecordFlowReply(r.action.String(), r.reply.Final().String())
	return r.reply
}

func (f *Flow) acceptQuery(_ context.Context, r *run) State {
	if strings.TrimSpace(r.in.Text) == "" {
		return NoMatch
	}
	return Resolving
}

func (f *Flow) resolve(ctx context.Context, r *run) State {
	res, err := f.resolver.Resolve(ctx, r.in.Text)
	if err != nil {
		f.fail(err, slog.String("query", r.in.Text))
		return NoMatch
	}
	r.result = res
	switch matching.Classify(res) {
	case matching.Unique:
		r.project = res.Candidates[0].Project
		return UniqueMatch
	case matching.Ambiguous:
		return MultipleMatches
	default:
		return NoMatch
	}
}

func (f *Flow) present(_ context.Context, r *run) State {
	cands := r.result.Candidates
	r.reply.Total = len(cands)
	if len(cands) > f.cfg.MaxChoices {
		cands = cands[:f.cfg.MaxChoices]
	}
	used := make(map[string]bool, len(cands))
	r.reply.Kind = KindChoices
	r.reply.Choices = make([]Choice, 0, len(cands))
	for _, c := range cands {
		tok := encodeToken(r.action, c.Project, f.cfg.TokenLimit, used)
		used[tok] = true
		r.reply.Choices = append(r.reply.Choices, Choice{
			Label: truncateLabel(c.Project.NameIDBuildings, f.cfg.LabelLimit),
			Token: tok,
		})
	}
	return AwaitingSelection
}

func (f *Flow) acceptSelection(ctx context.Context, r *run) State {
	sel, err := decodeToken(r.in.Token)
	if err != nil {
		f.log.Info("selection rejected", slog.String("token", r.in.Token), slog.String("error", err.Error()))
		return NoMatch
	}
	r.action = sel.action

	p, err := f.reload(ctx, sel)
	if err != nil {
		if errors.Is(err, ErrInvalidSelection) {
			f.log.Info("selection rejected", slog.String("token", r.in.Token), slog.String("error", err.Error()))
		} else {
			f.fail(err, slog.String("token", r.in.Token))
		}
		return NoMatch
	}
	r.project = p
	return UniqueMatch
}

// reload fetches the selected record again; the list it came from may be stale.
func (f *Flow) reload(ctx context.Context, sel selection) (domain.Project, error) {
	if sel.key != "" {
		ps, err := f.lookup.FindByName(ctx, sel.key)
		if err != nil {
			return domain.Project{}, fmt.Errorf("%w: by name %q: %w", matching.ErrLookupFailed, sel.key, err)
		}
		if len(ps) == 0 {
			return domain.Project{}, fmt.Errorf("%w: no project named %q", ErrInvalidSelection, sel.key)
		}
		return ps[0], nil
	}
	p, ok, err := f.lookup.GetProject(ctx, sel.id)
	if err != nil {
		return domain.Project{}, fmt.Errorf("%w: by id %d: %w", matching.ErrLookupFailed, sel.id, err)
	}
	if !ok {
		return domain.Project{}, fmt.Errorf("%w: no project with id %d", ErrInvalidSelection, sel.id)
	}
	return p, nil
}

func (f *Flow) render(ctx context.Context, r *run) State {
	p := r.project
	if r.action == Files {
		return f.documents(ctx, r)
	}

	resp, err := f.composer.Compose(p)
	if err != nil {
		f.fail(err, slog.Int("project_id", p.ProjectID))
		return NoMatch
	}
	r.reply.Kind = KindRecord
	r.reply.Text = resp.Text
	r.reply.Project = &p
	r.reply.Response = &resp
	return Done
}

func (f *Flow) documents(ctx context.Context, r *run) State {
	p := r.project
	r.reply.Project = &p
	r.reply.Kind = KindNoDocuments
	if f.docs == nil {
		return Done
	}
	docs, err := f.docs.Find(ctx, p.NameIDBuildings)
	if err != nil {
		f.fail(err, slog.Int("project_id", p.ProjectID))
		return Done
	}
	if len(docs) > 0 {
		r.reply.Kind = KindDocuments
		r.reply.Documents = docs
	}
	return Done
}

func (f *Flow) negative(_ context.Context, r *run) State {
	r.reply.Kind = KindNegative
	r.reply.Choices = nil
	r.reply.Project = nil
	r.reply.Response = nil
	return Done
}

func (f *Flow) fail(err error, attrs ...any) {
	f.log.Error("interaction failed", append(attrs, slog.String("error", err.Error()))...)
}
