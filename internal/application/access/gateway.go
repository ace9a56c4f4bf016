package access

import (
	"context"
	"fmt"
	"sort"

	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/shared"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Storage is the storage collaborator behind the gateway. Query must AND the
// predicate into the read; Mutate applies a write to a single record and, for
// updates and deletes, must scope the write with the predicate too.
type Storage interface {
	Query(ctx context.Context, entity access.EntitySpec, pred access.Predicate, filter Filter) ([]access.Record, error)
	Mutate(ctx context.Context, entity access.EntitySpec, action access.Action, scope access.Predicate, payload access.Record) (access.Record, error)
}

// Filter narrows a read beyond the policy predicate.
type Filter struct {
	ID      string
	Equals  map[string]any
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// DecisionRecorder observes authorization outcomes.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, entity access.EntityType, action access.Action, allowed bool, reason string)
}

// Write describes a committed record write. Before is empty for creates and
// After is empty for deletes.
type Write struct {
	Entity access.EntityType
	Action access.Action
	Before access.Record
	After  access.Record
}

// WriteObserver is told about writes once their unit of work has committed.
type WriteObserver interface {
	RecordWritten(ctx context.Context, w Write)
}

// Request is one gateway operation.
type Request struct {
	Entity  access.EntityType
	Action  access.Action
	ID      string
	Payload access.Record
	Filter  Filter
}

// Result carries the storage result verbatim.
type Result struct {
	Records []access.Record
	Record  access.Record
}

// Gateway is the single entry point for tenant-scoped data operations.
type Gateway struct {
	engine   *access.Engine
	storage  Storage
	recorder DecisionRecorder
	logger   *zap.Logger

	observers []WriteObserver
}

// GatewayConfig contains the gateway's collaborators
type GatewayConfig struct {
	Engine   *access.Engine
	Storage  Storage
	Recorder DecisionRecorder
	Logger   *zap.Logger
}

// NewGateway creates a Gateway
func NewGateway(cfg GatewayConfig) *Gateway {
	g := &Gateway{
		engine:   cfg.Engine,
		storage:  cfg.Storage,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
	}
	if g.engine == nil {
		g.engine = access.NewEngine(nil)
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g
}

// Observe registers obs for committed writes. Call it while wiring, before
// the gateway serves requests.
func (g *Gateway) Observe(obs WriteObserver) {
	g.observers = append(g.observers, obs)
}

// Engine returns the policy engine used by the gateway.
func (g *Gateway) Engine() *access.Engine {
	return g.engine
}

// Execute performs req under the security context bound to ctx.
func (g *Gateway) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sc, ok := Current(ctx)
	if !ok {
		return nil, shared.ErrMissingContext
	}
	spec, ok := g.engine.Catalog().Lookup(req.Entity)
	if !ok {
		return nil, g.denied(ctx, sc, req.Entity, req.Action, access.Decision{Reason: "unknown_entity"})
	}

	switch req.Action {
	case access.ActionRead:
		records, err := g.query(ctx, sc, spec, req.Filter)
		if err != nil {
			return nil, err
		}
		return &Result{Records: records}, nil
	case access.ActionCreate:
		rec, err := g.create(ctx, sc, spec, req.Payload)
		if err != nil {
			return nil, err
		}
		return &Result{Record: rec}, nil
	case access.ActionUpdate, access.ActionDelete:
		rec, err := g.modify(ctx, sc, spec, req.Action, req.ID, req.Payload)
		if err != nil {
			return nil, err
		}
		return &Result{Record: rec}, nil
	}
	return nil, g.denied(ctx, sc, req.Entity, req.Action, access.Decision{Reason: "unknown_action"})
}

// Query reads entity records visible to the bound caller.
func (g *Gateway) Query(ctx context.Context, entity access.EntityType, filter Filter) ([]access.Record, error) {
	res, err := g.Execute(ctx, Request{Entity: entity, Action: access.ActionRead, Filter: filter})
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// Create inserts payload as a new record of entity.
func (g *Gateway) Create(ctx context.Context, entity access.EntityType, payload access.Record) (access.Record, error) {
	res, err := g.Execute(ctx, Request{Entity: entity, Action: access.ActionCreate, Payload: payload})
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

// Update writes changes to the record with id.
func (g *Gateway) Update(ctx context.Context, entity access.EntityType, id string, changes access.Record) (access.Record, error) {
	res, err := g.Execute(ctx, Request{Entity: entity, Action: access.ActionUpdate, ID: id, Payload: changes})
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

// Delete removes the record with id.
func (g *Gateway) Delete(ctx context.Context, entity access.EntityType, id string) error {
	_, err := g.Execute(ctx, Request{Entity: entity, Action: access.ActionDelete, ID: id})
	return err
}

func (g *Gateway) query(ctx context.Context, sc access.SecurityContext, spec access.EntitySpec, filter Filter) ([]access.Record, error) {
	d := g.engine.Authorize(sc, spec.Type, access.ActionRead, nil)
	if !d.Allowed || d.Predicate == nil {
		return nil, g.denied(ctx, sc, spec.Type, access.ActionRead, d)
	}
	g.allowed(ctx, spec.Type, access.ActionRead, d)

	records, err := g.storage.Query(ctx, spec, *d.Predicate, filter)
	if err != nil {
		return nil, err
	}
	return g.enforce(ctx, *d.Predicate, records), nil
}

// enforce drops records the predicate does not admit. The storage
// collaborator is expected to have filtered already; anything dropped here
// means it did not.
func (g *Gateway) enforce(ctx context.Context, pred access.Predicate, records []access.Record) []access.Record {
	facts, hasFacts := g.storage.(access.Facts)
	kept := lo.Filter(records, func(r access.Record, _ int) bool {
		if hasFacts {
			return pred.Matches(r, facts)
		}
		return pred.MatchesOrg(r)
	})
	if dropped := len(records) - len(kept); dropped > 0 {
		g.logger.Warn("Storage returned records outside the caller's scope",
			zap.String("entity", string(pred.Entity)),
			zap.String("org_id", pred.OrgID),
			zap.Int("dropped", dropped))
	}
	return kept
}

func (g *Gateway) create(ctx context.Context, sc access.SecurityContext, spec access.EntitySpec, payload access.Record) (access.Record, error) {
	if len(payload) == 0 {
		return nil, shared.ErrInvalidInput.WithDetail("reason", "empty payload")
	}
	if err := checkFields(spec, payload); err != nil {
		return nil, err
	}
	payload = payload.Clone()
	if payload.String(spec.OrgField) == "" {
		payload[spec.OrgField] = sc.OrgID()
	}

	target := &access.Target{OrgID: payload.String(spec.OrgField), Record: payload, Changes: sortedFields(payload)}
	d := g.engine.Authorize(sc, spec.Type, access.ActionCreate, target)
	if !d.Allowed {
		return nil, g.denied(ctx, sc, spec.Type, access.ActionCreate, d)
	}
	g.allowed(ctx, spec.Type, access.ActionCreate, d)

	scope := access.Predicate{Entity: spec.Type, Table: spec.Table, OrgField: spec.OrgField, OrgID: sc.OrgID(), CallerID: sc.CallerID()}
	rec, err := g.storage.Mutate(ctx, spec, access.ActionCreate, scope, payload)
	if err != nil {
		return nil, err
	}
	g.written(ctx, Write{Entity: spec.Type, Action: access.ActionCreate, After: rec})
	return rec, nil
}

func (g *Gateway) modify(ctx context.Context, sc access.SecurityContext, spec access.EntitySpec, action access.Action, id string, changes access.Record) (access.Record, error) {
	if id == "" {
		return nil, shared.ErrInvalidInput.WithDetail("reason", "missing record id")
	}
	if action == access.ActionUpdate {
		if len(changes) == 0 {
			return nil, shared.ErrInvalidInput.WithDetail("reason", "empty payload")
		}
		if err := checkFields(spec, changes); err != nil {
			return nil, err
		}
	}

	// The target is loaded under the caller's own read predicate, so a record
	// in another organization is indistinguishable from one that does not exist.
	read := g.engine.Authorize(sc, spec.Type, access.ActionRead, nil)
	if !read.Allowed || read.Predicate == nil {
		return nil, g.denied(ctx, sc, spec.Type, action, read)
	}
	found, err := g.storage.Query(ctx, spec, *read.Predicate, Filter{ID: id, Limit: 1})
	if err != nil {
		return nil, err
	}
	found = g.enforce(ctx, *read.Predicate, found)
	if len(found) == 0 {
		return nil, g.denied(ctx, sc, spec.Type, action, access.Decision{Reason: "target_not_visible"})
	}
	current := found[0]

	target := &access.Target{OrgID: current.String(spec.OrgField), Record: current}
	if action == access.ActionUpdate {
		target.Changes = sortedFields(changes)
	}
	d := g.engine.Authorize(sc, spec.Type, action, target)
	if !d.Allowed {
		return nil, g.denied(ctx, sc, spec.Type, action, d)
	}
	g.allowed(ctx, spec.Type, action, d)

	payload := changes.Clone()
	if payload == nil {
		payload = access.Record{}
	}
	payload["id"] = id
	rec, err := g.storage.Mutate(ctx, spec, action, *read.Predicate, payload)
	if err != nil {
		return nil, err
	}
	w := Write{Entity: spec.Type, Action: action, Before: current}
	if action == access.ActionUpdate {
		w.After = rec
	}
	g.written(ctx, w)
	return rec, nil
}

// written hands w to the observers after the unit of work commits.
func (g *Gateway) written(ctx context.Context, w Write) {
	for _, obs := range g.observers {
		AfterCommit(ctx, func(ctx context.Context) { obs.RecordWritten(ctx, w) })
	}
}

func (g *Gateway) allowed(ctx context.Context, entity access.EntityType, action access.Action, d access.Decision) {
	if g.recorder != nil {
		g.recorder.RecordDecision(ctx, entity, action, true, d.Reason)
	}
}

// denied records the refusal and returns the generic error. The reason goes
// to logs and details only.
func (g *Gateway) denied(ctx context.Context, sc access.SecurityContext, entity access.EntityType, action access.Action, d access.Decision) error {
	if g.recorder != nil {
		g.recorder.RecordDecision(ctx, entity, action, false, d.Reason)
	}
	g.logger.Info("Access denied",
		zap.String("org_id", sc.OrgID()),
		zap.String("caller_id", sc.CallerID()),
		zap.String("role", sc.Role().String()),
		zap.String("entity", string(entity)),
		zap.String("action", string(action)),
		zap.String("reason", d.Reason))
	return shared.ErrAccessDenied.
		WithDetail("entity", string(entity)).
		WithDetail("action", string(action))
}

func checkFields(spec access.EntitySpec, payload access.Record) error {
	for field := range payload {
		if !spec.HasField(field) {
			return shared.ErrInvalidInput.WithDetail("field", field)
		}
	}
	if spec.Type == access.EntityIdentity {
		if v, ok := payload["role"]; ok {
			if s, _ := v.(string); !access.Role(s).IsValid() {
				return shared.ErrInvalidInput.WithDetail("role", fmt.Sprint(v))
			}
		}
	}
	return nil
}

func sortedFields(r access.Record) []string {
	fields := r.Fields()
	sort.Strings(fields)
	return fields
}
