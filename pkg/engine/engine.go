// Package engine orchestrates run waves: it builds the persisted
// page skeleton for each requested page, arms the completion counters
// and fans parameter executions out over a bounded worker pool.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wehubfusion/Argus/pkg/concurrency"
	sdkerrors "github.com/wehubfusion/Argus/pkg/errors"
	"github.com/wehubfusion/Argus/pkg/execution"
	"github.com/wehubfusion/Argus/pkg/model"
	"github.com/wehubfusion/Argus/pkg/notify"
	"github.com/wehubfusion/Argus/pkg/status"
	"github.com/wehubfusion/Argus/pkg/store"
)

// Catalog resolves configured page shapes by name. The engine consults
// it once per requested page when building the skeleton.
type Catalog interface {
	PageDefinition(ctx context.Context, name string) (model.PageDefinition, error)
}

// StaticCatalog is a fixed in-memory Catalog keyed by page name.
type StaticCatalog map[string]model.PageDefinition

// PageDefinition returns the named page shape.
func (c StaticCatalog) PageDefinition(_ context.Context, name string) (model.PageDefinition, error) {
	def, ok := c[name]
	if !ok {
		return model.PageDefinition{}, fmt.Errorf("page %q: %w", name, sdkerrors.ErrPageNotFound)
	}
	return def, nil
}

// Engine drives run waves for sessions on this worker.
type Engine struct {
	store   store.Store
	exec    *execution.Service
	catalog Catalog
	sink    notify.Sink
	limiter *concurrency.Limiter
	logger  *zap.Logger
	tracer  trace.Tracer
}

// New creates an engine. limiter bounds concurrent parameter
// executions across every session served by this worker.
func New(st store.Store, exec *execution.Service, catalog Catalog, sink notify.Sink, limiter *concurrency.Limiter, logger *zap.Logger) *Engine {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	if limiter == nil {
		limiter = concurrency.NewLimiter(concurrency.LoadConfig().MaxConcurrent)
	}
	return &Engine{
		store:   st,
		exec:    exec,
		catalog: catalog,
		sink:    sink,
		limiter: limiter,
		logger:  logger,
		tracer:  otel.Tracer("argus/engine"),
	}
}

// RunSession executes one run wave: every page named by the session's
// current execution configuration. The call returns when every
// synchronous parameter has completed; deferred parameters complete
// later through arrival callbacks. Only persistence failures abort
// the wave.
func (e *Engine) RunSession(ctx context.Context, sessionID string) error {
	ctx, span := e.tracer.Start(ctx, "engine.RunSession",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if len(sess.Config.PageNames) == 0 {
		return e.exec.FinishSession(ctx, sess.ID)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, pageName := range sess.Config.PageNames {
		def, err := e.catalog.PageDefinition(ctx, pageName)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if err := e.runPage(gctx, g, sess, def); err != nil {
			span.RecordError(err)
			return err
		}
	}
	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// runPage persists the page skeleton, arms its counters, announces the
// page and schedules its parameters on the worker pool.
func (e *Engine) runPage(ctx context.Context, g *errgroup.Group, sess *model.Session, def model.PageDefinition) error {
	only := sess.Config.OnlyPreconfigured
	now := time.Now()

	page := &model.Page{
		SessionID: sess.ID,
		Name:      def.Name,
		Status:    status.InProgress,
		StartedAt: now,
	}

	var tabs []*model.Tab
	var params []*model.Parameter
	var defs []model.ParameterDefinition
	tabParamCounts := make(map[string]int, len(def.Tabs))

	for _, tabDef := range def.Tabs {
		executable := tabDef.Executable(only)
		tabParamCounts[tabDef.Name] = len(executable)
		tabs = append(tabs, &model.Tab{
			SessionID: sess.ID,
			PageName:  def.Name,
			Name:      tabDef.Name,
			Status:    status.InProgress,
		})
		for _, pd := range executable {
			params = append(params, &model.Parameter{
				SessionID: sess.ID,
				PageName:  def.Name,
				TabName:   tabDef.Name,
				Path:      pd.Path,
				Status:    status.InProgress,
			})
			defs = append(defs, pd)
		}
	}

	// Latest wins: re-requesting a page replaces its previous skeleton.
	if err := e.store.ReplacePage(ctx, page, tabs, params); err != nil {
		return sdkerrors.NewFatalError("SKELETON_WRITE_FAILED",
			fmt.Sprintf("failed to persist skeleton for page %s", def.Name), err)
	}
	e.exec.InitPageState(sess.ID, def.Name, tabParamCounts)

	notify.Emit(ctx, e.sink, e.logger, notify.PageInProgressEvent(sess.ID, def.Name))
	notify.Emit(ctx, e.sink, e.logger, notify.ParameterCountEvent(sess.ID, def.Name, len(params)))

	e.logger.Info("Page scheduled",
		zap.String("session_id", sess.ID),
		zap.String("page", def.Name),
		zap.Int("tabs", len(tabs)),
		zap.Int("parameters", len(params)))

	for i := range params {
		pd, param := defs[i], params[i]
		g.Go(func() error {
			return e.limiter.GoSync(ctx, func() error {
				return e.exec.Execute(ctx, pd, param)
			})
		})
	}

	// Levels armed at zero have no decrement coming; complete them now
	// so the rollup chain does not stall on an empty tab or page.
	return e.exec.SettleEmptyLevels(ctx, sess.ID, def.Name, tabParamCounts)
}
