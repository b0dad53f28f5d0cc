package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/internal/format"
	"pkt.systems/querydesk/internal/logx"
	"pkt.systems/querydesk/schema"
)

// Pipeline classifies, authorizes, dispatches and formats a query.
type Pipeline interface {
	Process(ctx context.Context, userID schema.UserID, query string) schema.Result
}

type pipeline struct {
	cfg        PipelineConfig
	classifier *Classifier
	authorizer *Authorizer
	dispatcher *Dispatcher
	sink       ResultSink
}

// NewPipeline wires the pipeline stages from cfg and deps. Users and
// Completer are required; other backends may be nil and then report a not
// configured error when their action is requested.
func NewPipeline(cfg PipelineConfig, deps PipelineDeps) (Pipeline, error) {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = "1024x1024"
	}
	classifier, err := NewClassifier(deps.Completer)
	if err != nil {
		return nil, err
	}
	authorizer, err := NewAuthorizer(deps.Users, deps.Permissions, deps.Policy, cfg.EmailFallback)
	if err != nil {
		return nil, err
	}
	dispatcher, err := NewDispatcher(Handlers(cfg, deps))
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	logger.Debug("pipeline ready", "top_k", cfg.TopK, "repository", cfg.RepositoryURL != "", "policy", deps.Policy != nil)
	return &pipeline{
		cfg:        cfg,
		classifier: classifier,
		authorizer: authorizer,
		dispatcher: dispatcher,
		sink:       deps.Sink,
	}, nil
}

// Process runs one query start to finish. A request id already stored on ctx
// (see logx.ContextWithRequest) is reused; otherwise a new one is minted.
func (p *pipeline) Process(ctx context.Context, userID schema.UserID, query string) schema.Result {
	requestID := logx.RequestID(ctx)
	if requestID == "" {
		requestID = NewRequestID()
	}
	log := logx.WithRequest(ctx, userID, requestID)
	ctx = logx.ContextWithRequestLogger(ctx, log, userID, requestID)
	started := time.Now()

	result := p.run(ctx, userID, query)

	log = logx.WithAction(log, result.Action)
	if result.OK() {
		log.Info("pipeline done", "status", result.Status, "response_type", result.ResponseKind, "duration_ms", time.Since(started).Milliseconds())
	} else {
		log.Info("pipeline done", "status", result.Status, "message", result.Message, "duration_ms", time.Since(started).Milliseconds())
	}
	if p.sink != nil {
		p.sink.OnResult(userID, requestID, result)
	}
	return result
}

func (p *pipeline) run(ctx context.Context, userID schema.UserID, query string) schema.Result {
	log := pslog.Ctx(ctx)
	query, err := schema.NormalizeQuery(query)
	if err != nil {
		return schema.Failure("Query is required", "")
	}
	if p.cfg.LogQueries {
		log.Info("pipeline query", "query", query)
	}

	kind, err := p.classifier.Classify(ctx, query)
	if err != nil {
		log.Warn("pipeline classify failed", "err", err)
		return schema.Failure(err.Error(), "")
	}
	if !kind.Valid() {
		return schema.Failure(fmt.Sprintf("Unknown action type: %s", kind), "")
	}
	log = logx.WithAction(log, kind)
	log.Debug("pipeline classified")

	allowed, reason := p.authorizer.Authorize(ctx, userID, kind)
	if !allowed {
		return schema.Failure(reason, kind)
	}

	raw, err := p.dispatcher.Dispatch(ctx, kind, query)
	if err != nil {
		if errors.Is(err, schema.ErrUnknownAction) {
			return schema.Failure(fmt.Sprintf("Unknown action type: %s", kind), "")
		}
		log.Warn("pipeline dispatch failed", "err", err)
		return schema.Failure(err.Error(), kind)
	}
	if fault := raw.Fault(); fault != nil {
		log.Warn("pipeline action reported error", "error", fault.Error, "details", fault.Details)
	}
	return schema.Success(kind, format.Format(kind, raw))
}
