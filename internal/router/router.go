// Package router is the single entry point for inbound messages. It resolves
// the counterpart's primary agent, snapshots everything the decision engine
// needs, runs the engine exactly once per agent-backed message, and hands the
// decision to the executor. Plain human-to-human traffic passes through
// untouched.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/duplexhq/duplex/internal/canonical"
	"github.com/duplexhq/duplex/internal/directory"
	"github.com/duplexhq/duplex/internal/engine"
	"github.com/duplexhq/duplex/internal/executor"
	"github.com/duplexhq/duplex/internal/generation"
	"github.com/duplexhq/duplex/internal/messaging"
	"github.com/duplexhq/duplex/internal/policy"
	"github.com/duplexhq/duplex/internal/quota"
	"github.com/duplexhq/duplex/internal/signal"
)

// PolicyGetter loads the effective policy for an owner.
type PolicyGetter interface {
	Get(ctx context.Context, ownerID int64) (policy.OrchestratorPolicy, error)
}

// Config tunes the router's admission control.
type Config struct {
	SenderRatePerSecond float64
	SenderBurst         int
	Thresholds          engine.Thresholds
}

// Router coordinates the full inbound pipeline.
type Router struct {
	store      *messaging.Store
	dir        directory.Directory
	policies   PolicyGetter
	signals    *signal.Computer
	canonical  canonical.Store
	quota      quota.Tracker
	engine     *engine.Engine
	exec       *executor.Executor
	thresholds engine.Thresholds
	lanes      *laneSet
}

func New(store *messaging.Store, dir directory.Directory, policies PolicyGetter,
	signals *signal.Computer, canonicalStore canonical.Store, tracker quota.Tracker,
	eng *engine.Engine, exec *executor.Executor, cfg Config) *Router {

	if cfg.SenderRatePerSecond <= 0 {
		cfg.SenderRatePerSecond = 1
	}
	if cfg.SenderBurst <= 0 {
		cfg.SenderBurst = 5
	}

	return &Router{
		store:      store,
		dir:        dir,
		policies:   policies,
		signals:    signals,
		canonical:  canonicalStore,
		quota:      tracker,
		engine:     eng,
		exec:       exec,
		thresholds: cfg.Thresholds,
		lanes:      newLaneSet(rate.Limit(cfg.SenderRatePerSecond), cfg.SenderBurst),
	}
}

// RouteResult is what the caller gets back for one inbound message.
type RouteResult struct {
	Inbound *messaging.Message

	// Handled is false for plain passthrough: the message was stored and
	// delivered human-to-human without engine involvement.
	Handled bool

	Outcome *executor.Result
}

// Route ingests one message into a conversation. Calls for the same
// conversation are processed strictly in arrival order.
func (r *Router) Route(ctx context.Context, conversationID, senderID int64, body string, stream generation.StreamFunc) (*RouteResult, error) {
	if !r.lanes.admit(senderID) {
		return nil, ErrRateLimited
	}

	var result *RouteResult
	var routeErr error
	err := r.lanes.submit(ctx, conversationID, func(ctx context.Context) {
		result, routeErr = r.handle(ctx, conversationID, senderID, body, stream)
	})
	if err != nil {
		return nil, err
	}
	return result, routeErr
}

// Close drains the conversation lanes. In-flight messages finish.
func (r *Router) Close() {
	r.lanes.close()
}

func (r *Router) handle(ctx context.Context, conversationID, senderID int64, body string, stream generation.StreamFunc) (*RouteResult, error) {
	conv, err := r.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	recipientID, err := counterpart(conv, senderID)
	if err != nil {
		return nil, err
	}

	inbound, err := r.store.CreateInbound(ctx, conversationID, senderID, body)
	if err != nil {
		return nil, err
	}

	// Agent resolution happens exactly once per message, here. No primary
	// agent, or the sender talking to themselves, means plain delivery.
	agent, err := r.dir.PrimaryAgent(ctx, recipientID)
	if errors.Is(err, directory.ErrNoPrimaryAgent) {
		return &RouteResult{Inbound: inbound, Handled: false}, nil
	}
	if err != nil {
		return nil, err
	}
	if senderID == agent.OwnerID {
		return &RouteResult{Inbound: inbound, Handled: false}, nil
	}

	sender, err := r.dir.ResolveSender(ctx, senderID)
	if err != nil {
		return nil, err
	}

	input, err := r.snapshot(ctx, inbound, agent, sender)
	if err != nil {
		return nil, err
	}

	decision := r.engine.Evaluate(*input)
	log.Info().
		Int64("conversation_id", conversationID).
		Int64("message_id", inbound.ID).
		Str("path", decision.Path.Code()).
		Bool("bypassed", decision.Bypassed).
		Float64("confidence", decision.Confidence).
		Str("reason", decision.Reason).
		Msg("Routing decision")

	outcome, err := r.exec.Execute(ctx, executor.Request{
		Inbound:  inbound,
		Agent:    agent,
		Sender:   sender,
		Input:    *input,
		Decision: decision,
		Stream:   stream,
	})
	if err != nil {
		return nil, err
	}

	return &RouteResult{Inbound: inbound, Handled: true, Outcome: outcome}, nil
}

// snapshot gathers every external fact the engine's evaluation reads, so the
// evaluation itself is a pure function over this input.
func (r *Router) snapshot(ctx context.Context, inbound *messaging.Message, agent directory.AgentDescriptor, sender directory.Sender) (*engine.Input, error) {
	pol, err := r.policies.Get(ctx, agent.OwnerID)
	if err != nil {
		// The store already fell back to safe defaults. A policy read
		// failure degrades the decision, it never drops the message.
		log.Warn().Err(err).Int64("owner_id", agent.OwnerID).Msg("Policy read failed, routing with defaults")
	}

	sig := r.signals.Compute(ctx, inbound.Body, agent.KnowledgeBaseID)

	var match *canonical.Match
	if !sig.Vague {
		match, err = r.canonical.Lookup(ctx, agent.AgentID, inbound.Body)
		if err != nil {
			// A broken cache must not take down routing. Treat as a miss.
			log.Warn().Err(err).Int64("agent_id", agent.AgentID).Msg("Canonical lookup failed")
			match = nil
		}
	}

	used, err := r.quota.Usage(ctx, agent.OwnerID, quota.Today())
	if err != nil {
		return nil, fmt.Errorf("failed to read escalation quota: %w", err)
	}

	return &engine.Input{
		MessageText: inbound.Body,
		Signal:      sig,
		Policy:      pol,
		Sender:      sender,
		Agent:       agent,
		Canonical:   match,
		Quota:       engine.QuotaSnapshot{Used: used, Limit: pol.DailyEscalationLimit},
		Thresholds:  r.thresholds,
	}, nil
}

func counterpart(conv *messaging.Conversation, senderID int64) (int64, error) {
	switch senderID {
	case conv.ParticipantA:
		return conv.ParticipantB, nil
	case conv.ParticipantB:
		return conv.ParticipantA, nil
	}
	return 0, fmt.Errorf("sender %d is not a participant of conversation %d", senderID, conv.ID)
}
