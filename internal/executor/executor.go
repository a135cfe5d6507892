// Package executor turns a routing decision into persisted effects: the
// resulting message, its audit record, and the path's companion writes. All
// I/O that the decision engine deliberately avoids lives here.
package executor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/duplexhq/duplex/internal/canonical"
	"github.com/duplexhq/duplex/internal/directory"
	"github.com/duplexhq/duplex/internal/engine"
	"github.com/duplexhq/duplex/internal/escalation"
	"github.com/duplexhq/duplex/internal/generation"
	"github.com/duplexhq/duplex/internal/messaging"
	"github.com/duplexhq/duplex/internal/notify"
	"github.com/duplexhq/duplex/internal/quota"
)

// Request carries one decided message into execution.
type Request struct {
	Inbound  *messaging.Message
	Agent    directory.AgentDescriptor
	Sender   directory.Sender
	Input    engine.Input
	Decision engine.Decision

	// Stream, when set, receives generated tokens as they arrive. Only the
	// auto-answer path streams; other paths write their text in one piece.
	Stream generation.StreamFunc
}

// Result is the committed outcome.
type Result struct {
	Path     engine.Path
	Reason   string
	ReplyID  int64
	Reply    messaging.Message
	TicketID int64
}

// Executor executes decided paths against storage and the generator.
type Executor struct {
	store     *messaging.Store
	generator generation.Generator
	canonical canonical.Store
	quota     quota.Tracker
	notifier  notify.Notifier
}

func New(store *messaging.Store, generator generation.Generator, canonicalStore canonical.Store, tracker quota.Tracker, notifier notify.Notifier) *Executor {
	return &Executor{
		store:     store,
		generator: generator,
		canonical: canonicalStore,
		quota:     tracker,
		notifier:  notifier,
	}
}

// Execute runs the decision's side effects and commits the outcome.
//
// Two decisions can still shift here, and only here. An auto-answer whose
// generation fails after its retry degrades to the queued-for-human path.
// An escalation offer that loses the quota race at reservation time degrades
// to a refusal, because the snapshot the engine decided on is advisory.
func (x *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	switch req.Decision.Path {
	case engine.PathAutoAnswer:
		return x.autoAnswer(ctx, req)
	case engine.PathClarify:
		return x.clarify(ctx, req)
	case engine.PathCanonical:
		return x.serveCanonical(ctx, req)
	case engine.PathEscalate:
		return x.offerEscalation(ctx, req)
	case engine.PathQueueHuman:
		return x.queueForHuman(ctx, req)
	case engine.PathRefuse:
		return x.refuse(ctx, req)
	}
	return nil, fmt.Errorf("unknown path %q", req.Decision.Path)
}

// autoAnswer generates a grounded answer, streaming tokens to the caller.
// Generation runs on a context detached from the caller's cancellation so a
// dropped connection cannot leave the conversation without its reply.
func (x *Executor) autoAnswer(ctx context.Context, req Request) (*Result, error) {
	prompt := generation.BuildAnswerPrompt(
		fmt.Sprintf("user %d", req.Agent.OwnerID),
		req.Inbound.Body,
		req.Decision.Grounding,
	)

	genCtx := context.WithoutCancel(ctx)
	answer, err := x.generator.Generate(genCtx, prompt, req.Stream)
	if err != nil {
		log.Warn().Err(err).
			Int64("conversation_id", req.Inbound.ConversationID).
			Msg("Generation failed after retry, queueing for human")
		degraded := req
		degraded.Decision.Path = engine.PathQueueHuman
		degraded.Decision.Reason = "generation_failed"
		return x.queueForHuman(genCtx, degraded)
	}

	result, err := x.commit(genCtx, req, messaging.KindAnswer, answer)
	if err != nil {
		return nil, err
	}

	// Promotion happens outside the outcome transaction: a cache miss next
	// time is recoverable, a reply without its audit record is not.
	if !req.Decision.Bypassed && req.Decision.Confidence >= req.Input.Policy.ConfidenceThreshold {
		if err := x.canonical.Promote(genCtx, req.Agent.AgentID, req.Inbound.Body, answer); err != nil {
			log.Warn().Err(err).Int64("agent_id", req.Agent.AgentID).Msg("Failed to promote canonical answer")
		}
	}

	return result, nil
}

// clarify asks the model for one targeted follow-up question. The clarify
// text is short and never streamed; a generation failure here degrades the
// same way the answer path does.
func (x *Executor) clarify(ctx context.Context, req Request) (*Result, error) {
	prompt := generation.BuildClarifyPrompt(req.Inbound.Body)

	raw, err := x.generator.Generate(context.WithoutCancel(ctx), prompt, nil)
	if err != nil {
		log.Warn().Err(err).
			Int64("conversation_id", req.Inbound.ConversationID).
			Msg("Clarification generation failed, queueing for human")
		degraded := req
		degraded.Decision.Path = engine.PathQueueHuman
		degraded.Decision.Reason = "generation_failed"
		return x.queueForHuman(ctx, degraded)
	}

	question := generation.ParseClarifyResponse(raw)
	return x.commit(ctx, req, messaging.KindClarify, question)
}

// serveCanonical returns the cached answer byte-for-byte. No model call.
func (x *Executor) serveCanonical(ctx context.Context, req Request) (*Result, error) {
	return x.commit(ctx, req, messaging.KindCanonical, req.Decision.CanonicalAnswer)
}

// offerEscalation atomically claims a quota slot, then commits the offer
// message and its ticket in one transaction.
func (x *Executor) offerEscalation(ctx context.Context, req Request) (*Result, error) {
	day := quota.Today()
	reserved, err := x.quota.TryReserve(ctx, req.Agent.OwnerID, day, req.Input.Policy.DailyEscalationLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve escalation slot: %w", err)
	}
	if !reserved {
		// Lost the race between the engine's snapshot and now.
		degraded := req
		degraded.Decision.Path = engine.PathRefuse
		degraded.Decision.Reason = engine.ReasonQuotaExhausted
		return x.refuse(ctx, degraded)
	}

	var ticketID int64
	outcome := x.stageOutcome(req, messaging.KindOffer,
		"I don't have a good answer for this. Want me to pass your question on to them directly? They have limited slots per day.")
	stage := escalation.StageCreate(req.Agent.OwnerID, req.Inbound.ConversationID, req.Inbound.ID, day, &ticketID)

	replyID, err := x.store.CommitOutcome(ctx, outcome, stage)
	if err != nil {
		// The reserved slot must not leak when the offer never materialized.
		if relErr := x.quota.Release(ctx, req.Agent.OwnerID, day); relErr != nil {
			log.Error().Err(relErr).Int64("owner_id", req.Agent.OwnerID).Msg("Failed to release quota after commit failure")
		}
		return nil, err
	}

	reply := outcome.Reply
	reply.ID = replyID
	return &Result{
		Path:     engine.PathEscalate,
		Reason:   req.Decision.Reason,
		ReplyID:  replyID,
		Reply:    reply,
		TicketID: ticketID,
	}, nil
}

// queueForHuman persists the placeholder and tells the owner out-of-band
// that a message is waiting for them.
func (x *Executor) queueForHuman(ctx context.Context, req Request) (*Result, error) {
	result, err := x.commit(ctx, req, messaging.KindPlaceholder,
		"I can't answer this one myself. I've flagged your message so they see it when they're next around.")
	if err != nil {
		return nil, err
	}

	notifyErr := x.notifier.EnqueueOwnerNotification(ctx, notify.OwnerNotificationArgs{
		OwnerID:        req.Agent.OwnerID,
		ConversationID: req.Inbound.ConversationID,
		NotifyKind:     notify.KindMessageQueued,
		Summary:        req.Decision.Reason,
	})
	if notifyErr != nil {
		log.Warn().Err(notifyErr).
			Int64("owner_id", req.Agent.OwnerID).
			Msg("Failed to queue owner notification for waiting message")
	}

	return result, nil
}

func (x *Executor) refuse(ctx context.Context, req Request) (*Result, error) {
	body := "I'm not able to help with that here."
	if req.Decision.Reason == engine.ReasonQuotaExhausted {
		body = "They've hit their limit of direct questions for today. Please try again tomorrow."
	}
	return x.commit(ctx, req, messaging.KindRefusal, body)
}

// stageOutcome assembles the reply message and its decision record. The
// reply is attributed to the agent as a distinct actor.
func (x *Executor) stageOutcome(req Request, kind messaging.MessageKind, body string) *messaging.Outcome {
	return &messaging.Outcome{
		Reply: messaging.Message{
			ConversationID: req.Inbound.ConversationID,
			SenderID:       req.Agent.AgentID,
			ActorType:      messaging.ActorAgent,
			Kind:           kind,
			Body:           body,
			InReplyTo:      req.Inbound.ID,
		},
		Decision: messaging.DecisionRecord{
			ConversationID: req.Inbound.ConversationID,
			MessageID:      req.Inbound.ID,
			PathCode:       req.Decision.Path.Code(),
			Bypassed:       req.Decision.Bypassed,
			Confidence:     req.Decision.Confidence,
			Reason:         req.Decision.Reason,
			Signal:         req.Input.Signal,
		},
	}
}

func (x *Executor) commit(ctx context.Context, req Request, kind messaging.MessageKind, body string) (*Result, error) {
	outcome := x.stageOutcome(req, kind, body)
	replyID, err := x.store.CommitOutcome(ctx, outcome)
	if err != nil {
		return nil, err
	}

	reply := outcome.Reply
	reply.ID = replyID
	return &Result{
		Path:    req.Decision.Path,
		Reason:  req.Decision.Reason,
		ReplyID: replyID,
		Reply:   reply,
	}, nil
}
