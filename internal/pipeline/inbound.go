package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/vrcreator/internal/bridge"
	"github.com/gosuda/vrcreator/internal/domain"
)

// InteractionTopic is used when an interaction event names no topic.
const InteractionTopic = "interaction"

// HandleInbound routes a client event. It matches ws.InboundHandler.
//
//	prompt       text starts an agent session
//	interaction  payload is emitted on the world bus under topic text
//	eval         code runs as the ad-hoc eval module
func (p *Pipeline) HandleInbound(ctx context.Context, clientID string, e domain.Event) {
	logger := log.With().Str("client", clientID).Str("action", string(e.Action)).Logger()

	switch e.Action {
	case domain.ActionPrompt:
		if p.opts.Agent == nil {
			p.reject(domain.ActionAgentStatus, "", "agent is not configured")
			return
		}
		s, err := p.opts.Agent.Start(ctx, e.Text)
		if err != nil {
			logger.Warn().Err(err).Msg("pipeline.Pipeline.HandleInbound: prompt rejected")
			p.reject(domain.ActionAgentStatus, "", domain.ErrorCode(err)+": "+err.Error())
			return
		}
		logger.Info().Str("session_id", s.ID.String()).Msg("pipeline: prompt accepted")

	case domain.ActionInteraction:
		topic := e.Text
		if topic == "" {
			topic = InteractionTopic
		}
		payload := e.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		payload["client"] = clientID
		n := p.opts.World.Emit(topic, payload)
		logger.Debug().Str("topic", topic).Int("listeners", n).Msg("pipeline: interaction")

	case domain.ActionEval:
		if e.Code == "" {
			p.reject(domain.ActionModuleFailed, bridge.EvalKey, domain.CodeEmptySource+": empty eval code")
			return
		}
		// Eval waits for the outcome; the bridge reports it as module events.
		go func() {
			if err := p.opts.Bridge.Eval(context.WithoutCancel(ctx), e.Code); err != nil && !errors.Is(err, domain.ErrExecutionFailure) {
				logger.Error().Err(err).Msg("pipeline.Pipeline.HandleInbound: eval")
			}
		}()

	default:
		logger.Debug().Msg("pipeline: ignoring inbound event")
	}
}

// reject tells clients an inbound request was refused.
func (p *Pipeline) reject(action domain.Action, moduleID, msg string) {
	out := domain.NewEvent(action)
	out.ModuleID = moduleID
	out.Status = "rejected"
	out.Message = msg
	p.opts.Relay.Broadcast(out)
}
