package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/soyeahso/tagstream/internal/agent"
	"github.com/soyeahso/tagstream/internal/domain"
	"github.com/soyeahso/tagstream/internal/failover"
	"github.com/soyeahso/tagstream/internal/llm"
	"github.com/soyeahso/tagstream/internal/version"
)

var (
	errNoFailover  = errors.New("failover state not available")
	errNoGenerator = errors.New("no model provider configured")
)

// registerHTTPRoutes sets up the HTTP routes on mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /v1/turns", s.handleWebSocket)
	mux.HandleFunc("GET /v1/failover", s.requireToken(s.handleFailoverStatus))
	mux.HandleFunc("POST /v1/failover/reset", s.requireToken(s.handleFailoverReset))
	mux.HandleFunc("GET /v1/threads", s.requireToken(s.handleThreads))

	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up the WebSocket RPC methods.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("turn.generate", s.rpcGenerate)
	s.Handle("turn.cancel", s.rpcCancel)
	s.Handle("failover.status", s.rpcFailoverStatus)
	s.Handle("failover.reset", s.rpcFailoverReset)
	s.Handle("threads.list", s.rpcThreads)
	s.Handle("channels.status", s.rpcChannelsStatus)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:   "ok",
		Version:  version.Version,
		Clients:  s.clients.Count(),
		UptimeMs: s.uptime().Milliseconds(),
	})
}

// rpcGenerate starts a turn and returns immediately. Actions stream back as
// turn.action events; the response frame carries the TurnResult once the
// turn ends. Disconnecting or turn.cancel stops the turn.
func (s *Server) rpcGenerate(rc *RequestContext) {
	if s.gen == nil {
		rc.RespondError("unavailable", errNoGenerator.Error())
		return
	}
	var p GenerateParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if strings.TrimSpace(p.Prompt) == "" {
		rc.RespondError("invalid_params", "prompt is required")
		return
	}
	if rc.Frame.ID == "" {
		rc.RespondError("invalid_params", "request id is required")
		return
	}

	ctx, ok := rc.Client.startTurn(rc.Frame.ID)
	if !ok {
		rc.RespondError("duplicate_request", "a turn with this id is already running")
		return
	}

	req := agent.TurnRequest{
		Prompt:   p.Prompt,
		System:   p.System,
		ThreadID: p.ThreadID,
		Quoted:   p.Quoted,
	}
	for _, h := range p.History {
		req.History = append(req.History, llm.Message{Role: h.Role, Content: h.Content})
	}

	go func() {
		defer rc.Client.endTurn(rc.Frame.ID)
		sink := &socketSink{client: rc.Client, reqID: rc.Frame.ID}
		res, err := s.gen.Generate(ctx, req, sink)
		if err != nil {
			rc.RespondErrorShape(turnErrorShape(err))
			return
		}
		rc.Respond(res)
	}()
}

func turnErrorShape(err error) ErrorShape {
	e := ErrorShape{Code: "turn_failed", Message: err.Error()}
	var turnErr *agent.TurnError
	if errors.As(err, &turnErr) {
		e.Code = turnErr.Kind.String()
		e.Retryable = turnErr.Kind == failover.RateLimited || turnErr.Kind == failover.TransientOverload
	}
	return e
}

func (s *Server) rpcCancel(rc *RequestContext) {
	var p CancelParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	rc.Respond(map[string]any{"requestId": p.RequestID, "cancelled": rc.Client.cancelTurn(p.RequestID)})
}

func (s *Server) rpcFailoverStatus(rc *RequestContext) {
	status, err := s.failoverStatus(rc.Client.ctx)
	if err != nil {
		rc.RespondError("unavailable", err.Error())
		return
	}
	rc.Respond(status)
}

func (s *Server) rpcFailoverReset(rc *RequestContext) {
	if s.failover == nil {
		rc.RespondError("unavailable", errNoFailover.Error())
		return
	}
	s.failover.Reset()
	s.log.Info().Str("connId", rc.Client.ConnID).Msg("failover state reset")
	rc.Respond(s.failover.Snapshot())
}

func (s *Server) rpcThreads(rc *RequestContext) {
	resp, err := s.activeThreads(rc.Client.ctx)
	if err != nil {
		rc.RespondError("internal", err.Error())
		return
	}
	rc.Respond(resp)
}

func (s *Server) rpcChannelsStatus(rc *RequestContext) {
	resp := ChannelsResponse{Channels: []domain.ChannelStatus{}}
	if s.channels != nil {
		resp.Channels = s.channels.Status()
	}
	rc.Respond(resp)
}

func (s *Server) failoverStatus(ctx context.Context) (*FailoverStatus, error) {
	if s.failover == nil {
		return nil, errNoFailover
	}
	status := &FailoverStatus{Snapshot: s.failover.Snapshot()}
	if s.blocks != nil {
		blocks, err := s.blocks.Blocks(ctx, status.TakenAt)
		if err != nil {
			return nil, err
		}
		status.Blocks = blocks
	}
	return status, nil
}

func (s *Server) activeThreads(ctx context.Context) (*ThreadsResponse, error) {
	resp := &ThreadsResponse{Threads: []agent.ThreadStatus{}}
	if s.threads == nil {
		return resp, nil
	}
	threads, err := s.threads.Active(ctx)
	if err != nil {
		return nil, err
	}
	if threads != nil {
		resp.Threads = threads
	}
	return resp, nil
}
