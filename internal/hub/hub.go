package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"pointcast/internal/session"
	"pointcast/pkg/interfaces"
	"pointcast/pkg/types"
)

// Per-command rate limits, requests per connection per minute.
const (
	createLimit  = 5
	joinLimit    = 10
	voteLimit    = 30
	storyLimit   = 20
	defaultLimit = 60
)

// Hub dispatches inbound commands: decode, rate limit, validate, invoke the
// session service, then route the resulting snapshot to the right audience.
// Rejections of any kind go back to the originator only; no other observer
// ever learns about another participant's failed command.
type Hub struct {
	service  *session.Service
	gateway  interfaces.Gateway
	limiters map[string]*RateLimiter
	fallback *RateLimiter

	shutdown chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// NewHub creates a command dispatcher.
func NewHub(service *session.Service, gateway interfaces.Gateway) *Hub {
	return &Hub{
		service: service,
		gateway: gateway,
		limiters: map[string]*RateLimiter{
			types.CommandCreateSession: NewRateLimiter(createLimit),
			types.CommandJoinSession:   NewRateLimiter(joinLimit),
			types.CommandCastVote:      NewRateLimiter(voteLimit),
			types.CommandUpdateStory:   NewRateLimiter(storyLimit),
		},
		fallback: NewRateLimiter(defaultLimit),
		shutdown: make(chan struct{}),
	}
}

// Start launches the rate limiter janitor.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true

	h.wg.Add(1)
	go h.janitor(ctx)
	return nil
}

// Stop halts background work.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	close(h.shutdown)
	h.wg.Wait()
	return nil
}

func (h *Hub) janitor(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, limiter := range h.limiters {
				limiter.Cleanup()
			}
			h.fallback.Cleanup()
		case <-h.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Dispatch handles one raw command frame from a connection.
func (h *Hub) Dispatch(ctx context.Context, connID string, data []byte) {
	var cmd types.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		h.gateway.Unicast(connID, types.NewErrorEvent("Invalid command format"))
		return
	}

	if !h.limiterFor(cmd.Type).Allow(connID) {
		h.gateway.Unicast(connID, types.NewErrorEvent(rateLimitMessage(cmd.Type)))
		return
	}

	if err := validateCommand(&cmd); err != nil {
		h.gateway.Unicast(connID, types.NewErrorEvent(err.Error()))
		return
	}

	switch cmd.Type {
	case types.CommandCreateSession:
		h.createSession(ctx, connID, &cmd)
	case types.CommandJoinSession:
		h.joinSession(ctx, connID, &cmd)
	case types.CommandCastVote:
		h.castVote(ctx, connID, &cmd)
	case types.CommandRevealVotes:
		h.hostAction(ctx, connID, &cmd, types.EventVotesRevealed, h.service.Reveal)
	case types.CommandHideVotes:
		h.hostAction(ctx, connID, &cmd, types.EventVotesHidden, h.service.Hide)
	case types.CommandResetVotes:
		h.hostAction(ctx, connID, &cmd, types.EventVotesReset, h.service.Reset)
	case types.CommandUpdateStory:
		h.updateStory(ctx, connID, &cmd)
	default:
		h.gateway.Unicast(connID, types.NewErrorEvent("Unknown command"))
	}
}

// HandleDisconnect reacts to a dropped connection: the participant is marked
// disconnected (not removed), its inactivity clock starts, and the remaining
// observers are notified.
func (h *Hub) HandleDisconnect(ctx context.Context, connID string) {
	sessionID, ok := h.gateway.RoomOf(connID)
	if !ok {
		return
	}
	defer h.gateway.LeaveRoom(connID)

	updated, err := h.service.Disconnect(ctx, connID, sessionID)
	if err != nil {
		if !errors.Is(err, interfaces.ErrSessionNotFound) && !errors.Is(err, session.ErrParticipantNotFound) {
			log.Printf("Disconnect handling failed for %s in %s: %v", connID, sessionID, err)
		}
		return
	}

	log.Printf("User %s disconnected from session %s", connID, sessionID)
	h.gateway.BroadcastExcept(sessionID, connID, types.NewSessionEvent(types.EventUserDisconnected, updated))
}

func (h *Hub) createSession(ctx context.Context, connID string, cmd *types.Command) {
	created, err := h.service.Create(ctx, connID, cmd.SessionName, cmd.UserName)
	if err != nil {
		h.rejectCommand(connID, cmd.Type, err)
		return
	}

	h.gateway.JoinRoom(connID, created.ID)
	h.gateway.Unicast(connID, &types.Event{
		Event:     types.EventSessionCreated,
		SessionID: created.ID,
		Session:   created,
	})
}

func (h *Hub) joinSession(ctx context.Context, connID string, cmd *types.Command) {
	joined, err := h.service.Join(ctx, connID, cmd.SessionID, cmd.UserName)
	if err != nil {
		h.rejectCommand(connID, cmd.Type, err)
		return
	}

	h.gateway.JoinRoom(connID, joined.ID)
	h.gateway.Unicast(connID, types.NewSessionEvent(types.EventSessionJoined, joined))
	h.gateway.BroadcastExcept(joined.ID, connID, types.NewSessionEvent(types.EventSessionUpdate, joined))
}

func (h *Hub) castVote(ctx context.Context, connID string, cmd *types.Command) {
	updated, err := h.service.CastVote(ctx, connID, cmd.SessionID, cmd.Vote)
	if err != nil {
		h.rejectCommand(connID, cmd.Type, err)
		return
	}

	h.gateway.Broadcast(updated.ID, types.NewSessionEvent(types.EventVoteUpdate, updated))
}

func (h *Hub) updateStory(ctx context.Context, connID string, cmd *types.Command) {
	updated, err := h.service.UpdateStory(ctx, connID, cmd.SessionID, cmd.Story)
	if err != nil {
		h.rejectCommand(connID, cmd.Type, err)
		return
	}

	h.gateway.Broadcast(updated.ID, types.NewSessionEvent(types.EventStoryUpdate, updated))
}

// hostAction covers the host-only commands that mutate round state and
// broadcast one session-wide event.
func (h *Hub) hostAction(ctx context.Context, connID string, cmd *types.Command, event string,
	action func(context.Context, string, string) (*types.Session, error)) {

	updated, err := action(ctx, connID, cmd.SessionID)
	if err != nil {
		h.rejectCommand(connID, cmd.Type, err)
		return
	}

	h.gateway.Broadcast(updated.ID, types.NewSessionEvent(event, updated))
}

func (h *Hub) rejectCommand(connID, cmdType string, err error) {
	log.Printf("Command %s rejected for %s: %v", cmdType, connID, err)
	h.gateway.Unicast(connID, types.NewErrorEvent(errorMessage(cmdType, err)))
}

func (h *Hub) limiterFor(cmdType string) *RateLimiter {
	if limiter, exists := h.limiters[cmdType]; exists {
		return limiter
	}
	return h.fallback
}

// validateCommand runs the stateless payload checks; a failure drops the
// command before any store read.
func validateCommand(cmd *types.Command) error {
	switch cmd.Type {
	case types.CommandCreateSession:
		if err := types.ValidateSessionName(cmd.SessionName); err != nil {
			return err
		}
		return types.ValidateUsername(cmd.UserName)

	case types.CommandJoinSession:
		if !session.ValidSessionID(cmd.SessionID) {
			return types.ErrInvalidSessionIDFormat
		}
		return types.ValidateUsername(cmd.UserName)

	case types.CommandCastVote:
		return types.ValidateVote(cmd.Vote)

	case types.CommandUpdateStory:
		return types.ValidateStory(cmd.Story)

	default:
		return nil
	}
}

func rateLimitMessage(cmdType string) string {
	switch cmdType {
	case types.CommandCreateSession:
		return "Too many sessions created. Please wait a moment."
	case types.CommandJoinSession:
		return "Too many join attempts. Please wait a moment."
	default:
		return "Too many requests. Please wait a moment."
	}
}

// errorMessage maps a rejection to the client-facing message.
func errorMessage(cmdType string, err error) string {
	switch {
	case errors.Is(err, interfaces.ErrSessionNotFound):
		return "Session not found"
	case errors.Is(err, session.ErrNameTaken):
		return "This username is already taken in this session. Please choose another name."
	case errors.Is(err, session.ErrVotesAlreadyRevealed):
		return "Votes are already revealed. Wait for the next round."
	case errors.Is(err, session.ErrParticipantNotFound):
		return "You are not a participant of this session"
	case errors.Is(err, session.ErrNotHost):
		switch cmdType {
		case types.CommandRevealVotes:
			return "Only host can reveal votes"
		case types.CommandHideVotes:
			return "Only host can hide votes"
		case types.CommandResetVotes:
			return "Only host can reset votes"
		default:
			return "Only host can update story"
		}
	}

	switch cmdType {
	case types.CommandCreateSession:
		return "Failed to create session"
	case types.CommandJoinSession:
		return "Failed to join session"
	case types.CommandCastVote:
		return "Failed to cast vote"
	case types.CommandRevealVotes:
		return "Failed to reveal votes"
	case types.CommandHideVotes:
		return "Failed to hide votes"
	case types.CommandResetVotes:
		return "Failed to reset votes"
	case types.CommandUpdateStory:
		return "Failed to update story"
	default:
		return "Command failed"
	}
}
