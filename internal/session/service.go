package session

import (
	"context"
	"log"
	"slices"
	"strconv"
	"strings"
	"time"

	"pointcast/internal/presence"
	"pointcast/pkg/interfaces"
	"pointcast/pkg/types"
)

// noNumericVotes is the averageVote placeholder archived when a round closes
// without a single numeric vote.
const noNumericVotes = "—"

// RemovalReasonInactive is the reason attached to sweep-triggered removals.
const RemovalReasonInactive = "inactive"

// Service owns all mutations of session documents. Every method performs one
// read-modify-write cycle against the store, serialized per session id, with
// the store write as the sole commit point: a rejected or failed command
// leaves the document untouched.
//
// The gateway is used only by RemoveInactive, which runs from the sweeper
// rather than a connected caller; command-triggered events are routed by the
// dispatcher that invoked the command.
type Service struct {
	store   interfaces.SessionStore
	gateway interfaces.Gateway
	tracker *presence.Tracker
	exec    *serializer
	now     func() time.Time
}

// NewService creates a session service.
func NewService(store interfaces.SessionStore, gateway interfaces.Gateway, tracker *presence.Tracker) *Service {
	return &Service{
		store:   store,
		gateway: gateway,
		tracker: tracker,
		exec:    newSerializer(),
		now:     time.Now,
	}
}

// Create mints a session with the caller as its sole participant and host.
func (s *Service) Create(ctx context.Context, connID, sessionName, userName string) (*types.Session, error) {
	sessionID := GenerateSessionID()

	var (
		created *types.Session
		err     error
	)
	s.exec.Do(sessionID, func() {
		session := &types.Session{
			ID:            sessionID,
			Name:          strings.TrimSpace(sessionName),
			HostID:        connID,
			CurrentStory:  "",
			VotesRevealed: false,
			Participants: map[string]*types.Participant{
				connID: {
					ID:        connID,
					Name:      strings.TrimSpace(userName),
					Vote:      nil,
					IsHost:    true,
					Connected: true,
				},
			},
			StoryHistory: []types.StoryResult{},
			CreatedAt:    s.now().UnixMilli(),
		}

		if err = s.store.Create(ctx, session); err != nil {
			return
		}
		created = session.Clone()
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Session created: id=%s name=%q host=%s", created.ID, created.Name, connID)
	return created, nil
}

// Join adds the caller to an existing session. A name collision with a
// connected participant is rejected; a collision with a disconnected one is a
// reconnection and the old entry's vote and host role carry over to the new
// connection id.
func (s *Service) Join(ctx context.Context, connID, sessionID, userName string) (*types.Session, error) {
	var (
		joined *types.Session
		err    error
	)
	s.exec.Do(sessionID, func() {
		var session *types.Session
		session, err = s.store.Get(ctx, sessionID)
		if err != nil {
			return
		}

		name := strings.TrimSpace(userName)
		existing := findByName(session, name)

		switch {
		case existing != nil && existing.Connected:
			err = ErrNameTaken
			return

		case existing != nil:
			// Reconnection: rebind the old identity to the new connection id.
			delete(session.Participants, existing.ID)
			session.Participants[connID] = &types.Participant{
				ID:        connID,
				Name:      name,
				Vote:      existing.Vote,
				IsHost:    existing.IsHost,
				Connected: true,
			}
			if existing.IsHost {
				session.HostID = connID
			}
			s.tracker.Clear(sessionID, existing.ID)

		default:
			session.Participants[connID] = &types.Participant{
				ID:        connID,
				Name:      name,
				Vote:      nil,
				IsHost:    false,
				Connected: true,
			}
		}

		if err = s.store.Replace(ctx, session); err != nil {
			return
		}
		joined = session.Clone()
	})
	if err != nil {
		return nil, err
	}

	log.Printf("User %q joined session %s as %s", userName, sessionID, connID)
	return joined, nil
}

// CastVote records the caller's vote for the current round. Voting is closed
// while votes are revealed.
func (s *Service) CastVote(ctx context.Context, connID, sessionID, vote string) (*types.Session, error) {
	return s.mutate(ctx, sessionID, func(session *types.Session) error {
		if session.VotesRevealed {
			return ErrVotesAlreadyRevealed
		}

		participant, ok := session.Participants[connID]
		if !ok {
			return ErrParticipantNotFound
		}

		v := vote
		participant.Vote = &v
		return nil
	})
}

// Reveal makes all votes visible. Host only.
func (s *Service) Reveal(ctx context.Context, connID, sessionID string) (*types.Session, error) {
	return s.mutate(ctx, sessionID, func(session *types.Session) error {
		if session.HostID != connID {
			return ErrNotHost
		}
		session.VotesRevealed = true
		return nil
	})
}

// Hide makes votes hidden again without clearing them. Host only.
func (s *Service) Hide(ctx context.Context, connID, sessionID string) (*types.Session, error) {
	return s.mutate(ctx, sessionID, func(session *types.Session) error {
		if session.HostID != connID {
			return ErrNotHost
		}
		session.VotesRevealed = false
		return nil
	})
}

// UpdateStory sets the story under estimation. Host only.
func (s *Service) UpdateStory(ctx context.Context, connID, sessionID, story string) (*types.Session, error) {
	return s.mutate(ctx, sessionID, func(session *types.Session) error {
		if session.HostID != connID {
			return ErrNotHost
		}
		session.CurrentStory = story
		return nil
	})
}

// Reset closes the round. If votes were revealed the round is archived onto
// the story history first; either way every vote is cleared, votes are hidden
// and the current story is emptied. Host only.
//
// Resetting twice archives only once: the second call observes
// votesRevealed=false and skips the archive.
func (s *Service) Reset(ctx context.Context, connID, sessionID string) (*types.Session, error) {
	return s.mutate(ctx, sessionID, func(session *types.Session) error {
		if session.HostID != connID {
			return ErrNotHost
		}

		if session.VotesRevealed {
			session.StoryHistory = append(session.StoryHistory, s.archiveRound(session))
		}

		for _, participant := range session.Participants {
			participant.Vote = nil
		}
		session.VotesRevealed = false
		session.CurrentStory = ""
		return nil
	})
}

// Disconnect marks the caller disconnected and starts its inactivity clock.
// The participant stays in the document so a reconnection can reclaim its
// vote and host role.
func (s *Service) Disconnect(ctx context.Context, connID, sessionID string) (*types.Session, error) {
	return s.mutate(ctx, sessionID, func(session *types.Session) error {
		participant, ok := session.Participants[connID]
		if !ok {
			return ErrParticipantNotFound
		}

		participant.Connected = false
		s.tracker.Track(sessionID, connID, s.now())
		return nil
	})
}

// Delete removes a session document outright.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	var err error
	s.exec.Do(sessionID, func() {
		err = s.store.Delete(ctx, sessionID)
	})
	if err == nil {
		s.tracker.ClearSession(sessionID)
		log.Printf("Session deleted: id=%s", sessionID)
	}
	return err
}

// RemoveInactive evicts a participant whose disconnection age exceeded the
// inactivity threshold, broadcasting the removal and running host failover
// when the evicted participant held the host role. Invoked by the sweeper
// through the same per-session serializer as regular commands.
func (s *Service) RemoveInactive(ctx context.Context, sessionID, participantID string) error {
	var err error
	s.exec.Do(sessionID, func() {
		err = s.removeInactive(ctx, sessionID, participantID)
	})
	return err
}

func (s *Service) removeInactive(ctx context.Context, sessionID, participantID string) error {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		// Session expired or was deleted; its tracking entries are stale.
		s.tracker.ClearSession(sessionID)
		return err
	}

	if _, ok := session.Participants[participantID]; !ok {
		s.tracker.Clear(sessionID, participantID)
		return nil
	}

	wasHost := session.HostID == participantID
	delete(session.Participants, participantID)
	s.tracker.Clear(sessionID, participantID)

	if err := s.store.Replace(ctx, session); err != nil {
		return err
	}

	log.Printf("Removed inactive user %s from session %s", participantID, sessionID)
	s.gateway.Broadcast(sessionID, &types.Event{
		Event:         types.EventUserRemoved,
		Session:       session.Clone(),
		RemovedUserID: participantID,
		Reason:        RemovalReasonInactive,
	})

	if wasHost {
		return s.promoteNewHost(ctx, session)
	}
	return nil
}

// promoteNewHost elects the connected participant with the lexicographically
// smallest id. The tie-break is arbitrary but deterministic so every
// observer converges on the same host. With nobody connected the session is
// left host-less; a later join does not auto-promote.
func (s *Service) promoteNewHost(ctx context.Context, session *types.Session) error {
	var connected []string
	for id, participant := range session.Participants {
		if participant.Connected {
			connected = append(connected, id)
		}
	}

	if len(connected) == 0 {
		log.Printf("No connected participants left in session %s", session.ID)
		return nil
	}

	slices.Sort(connected)
	newHost := session.Participants[connected[0]]
	newHost.IsHost = true
	session.HostID = newHost.ID

	if err := s.store.Replace(ctx, session); err != nil {
		return err
	}

	log.Printf("New host promoted in session %s: %s (%s)", session.ID, newHost.Name, newHost.ID)
	s.gateway.Broadcast(session.ID, &types.Event{
		Event:       types.EventHostChanged,
		Session:     session.Clone(),
		NewHostID:   newHost.ID,
		NewHostName: newHost.Name,
	})
	return nil
}

// archiveRound collects the round's cast votes into an immutable result.
// Consensus requires exactly one distinct vote string, so a round with zero
// votes archives consensus=false. The average covers numeric votes only;
// "?" and "☕" are ignored.
func (s *Service) archiveRound(session *types.Session) types.StoryResult {
	votes := make(map[string]types.RecordedVote)
	var numeric []float64

	for _, participant := range session.Participants {
		if participant.Vote == nil {
			continue
		}
		votes[participant.ID] = types.RecordedVote{
			Name: participant.Name,
			Vote: *participant.Vote,
		}
		if n, err := strconv.ParseFloat(*participant.Vote, 64); err == nil {
			numeric = append(numeric, n)
		}
	}

	average := noNumericVotes
	if len(numeric) > 0 {
		var sum float64
		for _, n := range numeric {
			sum += n
		}
		average = strconv.FormatFloat(sum/float64(len(numeric)), 'f', 1, 64)
	}

	distinct := make(map[string]struct{})
	for _, v := range votes {
		distinct[v.Vote] = struct{}{}
	}

	return types.StoryResult{
		Story:       session.CurrentStory,
		Votes:       votes,
		Timestamp:   s.now().UnixMilli(),
		AverageVote: average,
		Consensus:   len(distinct) == 1,
	}
}

// mutate runs one serialized read-modify-write cycle. The transform runs on
// the loaded document; any error from it aborts before the store write.
func (s *Service) mutate(ctx context.Context, sessionID string, transform func(*types.Session) error) (*types.Session, error) {
	var (
		result *types.Session
		err    error
	)
	s.exec.Do(sessionID, func() {
		var session *types.Session
		session, err = s.store.Get(ctx, sessionID)
		if err != nil {
			return
		}

		if err = transform(session); err != nil {
			return
		}

		if err = s.store.Replace(ctx, session); err != nil {
			return
		}
		result = session.Clone()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// findByName returns the participant with a matching display name,
// case-insensitively, or nil.
func findByName(session *types.Session, name string) *types.Participant {
	lower := strings.ToLower(name)
	for _, participant := range session.Participants {
		if strings.ToLower(participant.Name) == lower {
			return participant
		}
	}
	return nil
}
