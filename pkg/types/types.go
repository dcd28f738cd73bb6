package types

// Client -> server command names. These are wire constants shared with the
// frontend; renaming one breaks every deployed client.
const (
	CommandCreateSession = "createSession"
	CommandJoinSession   = "joinSession"
	CommandCastVote      = "castVote"
	CommandRevealVotes   = "revealVotes"
	CommandHideVotes     = "hideVotes"
	CommandResetVotes    = "resetVotes"
	CommandUpdateStory   = "updateStory"
)

// Server -> client event names.
const (
	EventSessionCreated   = "sessionCreated"
	EventSessionJoined    = "sessionJoined"
	EventSessionUpdate    = "sessionUpdate"
	EventVoteUpdate       = "voteUpdate"
	EventVotesRevealed    = "votesRevealed"
	EventVotesHidden      = "votesHidden"
	EventVotesReset       = "votesReset"
	EventStoryUpdate      = "storyUpdate"
	EventUserDisconnected = "userDisconnected"
	EventUserRemoved      = "userRemoved"
	EventHostChanged      = "hostChanged"
	EventError            = "error"
)

// Participant is one connected (or recently connected) actor in a session.
// The ID is the transport-assigned connection id, so identity is tied to the
// current connection rather than a stable account.
type Participant struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Vote      *string `json:"vote"`
	IsHost    bool    `json:"isHost"`
	Connected bool    `json:"connected"`
}

// Session is the shared estimation room. Field names are part of the persisted
// document shape and must stay stable across process restarts.
type Session struct {
	ID            string                  `json:"id"`
	Name          string                  `json:"name"`
	HostID        string                  `json:"hostId"`
	CurrentStory  string                  `json:"currentStory"`
	VotesRevealed bool                    `json:"votesRevealed"`
	Participants  map[string]*Participant `json:"participants"`
	StoryHistory  []StoryResult           `json:"storyHistory"`
	CreatedAt     int64                   `json:"createdAt"`
}

// RecordedVote is one participant's vote as archived in a story result.
type RecordedVote struct {
	Name string `json:"name"`
	Vote string `json:"vote"`
}

// StoryResult is the immutable archive of one completed round. It is created
// by the reset handler when votes had been revealed, and never mutated after.
type StoryResult struct {
	Story       string                  `json:"story"`
	Votes       map[string]RecordedVote `json:"votes"`
	Timestamp   int64                   `json:"timestamp"`
	AverageVote string                  `json:"averageVote"`
	Consensus   bool                    `json:"consensus"`
}

// Clone returns a deep copy of the session. Handlers hand clones to the
// broadcast path so a later mutation cannot alias an in-flight snapshot.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	clone := *s

	clone.Participants = make(map[string]*Participant, len(s.Participants))
	for id, p := range s.Participants {
		pc := *p
		if p.Vote != nil {
			v := *p.Vote
			pc.Vote = &v
		}
		clone.Participants[id] = &pc
	}

	clone.StoryHistory = make([]StoryResult, len(s.StoryHistory))
	for i, r := range s.StoryHistory {
		rc := r
		rc.Votes = make(map[string]RecordedVote, len(r.Votes))
		for id, v := range r.Votes {
			rc.Votes[id] = v
		}
		clone.StoryHistory[i] = rc
	}

	return &clone
}

// Command is the envelope for every inbound command. The transport attributes
// it to a connection id; only the fields relevant to Type are populated.
type Command struct {
	Type        string `json:"type"`
	SessionID   string `json:"sessionId,omitempty"`
	SessionName string `json:"sessionName,omitempty"`
	UserName    string `json:"userName,omitempty"`
	Vote        string `json:"vote,omitempty"`
	Story       string `json:"story"`
}

// Event is the envelope for every outbound event.
type Event struct {
	Event         string   `json:"event"`
	SessionID     string   `json:"sessionId,omitempty"`
	Session       *Session `json:"session,omitempty"`
	RemovedUserID string   `json:"removedUserId,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	NewHostID     string   `json:"newHostId,omitempty"`
	NewHostName   string   `json:"newHostName,omitempty"`
	Message       string   `json:"message,omitempty"`
}

// NewSessionEvent builds an event that carries a session snapshot.
func NewSessionEvent(name string, session *Session) *Event {
	return &Event{Event: name, Session: session}
}

// NewErrorEvent builds a caller-only error event.
func NewErrorEvent(message string) *Event {
	return &Event{Event: EventError, Message: message}
}
