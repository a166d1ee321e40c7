package tools

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/opencode-teams/internal/errdefs"
	"github.com/nextlevelbuilder/opencode-teams/internal/state"
)

type SendMessageRequest struct {
	TeamName string `json:"teamName"`
	To       string `json:"to"`
	Body     string `json:"body"`
	Type     string `json:"type,omitempty"` // default plain
	From     string `json:"from,omitempty"` // default: caller
}

type BroadcastRequest struct {
	TeamName string `json:"teamName"`
	Body     string `json:"body"`
	From     string `json:"from,omitempty"`
}

type ReadMessagesRequest struct {
	TeamName string `json:"teamName"`
	AgentID  string `json:"agentId,omitempty"`
	Since    string `json:"since,omitempty"` // RFC 3339
}

type PollInboxRequest struct {
	TeamName  string `json:"teamName"`
	AgentID   string `json:"agentId,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty"` // default 30000
	Since     string `json:"since,omitempty"`
}

func (s *Service) messagingOps() []Operation {
	return []Operation{
		op(s, "send-message", "Send a typed message to one team member",
			[]Param{
				{Name: "teamName", Type: "string", Required: true},
				{Name: "to", Type: "string", Required: true, Description: "recipient agent id"},
				{Name: "body", Type: "string", Required: true},
				{Name: "type", Type: "string", Description: "plain, idle, task_assignment, shutdown_request, shutdown_approved"},
				{Name: "from", Type: "string", Description: "defaults to the caller"},
			},
			func(r SendMessageRequest) string { return r.TeamName }, s.sendMessage),
		op(s, "broadcast-message", "Send a message to every team member except the sender",
			[]Param{
				{Name: "teamName", Type: "string", Required: true},
				{Name: "body", Type: "string", Required: true},
				{Name: "from", Type: "string", Description: "defaults to the caller"},
			},
			func(r BroadcastRequest) string { return r.TeamName },
			func(ctx context.Context, r BroadcastRequest) (any, error) {
				recipients, err := s.co.Messaging.Broadcast(r.TeamName, r.Body, callerOr(r.From))
				if err != nil {
					return nil, err
				}
				return map[string]any{"recipients": recipients}, nil
			}),
		op(s, "read-messages", "Read an agent's inbox, marking returned messages read",
			[]Param{
				{Name: "teamName", Type: "string", Required: true},
				{Name: "agentId", Type: "string", Description: "defaults to the caller"},
				{Name: "since", Type: "string", Description: "RFC 3339; only newer messages are returned"},
			},
			func(r ReadMessagesRequest) string { return r.TeamName },
			func(ctx context.Context, r ReadMessagesRequest) (any, error) {
				id := callerOr(r.AgentID)
				if id == "" {
					return nil, errdefs.Validationf("agentId is required for unscoped callers")
				}
				since, err := parseSince(r.Since)
				if err != nil {
					return nil, err
				}
				return s.co.Messaging.Read(r.TeamName, id, since)
			}),
		op(s, "poll-inbox", "Long-poll an inbox; returns nil on timeout with no messages",
			[]Param{
				{Name: "teamName", Type: "string", Required: true},
				{Name: "agentId", Type: "string", Description: "defaults to the caller"},
				{Name: "timeoutMs", Type: "number", Description: "default 30000"},
				{Name: "since", Type: "string", Description: "RFC 3339"},
			},
			func(r PollInboxRequest) string { return r.TeamName },
			func(ctx context.Context, r PollInboxRequest) (any, error) {
				id := callerOr(r.AgentID)
				if id == "" {
					return nil, errdefs.Validationf("agentId is required for unscoped callers")
				}
				since, err := parseSince(r.Since)
				if err != nil {
					return nil, err
				}
				timeout := 30 * time.Second
				if r.TimeoutMs > 0 {
					timeout = time.Duration(r.TimeoutMs) * time.Millisecond
				}
				return s.co.Messaging.Poll(ctx, r.TeamName, id, timeout, since)
			}),
	}
}

// sendMessage routes the shutdown protocol by message type; everything
// else is a straight inbox append.
func (s *Service) sendMessage(ctx context.Context, r SendMessageRequest) (any, error) {
	from := callerOr(r.From)
	if from == "" {
		return nil, errdefs.Validationf("from is required for unscoped callers")
	}
	switch r.Type {
	case state.MsgShutdownRequest:
		if err := s.co.Messaging.RequestShutdown(r.TeamName, from); err != nil {
			return nil, err
		}
		return map[string]any{"requested": true}, nil
	case state.MsgShutdownApproved:
		if err := s.co.Messaging.ApproveShutdown(r.TeamName, from); err != nil {
			return nil, err
		}
		should, err := s.co.Messaging.ShouldShutdown(r.TeamName)
		if err != nil {
			return nil, err
		}
		return map[string]any{"approved": true, "shouldShutdown": should}, nil
	default:
		if err := s.co.Messaging.SendTyped(r.TeamName, r.To, r.Body, r.Type, from); err != nil {
			return nil, err
		}
		return map[string]any{"delivered": true}, nil
	}
}

func parseSince(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errdefs.Validationf("invalid since timestamp %q: %v", v, err)
	}
	return t, nil
}
