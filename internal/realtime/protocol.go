package realtime

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/theirongolddev/finsync/internal/model"
)

// Phoenix channel events used by the Realtime server.
const (
	eventJoin      = "phx_join"
	eventReply     = "phx_reply"
	eventError     = "phx_error"
	eventClose     = "phx_close"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"
	eventSystem    = "system"

	phoenixTopic = "phoenix"
)

// message is the Phoenix v1 JSON frame.
type message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

type binding struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table,omitempty"`
	Filter string `json:"filter,omitempty"`
}

type joinPayload struct {
	Config struct {
		Broadcast struct {
			Self bool `json:"self"`
		} `json:"broadcast"`
		Presence struct {
			Key string `json:"key"`
		} `json:"presence"`
		PostgresChanges []binding `json:"postgres_changes"`
	} `json:"config"`
	AccessToken string `json:"access_token,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changePayload struct {
	Data struct {
		Schema          string          `json:"schema"`
		Table           string          `json:"table"`
		CommitTimestamp string          `json:"commit_timestamp"`
		Type            string          `json:"type"`
		EventType       string          `json:"eventType"`
		Record          json.RawMessage `json:"record"`
		OldRecord       json.RawMessage `json:"old_record"`
		New             json.RawMessage `json:"new"`
		Old             json.RawMessage `json:"old"`
	} `json:"data"`
}

// buildJoin renders the join payload subscribing to changes on tables
// owned by principal.
func buildJoin(tables []string, principal, token string) json.RawMessage {
	var p joinPayload
	filter := ""
	if principal != "" {
		filter = "user_id=eq." + principal
	}
	for _, t := range tables {
		p.Config.PostgresChanges = append(p.Config.PostgresChanges, binding{
			Event:  "*",
			Schema: "public",
			Table:  t,
			Filter: filter,
		})
	}
	p.AccessToken = token
	raw, _ := json.Marshal(p)
	return raw
}

// decodeChange converts a postgres_changes payload into a model.Change.
// Older servers send record/old_record and type; newer ones send
// new/old and eventType.
func decodeChange(raw json.RawMessage) (model.Change, error) {
	var p changePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.Change{}, fmt.Errorf("decoding change payload: %w", err)
	}
	d := p.Data
	kind := d.EventType
	if kind == "" {
		kind = d.Type
	}
	ch := model.Change{
		Table:     d.Table,
		EventType: model.EventType(strings.ToLower(kind)),
		New:       firstNonEmpty(d.New, d.Record),
		Old:       firstNonEmpty(d.Old, d.OldRecord),
	}
	switch ch.EventType {
	case model.EventInsert, model.EventUpdate, model.EventDelete:
	default:
		return model.Change{}, fmt.Errorf("unknown change type %q on %s", kind, d.Table)
	}
	if ch.Table == "" {
		return model.Change{}, fmt.Errorf("change without table")
	}
	if d.CommitTimestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, d.CommitTimestamp); err == nil {
			ch.CommitAt = ts
		}
	}
	return ch, nil
}

func firstNonEmpty(a, b json.RawMessage) json.RawMessage {
	if len(a) > 0 && string(a) != "null" && string(a) != "{}" {
		return a
	}
	if len(b) > 0 && string(b) != "null" {
		return b
	}
	return a
}

// Endpoint derives the Realtime websocket URL from a project URL.
func Endpoint(projectURL, apiKey string) (string, error) {
	u, err := url.Parse(projectURL)
	if err != nil {
		return "", fmt.Errorf("parsing project url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime/v1/websocket"
	q := url.Values{}
	q.Set("apikey", apiKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
