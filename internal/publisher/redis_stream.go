package publisher

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/record"
	"github.com/fortuna/touchline/internal/store"
	"github.com/redis/go-redis/v9"
)

// Event types written to the stream.
const (
	EventMatch = "match"
	EventStats = "stats"
)

// Event announces a newly stored record. Consumers fetch the record itself
// through the REST API; the event carries enough to decide whether to.
type Event struct {
	Type   string `json:"type"`
	Source string `json:"source"`
	League string `json:"league,omitempty"`
	Season string `json:"season,omitempty"`
	URL    string `json:"url,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Key    string `json:"key,omitempty"`
	Home   string `json:"home,omitempty"`
	Away   string `json:"away,omitempty"`
	Score  string `json:"score,omitempty"`
	Rows   int    `json:"rows,omitempty"`
}

// MatchEvent describes a stored match record.
func MatchEvent(meta store.MatchMeta, m *record.MatchRecord) Event {
	return Event{
		Type:   EventMatch,
		Source: meta.Source,
		League: meta.League,
		Season: meta.Season,
		URL:    m.URL,
		Home:   m.Home.Name,
		Away:   m.Away.Name,
		Score:  m.Score(),
	}
}

// StatsEvent describes a stored stats table.
func StatsEvent(key store.StatsKey, st *record.StatsTable) Event {
	return Event{
		Type:   EventStats,
		Source: key.Source,
		League: key.League,
		Season: key.Season,
		Kind:   key.Kind,
		Key:    key.Key,
		Rows:   st.Len(),
	}
}

// RedisStreamPublisher appends record events to a Redis stream.
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamPublisher publishes to stream through an existing client.
// The stream is trimmed to roughly maxLen entries; 0 disables trimming.
func NewRedisStreamPublisher(client *redis.Client, stream string, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Publish appends e to the stream and returns the entry id.
func (p *RedisStreamPublisher) Publish(ctx context.Context, e Event) (string, error) {
	data, err := sonic.Marshal(e)
	if err != nil {
		return "", crerr.Wrap(err, "encode event")
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"type":      e.Type,
			"data":      string(data),
			"timestamp": time.Now().Unix(),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", crerr.Wrapf(err, "xadd %s", p.stream)
	}
	return id, nil
}

func (p *RedisStreamPublisher) PublishMatch(ctx context.Context, meta store.MatchMeta, m *record.MatchRecord) error {
	_, err := p.Publish(ctx, MatchEvent(meta, m))
	return err
}

func (p *RedisStreamPublisher) PublishStats(ctx context.Context, key store.StatsKey, st *record.StatsTable) error {
	_, err := p.Publish(ctx, StatsEvent(key, st))
	return err
}

// DecodeEvent parses the data field of a stream entry.
func DecodeEvent(msg redis.XMessage) (Event, error) {
	var e Event
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return e, crerr.Newf("stream entry %s has no data field", msg.ID)
	}
	if err := sonic.UnmarshalString(raw, &e); err != nil {
		return e, crerr.Wrapf(err, "decode stream entry %s", msg.ID)
	}
	return e, nil
}
