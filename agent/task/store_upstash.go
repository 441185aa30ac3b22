package task

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTaskKeyPrefix = "deskmesh:task:"
	maxResponseSizeBytes = 2 << 20
)

// UpstashOption customizes UpstashRedisStore.
type UpstashOption func(*UpstashRedisStore)

func WithKeyPrefix(prefix string) UpstashOption {
	return func(s *UpstashRedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) UpstashOption {
	return func(s *UpstashRedisStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) UpstashOption {
	return func(s *UpstashRedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// UpstashRedisStore persists task snapshots in Upstash Redis via REST. The
// key TTL doubles as the retention policy: a task untouched for longer than
// the TTL is reclaimed by Redis itself, terminal or not, which keeps the
// store bounded without a janitor.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...UpstashOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &UpstashRedisStore{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		keyPrefix: defaultTaskKeyPrefix,
		ttl:       defaultRetention,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}

	return store, nil
}

func (s *UpstashRedisStore) Create(ctx context.Context, t *Task) error {
	if t == nil {
		return ErrNilTask
	}
	existing, err := s.Get(ctx, t.ID)
	if err != nil && !errors.Is(err, ErrTaskNotFound) {
		return err
	}
	if existing != nil {
		return ErrTaskConflict
	}
	return s.save(ctx, t)
}

func (s *UpstashRedisStore) Get(ctx context.Context, id string) (*Task, error) {
	key, err := s.redisKey(id)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"GET", key})
	if err != nil {
		return nil, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrTaskNotFound
	}

	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, fmt.Errorf("decode task payload: %w", err)
	}

	var t Task
	if err := json.Unmarshal([]byte(encoded), &t); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	if !ValidStatus(t.Status) {
		return nil, fmt.Errorf("invalid task status loaded from store: %q", t.Status)
	}

	return &t, nil
}

func (s *UpstashRedisStore) Update(ctx context.Context, t *Task) error {
	if t == nil {
		return ErrNilTask
	}
	return s.save(ctx, t)
}

func (s *UpstashRedisStore) Delete(ctx context.Context, id string) error {
	key, err := s.redisKey(id)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, []any{"DEL", key})
	return err
}

func (s *UpstashRedisStore) save(ctx context.Context, t *Task) error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("task id is empty")
	}

	key, err := s.redisKey(t.ID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	cmd := []any{"SET", key, string(payload)}
	if s.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(s.ttl))
	}

	if _, err := s.exec(ctx, cmd); err != nil {
		return err
	}

	return nil
}

func (s *UpstashRedisStore) redisKey(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", errors.New("task id is empty")
	}
	return strings.TrimSpace(s.keyPrefix) + id, nil
}

func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("redis rest status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("redis rest error: %s", parsed.Error)
	}

	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
