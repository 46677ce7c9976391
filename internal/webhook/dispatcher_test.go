package webhook_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/pagure/eventrelay/internal/store"
	"github.com/pagure/eventrelay/internal/webhook"
)

type fakeStore struct {
	projects map[string]*store.Project
}

func (f *fakeStore) GetProject(ctx context.Context, name, namespace, username string) (*store.Project, error) {
	key := fmt.Sprintf("%s|%s|%s", name, namespace, username)
	if p, ok := f.projects[key]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

type recordedDelivery struct {
	header http.Header
	body   []byte
}

func newDispatcher(t *testing.T, projects ...*store.Project) *webhook.Dispatcher {
	t.Helper()

	s := &fakeStore{projects: map[string]*store.Project{}}
	for _, p := range projects {
		key := fmt.Sprintf("%s|%s|%s", p.Name, p.Namespace, p.Username)
		s.projects[key] = p
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	return webhook.NewDispatcher(s, "https://forge.example.org", logrus.NewEntry(log))
}

func hookPayload(t *testing.T, project, topic string) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"project": project,
		"topic":   topic,
		"msg":     map[string]any{"issue": map[string]any{"id": 26}},
	})
	require.NoError(t, err)

	return payload
}

func TestFailingTargetDoesNotBlockOthers(t *testing.T) {
	var mu sync.Mutex
	var deliveries []recordedDelivery

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		deliveries = append(deliveries, recordedDelivery{header: r.Header.Clone(), body: body})
		mu.Unlock()
	}))
	defer good.Close()

	// A target that resets the connection outright.
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}))
	defer broken.Close()

	project := &store.Project{
		Name:      "test",
		HookToken: "aaabbbcc",
		Settings:  store.Settings{Webhooks: broken.URL + "\n" + good.URL},
	}

	d := newDispatcher(t, project)
	d.Handle(context.Background(), hookPayload(t, "test", "issue.edit"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, deliveries, 1, "the good target is still delivered to")

	got := deliveries[0]

	sha1Hex, sha256Hex := webhook.Sign("aaabbbcc", got.body)
	require.Equal(t, sha1Hex, got.header.Get("X-Pagure-Signature"))
	require.Equal(t, sha256Hex, got.header.Get("X-Pagure-Signature-256"))
	require.Equal(t, "issue.edit", got.header.Get("X-Pagure-Topic"))
	require.Equal(t, "test", got.header.Get("X-Pagure-project"))
	require.Equal(t, "https://forge.example.org", got.header.Get("X-Pagure"))
	require.Equal(t, "application/json", got.header.Get("Content-Type"))

	var envelope struct {
		Topic     string         `json:"topic"`
		Msg       map[string]any `json:"msg"`
		Timestamp int64          `json:"timestamp"`
		MsgID     string         `json:"msg_id"`
		Sequence  uint64         `json:"i"`
	}
	require.NoError(t, json.Unmarshal(got.body, &envelope))
	require.Equal(t, "issue.edit", envelope.Topic)
	require.Equal(t, "https://forge.example.org", envelope.Msg["pagure_instance"])
	require.Equal(t, "test", envelope.Msg["project_fullname"])
	require.InDelta(t, time.Now().Unix(), envelope.Timestamp, 5)
	require.Regexp(t, `^\d{4}-[0-9a-f-]{36}$`, envelope.MsgID)
	require.NotZero(t, envelope.Sequence)
}

func TestForkAddressing(t *testing.T) {
	var mu sync.Mutex
	var projects []string

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		projects = append(projects, r.Header.Get("X-Pagure-project"))
		mu.Unlock()
	}))
	defer target.Close()

	fork := &store.Project{
		Name:      "test",
		Namespace: "ns",
		Username:  "alice",
		IsFork:    true,
		HookToken: "secret",
		Settings:  store.Settings{Webhooks: target.URL},
	}

	d := newDispatcher(t, fork)
	d.Handle(context.Background(), hookPayload(t, "forks/alice/ns/test", "pull-request.new"))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"forks/alice/ns/test"}, projects)
}

func TestBadEventsAreContained(t *testing.T) {
	d := newDispatcher(t, &store.Project{Name: "quiet"})

	// None of these may panic or error out of Handle: bad JSON, an
	// unknown project, a project with no configured webhooks.
	d.Handle(context.Background(), []byte("{not json"))
	d.Handle(context.Background(), hookPayload(t, "unknown", "issue.edit"))
	d.Handle(context.Background(), hookPayload(t, "quiet", "issue.edit"))
}

func TestSequenceIsMonotonic(t *testing.T) {
	var mu sync.Mutex
	var sequences []uint64

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var envelope struct {
			Sequence uint64 `json:"i"`
		}
		require.NoError(t, json.Unmarshal(body, &envelope))
		mu.Lock()
		sequences = append(sequences, envelope.Sequence)
		mu.Unlock()
	}))
	defer target.Close()

	project := &store.Project{
		Name:      "test",
		HookToken: "secret",
		Settings:  store.Settings{Webhooks: target.URL + "\n" + target.URL},
	}

	d := newDispatcher(t, project)
	d.Handle(context.Background(), hookPayload(t, "test", "issue.edit"))
	d.Handle(context.Background(), hookPayload(t, "test", "issue.edit"))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []uint64{1, 2, 3, 4}, sequences)
}
