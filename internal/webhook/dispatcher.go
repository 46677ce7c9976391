// Package webhook turns one forge event into N signed outbound HTTP
// deliveries, best effort, at most once.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pagure/eventrelay/internal/broker"
	"github.com/pagure/eventrelay/internal/store"
)

const (
	deliveryTimeout = 60 * time.Second
	receiveWindow   = 30 * time.Second
)

type Store interface {
	GetProject(ctx context.Context, name, namespace, username string) (*store.Project, error)
}

type Subscription interface {
	Next(ctx context.Context, timeout time.Duration) ([]byte, error)
}

type Dispatcher struct {
	store  Store
	client *http.Client
	// origin is the forge's external base URL, sent as the
	// pagure_instance field and the X-Pagure header.
	origin string
	log    *logrus.Entry

	seq atomic.Uint64
	now func() time.Time
}

func NewDispatcher(s Store, origin string, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		store:  s,
		client: &http.Client{Timeout: deliveryTimeout},
		origin: origin,
		log:    log,
		now:    time.Now,
	}
}

// Run consumes the hook channel until the broker connection is lost.
// One bad event never ends the loop.
func (d *Dispatcher) Run(ctx context.Context, sub Subscription) error {
	for {
		payload, err := sub.Next(ctx, receiveWindow)
		if errors.Is(err, broker.ErrTimeout) {
			continue
		}
		if err != nil {
			return err
		}

		d.Handle(ctx, payload)
	}
}

// hookEvent is the envelope the web application publishes on the hook
// channel.
type hookEvent struct {
	Project string         `json:"project"`
	Topic   string         `json:"topic"`
	Msg     map[string]any `json:"msg"`
}

// Handle processes one hook event: resolve the project, read its
// configured URLs, deliver to each.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) {
	var event hookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		d.log.Warnf("undecodable hook event: %v", err)
		return
	}

	username, projectname := splitForkOwner(event.Project)
	namespace := ""
	if idx := strings.Index(projectname, "/"); idx != -1 {
		namespace, projectname = projectname[:idx], projectname[idx+1:]
	}

	d.log.Infof("searching %s/%s/%s", username, namespace, projectname)

	project, err := d.store.GetProject(ctx, projectname, namespace, username)
	if errors.Is(err, store.ErrNotFound) {
		d.log.Info("no project found with these criteria")
		return
	}
	if err != nil {
		d.log.Errorf("project lookup: %v", err)
		return
	}

	urls := strings.TrimSpace(project.Settings.Webhooks)
	if urls == "" {
		d.log.Info("no webhook URLs set")
		return
	}

	d.deliverAll(ctx, project, event.Topic, event.Msg, strings.Split(urls, "\n"))
}

// deliverAll sends the event to every configured URL. Targets are
// independent: a failing endpoint is logged and the rest are still
// attempted.
func (d *Dispatcher) deliverAll(ctx context.Context, project *store.Project, topic string, msg map[string]any, urls []string) {
	d.log.Infof("processing project: %s - topic: %s", project.Fullname(), topic)

	if msg == nil {
		msg = map[string]any{}
	}
	msg["pagure_instance"] = d.origin
	msg["project_fullname"] = project.Fullname()

	for _, url := range urls {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}

		if err := d.deliver(ctx, project, topic, msg, url); err != nil {
			d.log.Infof("an error occurred while querying: %s - %v", url, err)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, project *store.Project, topic string, msg map[string]any, url string) error {
	now := d.now()

	// The timestamp and sequence embedded in the body make every
	// delivery unique, even a retried one.
	body, err := json.Marshal(map[string]any{
		"topic":     topic,
		"msg":       msg,
		"timestamp": now.Unix(),
		"msg_id":    fmt.Sprintf("%d-%s", now.Year(), uuid.New()),
		"i":         d.seq.Add(1),
	})
	if err != nil {
		return err
	}

	sha1sum, sha256sum := Sign(project.HookToken, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("X-Pagure", d.origin)
	req.Header.Set("X-Pagure-project", project.Fullname())
	req.Header.Set("X-Pagure-Signature", sha1sum)
	req.Header.Set("X-Pagure-Signature-256", sha256sum)
	req.Header.Set("X-Pagure-Topic", topic)
	req.Header.Set("Content-Type", "application/json")

	d.log.Infof("calling url %s", url)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status code %d", resp.StatusCode)
	}

	return nil
}

// splitForkOwner peels the forks/<owner>/ prefix off a project
// reference if present.
func splitForkOwner(project string) (username, projectname string) {
	if !strings.HasPrefix(project, "forks") {
		return "", project
	}

	parts := strings.SplitN(project, "/", 3)
	if len(parts) < 3 {
		return "", project
	}

	return parts[1], parts[2]
}
