// Package ev is the eventsource stream relay: it holds browser
// connections open and bridges each one to the broker channel of the
// object it watches.
package ev

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"

	"github.com/pagure/eventrelay/internal/broker"
	"github.com/pagure/eventrelay/internal/resolver"
	"github.com/pagure/eventrelay/pkg/channel"
)

// Subscription is one consumer's view of a broker channel.
type Subscription interface {
	Next(ctx context.Context, timeout time.Duration) ([]byte, error)
	Close() error
}

// Broker hands out one subscription handle per client session, so a
// slow client only ever stalls its own handle.
type Broker interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

type Resolver interface {
	Resolve(ctx context.Context, path string) (*resolver.Target, error)
}

type Config struct {
	Addr   string
	Origin string

	// ReadTimeout bounds the wait for the client's target line.
	ReadTimeout time.Duration
	// PollInterval is the broker receive window; every empty window
	// counts toward the ping cadence.
	PollInterval time.Duration
	// PingEvery is the number of empty receive windows between pings.
	PingEvery int
}

type Server struct {
	cfg      Config
	broker   Broker
	resolver Resolver
	log      *logrus.Entry

	ln     net.Listener
	addr   atomic.Value
	active atomic.Int64
	closed atomic.Bool
	wg     sync.WaitGroup
}

func NewServer(cfg Config, b Broker, r Resolver, log *logrus.Entry) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.PingEvery <= 0 {
		cfg.PingEvery = 5
	}

	return &Server{cfg: cfg, broker: b, resolver: r, log: log}
}

// Addr is the bound listen address, available once Start has been
// called.
func (s *Server) Addr() string {
	if v := s.addr.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// ActiveClients is the number of currently open client sessions. The
// stats sub-relay reads it; only session start/end write it.
func (s *Server) ActiveClients() int64 {
	return s.active.Load()
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.addr.Store(ln.Addr().String())

	go func() { <-ctx.Done(); _ = s.Close() }()

	s.log.Infof("serving eventsource at %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleClient(ctx, conn)
		}()
	}
}

func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.wg.Wait()
	return nil
}

// handleClient drives one session through its states: await the target
// line, stream, close. Whatever branch ends the session, the
// subscription and the socket are released.
func (s *Server) handleClient(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	id, _ := gonanoid.New()
	log := s.log.WithField("session", id)

	s.active.Add(1)
	defer s.active.Add(-1)

	target, err := s.awaitTarget(ctx, conn)
	if err != nil {
		log.Warnf("no streamable target: %v", err)
		return
	}

	name, err := channel.ForObject(target.UID)
	if err != nil {
		log.Warnf("channel derivation: %v", err)
		return
	}

	sub, err := s.broker.Subscribe(ctx, name)
	if err != nil {
		log.Errorf("subscribe %s: %v", name, err)
		return
	}
	defer sub.Close()

	if err := writeStreamHeader(conn, s.cfg.Origin); err != nil {
		log.Infof("client closed connection: %v", err)
		return
	}

	log.Infof("streaming %s", name)
	s.stream(ctx, conn, sub, log)
	log.Info("client left, goodbye")
}

// awaitTarget reads the target line from a fresh connection. The
// greeting line is ignored; a connection that stays silent past the
// read timeout is abandoned.
func (s *Server) awaitTarget(ctx context.Context, conn net.Conn) (*resolver.Target, error) {
	r := bufio.NewReader(conn)

	var line string
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		raw, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}

		line = strings.TrimSpace(raw)
		if line != "" && line != "HELLO" {
			break
		}
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, errors.New("ev: no URL in target line")
	}

	u, err := url.Parse(fields[1])
	if err != nil || !strings.Contains(u.Path, "/") {
		return nil, errors.New("ev: invalid URL in target line")
	}

	return s.resolver.Resolve(ctx, u.Path)
}

// stream copies broker messages to the client verbatim, one SSE frame
// per message, and pings after every PingEvery empty receive windows
// so a dead client is noticed without a second task.
func (s *Server) stream(ctx context.Context, conn net.Conn, sub Subscription, log *logrus.Entry) {
	oncall := 0
	for {
		if ctx.Err() != nil {
			return
		}

		payload, err := sub.Next(ctx, s.cfg.PollInterval)
		switch {
		case err == nil:
			if err := writeData(conn, payload); err != nil {
				log.Infof("client closed connection: %v", err)
				return
			}
			oncall = 0
		case errors.Is(err, broker.ErrTimeout):
			oncall++
			if oncall >= s.cfg.PingEvery {
				if err := writeEvent(conn, "ping"); err != nil {
					log.Infof("client closed connection: %v", err)
					return
				}
				oncall = 0
			}
		default:
			log.Errorf("broker subscription lost: %v", err)
			return
		}
	}
}
