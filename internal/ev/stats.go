package ev

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// StatsServer is the operator-only companion relay: same shape as the
// stream relay minus target resolution and the broker subscription. It
// reports the active session count as a single SSE value and closes.
type StatsServer struct {
	addr   string
	count  func() int64
	log    *logrus.Entry
	ln     net.Listener
	bound  atomic.Value
	closed atomic.Bool
}

func NewStatsServer(addr string, count func() int64, log *logrus.Entry) *StatsServer {
	return &StatsServer{addr: addr, count: count, log: log}
}

func (s *StatsServer) Addr() string {
	if v := s.bound.Load(); v != nil {
		return v.(string)
	}
	return ""
}

func (s *StatsServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.bound.Store(ln.Addr().String())

	go func() { <-ctx.Done(); _ = s.Close() }()

	s.log.Infof("serving stats at %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			return err
		}

		go s.handle(conn)
	}
}

func (s *StatsServer) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.ln != nil {
		_ = s.ln.Close()
	}
	return nil
}

func (s *StatsServer) handle(conn net.Conn) {
	defer conn.Close()

	count := s.count()
	s.log.Infof("clients: %d", count)

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := fmt.Fprintf(conn, "HTTP/1.0 200 OK\nCache: nocache\n\ndata: %d\n\n", count); err != nil {
		s.log.Infof("stats client closed connection: %v", err)
	}
}
