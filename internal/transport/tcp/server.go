// Package tcp implements the connection pipeline: a TCP acceptor feeding
// three decoupled worker stages (read, dispatch, send), one request per
// connection. The staging exists so a stalled client socket on read or write
// never blocks dispatch of other clients' already-read requests, and so
// CPU-bound dispatch never starves on socket I/O.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/crewdb/crewd/internal/ops/metrics"
	"github.com/crewdb/crewd/internal/protocol"
)

// Handler executes one decoded request. It must not panic and must not block
// on anything but the collection store lock.
type Handler interface {
	Handle(ctx context.Context, req *protocol.Request) protocol.Response
}

// Config sizes the pipeline. Zero values pick the defaults.
type Config struct {
	Addr string

	// ReadWorkers and SendWorkers bound concurrent blocking socket reads and
	// writes; they are I/O-bound and sized generously.
	ReadWorkers int
	SendWorkers int
	// DispatchWorkers bound concurrent command dispatch; CPU-bound, sized to
	// the core count by default.
	DispatchWorkers int

	// IOTimeout applies to both the request read and the response write.
	// A client that cannot complete either within it is disconnected.
	IOTimeout time.Duration
	// DrainGrace bounds how long shutdown waits for each stage to drain
	// before forcing cancellation.
	DrainGrace time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ReadWorkers <= 0 {
		out.ReadWorkers = 16
	}
	if out.SendWorkers <= 0 {
		out.SendWorkers = 16
	}
	if out.DispatchWorkers <= 0 {
		out.DispatchWorkers = runtime.NumCPU()
	}
	if out.IOTimeout <= 0 {
		out.IOTimeout = 30 * time.Second
	}
	if out.DrainGrace <= 0 {
		out.DrainGrace = 10 * time.Second
	}
	return out
}

const stageBuffer = 128

type dispatchJob struct {
	conn net.Conn
	req  *protocol.Request
}

type sendJob struct {
	conn    net.Conn
	resp    protocol.Response
	command string
}

// Server accepts connections and runs the staged pipeline.
type Server struct {
	cfg     Config
	handler Handler
	log     zerolog.Logger

	ln         net.Listener
	readCh     chan net.Conn
	dispatchCh chan dispatchJob
	sendCh     chan sendJob

	forceCtx    context.Context
	forceCancel context.CancelFunc

	acceptWG   sync.WaitGroup
	readWG     sync.WaitGroup
	dispatchWG sync.WaitGroup
	sendWG     sync.WaitGroup

	closed atomic.Bool
}

func NewServer(cfg Config, handler Handler, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg.withDefaults(),
		handler: handler,
		log:     log.With().Str("component", "tcp_server").Logger(),
	}
}

// Start binds the listener and launches the pipeline. It returns once the
// server is accepting; use Addr to learn the bound address and Stop to shut
// down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln

	s.forceCtx, s.forceCancel = context.WithCancel(context.Background())
	s.readCh = make(chan net.Conn, stageBuffer)
	s.dispatchCh = make(chan dispatchJob, stageBuffer)
	s.sendCh = make(chan sendJob, stageBuffer)

	for i := 0; i < s.cfg.ReadWorkers; i++ {
		s.readWG.Add(1)
		go s.readWorker()
	}
	for i := 0; i < s.cfg.DispatchWorkers; i++ {
		s.dispatchWG.Add(1)
		go s.dispatchWorker()
	}
	for i := 0; i < s.cfg.SendWorkers; i++ {
		s.sendWG.Add(1)
		go s.sendWorker()
	}

	s.acceptWG.Add(1)
	go s.acceptLoop()

	s.log.Info().Str("addr", ln.Addr().String()).
		Int("read_workers", s.cfg.ReadWorkers).
		Int("dispatch_workers", s.cfg.DispatchWorkers).
		Int("send_workers", s.cfg.SendWorkers).
		Msg("server listening")
	return nil
}

// Addr returns the listener address, useful when Config.Addr used port 0.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	defer s.acceptWG.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error().Err(err).Msg("accept failed")
			continue
		}
		if s.closed.Load() {
			_ = conn.Close()
			return
		}
		metrics.ConnectionsAcceptedTotal.Inc()
		s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("connection accepted")

		select {
		case s.readCh <- conn:
			metrics.StageQueueDepth.WithLabelValues("read").Set(float64(len(s.readCh)))
		case <-s.forceCtx.Done():
			_ = conn.Close()
			return
		}
	}
}

// readWorker deserializes exactly one request per connection and hands it to
// the dispatch stage. The connection stays open: the send stage owns closing.
func (s *Server) readWorker() {
	defer s.readWG.Done()
	for conn := range s.readCh {
		metrics.StageQueueDepth.WithLabelValues("read").Set(float64(len(s.readCh)))

		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IOTimeout))
		req, err := protocol.ReadRequest(conn)
		if err != nil {
			metrics.TransportErrorsTotal.WithLabelValues("read").Inc()
			s.log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).
				Msg("failed to read request, dropping connection")
			_ = conn.Close()
			continue
		}
		s.log.Debug().Str("command", req.Command).Str("remote", conn.RemoteAddr().String()).
			Msg("request received")

		select {
		case s.dispatchCh <- dispatchJob{conn: conn, req: req}:
			metrics.StageQueueDepth.WithLabelValues("dispatch").Set(float64(len(s.dispatchCh)))
		case <-s.forceCtx.Done():
			_ = conn.Close()
			return
		}
	}
}

func (s *Server) dispatchWorker() {
	defer s.dispatchWG.Done()
	for job := range s.dispatchCh {
		metrics.StageQueueDepth.WithLabelValues("dispatch").Set(float64(len(s.dispatchCh)))

		resp := s.handler.Handle(s.forceCtx, job.req)

		select {
		case s.sendCh <- sendJob{conn: job.conn, resp: resp, command: job.req.Command}:
			metrics.StageQueueDepth.WithLabelValues("send").Set(float64(len(s.sendCh)))
		case <-s.forceCtx.Done():
			_ = job.conn.Close()
			return
		}
	}
}

func (s *Server) sendWorker() {
	defer s.sendWG.Done()
	for job := range s.sendCh {
		metrics.StageQueueDepth.WithLabelValues("send").Set(float64(len(s.sendCh)))

		_ = job.conn.SetWriteDeadline(time.Now().Add(s.cfg.IOTimeout))
		if err := protocol.WriteResponse(job.conn, &job.resp); err != nil {
			metrics.TransportErrorsTotal.WithLabelValues("send").Inc()
			s.log.Warn().Err(err).Str("command", job.command).
				Str("remote", job.conn.RemoteAddr().String()).
				Msg("failed to send response")
		} else {
			s.log.Debug().Str("command", job.command).
				Str("remote", job.conn.RemoteAddr().String()).
				Msg("response sent")
		}
		_ = job.conn.Close()
	}
}

// Stop shuts the pipeline down: close the listener first so no new
// connections arrive, then drain each stage upstream-to-downstream so no pool
// is abandoned while its producer still feeds it. Each drain gets a bounded
// grace period; a stage that will not drain is force-cancelled, and a stage
// that survives even that is logged and abandoned rather than hanging exit.
func (s *Server) Stop() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.log.Info().Msg("shutdown initiated")

	_ = s.ln.Close()
	s.acceptWG.Wait()

	close(s.readCh)
	s.drain("read", &s.readWG)
	// Connections parked in the read queue were never processed; close them.
	for conn := range s.readCh {
		_ = conn.Close()
	}

	close(s.dispatchCh)
	s.drain("dispatch", &s.dispatchWG)

	close(s.sendCh)
	s.drain("send", &s.sendWG)

	s.forceCancel()
	s.log.Info().Msg("server stopped")
}

func (s *Server) drain(stage string, wg *sync.WaitGroup) {
	if waitTimeout(wg, s.cfg.DrainGrace) {
		s.log.Info().Str("stage", stage).Msg("stage drained")
		return
	}
	s.log.Warn().Str("stage", stage).Dur("grace", s.cfg.DrainGrace).
		Msg("stage did not drain in time, forcing cancellation")
	s.forceCancel()
	if !waitTimeout(wg, s.cfg.DrainGrace) {
		s.log.Error().Str("stage", stage).Msg("stage did not terminate after forced cancellation")
	}
}

// waitTimeout waits for the group up to d and reports whether it finished.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
