package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/clock"
	"fenrir/internal/common"
	"fenrir/internal/engine"
	"fenrir/internal/workerpool"
)

const (
	maxRecvSize        = 4 * 1024
	defaultConnTimeout = time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// clientSession tracks one connected TCP session.
type clientSession struct {
	conn  net.Conn
	owner string
}

// clientMessage links a parsed message to the connection that sent it.
type clientMessage struct {
	address string
	message Message
}

// Server is the TCP front end for one engine.Book. It parses wire frames,
// dispatches them to the book, and writes back reports, following the
// teacher's worker-pool-backed accept loop generalized onto the new
// engine.Book façade.
type Server struct {
	address string
	port    int
	book    *engine.Book
	clk     clock.Source
	log     zerolog.Logger

	pool   *workerpool.Pool
	cancel context.CancelFunc

	sessionsMu sync.Mutex
	sessions   map[string]*clientSession // by connection address
	byOwner    map[string]*clientSession // by owner username

	ownersMu     sync.Mutex
	ownerByOrder map[common.OrderID]string

	messages chan clientMessage
}

// New constructs a Server fronting book, listening on address:port.
func New(address string, port int, book *engine.Book, clk clock.Source, log zerolog.Logger, poolSize int) *Server {
	s := &Server{
		address:      address,
		port:         port,
		book:         book,
		clk:          clk,
		log:          log,
		pool:         workerpool.New(poolSize, log),
		sessions:     make(map[string]*clientSession),
		byOwner:      make(map[string]*clientSession),
		ownerByOrder: make(map[common.OrderID]string),
		messages:     make(chan clientMessage, 1),
	}
	return s
}

// OnTrade implements common.TradeSink: it resolves each side of the trade
// back to its owning connection (via the order-id->owner map populated at
// submit time) and writes an execution report to whichever side is still
// connected.
func (s *Server) OnTrade(t common.TradeEvent) {
	now := s.clk.Now()
	for _, id := range []common.OrderID{t.BuyID, t.SellID} {
		owner, ok := s.ownerFor(id)
		if !ok {
			continue
		}
		report := Report{Kind: ExecutionReport, OrderID: id, Price: t.Price, Qty: t.Qty, Timestamp: now}
		s.writeToOwner(owner, report)
	}
}

func (s *Server) rememberOwner(id common.OrderID, owner string) {
	if owner == "" {
		return
	}
	s.ownersMu.Lock()
	s.ownerByOrder[id] = owner
	s.ownersMu.Unlock()
}

func (s *Server) ownerFor(id common.OrderID) (string, bool) {
	s.ownersMu.Lock()
	defer s.ownersMu.Unlock()
	owner, ok := s.ownerByOrder[id]
	return owner, ok
}

func (s *Server) writeToOwner(owner string, report Report) {
	s.sessionsMu.Lock()
	session, ok := s.byOwner[owner]
	s.sessionsMu.Unlock()
	if !ok {
		return
	}
	if _, err := session.conn.Write(report.Serialize()); err != nil {
		s.log.Error().Err(err).Str("owner", owner).Msg("failed writing report")
		s.deleteSession(session.conn.RemoteAddr().String())
	}
}

func (s *Server) Shutdown() {
	s.log.Info().Msg("server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run blocks, accepting connections and dispatching frames until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		s.log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			s.log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	s.log.Info().Str("address", listener.Addr().String()).Msg("server running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				s.log.Error().Err(err).Msg("error accepting client")
				continue
			}
			s.addSession(conn)
			s.pool.AddTask(conn)
		}
	}
}

func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case msg := <-s.messages:
			if err := s.handleMessage(msg); err != nil {
				s.log.Error().Err(err).Str("address", msg.address).Msg("error handling message")
				s.writeError(msg.address, err)
			}
		}
	}
}

func (s *Server) handleMessage(msg clientMessage) error {
	switch msg.message.GetType() {
	case NewOrder:
		body, ok := msg.message.(NewOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		s.bindOwner(msg.address, body.Username)

		spec := body.Spec()
		out := s.book.Submit(spec)
		s.rememberOwner(out.OrderID, body.Username)

		return s.writeReport(msg.address, reportFromOutcome(out, s.clk.Now()))

	case CancelOrder:
		body, ok := msg.message.(CancelOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		outcome := s.book.Cancel(body.OrderID)
		report := Report{
			Kind:    CancelReport,
			OrderID: body.OrderID,
			Status:  outcome.FinalState,
		}
		return s.writeReport(msg.address, report)

	case ModifyOrder:
		body, ok := msg.message.(ModifyOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		outcome := s.book.Modify(body.OrderID, body.NewQty)
		report := Report{
			Kind:    ModifyReport,
			OrderID: body.OrderID,
			Status:  outcome.FinalState,
		}
		return s.writeReport(msg.address, report)

	case SnapshotRequest:
		snap := s.book.Snapshot(10)
		report := Report{Kind: SnapshotReport, Price: snap.BestBid, Qty: uint64(len(snap.Bids)), Timestamp: snap.Timestamp}
		return s.writeReport(msg.address, report)

	default:
		return ErrInvalidMessageType
	}
}

func (s *Server) writeReport(address string, report Report) error {
	s.sessionsMu.Lock()
	session, ok := s.sessions[address]
	s.sessionsMu.Unlock()
	if !ok {
		return ErrClientDoesNotExist
	}
	if _, err := session.conn.Write(report.Serialize()); err != nil {
		s.deleteSession(address)
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

func (s *Server) writeError(address string, cause error) {
	_ = s.writeReport(address, reportFromError(cause, s.clk.Now()))
}

// handleConnection reads exactly one frame from conn, hands it to the
// session handler, and re-enqueues the connection for its next frame.
// This self-replenishing shape (rather than one goroutine per
// connection) matches the teacher's own worker-pool usage pattern.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	address := conn.RemoteAddr().String()

	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		s.log.Error().Err(err).Str("address", address).Msg("failed setting deadline")
		s.deleteSession(address)
		return nil
	}

	select {
	case <-t.Dying():
		return nil
	default:
	}

	buffer := make([]byte, maxRecvSize)
	n, err := conn.Read(buffer)
	if err != nil {
		s.deleteSession(address)
		return nil
	}

	message, err := ParseMessage(buffer[:n])
	if err != nil {
		s.log.Error().Err(err).Str("address", address).Msg("error parsing message")
		s.pool.AddTask(conn)
		return nil
	}

	s.messages <- clientMessage{address: address, message: message}
	s.pool.AddTask(conn)
	return nil
}

func (s *Server) addSession(conn net.Conn) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.sessions[conn.RemoteAddr().String()] = &clientSession{conn: conn}
}

func (s *Server) bindOwner(address, owner string) {
	if owner == "" {
		return
	}
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	session, ok := s.sessions[address]
	if !ok {
		return
	}
	session.owner = owner
	s.byOwner[owner] = session
}

func (s *Server) deleteSession(address string) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	session, ok := s.sessions[address]
	if ok && session.owner != "" {
		delete(s.byOwner, session.owner)
	}
	delete(s.sessions, address)
}
