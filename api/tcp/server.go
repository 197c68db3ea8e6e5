package tcp

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"tycho/engine"
)

// Server accepts framed TCP clients, decodes NEW_ORDER and CANCEL frames
// into the engine, and broadcasts every demultiplexed server message to
// all connected clients. A client that cannot keep up loses frames; a
// client that sends garbage loses the frame, not the connection, unless
// the length header exceeds the sanity cap.
type Server struct {
	eng    *engine.Server
	stream <-chan engine.ServerMessage
	addr   string

	ln net.Listener

	mu    sync.Mutex
	conns map[net.Conn]chan []byte

	running atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewServer wires a listener-to-be on port against eng, subscribing to
// the broadcast stream via demux.
func NewServer(eng *engine.Server, demux *engine.Demux, port int) *Server {
	return &Server{
		eng:    eng,
		stream: demux.Subscribe(8192),
		addr:   fmt.Sprintf(":%d", port),
		conns:  make(map[net.Conn]chan []byte),
	}
}

// Start binds the listener and spawns the accept and broadcast loops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("tcp: listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.stop = make(chan struct{})
	s.running.Store(true)

	s.wg.Add(2)
	go s.acceptLoop()
	go s.broadcastLoop()

	log.Printf("[net] listening on %s", s.addr)
	return nil
}

// Stop closes the listener and every client connection and waits for all
// goroutines to exit.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stop)
	s.ln.Close()

	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		s.dropConn(c, "shutdown")
	}

	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			continue
		}

		out := make(chan []byte, 1024)
		s.mu.Lock()
		s.conns[conn] = out
		s.mu.Unlock()
		log.Printf("[net] client connected: %s", conn.RemoteAddr())

		s.wg.Add(2)
		go s.readLoop(conn)
		go s.writeLoop(conn, out)
	}
}

// readLoop consumes length-prefixed frames from one client.
func (s *Server) readLoop(conn net.Conn) {
	defer s.wg.Done()

	var header [4]byte
	for {
		if _, err := io.ReadFull(conn, header[:]); err != nil {
			s.dropConn(conn, "closed")
			return
		}
		length := binary.BigEndian.Uint32(header[:])
		if length > MaxFrameSize {
			log.Printf("[net] client %s sent oversized frame: %d", conn.RemoteAddr(), length)
			s.dropConn(conn, "oversized frame")
			return
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(conn, payload); err != nil {
			s.dropConn(conn, "closed")
			return
		}

		cm, err := DecodeClientPayload(payload)
		if err != nil {
			// Malformed frame: drop it, keep the connection.
			log.Printf("[net] bad frame from %s: %v", conn.RemoteAddr(), err)
			continue
		}

		switch cm.Type {
		case engine.MsgNewOrder:
			if !s.eng.SubmitNewOrder(cm.NewOrder) {
				log.Printf("[net] input channel full, dropping order from %s", conn.RemoteAddr())
			}
		case engine.MsgCancel:
			if !s.eng.SubmitCancel(cm.Cancel) {
				log.Printf("[net] input channel full, dropping cancel from %s", conn.RemoteAddr())
			}
		}
	}
}

// writeLoop drains one client's outgoing queue; it exits when dropConn
// closes the queue.
func (s *Server) writeLoop(conn net.Conn, out chan []byte) {
	defer s.wg.Done()
	for frame := range out {
		if _, err := conn.Write(frame); err != nil {
			s.dropConn(conn, "write failed")
			// Keep draining so the close of out is observed.
		}
	}
}

// broadcastLoop fans server messages to every connected client.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()
	for {
		select {
		case sm := <-s.stream:
			frame := EncodeServerMessage(&sm)
			s.mu.Lock()
			for _, out := range s.conns {
				select {
				case out <- frame:
				default:
					// Slow consumer: this client misses the frame.
				}
			}
			s.mu.Unlock()
		case <-s.stop:
			return
		}
	}
}

// dropConn unregisters the connection once, closes its queue and socket.
// Broadcast sends happen under the same mutex, so the queue is never
// written after it is closed.
func (s *Server) dropConn(conn net.Conn, reason string) {
	s.mu.Lock()
	out, ok := s.conns[conn]
	if ok {
		delete(s.conns, conn)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	close(out)
	conn.Close()
	log.Printf("[net] client disconnected: %s (%s)", conn.RemoteAddr(), reason)
}
