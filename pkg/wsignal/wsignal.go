// Package wsignal answers WebRTC calls from browsers and peers over a
// websocket. Each connection is one remote peer; its offers and candidates
// drive a signaling.Client as the answerer, and the client's answers and
// candidates are written back.
package wsignal

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/pc"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/signaling"
)

// Message types.
const (
	TypeOffer            = "offer"
	TypeAnswer           = "answer"
	TypeCandidate        = "candidate"
	TypeRemoveCandidates = "remove-candidates"
	TypeBye              = "bye"
	TypeError            = "error"
	TypeConnected        = "connected"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendQueue  = 64
)

// ErrNotBound is reported when a message arrives before Bind.
var ErrNotBound = errors.New("wsignal: no signaling client bound")

// Message is one websocket frame, JSON encoded.
type Message struct {
	Type       string             `json:"type"`
	SDP        string             `json:"sdp,omitempty"`
	Candidate  *pc.ICECandidate   `json:"candidate,omitempty"`
	Candidates []*pc.ICECandidate `json:"candidates,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Server is an http.Handler upgrading requests to signaling websockets and
// the signaling.Events sink of the client it is bound to.
type Server struct {
	log      logging.LeveledLogger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	client *signaling.Client
	conns  map[string]*conn
	nextID int64
}

var (
	_ http.Handler     = (*Server)(nil)
	_ signaling.Events = (*Server)(nil)
)

// NewServer creates an unbound server. Pass it as the Events of a
// signaling.Client, then Bind that client.
func NewServer(lf logging.LoggerFactory) *Server {
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return &Server{
		log: lf.NewLogger("wsignal"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*conn),
	}
}

// Bind sets the client remote messages are routed to.
func (s *Server) Bind(c *signaling.Client) {
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
}

// Peers returns how many websockets are connected.
func (s *Server) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// conn is one websocket peer. send is drained by writeLoop so executor
// callbacks never block on the network.
type conn struct {
	ws     *websocket.Conn
	peerID *big.Int
	send   chan Message
	done   chan struct{}
	once   sync.Once
}

func (c *conn) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *conn) enqueue(m Message) bool {
	select {
	case c.send <- m:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("upgrade %s: %v", r.RemoteAddr, err)
		return
	}

	s.mu.Lock()
	s.nextID++
	c := &conn{
		ws:     ws,
		peerID: big.NewInt(s.nextID),
		send:   make(chan Message, sendQueue),
		done:   make(chan struct{}),
	}
	s.conns[c.peerID.String()] = c
	s.mu.Unlock()

	s.log.Infof("peer %s connected from %s", c.peerID, r.RemoteAddr)
	go s.writeLoop(c)
	s.readLoop(c)

	s.mu.Lock()
	delete(s.conns, c.peerID.String())
	client := s.client
	s.mu.Unlock()
	if client != nil {
		client.Dispose(c.peerID)
	}
	c.close()
	s.log.Infof("peer %s disconnected", c.peerID)
}

func (s *Server) readLoop(c *conn) {
	defer c.ws.Close()
	c.ws.SetReadLimit(1 << 20)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			var syntax *json.SyntaxError
			if errors.As(err, &syntax) {
				c.enqueue(Message{Type: TypeError, Error: "malformed message"})
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debugf("peer %s read: %v", c.peerID, err)
			}
			return
		}
		if msg.Type == TypeBye {
			return
		}
		if err := s.handle(c, msg); err != nil {
			s.log.Warnf("peer %s %s: %v", c.peerID, msg.Type, err)
			c.enqueue(Message{Type: TypeError, Error: err.Error()})
		}
	}
}

func (s *Server) handle(c *conn, msg Message) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return ErrNotBound
	}

	switch msg.Type {
	case TypeOffer:
		client.HandleRemoteOffer(c.peerID, &pc.SessionDescription{Type: pc.SDPTypeOffer, SDP: msg.SDP})
	case TypeCandidate:
		if msg.Candidate == nil || msg.Candidate.Candidate == "" {
			// End of candidates.
			return nil
		}
		client.AddRemoteICECandidate(c.peerID, msg.Candidate)
	case TypeRemoveCandidates:
		client.RemoveRemoteICECandidates(c.peerID, msg.Candidates)
	default:
		return errors.New("unknown message type " + msg.Type)
	}
	return nil
}

func (s *Server) writeLoop(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case m := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(m); err != nil {
				s.log.Debugf("peer %s write: %v", c.peerID, err)
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (s *Server) sendTo(peerID *big.Int, m Message) {
	s.mu.Lock()
	c := s.conns[peerID.String()]
	s.mu.Unlock()
	if c == nil {
		return
	}
	if !c.enqueue(m) {
		s.log.Warnf("peer %s: %s dropped", peerID, m.Type)
	}
}

// OnLocalDescription implements signaling.Events.
func (s *Server) OnLocalDescription(peerID *big.Int, desc *pc.SessionDescription) {
	s.sendTo(peerID, Message{Type: desc.Type.String(), SDP: desc.SDP})
}

// OnICECandidate implements signaling.Events.
func (s *Server) OnICECandidate(peerID *big.Int, c *pc.ICECandidate) {
	s.sendTo(peerID, Message{Type: TypeCandidate, Candidate: c})
}

// OnICECandidatesRemoved implements signaling.Events.
func (s *Server) OnICECandidatesRemoved(peerID *big.Int, cs []*pc.ICECandidate) {
	s.sendTo(peerID, Message{Type: TypeRemoveCandidates, Candidates: cs})
}

// OnICEConnected implements signaling.Events.
func (s *Server) OnICEConnected(peerID *big.Int) {
	s.log.Infof("peer %s ICE connected", peerID)
	s.sendTo(peerID, Message{Type: TypeConnected})
}

// OnICEDisconnected implements signaling.Events.
func (s *Server) OnICEDisconnected(peerID *big.Int) {
	s.log.Infof("peer %s ICE disconnected", peerID)
}

// OnPeerConnectionClosed implements signaling.Events.
func (s *Server) OnPeerConnectionClosed(peerID *big.Int) {
	s.log.Debugf("peer %s closed", peerID)
}

// OnPeerConnectionError implements signaling.Events.
func (s *Server) OnPeerConnectionError(peerID *big.Int, err error) {
	s.sendTo(peerID, Message{Type: TypeError, Error: err.Error()})
}

// OnLocalRender implements signaling.Events.
func (s *Server) OnLocalRender(*big.Int) {}

// OnRemoteRender implements signaling.Events.
func (s *Server) OnRemoteRender(peerID *big.Int) {
	s.log.Infof("peer %s remote video", peerID)
}
