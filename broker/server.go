package broker

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Server answers REG_REQ/DISC_REQ/DEREG_REQ over one WebSocket
// connection per request: one frame in, one frame out, rather than
// multiplexing a session protocol.
type Server struct {
	registry *Registry
	log      *zap.SugaredLogger
}

// NewServer wires a Server to an already-loaded Registry.
func NewServer(registry *Registry, log *zap.SugaredLogger) *Server {
	return &Server{registry: registry, log: log.Named("broker")}
}

// ServeHTTP upgrades the connection and answers exactly one request,
// matching a one-shot request/reply client like Client.Register.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warnw("accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	var env Envelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		s.log.Warnw("read failed", "error", err)
		return
	}

	resp := s.handle(env)
	if err := wsjson.Write(ctx, conn, Envelope{Type: TypeResponse, Response: resp}); err != nil {
		s.log.Warnw("write failed", "error", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) handle(env Envelope) Response {
	switch env.Type {
	case TypeRegisterRequest:
		return s.handleRegister(env.Request)
	case TypeDiscoverRequest:
		return s.handleDiscover(env.Request)
	case TypeDeregisterRequest:
		return s.handleDeregister(env.Request)
	default:
		return Response{Status: StatusDenied, Error: "unknown request type"}
	}
}

func (s *Server) handleRegister(req Request) Response {
	status, err := s.registry.Register(Entry{
		Channel:    req.Channel,
		ShmName:    req.ShmName,
		SchemaHash: req.SchemaHash,
		Endpoint:   req.Endpoint,
		SecretHash: req.SecretHash,
	})
	if err != nil {
		s.log.Errorw("register failed", "channel", req.Channel, "error", err)
		return Response{Status: StatusDenied, Error: err.Error()}
	}
	return Response{Status: status}
}

func (s *Server) handleDiscover(req Request) Response {
	e, ok := s.registry.Lookup(req.Channel)
	if !ok {
		return Response{Status: StatusNotFound}
	}
	if !secretMatches(req.SecretHash, e.SecretHash) {
		return Response{Status: StatusDenied}
	}
	return Response{Status: StatusOK, ShmName: e.ShmName, SchemaHash: e.SchemaHash, Endpoint: e.Endpoint}
}

func (s *Server) handleDeregister(req Request) Response {
	e, ok := s.registry.Lookup(req.Channel)
	if !ok {
		return Response{Status: StatusNotFound}
	}
	if !secretMatches(req.SecretHash, e.SecretHash) {
		return Response{Status: StatusDenied}
	}
	status, err := s.registry.Deregister(req.Channel)
	if err != nil {
		return Response{Status: StatusDenied, Error: err.Error()}
	}
	return Response{Status: status}
}

func secretMatches(provided, want string) bool {
	if want == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(want)) == 1
}

// HashSecret returns the hex-encoded SHA-256 of a plaintext secret, the
// form both the registry and requests carry so the plaintext itself is
// never persisted or sent after initial provisioning.
func HashSecret(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

var errServerClosed = errors.New("broker: server closed")

// Run starts an HTTP server hosting the discovery endpoint at addr and
// blocks until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, s *Server) error {
	httpServer := &http.Server{Addr: addr, Handler: s}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- errServerClosed
	}()

	select {
	case <-ctx.Done():
		_ = httpServer.Shutdown(context.Background())
		return ctx.Err()
	case err := <-errCh:
		if err == errServerClosed {
			return nil
		}
		return err
	}
}
