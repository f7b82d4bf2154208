// Package ctl implements a small loopback control socket a running daemon
// listens on so a separate debug-events invocation can ask it to grab (or
// release) exclusive access to a device (§6, "cmd/debug-events --grab").
// It reuses the teacher's bearer-JWT posture from internal/api/server.go,
// adapted from an HTTP Authorization header to one JSON request object
// sent over a unix domain socket.
package ctl

import (
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/golang-jwt/jwt/v5"
	hclog "github.com/hashicorp/go-hclog"
)

// Request is one control-socket command.
type Request struct {
	Token   string `json:"token"`
	Command string `json:"command"` // "grab" or "release"
	Device  string `json:"device"`
}

// Response is the daemon's reply to a Request.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Handler resolves a grab/release command against the running daemon's
// device registry.
type Handler interface {
	Grab(device string) error
	Release(device string) error
}

// Server listens on a unix socket, authenticating each request the same
// way the teacher's AuthMiddleware does: no secret configured means no
// auth is enforced, otherwise the token must be a validly-signed HS256 JWT.
type Server struct {
	ln     net.Listener
	secret []byte
	handler Handler
	log    hclog.Logger
}

// Listen creates the control socket at path, removing any stale socket
// file left behind by a previous run.
func Listen(path string, secret string, handler Handler, log hclog.Logger) (*Server, error) {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ctl: listen %s: %w", path, err)
	}
	return &Server{ln: ln, secret: []byte(secret), handler: handler, log: log}, nil
}

// Close removes the socket and stops accepting connections.
func (s *Server) Close() error {
	return s.ln.Close()
}

// Serve accepts connections until the listener is closed, handling one
// request per connection.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return err
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		json.NewEncoder(conn).Encode(Response{Error: fmt.Sprintf("malformed request: %v", err)})
		return
	}

	if err := s.authenticate(req.Token); err != nil {
		s.log.Warn("ctl: auth failed", "error", err)
		json.NewEncoder(conn).Encode(Response{Error: err.Error()})
		return
	}

	var err error
	switch req.Command {
	case "grab":
		err = s.handler.Grab(req.Device)
	case "release":
		err = s.handler.Release(req.Device)
	default:
		err = fmt.Errorf("unknown command %q", req.Command)
	}
	if err != nil {
		json.NewEncoder(conn).Encode(Response{Error: err.Error()})
		return
	}
	json.NewEncoder(conn).Encode(Response{OK: true})
}

func (s *Server) authenticate(tokenString string) error {
	if len(s.secret) == 0 {
		return nil
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}

// Send dials a running daemon's control socket and issues one request.
func Send(path string, req Request) (Response, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return Response{}, fmt.Errorf("ctl: dial %s: %w", path, err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, err
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("ctl: %s", resp.Error)
	}
	return resp, nil
}
