// Package control implements the Unix-domain JSON control socket:
// one JSON object per connection, a static command-name-to-handler
// table, {ifindex,outer-vlan,inner-vlan} backward-compat session
// resolution, and a status/code response envelope (spec.md §4.7,
// grounded on original_source/src/bbl_ctrl.c's accept-loop and
// action table).
package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/domthera/bngblaster/internal/core"
	"github.com/domthera/bngblaster/internal/session"
)

// Status mirrors the three response statuses the original emits
// (bbl_ctrl_status's "status" field).
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Response is the envelope every handler returns: status, an
// HTTP-like numeric code, an optional human message, and any
// command-specific fields (spec.md §4.7).
type Response struct {
	Status  Status      `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Fields  interface{} `json:"-"`
}

// MarshalJSON flattens Fields (if set) alongside status/code/message,
// matching the original's single flat JSON object per response.
func (r Response) MarshalJSON() ([]byte, error) {
	base := map[string]interface{}{
		"status": r.Status,
		"code":   r.Code,
	}
	if r.Message != "" {
		base["message"] = r.Message
	}
	if r.Fields != nil {
		extra, err := json.Marshal(r.Fields)
		if err != nil {
			return nil, err
		}
		var m map[string]interface{}
		if err := json.Unmarshal(extra, &m); err != nil {
			return nil, err
		}
		for k, v := range m {
			base[k] = v
		}
	}
	return json.Marshal(base)
}

func ok(fields interface{}) Response        { return Response{Status: StatusOK, Code: 200, Fields: fields} }
func okMsg(msg string) Response             { return Response{Status: StatusOK, Code: 200, Message: msg} }
func warning(code int, msg string) Response { return Response{Status: StatusWarning, Code: code, Message: msg} }
func errResp(code int, msg string) Response { return Response{Status: StatusError, Code: code, Message: msg} }

// Handler processes one command's arguments against the shared
// context, optionally resolving to a specific session first.
type Handler func(ctx *core.Context, sess *session.Session, args json.RawMessage) Response

// Table is the static command-name-to-handler mapping, built once at
// startup (spec.md §9: "Raw callback registration via function-
// pointer tables (timers, control socket). Keep as table-driven
// dispatch").
type Table map[string]Handler

// request is the top-level shape every connection must send exactly
// once (original's {"command": "...", "arguments": {...}}).
type request struct {
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments"`
}

// sessionArgs is the subset of a request's arguments used to resolve
// which session a command targets: either a direct session-id, or the
// deprecated (ifindex, outer-vlan, inner-vlan) tuple (spec.md §4.7:
// "for backward compatibility a tuple ... may be supplied instead").
type sessionArgs struct {
	SessionID *uint32 `json:"session-id"`
	Ifindex   *int    `json:"ifindex"`
	OuterVLAN *uint16 `json:"outer-vlan"`
	InnerVLAN *uint16 `json:"inner-vlan"`
}

// Server accepts connections on a Unix-domain stream socket and
// dispatches each one's single command through Table.
type Server struct {
	logger   log.Logger
	ctx      *core.Context
	table    Table
	listener *net.UnixListener
}

// NewServer constructs a control socket server bound to path, deleting
// any stale socket file left behind by a previous run.
func NewServer(logger log.Logger, ctx *core.Context, table Table, path string) (*Server, error) {
	_ = os.Remove(path)
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("resolve control socket path: %w", err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on control socket: %w", err)
	}
	return &Server{logger: logger, ctx: ctx, table: table, listener: ln}, nil
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Serve accepts connections until the listener is closed, handling
// each one synchronously (spec.md §4.7: "the connection closes after
// one exchange").
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			return err
		}
		s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn *net.UnixConn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	var req request
	dec := json.NewDecoder(reader)
	if err := dec.Decode(&req); err != nil {
		writeResponse(conn, errResp(400, "invalid json"))
		return
	}

	handler, ok := s.table[req.Command]
	if !ok {
		writeResponse(conn, errResp(400, "unknown command"))
		return
	}

	sess, resp, resolved := s.resolveSession(req.Arguments)
	if resolved && sess == nil {
		writeResponse(conn, resp)
		return
	}

	level.Debug(s.logger).Log("event", "control-command", "command", req.Command)
	writeResponse(conn, handler(s.ctx, sess, req.Arguments))
}

// resolveSession implements spec.md §4.7's session resolution: a
// direct session-id, or the deprecated (ifindex, outer-vlan,
// inner-vlan) tuple. resolved is false when arguments carried neither
// (a session-less command, e.g. "interfaces").
func (s *Server) resolveSession(args json.RawMessage) (sess *session.Session, resp Response, resolved bool) {
	if len(args) == 0 {
		return nil, Response{}, false
	}
	var sa sessionArgs
	if err := json.Unmarshal(args, &sa); err != nil {
		return nil, errResp(400, "invalid arguments"), true
	}
	if sa.SessionID != nil {
		sess, ok := s.ctx.Sessions.LookupID(*sa.SessionID)
		if !ok {
			return nil, warning(404, "session not found"), true
		}
		return sess, Response{}, true
	}
	if sa.OuterVLAN == nil {
		return nil, Response{}, false
	}
	key := session.Key{OuterVLAN: *sa.OuterVLAN}
	if sa.Ifindex != nil {
		key.Ifindex = *sa.Ifindex
	}
	if sa.InnerVLAN != nil {
		key.InnerVLAN = *sa.InnerVLAN
	}
	found, ok := s.ctx.Sessions.Lookup(key)
	if !ok {
		return nil, warning(404, "session not found"), true
	}
	return found, Response{}, true
}

func writeResponse(conn *net.UnixConn, resp Response) {
	buf, err := json.Marshal(resp)
	if err != nil {
		return
	}
	buf = append(buf, '\n')
	_, _ = conn.Write(buf)
}
