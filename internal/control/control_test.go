package control

import (
	"encoding/json"
	"testing"

	"github.com/domthera/bngblaster/internal/core"
	"github.com/domthera/bngblaster/internal/session"
)

func newTestServer() (*Server, *core.Context) {
	ctx := core.New(core.Config{})
	return &Server{ctx: ctx, table: DefaultTable()}, ctx
}

func TestResolveSessionNoArgumentsIsSessionless(t *testing.T) {
	s, _ := newTestServer()
	sess, _, resolved := s.resolveSession(nil)
	if resolved || sess != nil {
		t.Fatalf("expected session-less command to not resolve")
	}
}

func TestResolveSessionByIDNotFound(t *testing.T) {
	s, _ := newTestServer()
	args, _ := json.Marshal(map[string]interface{}{"session-id": 7})
	sess, resp, resolved := s.resolveSession(args)
	if !resolved || sess != nil {
		t.Fatalf("expected resolution attempted and failed")
	}
	if resp.Status != StatusWarning || resp.Code != 404 {
		t.Fatalf("resp = %+v, want warning/404", resp)
	}
}

func TestResolveSessionByIDFound(t *testing.T) {
	s, ctx := newTestServer()
	sess, err := ctx.Sessions.Acquire(session.Key{Ifindex: 1, OuterVLAN: 100}, session.KindPPPoE)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	args, _ := json.Marshal(map[string]interface{}{"session-id": sess.ID})
	got, resp, resolved := s.resolveSession(args)
	if !resolved || got != sess {
		t.Fatalf("expected resolved session, resp=%+v", resp)
	}
}

func TestResolveSessionByVLANTuple(t *testing.T) {
	s, ctx := newTestServer()
	sess, err := ctx.Sessions.Acquire(session.Key{Ifindex: 2, OuterVLAN: 200, InnerVLAN: 300}, session.KindIPoE)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	args, _ := json.Marshal(map[string]interface{}{"ifindex": 2, "outer-vlan": 200, "inner-vlan": 300})
	got, _, resolved := s.resolveSession(args)
	if !resolved || got != sess {
		t.Fatalf("expected VLAN-tuple resolution to find session")
	}
}

func TestResponseMarshalFlattensFields(t *testing.T) {
	resp := ok(map[string]interface{}{"foo": "bar"})
	buf, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(buf, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m["status"] != "ok" || m["foo"] != "bar" {
		t.Fatalf("m = %+v", m)
	}
}

func TestDefaultTableHasCoreCommands(t *testing.T) {
	table := DefaultTable()
	for _, cmd := range []string{
		"interfaces", "session-terminate", "l2tp-tunnels", "l2tp-csurq",
		"isis-adjacencies", "traffic-start", "stream-info", "igmp-join",
	} {
		if _, ok := table[cmd]; !ok {
			t.Errorf("missing command %q in default table", cmd)
		}
	}
}

func TestHandleInterfacesEmpty(t *testing.T) {
	ctx := core.New(core.Config{})
	resp := handleInterfaces(ctx, nil, nil)
	if resp.Status != StatusOK {
		t.Fatalf("resp.Status = %v, want ok", resp.Status)
	}
}

func TestHandleSessionTerminateRequiresSession(t *testing.T) {
	ctx := core.New(core.Config{})
	resp := handleSessionTerminate(ctx, nil, nil)
	if resp.Status != StatusError {
		t.Fatalf("resp.Status = %v, want error", resp.Status)
	}
}

func TestHandleL2TPCSURQTunnelNotFound(t *testing.T) {
	ctx := core.New(core.Config{})
	args, _ := json.Marshal(map[string]interface{}{"tunnel-id": 1, "sessions": []int{1, 2}})
	resp := handleL2TPCSURQ(ctx, nil, args)
	if resp.Status != StatusWarning || resp.Code != 404 {
		t.Fatalf("resp = %+v, want warning/404", resp)
	}
}

func TestHandleISISAdjacenciesInstanceNotFound(t *testing.T) {
	ctx := core.New(core.Config{})
	resp := handleISISAdjacencies(ctx, nil, nil)
	if resp.Status != StatusWarning {
		t.Fatalf("resp.Status = %v, want warning", resp.Status)
	}
}
