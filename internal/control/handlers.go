package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/domthera/bngblaster/internal/core"
	"github.com/domthera/bngblaster/internal/isis"
	"github.com/domthera/bngblaster/internal/l2tp"
	"github.com/domthera/bngblaster/internal/protocol"
	"github.com/domthera/bngblaster/internal/session"
	"github.com/domthera/bngblaster/internal/traffic"
)

// DefaultTable builds the static command table every control server is
// started with (spec.md §4.7). Commands are grouped the way the
// original's action table is: interfaces, session lifecycle, IGMP,
// L2TP, stream/traffic, CFM, IS-IS.
func DefaultTable() Table {
	return Table{
		"interfaces": handleInterfaces,

		"session-terminate":     handleSessionTerminate,
		"session-terminate-all": handleSessionTerminateAll,
		"session-info":          handleSessionInfo,
		"session-counters":      handleSessionCounters,

		"ipcp-open":  handleIPCPOpen,
		"ipcp-close": handleIPCPClose,
		"ip6cp-open": handleIP6CPOpen,
		"ip6cp-close": handleIP6CPClose,

		"igmp-join":  handleIGMPJoin,
		"igmp-leave": handleIGMPLeave,
		"igmp-info":  handleIGMPInfo,

		"l2tp-tunnels":           handleL2TPTunnels,
		"l2tp-sessions":          handleL2TPSessions,
		"l2tp-csurq":             handleL2TPCSURQ,
		"l2tp-tunnel-terminate":  handleL2TPTunnelTerminate,
		"l2tp-session-terminate": handleL2TPSessionTerminate,

		"stream-info":    handleStreamInfo,
		"stream-stats":   handleStreamStats,
		"stream-enable":  handleStreamEnable,
		"stream-disable": handleStreamDisable,

		"cfm-cc-start":  handleCFMStart,
		"cfm-cc-stop":   handleCFMStop,
		"cfm-cc-rdi-on": handleCFMRDIOn,
		"cfm-cc-rdi-off": handleCFMRDIOff,

		"traffic-start": handleTrafficStart,
		"traffic-stop":  handleTrafficStop,

		"isis-adjacencies":  handleISISAdjacencies,
		"isis-database":     handleISISDatabase,
		"isis-load-mrt":     handleISISLoadMRT,
		"isis-update-external-lsp": handleISISUpdateExternalLSP,
	}
}

// --- interfaces ---------------------------------------------------

func handleInterfaces(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	ifs := ctx.Interfaces()
	names := make([]string, 0, len(ifs))
	for _, p := range ifs {
		names = append(names, p.Name)
	}
	return ok(map[string]interface{}{"interfaces": names})
}

// --- session lifecycle ---------------------------------------------

type terminateArgs struct {
	ResultCode int `json:"result-code"`
}

func handleSessionTerminate(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	if sess == nil {
		return errResp(400, "missing session-id")
	}
	if err := sess.Top.HandleEvent(session.EvTerminate); err != nil {
		return warning(400, err.Error())
	}
	return okMsg("terminating")
}

func handleSessionTerminateAll(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	for _, s := range ctx.Sessions.All() {
		_ = s.Top.HandleEvent(session.EvTerminate)
	}
	return okMsg("terminating all sessions")
}

func handleSessionInfo(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	if sess == nil {
		return warning(404, "session not found")
	}
	return ok(map[string]interface{}{
		"session-id":      sess.ID,
		"state":           sess.Top.Current,
		"peer-session-id": sess.PeerSessionID,
	})
}

func handleSessionCounters(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	if sess == nil {
		return warning(404, "session not found")
	}
	pending := sess.TrafficVerified.Pending()
	return ok(map[string]interface{}{
		"session-id":       sess.ID,
		"flows":            len(sess.FlowIDs),
		"traffic-verified": !pending,
	})
}

// --- IPCP/IP6CP ------------------------------------------------------
//
// open drives the NCP machine to Opened the way a successful
// negotiation would; close forces it back to Closed directly rather
// than running a Terminate-Request exchange (a simplification over the
// original's negotiated close path, noted in the grounding ledger).

func handleIPCPOpen(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	if sess == nil || sess.IPCP == nil {
		return errResp(400, "no IPCP on session")
	}
	_ = sess.IPCP.FSM.HandleEvent("up")
	return okMsg("ipcp opening")
}

func handleIPCPClose(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	if sess == nil || sess.IPCP == nil {
		return errResp(400, "no IPCP on session")
	}
	sess.IPCP.FSM.Current = session.NCPClosed
	return okMsg("ipcp closed")
}

func handleIP6CPOpen(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	if sess == nil || sess.IP6CP == nil {
		return errResp(400, "no IP6CP on session")
	}
	_ = sess.IP6CP.FSM.HandleEvent("up")
	return okMsg("ip6cp opening")
}

func handleIP6CPClose(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	if sess == nil || sess.IP6CP == nil {
		return errResp(400, "no IP6CP on session")
	}
	sess.IP6CP.FSM.Current = session.NCPClosed
	return okMsg("ip6cp closed")
}

// --- IGMP ------------------------------------------------------------

type igmpArgs struct {
	Group  string `json:"group"`
	Source string `json:"source"`
}

func handleIGMPJoin(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	if sess == nil || sess.IGMP == nil {
		return errResp(400, "no IGMP on session")
	}
	var ia igmpArgs
	if err := json.Unmarshal(args, &ia); err != nil {
		return errResp(400, "invalid arguments")
	}
	group := parseIP(ia.Group)
	if group == nil {
		return errResp(400, "invalid group")
	}
	if err := sess.IGMP.Join(group, parseIP(ia.Source)); err != nil {
		return warning(400, err.Error())
	}
	return okMsg("joined")
}

func handleIGMPLeave(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	if sess == nil || sess.IGMP == nil {
		return errResp(400, "no IGMP on session")
	}
	var ia igmpArgs
	if err := json.Unmarshal(args, &ia); err != nil {
		return errResp(400, "invalid arguments")
	}
	group := parseIP(ia.Group)
	if group == nil {
		return errResp(400, "invalid group")
	}
	sess.IGMP.Leave(group, parseIP(ia.Source))
	return okMsg("left")
}

func handleIGMPInfo(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	if sess == nil || sess.IGMP == nil {
		return errResp(400, "no IGMP on session")
	}
	groups := sess.IGMP.Groups()
	out := make([]map[string]interface{}, 0, len(groups))
	for _, g := range groups {
		out = append(out, map[string]interface{}{
			"group":       g.Group.String(),
			"sources":     len(g.Sources),
			"join-delay":  g.JoinDelay,
			"leave-delay": g.LeaveDelay,
		})
	}
	return ok(map[string]interface{}{"groups": out})
}

// --- L2TP ------------------------------------------------------------

// l2tpTunnelJSON mirrors the original's bbl_ctrl_l2tp_tunnels field
// names for the state this module tracks; the original's
// server-name/server-address fields are not included.
func l2tpTunnelJSON(t *l2tp.Tunnel) map[string]interface{} {
	return map[string]interface{}{
		"state":                    t.State(),
		"tunnel-id":                t.LocalTunnelID,
		"peer-tunnel-id":           t.PeerTunnelID,
		"peer-name":                t.PeerHostName,
		"control-packets-tx":       t.Stats.ControlTx,
		"control-packets-rx":       t.Stats.ControlRx,
		"control-packets-rx-dup":   t.Stats.ControlDup,
		"control-packets-rx-ooo":   t.Stats.ControlOOO,
		"control-packets-retry":    t.Stats.ControlRetry,
		"data-packets-tx":          t.Stats.DataTx,
		"data-packets-rx":          t.Stats.DataRx,
	}
}

func handleL2TPTunnels(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	tunnels := ctx.L2TP.Tunnels()
	out := make([]map[string]interface{}, 0, len(tunnels))
	for _, t := range tunnels {
		out = append(out, l2tpTunnelJSON(t))
	}
	return ok(map[string]interface{}{"l2tp-tunnels": out})
}

func l2tpSessionJSON(s *l2tp.Session) map[string]interface{} {
	return map[string]interface{}{
		"state":                s.State(),
		"tunnel-id":            s.Tunnel.LocalTunnelID,
		"session-id":           s.LocalSessionID,
		"peer-tunnel-id":       s.Tunnel.PeerTunnelID,
		"peer-session-id":      s.PeerSessionID,
		"peer-proxy-auth-name": s.ProxyAuthName,
	}
}

type l2tpSessionsArgs struct {
	TunnelID *int `json:"tunnel-id"`
}

func handleL2TPSessions(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	var la l2tpSessionsArgs
	_ = json.Unmarshal(args, &la)

	out := make([]map[string]interface{}, 0)
	for _, t := range ctx.L2TP.Tunnels() {
		if la.TunnelID != nil && int(t.LocalTunnelID) != *la.TunnelID {
			continue
		}
		for _, s := range t.Sessions {
			out = append(out, l2tpSessionJSON(s))
		}
	}
	return ok(map[string]interface{}{"l2tp-sessions": out})
}

type csurqArgs struct {
	TunnelID int     `json:"tunnel-id"`
	Sessions []uint16 `json:"sessions"`
}

func handleL2TPCSURQ(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	var ca csurqArgs
	if err := json.Unmarshal(args, &ca); err != nil {
		return errResp(400, "missing tunnel-id")
	}
	tunnel := findTunnelByID(ctx, uint16(ca.TunnelID))
	if tunnel == nil {
		return warning(404, "tunnel not found")
	}
	if tunnel.State() != l2tp.TunnelEstablished {
		return warning(400, "tunnel not established")
	}
	if len(ca.Sessions) == 0 {
		return errResp(400, "invalid request")
	}
	if err := tunnel.SendCSURQ(ca.Sessions); err != nil {
		return errResp(500, err.Error())
	}
	return okMsg("ok")
}

type l2tpTerminateArgs struct {
	TunnelID     int    `json:"tunnel-id"`
	ResultCode   int    `json:"result-code"`
	ErrorCode    int    `json:"error-code"`
	ErrorMessage string `json:"error-message"`
}

func handleL2TPTunnelTerminate(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	var ta l2tpTerminateArgs
	if err := json.Unmarshal(args, &ta); err != nil {
		return errResp(400, "missing tunnel-id")
	}
	tunnel := findTunnelByID(ctx, uint16(ta.TunnelID))
	if tunnel == nil {
		return warning(404, "tunnel not found")
	}
	if tunnel.State() != l2tp.TunnelEstablished {
		return warning(400, "tunnel not established")
	}
	result := ta.ResultCode
	if result == 0 {
		result = 1
	}
	if err := tunnel.Terminate(protocol.L2TPResultCode(result), uint16(ta.ErrorCode), ta.ErrorMessage); err != nil {
		return errResp(500, err.Error())
	}
	return okMsg("ok")
}

func handleL2TPSessionTerminate(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	if sess == nil {
		return errResp(400, "missing session-id")
	}
	var ta l2tpTerminateArgs
	_ = json.Unmarshal(args, &ta)

	l2tpSess := findL2TPSessionBySubscriber(ctx, sess.ID)
	if l2tpSess == nil {
		return errResp(400, "no L2TP session")
	}
	if l2tpSess.Tunnel.State() != l2tp.TunnelEstablished {
		return warning(400, "tunnel not established")
	}
	if l2tpSess.State() != l2tp.SessionEstablished {
		return warning(400, "session not established")
	}
	result := ta.ResultCode
	if result == 0 {
		result = 2
	}
	if err := l2tpSess.Terminate(protocol.L2TPResultCode(result), uint16(ta.ErrorCode), ta.ErrorMessage); err != nil {
		return errResp(500, err.Error())
	}
	return okMsg("ok")
}

func findTunnelByID(ctx *core.Context, id uint16) *l2tp.Tunnel {
	t, ok := ctx.L2TP.Tunnel(id)
	if !ok {
		return nil
	}
	return t
}

// findL2TPSessionBySubscriber maps a subscriber session id to its
// L2TP call by scanning every tunnel's session map; this emulator
// doesn't keep a direct back-pointer from session.Session to
// l2tp.Session (the subscriber session only tracks a list of flow
// ids), so the lookup is O(tunnels x sessions) rather than O(1).
func findL2TPSessionBySubscriber(ctx *core.Context, id uint32) *l2tp.Session {
	for _, t := range ctx.L2TP.Tunnels() {
		for _, s := range t.Sessions {
			if uint32(s.LocalSessionID) == id {
				return s
			}
		}
	}
	return nil
}

// --- stream / traffic -------------------------------------------------

func flowJSON(f *traffic.Flow) map[string]interface{} {
	avgDelay := time.Duration(0)
	if f.RxPackets > 0 {
		avgDelay = f.SumDelay / time.Duration(f.RxPackets)
	}
	return map[string]interface{}{
		"flow-id":       f.ID,
		"session-id":    f.SessionID,
		"direction":     directionString(f.Direction),
		"packets-rx":    f.RxPackets,
		"loss":          f.Loss,
		"out-of-order":  f.OutOfOrder,
		"min-delay-ns":  f.MinDelay.Nanoseconds(),
		"max-delay-ns":  f.MaxDelay.Nanoseconds(),
		"avg-delay-ns":  avgDelay.Nanoseconds(),
		"verified":      f.Verified,
		"enabled":       f.Enabled,
	}
}

func directionString(d traffic.Direction) string {
	if d == traffic.DirectionUp {
		return "upstream"
	}
	return "downstream"
}

type streamArgs struct {
	FlowID *uint64 `json:"flow-id"`
}

func handleStreamInfo(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	var sa streamArgs
	_ = json.Unmarshal(args, &sa)
	if sa.FlowID == nil {
		flows := ctx.Traffic.Flows()
		out := make([]map[string]interface{}, 0, len(flows))
		for _, f := range flows {
			out = append(out, flowJSON(f))
		}
		return ok(map[string]interface{}{"streams": out})
	}
	f, found := ctx.Traffic.Flow(*sa.FlowID)
	if !found {
		return warning(404, "stream not found")
	}
	return ok(flowJSON(f))
}

func handleStreamStats(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	flows := ctx.Traffic.Flows()
	var verified, total uint64
	for _, f := range flows {
		total++
		if f.Verified {
			verified++
		}
	}
	return ok(map[string]interface{}{
		"streams-total":    total,
		"streams-verified": verified,
	})
}

func handleStreamEnable(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	var sa streamArgs
	if err := json.Unmarshal(args, &sa); err != nil || sa.FlowID == nil {
		return errResp(400, "missing flow-id")
	}
	f, found := ctx.Traffic.Flow(*sa.FlowID)
	if !found {
		return warning(404, "stream not found")
	}
	f.Enabled = true
	return okMsg("enabled")
}

func handleStreamDisable(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	var sa streamArgs
	if err := json.Unmarshal(args, &sa); err != nil || sa.FlowID == nil {
		return errResp(400, "missing flow-id")
	}
	f, found := ctx.Traffic.Flow(*sa.FlowID)
	if !found {
		return warning(404, "stream not found")
	}
	f.Enabled = false
	return okMsg("disabled")
}

func handleTrafficStart(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	ctx.Start()
	return okMsg("traffic started")
}

func handleTrafficStop(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	ctx.Stop()
	return okMsg("traffic stopped")
}

// --- CFM ----------------------------------------------------------

func handleCFMStart(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	var sa streamArgs
	if err := json.Unmarshal(args, &sa); err != nil || sa.FlowID == nil {
		return errResp(400, "missing flow-id")
	}
	f, found := ctx.Traffic.Flow(*sa.FlowID)
	if !found {
		return warning(404, "stream not found")
	}
	f.Enabled = true
	return okMsg("cfm started")
}

func handleCFMStop(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	var sa streamArgs
	if err := json.Unmarshal(args, &sa); err != nil || sa.FlowID == nil {
		return errResp(400, "missing flow-id")
	}
	f, found := ctx.Traffic.Flow(*sa.FlowID)
	if !found {
		return warning(404, "stream not found")
	}
	f.Enabled = false
	return okMsg("cfm stopped")
}

func handleCFMRDIOn(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	var sa streamArgs
	if err := json.Unmarshal(args, &sa); err != nil || sa.FlowID == nil {
		return errResp(400, "missing flow-id")
	}
	f, found := ctx.Traffic.Flow(*sa.FlowID)
	if !found {
		return warning(404, "stream not found")
	}
	f.RDI = true
	return okMsg("rdi on")
}

func handleCFMRDIOff(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	var sa streamArgs
	if err := json.Unmarshal(args, &sa); err != nil || sa.FlowID == nil {
		return errResp(400, "missing flow-id")
	}
	f, found := ctx.Traffic.Flow(*sa.FlowID)
	if !found {
		return warning(404, "stream not found")
	}
	f.RDI = false
	return okMsg("rdi off")
}

// --- IS-IS ----------------------------------------------------------

type isisArgs struct {
	Instance int `json:"instance"`
	Level    int `json:"level"`
}

func isisInstance(ctx *core.Context, raw json.RawMessage) (*isis.Instance, uint8, error) {
	var ia isisArgs
	_ = json.Unmarshal(raw, &ia)
	inst, ok := ctx.ISISInstance(uint32(ia.Instance))
	if !ok {
		return nil, 0, fmt.Errorf("instance not found")
	}
	lvl := uint8(ia.Level)
	if lvl != 1 && lvl != 2 {
		lvl = 1
	}
	return inst, lvl, nil
}

func handleISISAdjacencies(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	inst, lvl, err := isisInstance(ctx, args)
	if err != nil {
		return warning(404, err.Error())
	}
	adjs := inst.Adjacencies(lvl)
	out := make([]map[string]interface{}, 0, len(adjs))
	for _, a := range adjs {
		out = append(out, map[string]interface{}{
			"level": a.Level,
			"state": a.State(),
		})
	}
	return ok(map[string]interface{}{"isis-adjacencies": out})
}

func handleISISDatabase(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	inst, lvl, err := isisInstance(ctx, args)
	if err != nil {
		return warning(404, err.Error())
	}
	lsps := inst.LSDB(lvl).All()
	out := make([]map[string]interface{}, 0, len(lsps))
	for _, lsp := range lsps {
		out = append(out, map[string]interface{}{
			"lsp-id":     fmt.Sprintf("%x", lsp.ID),
			"seq-number": lsp.SeqNumber,
			"lifetime":   lsp.Lifetime,
		})
	}
	return ok(map[string]interface{}{"isis-database": out})
}

type mrtLoadArgs struct {
	Instance int      `json:"instance"`
	Level    int      `json:"level"`
	PDUs     []string `json:"pdus"`
}

func handleISISLoadMRT(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	var ma mrtLoadArgs
	if err := json.Unmarshal(args, &ma); err != nil {
		return errResp(400, "invalid arguments")
	}
	inst, ok := ctx.ISISInstance(uint32(ma.Instance))
	if !ok {
		return warning(404, "instance not found")
	}
	lvl := uint8(ma.Level)
	if lvl != 1 && lvl != 2 {
		lvl = 1
	}
	loaded := 0
	for _, hexPDU := range ma.PDUs {
		if err := inst.LoadExternalLSPHex(lvl, hexPDU); err != nil {
			return errResp(400, fmt.Sprintf("failed to load PDU %d: %v", loaded, err))
		}
		loaded++
	}
	return ok(map[string]interface{}{"loaded": loaded})
}

func handleISISUpdateExternalLSP(ctx *core.Context, sess *session.Session, args json.RawMessage) Response {
	var ma mrtLoadArgs
	if err := json.Unmarshal(args, &ma); err != nil || len(ma.PDUs) != 1 {
		return errResp(400, "expected exactly one pdu")
	}
	inst, ok := ctx.ISISInstance(uint32(ma.Instance))
	if !ok {
		return warning(404, "instance not found")
	}
	lvl := uint8(ma.Level)
	if lvl != 1 && lvl != 2 {
		lvl = 1
	}
	if err := inst.LoadExternalLSPHex(lvl, ma.PDUs[0]); err != nil {
		return errResp(400, err.Error())
	}
	return okMsg("updated")
}

func parseIP(s string) net.IP {
	if s == "" {
		return nil
	}
	return net.ParseIP(s)
}
