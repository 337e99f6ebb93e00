package kasa

import (
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeStrip emulates an HS300-style strip on loopback, answering the UDP
// probe and TCP sessions on the same port.
type fakeStrip struct {
	t        *testing.T
	tcp      net.Listener
	udp      net.PacketConn
	deviceID string

	mu          sync.Mutex
	states      []bool
	ignoreRelay bool // acknowledge relay commands without switching
	relayErr    int  // err_code returned for relay commands
	dropNext    bool // close the next TCP connection instead of answering
	sessions    int
	relayCalls  []string
}

func newFakeStrip(t *testing.T, outlets int) *fakeStrip {
	t.Helper()

	var (
		tcp net.Listener
		udp net.PacketConn
		err error
	)
	for attempt := 0; attempt < 10; attempt++ {
		tcp, err = net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := tcp.Addr().(*net.TCPAddr).Port
		udp, err = net.ListenPacket("udp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err == nil {
			break
		}
		tcp.Close()
	}
	require.NoError(t, err)

	s := &fakeStrip{
		t:        t,
		tcp:      tcp,
		udp:      udp,
		deviceID: "8006F1C2D3E4",
		states:   make([]bool, outlets),
	}
	go s.serveUDP()
	go s.serveTCP()
	t.Cleanup(func() {
		tcp.Close()
		udp.Close()
	})
	return s
}

func (s *fakeStrip) port() int {
	return s.tcp.Addr().(*net.TCPAddr).Port
}

func (s *fakeStrip) setState(index int, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[index] = on
}

func (s *fakeStrip) state(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[index]
}

func (s *fakeStrip) configure(fn func(s *fakeStrip)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *fakeStrip) relayHistory() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.relayCalls...)
}

func (s *fakeStrip) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

func (s *fakeStrip) sysinfo() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	children := make([]map[string]interface{}, len(s.states))
	for i, on := range s.states {
		state := 0
		if on {
			state = 1
		}
		children[i] = map[string]interface{}{
			"id":    s.deviceID + "0" + strconv.Itoa(i),
			"alias": "Plug " + strconv.Itoa(i+1),
			"state": state,
		}
	}
	return map[string]interface{}{
		"err_code": 0,
		"alias":    "Desk Strip",
		"deviceId": s.deviceID,
		"model":    "HS300(US)",
		"children": children,
	}
}

func (s *fakeStrip) handle(payload []byte) []byte {
	var req struct {
		Context *struct {
			ChildIDs []string `json:"child_ids"`
		} `json:"context"`
		System map[string]json.RawMessage `json:"system"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return []byte(`{"system":{"err_code":-1}}`)
	}

	if _, ok := req.System["get_sysinfo"]; ok {
		out, _ := json.Marshal(map[string]interface{}{
			"system": map[string]interface{}{"get_sysinfo": s.sysinfo()},
		})
		return out
	}

	if raw, ok := req.System["set_relay_state"]; ok {
		var body struct {
			State int `json:"state"`
		}
		json.Unmarshal(raw, &body)

		s.mu.Lock()
		code := s.relayErr
		if req.Context != nil {
			for _, id := range req.Context.ChildIDs {
				s.relayCalls = append(s.relayCalls, id)
				idx, err := strconv.Atoi(strings.TrimPrefix(id, s.deviceID))
				if err != nil || idx < 0 || idx >= len(s.states) {
					code = -14
					continue
				}
				if code == 0 && !s.ignoreRelay {
					s.states[idx] = body.State == 1
				}
			}
		}
		s.mu.Unlock()

		return []byte(`{"system":{"set_relay_state":{"err_code":` + strconv.Itoa(code) + `}}}`)
	}

	return []byte(`{"system":{"err_code":-2,"err_msg":"module not support"}}`)
}

func (s *fakeStrip) serveUDP() {
	buf := make([]byte, 64*1024)
	for {
		n, addr, err := s.udp.ReadFrom(buf)
		if err != nil {
			return
		}
		reply := s.handle(Decrypt(buf[:n]))
		s.udp.WriteTo(Encrypt(reply), addr)
	}
}

func (s *fakeStrip) serveTCP() {
	for {
		conn, err := s.tcp.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.sessions++
		s.mu.Unlock()
		go s.serveConn(conn)
	}
}

func (s *fakeStrip) serveConn(conn net.Conn) {
	defer conn.Close()
	for {
		payload, err := ReadFrame(conn)
		if err != nil {
			return
		}
		s.mu.Lock()
		drop := s.dropNext
		s.dropNext = false
		s.mu.Unlock()
		if drop {
			return
		}
		if err := WriteFrame(conn, s.handle(payload)); err != nil {
			return
		}
	}
}
