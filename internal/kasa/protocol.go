package kasa

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// DefaultPort is the port TP-Link Kasa devices answer on for both the UDP
// probe and the TCP session.
const DefaultPort = 9999

// initialKey seeds the XOR autokey cipher.
const initialKey byte = 171

// maxFrameSize bounds a single TCP response. Strip sysinfo is a few KiB.
const maxFrameSize = 1 << 20

// Encrypt applies the XOR autokey cipher: every output byte is the running
// key after absorbing the plaintext byte.
func Encrypt(plain []byte) []byte {
	out := make([]byte, len(plain))
	key := initialKey
	for i, c := range plain {
		key ^= c
		out[i] = key
	}
	return out
}

// Decrypt reverses Encrypt.
func Decrypt(cipher []byte) []byte {
	out := make([]byte, len(cipher))
	key := initialKey
	for i, c := range cipher {
		out[i] = key ^ c
		key = c
	}
	return out
}

// WriteFrame writes one length-prefixed encrypted message.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], Encrypt(payload))
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed encrypted message.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return Decrypt(body), nil
}

// request is the JSON envelope sent to the device.
type request struct {
	Context *requestContext            `json:"context,omitempty"`
	System  map[string]json.RawMessage `json:"system"`
}

type requestContext struct {
	ChildIDs []string `json:"child_ids"`
}

type response struct {
	System struct {
		GetSysinfo    *sysInfo    `json:"get_sysinfo"`
		SetRelayState *statusOnly `json:"set_relay_state"`
	} `json:"system"`
}

type statusOnly struct {
	ErrCode int    `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

type sysInfo struct {
	statusOnly
	Alias    string      `json:"alias"`
	DeviceID string      `json:"deviceId"`
	Model    string      `json:"model"`
	MAC      string      `json:"mac"`
	Children []childInfo `json:"children"`
}

type childInfo struct {
	ID     string `json:"id"`
	Alias  string `json:"alias"`
	State  int    `json:"state"`
	OnTime int64  `json:"on_time"`
}

func getSysinfoRequest() request {
	return request{System: map[string]json.RawMessage{"get_sysinfo": json.RawMessage(`{}`)}}
}

func setRelayStateRequest(childID string, on bool) request {
	state := 0
	if on {
		state = 1
	}
	return request{
		Context: &requestContext{ChildIDs: []string{childID}},
		System: map[string]json.RawMessage{
			"set_relay_state": json.RawMessage(fmt.Sprintf(`{"state":%d}`, state)),
		},
	}
}
