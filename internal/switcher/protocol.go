package switcher

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
)

// obs-websocket v5 opcodes. Only the subset this client speaks.
const (
	opHello           = 0
	opIdentify        = 1
	opIdentified      = 2
	opEvent           = 5
	opRequest         = 6
	opRequestResponse = 7
)

// rpcVersion is the obs-websocket RPC version this client negotiates.
const rpcVersion = 1

// inMessage is a raw protocol frame as read off the socket.
type inMessage struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

// outMessage is a protocol frame to be written to the socket.
type outMessage struct {
	Op int `json:"op"`
	D  any `json:"d"`
}

type helloData struct {
	OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
	Authentication      *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
}

type identifyData struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions"`
}

type requestData struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

type requestResponse struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment"`
	} `json:"requestStatus"`
	ResponseData json.RawMessage `json:"responseData"`
}

// authResponse computes the obs-websocket authentication string:
// base64(sha256(base64(sha256(password + salt)) + challenge)).
func authResponse(password, salt, challenge string) string {
	h := sha256.Sum256([]byte(password + salt))
	secret := base64.StdEncoding.EncodeToString(h[:])
	h = sha256.Sum256([]byte(secret + challenge))
	return base64.StdEncoding.EncodeToString(h[:])
}
