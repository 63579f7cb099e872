// Package broker implements a discovery protocol: a small
// JSON-over-WebSocket request/reply service that lets a producer
// announce a channel's shared-memory name and lets consumers look it
// up, without ever sitting in the data path once a consumer has
// attached.
package broker

// MessageType is the closed set of request/response kinds the wire
// protocol carries.
type MessageType string

const (
	TypeRegisterRequest    MessageType = "REG_REQ"
	TypeDiscoverRequest    MessageType = "DISC_REQ"
	TypeDeregisterRequest  MessageType = "DEREG_REQ"
	TypeResponse           MessageType = "RESP"
)

// Status is the closed set of response outcomes.
type Status string

const (
	StatusOK       Status = "OK"
	StatusConflict Status = "CONFLICT"
	StatusNotFound Status = "NOT_FOUND"
	StatusDenied   Status = "DENIED"
)

// Envelope is the outer frame every message is sent as.
type Envelope struct {
	Type    MessageType `json:"type"`
	Request Request     `json:"request,omitempty"`
	Response Response   `json:"response,omitempty"`
}

// Request carries the union of fields any request type might need;
// unused fields are left zero. A flat struct keeps the wire format
// trivial to hand-author for curl/websocat debugging, matching the
// teacher's own hand-rollable JSON envelope in ipc.Message.
type Request struct {
	Channel    string `json:"channel"`
	ShmName    string `json:"shm_name,omitempty"`
	SchemaHash string `json:"schema_hash,omitempty"` // hex
	Endpoint   string `json:"endpoint,omitempty"`
	SecretHash string `json:"secret_hash"`
}

// Response is what the server sends back for every request type.
type Response struct {
	Status     Status `json:"status"`
	ShmName    string `json:"shm_name,omitempty"`
	SchemaHash string `json:"schema_hash,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	Error      string `json:"error,omitempty"`
}
