// Package messaging defines the flex messaging envelope types that class
// mapping knows out of the box.
package messaging

// Command message operations.
const (
	OperationSubscribe   = 0
	OperationUnsubscribe = 1
	OperationPoll        = 2
	OperationClientSync  = 4
	OperationClientPing  = 5
	OperationLogin       = 8
	OperationLogout      = 9
	OperationDisconnect  = 12
)

// AbstractMessage holds the fields common to every flex message.
type AbstractMessage struct {
	Body        any     `amf:"body"`
	ClientID    string  `amf:"clientId"`
	Destination string  `amf:"destination"`
	Headers     any     `amf:"headers"`
	MessageID   string  `amf:"messageId"`
	Timestamp   float64 `amf:"timestamp"`
	TimeToLive  float64 `amf:"timeToLive"`
}

// AsyncMessage is a message that can be correlated with an earlier one.
type AsyncMessage struct {
	AbstractMessage `amf:",squash"`
	CorrelationID   string `amf:"correlationId"`
}

// AcknowledgeMessage answers a request; CorrelationID names the request.
type AcknowledgeMessage struct {
	AsyncMessage `amf:",squash"`
}

// CommandMessage carries an operation code rather than a payload.
type CommandMessage struct {
	AsyncMessage `amf:",squash"`
	Operation    int `amf:"operation"`
}

// RemotingMessage is a remote procedure call.
type RemotingMessage struct {
	AbstractMessage `amf:",squash"`
	Operation       string `amf:"operation"`
	Source          string `amf:"source"`
}

// ErrorMessage reports a failed request.
type ErrorMessage struct {
	AcknowledgeMessage `amf:",squash"`
	ExtendedData       any    `amf:"extendedData"`
	FaultCode          string `amf:"faultCode"`
	FaultDetail        string `amf:"faultDetail"`
	FaultString        string `amf:"faultString"`
	RootCause          any    `amf:"rootCause"`
}
