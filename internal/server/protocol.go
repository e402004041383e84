package server

// Session protocol: message-tagged JSON in both directions.

// command is a client -> server message.
type command struct {
	Type     string `json:"type"`
	Code     string `json:"code,omitempty"`
	Language string `json:"language,omitempty"`
}

const (
	cmdInit    = "init"
	cmdExecute = "execute"
	cmdStop    = "stop"
	cmdLogs    = "logs"
)

// Server -> client events. Each execute command produces exactly one
// terminal event (output or error); status events are advisory.

type readyEvent struct {
	Type      string `json:"type"`
	SandboxID string `json:"sandboxId"`
}

type statusEvent struct {
	Type    string `json:"type"`
	State   string `json:"state"`
	Message string `json:"message"`
}

type outputEvent struct {
	Type     string `json:"type"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type stoppedEvent struct {
	Type string `json:"type"`
}

type logsEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
