package core

// MessageType tells which payload of a Message is set
type MessageType string

const (
	MessageTypeControl  MessageType = "control"
	MessageTypeTracking MessageType = "tracking"
	MessageTypeLog      MessageType = "log"
)

// ControlType identifies the operation a control message reports on
type ControlType string

const (
	ControlTypeFullRefresh      ControlType = "full_refresh"
	ControlTypeConnectionStatus ControlType = "connection_status"
)

// ControlStatus is the outcome carried by a control message
type ControlStatus string

const (
	ControlStatusSucceeded ControlStatus = "succeeded"
	ControlStatusFailed    ControlStatus = "failed"
)

// Message is the result envelope returned by connector operations
type Message struct {
	Type     MessageType      `json:"type"`
	Control  *ControlMessage  `json:"control,omitempty"`
	Tracking *TrackingMessage `json:"tracking,omitempty"`
	Log      *LogMessage      `json:"log,omitempty"`
}

// ControlMessage signals the status of connection checks and clearing
type ControlMessage struct {
	Type   ControlType       `json:"type"`
	Status ControlStatus     `json:"status"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// Detail returns the detail entry of the control metadata
func (c *ControlMessage) Detail() string {
	if c == nil || c.Meta == nil {
		return ""
	}
	return c.Meta["detail"]
}

// TrackingMessage counts row outcomes of one write call
type TrackingMessage struct {
	Success int          `json:"success"`
	Failed  int          `json:"failed"`
	Logs    []LogMessage `json:"logs,omitempty"`
}

// LogMessage is a connector-side log entry
type LogMessage struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// NewControlMessage builds a control envelope
func NewControlMessage(controlType ControlType, status ControlStatus, detail string) *Message {
	c := &ControlMessage{Type: controlType, Status: status}
	if detail != "" {
		c.Meta = map[string]string{"detail": detail}
	}
	return &Message{Type: MessageTypeControl, Control: c}
}

// NewTrackingMessage builds a tracking envelope
func NewTrackingMessage(success, failed int, logs ...LogMessage) *Message {
	return &Message{
		Type:     MessageTypeTracking,
		Tracking: &TrackingMessage{Success: success, Failed: failed, Logs: logs},
	}
}

// IsControl reports whether m is a control message
func (m *Message) IsControl() bool {
	return m != nil && m.Type == MessageTypeControl && m.Control != nil
}

// IsTracking reports whether m is a tracking message
func (m *Message) IsTracking() bool {
	return m != nil && m.Type == MessageTypeTracking && m.Tracking != nil
}

// Succeeded reports whether m is a control message with status succeeded
func (m *Message) Succeeded() bool {
	return m.IsControl() && m.Control.Status == ControlStatusSucceeded
}

// Failed reports whether m is a control message with status failed
func (m *Message) Failed() bool {
	return m.IsControl() && m.Control.Status == ControlStatusFailed
}
