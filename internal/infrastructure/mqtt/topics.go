package mqtt

import "strings"

// Topics builds the topic namespace of one mcuctrl instance:
//
//	<prefix>/<client_id>/status                  retained online/offline
//	<prefix>/<client_id>/state                   retained last pass snapshot
//	<prefix>/<client_id>/event/correction        corrective writes
//	<prefix>/<client_id>/event/write             every register write
//	<prefix>/<client_id>/command/write/<reg>     {"value": n}
//	<prefix>/<client_id>/command/reconcile       run a pass now
//	<prefix>/<client_id>/ack/<reg|reconcile>     command outcome
type Topics struct {
	base string
}

// NewTopics returns a builder rooted at prefix/clientID.
func NewTopics(prefix, clientID string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "mcuctrl"
	}
	return Topics{base: prefix + "/" + clientID}
}

// Base returns the namespace root.
func (t Topics) Base() string { return t.base }

// Status is where online/offline status is published.
func (t Topics) Status() string { return t.base + "/status" }

// State is where the last pass snapshot is published.
func (t Topics) State() string { return t.base + "/state" }

// CorrectionEvent is where corrective writes are announced.
func (t Topics) CorrectionEvent() string { return t.base + "/event/correction" }

// WriteEvent is where every register write is announced.
func (t Topics) WriteEvent() string { return t.base + "/event/write" }

// WriteCommand is the command topic for writing register.
func (t Topics) WriteCommand(register string) string {
	return t.base + "/command/write/" + register
}

// AllWriteCommands matches every register write command.
func (t Topics) AllWriteCommands() string { return t.base + "/command/write/+" }

// ReconcileCommand requests an immediate pass.
func (t Topics) ReconcileCommand() string { return t.base + "/command/reconcile" }

// Ack is where the outcome of a command is published.
func (t Topics) Ack(name string) string { return t.base + "/ack/" + name }

// RegisterFromWriteCommand extracts the register name from a write command
// topic.
func (t Topics) RegisterFromWriteCommand(topic string) (string, bool) {
	register, ok := strings.CutPrefix(topic, t.base+"/command/write/")
	if !ok || register == "" || strings.Contains(register, "/") {
		return "", false
	}
	return register, true
}
