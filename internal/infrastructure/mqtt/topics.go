package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "fpbridge"

// Topics builds the topic names used by the bridge.
//
// Every topic lives under a single configurable prefix so that several
// bridges can share one broker:
//
//	<prefix>/events         every frame broadcast to clients (not retained)
//	<prefix>/command        command ingress, payload is a raw command line
//	<prefix>/users          latest USERS snapshot (retained)
//	<prefix>/system/status  online/offline status with LWT (retained)
//	<prefix>/health         periodic health report (retained)
type Topics struct {
	Prefix string
}

// NewTopics returns a Topics for prefix with surrounding slashes removed.
// An empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) join(parts ...string) string {
	prefix := t.Prefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/" + strings.Join(parts, "/")
}

// Events returns the topic that mirrors client broadcasts.
func (t Topics) Events() string { return t.join("events") }

// Command returns the topic the bridge reads commands from.
func (t Topics) Command() string { return t.join("command") }

// Users returns the retained topic carrying the latest user list.
func (t Topics) Users() string { return t.join("users") }

// SystemStatus returns the retained online/offline topic.
func (t Topics) SystemStatus() string { return t.join("system", "status") }

// Health returns the retained health report topic.
func (t Topics) Health() string { return t.join("health") }

// All returns a wildcard matching every topic under the prefix.
func (t Topics) All() string { return t.join("#") }
