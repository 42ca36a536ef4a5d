package fingerprint

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/nerrad567/fingerprint-bridge/internal/registry"
)

// Lines the device sends to the bridge.
const (
	DeviceEnrollSuccess         = "ENROLL_SUCCESS:"
	DeviceEnrollDuplicateRoll   = "ENROLL_FAIL_DUPLICATE_ROLL"
	DeviceEnrollDuplicateFinger = "ENROLL_FAIL_DUPLICATE_FINGER"
	DeviceDeleteSuccess         = "DELETE_SUCCESS:"
)

// Commands clients send to the bridge. The enrol and delete forms are
// also what the bridge writes to the device.
const (
	CmdGetStatus    = "GET_STATUS"
	CmdEnroll       = "ENROLL:"
	CmdEnrollCancel = "ENROLL_CANCEL"
	CmdListUsers    = "LIST_USERS"
	CmdDelete       = "DELETE:"
)

// Frames the bridge sends to clients.
const (
	StatusConnected    = "STATUS:CONNECTED"
	StatusDisconnected = "STATUS:DISCONNECTED"
	MsgJSONUpdated     = "JSON_UPDATED:SUCCESS"
	MsgDeleteUpdated   = "DELETE_UPDATED:SUCCESS"

	usersPrefix = "USERS:"
	lcdPrefix   = "LCD:"
)

// Messages shown on the device display.
const (
	LCDRollExists   = "Roll already exists!"
	LCDFingerExists = "This finger is already enrolled!"
)

// DeviceEvent is one parsed line from the device.
// The set of variants is closed; anything unrecognised is Raw.
type DeviceEvent interface {
	deviceEvent()
}

// EnrollSucceeded reports that the device stored a fingerprint for Roll.
type EnrollSucceeded struct{ Roll string }

// EnrollFailedDuplicateRoll reports that the device already holds Roll.
type EnrollFailedDuplicateRoll struct{}

// EnrollFailedDuplicateFinger reports that the finger is already enrolled.
type EnrollFailedDuplicateFinger struct{}

// DeleteSucceeded reports that the device erased the template for Roll.
type DeleteSucceeded struct{ Roll string }

// Raw is any other line, forwarded to clients verbatim.
type Raw struct{ Text string }

func (EnrollSucceeded) deviceEvent()             {}
func (EnrollFailedDuplicateRoll) deviceEvent()   {}
func (EnrollFailedDuplicateFinger) deviceEvent() {}
func (DeleteSucceeded) deviceEvent()             {}
func (Raw) deviceEvent()                         {}

// ParseDeviceLine classifies a trimmed, non-empty device line.
//
// Prefixes are checked in a fixed order. A success line whose roll is empty
// or holds a control character carries nothing to act on and is passed
// through as Raw.
func ParseDeviceLine(text string) DeviceEvent {
	switch {
	case strings.HasPrefix(text, DeviceEnrollSuccess):
		if roll := strings.TrimSpace(text[len(DeviceEnrollSuccess):]); validRoll(roll) {
			return EnrollSucceeded{Roll: roll}
		}
	case strings.HasPrefix(text, DeviceEnrollDuplicateRoll):
		return EnrollFailedDuplicateRoll{}
	case strings.HasPrefix(text, DeviceEnrollDuplicateFinger):
		return EnrollFailedDuplicateFinger{}
	case strings.HasPrefix(text, DeviceDeleteSuccess):
		if roll := strings.TrimSpace(text[len(DeviceDeleteSuccess):]); validRoll(roll) {
			return DeleteSucceeded{Roll: roll}
		}
	}
	return Raw{Text: text}
}

// CommandKind identifies a client command.
type CommandKind int

// Client command kinds.
const (
	CommandUnknown CommandKind = iota
	CommandGetStatus
	CommandEnroll
	CommandEnrollCancel
	CommandListUsers
	CommandDelete
)

// String returns the wire name of the command kind.
func (k CommandKind) String() string {
	switch k {
	case CommandGetStatus:
		return "get_status"
	case CommandEnroll:
		return "enroll"
	case CommandEnrollCancel:
		return "enroll_cancel"
	case CommandListUsers:
		return "list_users"
	case CommandDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Command is a parsed client message.
type Command struct {
	Kind CommandKind
	Roll string
}

// ParseCommand classifies a client message. Surrounding whitespace is
// ignored. Enrol and delete commands whose roll is empty or holds a
// control character are CommandUnknown.
func ParseCommand(text string) Command {
	text = strings.TrimSpace(text)

	switch text {
	case CmdGetStatus:
		return Command{Kind: CommandGetStatus}
	case CmdEnrollCancel:
		return Command{Kind: CommandEnrollCancel}
	case CmdListUsers:
		return Command{Kind: CommandListUsers}
	}

	if roll, ok := strings.CutPrefix(text, CmdEnroll); ok {
		if roll = strings.TrimSpace(roll); validRoll(roll) {
			return Command{Kind: CommandEnroll, Roll: roll}
		}
		return Command{Kind: CommandUnknown}
	}
	if roll, ok := strings.CutPrefix(text, CmdDelete); ok {
		if roll = strings.TrimSpace(roll); validRoll(roll) {
			return Command{Kind: CommandDelete, Roll: roll}
		}
	}
	return Command{Kind: CommandUnknown}
}

// validRoll reports whether roll can be written to the device as one line.
func validRoll(roll string) bool {
	return roll != "" && strings.IndexFunc(roll, unicode.IsControl) < 0
}

// EncodeStatus returns the connectivity frame.
func EncodeStatus(connected bool) string {
	if connected {
		return StatusConnected
	}
	return StatusDisconnected
}

// EncodeUsers returns "USERS:" followed by the records as a JSON array.
func EncodeUsers(records []registry.UserRecord) string {
	if len(records) == 0 {
		return usersPrefix + "[]"
	}
	data, err := json.Marshal(records)
	if err != nil {
		// UserRecord has only plain fields; this cannot fail in practice.
		return usersPrefix + "[]"
	}
	return usersPrefix + string(data)
}

// EncodeLCD returns a display message frame.
func EncodeLCD(message string) string {
	return lcdPrefix + message
}

// EnrollLine is the device command that starts enrolment for roll.
func EnrollLine(roll string) string {
	return CmdEnroll + roll
}

// DeleteLine is the device command that erases roll's template.
func DeleteLine(roll string) string {
	return CmdDelete + roll
}
