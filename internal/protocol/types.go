package protocol

import "fmt"

// Magic marks a valid stream alignment at the start of every header.
const Magic uint16 = 0xBECE

// CommandSet is reserved for future versioning and is always zero today.
const CommandSet uint8 = 0

// MessageType selects a command or a reserved control message.
type MessageType uint16

// Reserved control message types. They are never user-assignable.
const (
	MsgLog          MessageType = 65535
	MsgSendCommand  MessageType = 65534
	MsgSendName     MessageType = 65533
	MsgEstablishUDP MessageType = 65532
	MsgResend       MessageType = 65531
)

// Built-in command ids. Inbound packets carrying these types run the
// matching built-in handler.
const (
	CmdRestart      uint16 = 65534
	CmdUpdate       uint16 = 65533
	CmdSendCommands uint16 = 65532
	CmdSendName     uint16 = 65531
	CmdFactoryReset uint16 = 65530
)

// FirstReservedID is the lowest id user commands may not take.
const FirstReservedID uint16 = 65530

// NoCommand is the id of an empty registry slot.
const NoCommand uint16 = 65535

// IsReserved reports whether id belongs to the built-in/control range.
func IsReserved(id uint16) bool {
	return id >= FirstReservedID
}

func (t MessageType) String() string {
	switch t {
	case MsgLog:
		return "log"
	case MsgSendCommand:
		return "send_command"
	case MsgSendName:
		return "send_name"
	case MsgEstablishUDP:
		return "establish_udp"
	case MsgResend:
		return "resend"
	default:
		return fmt.Sprintf("command(%d)", uint16(t))
	}
}

// MetricLabel keeps label cardinality bounded: reserved types by name,
// everything else as "command".
func (t MessageType) MetricLabel() string {
	if IsReserved(uint16(t)) {
		return t.String()
	}
	return "command"
}
