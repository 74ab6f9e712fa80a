package domain

// События сокета: входящие от клиента и исходящие от сервера
const (
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventSendMessage      = "send-message"
	EventSendVoiceMessage = "send-voice-message"
	EventSendFileMessage  = "send-file-message"
	EventMarkMessageRead  = "mark-message-read"
	EventRegisterUser     = "register-user"
	EventCallUser         = "call-user"
	EventAcceptCall       = "accept-call"
	EventRejectCall       = "reject-call"
	EventEndCall          = "end-call"
	EventICECandidate     = "ice-candidate"

	EventReceiveMessage       = "receive-message"
	EventMessageStatusUpdated = "message-status-updated"
	EventIncomingCall         = "incoming-call"
	EventCallAccepted         = "call-accepted"
	EventCallRejected         = "call-rejected"
	EventCallEnded            = "call-ended"
	EventCallFailed           = "call-failed"
	EventError                = "error"
	EventAck                  = "ack"
)
