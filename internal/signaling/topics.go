package signaling

// Topic and destination constants, the single source of truth for the broker
// address layout. Destinations (/app/...) are client→server message-mapping
// routes; topics (/topic/...) are server→client broadcasts.
const (
	// Chat.
	DestChatAddUser = "/app/chat.addUser"     // {sender, type: JOIN}
	DestChatSend    = "/app/chat.sendMessage" // full ChatMessage
	TopicPublic     = "/topic/public"         // ChatMessage broadcast

	// Call invitation / presence.
	DestVideoRequest  = "/app/video.request"   // CallRequest
	TopicCallRequests = "/topic/call-requests" // CallRequest broadcast

	// Per-room WebRTC signaling.
	DestVideoSignal  = "/app/video.signal" // SignalEnvelope
	DestVideoEnd     = "/app/video.end"    // EndNotice
	topicVideoPrefix = "/topic/video/"     // + roomId
)

// VideoTopic returns the broadcast topic scoped to one call's room.
func VideoTopic(roomID string) string {
	return topicVideoPrefix + roomID
}
