package live

import "classhub/internal/user"

// UserInfo is the display identity passed to the embedded conferencing iframe.
type UserInfo struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// EmbedConfig is the configuration a client needs to enter the externally
// hosted room. The room itself lives on the conferencing provider; this is
// admission data only.
type EmbedConfig struct {
	RoomName                 string         `json:"roomName"`
	Domain                   string         `json:"domain"`
	ConfigOverwrite          map[string]any `json:"configOverwrite"`
	InterfaceConfigOverwrite map[string]any `json:"interfaceConfigOverwrite"`
	UserInfo                 UserInfo       `json:"userInfo"`
	IsModerator              bool           `json:"isModerator"`
	IsLive                   bool           `json:"isLive"`
	MeetingLink              string         `json:"meetingLink"`
	ClassName                string         `json:"className"`
	TeacherName              string         `json:"teacherName"`
}

// NewEmbedConfig builds the jitsi iframe configuration for a user.
func NewEmbedConfig(domain, roomName string, u user.User, moderator bool) EmbedConfig {
	return EmbedConfig{
		RoomName: roomName,
		Domain:   domain,
		ConfigOverwrite: map[string]any{
			"startWithAudioMuted": true,
			"startWithVideoMuted": false,
			"enableWelcomePage":   false,
			"prejoinPageEnabled":  false,
			"enableClosePage":     false,
		},
		InterfaceConfigOverwrite: map[string]any{
			"TOOLBAR_BUTTONS": []string{
				"microphone", "camera", "closedcaptions", "desktop", "fullscreen",
				"fodeviceselection", "hangup", "chat", "raisehand",
				"videoquality", "tileview", "settings",
			},
			"SHOW_JITSI_WATERMARK":             false,
			"SHOW_WATERMARK_FOR_GUESTS":        false,
			"DEFAULT_BACKGROUND":               "#474747",
			"DISABLE_JOIN_LEAVE_NOTIFICATIONS": true,
		},
		UserInfo:    UserInfo{DisplayName: u.Name, Email: u.Email},
		IsModerator: moderator,
	}
}
