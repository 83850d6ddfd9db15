package views

import "github.com/fgcbrasil/fgcbrasil/gateway/internal/config"

// DefaultStreamers is the list shown when no STREAMERS_FILE is configured.
func DefaultStreamers() []config.Streamer {
	return []config.Streamer{
		{
			ID:        "s1",
			Name:      "Baiano",
			Image:     "https://static-cdn.jtvnw.net/jtv_user_pictures/a73b53f6-2611-4efa-b74c-4e8992f0c78a-profile_image-300x300.png",
			Games:     []string{"LoL", "TFT"},
			Twitch:    "https://www.twitch.tv/baiano",
			Instagram: "https://www.instagram.com/baianolol",
		},
		{
			ID:        "s2",
			Name:      "Gaules",
			Image:     "https://static-cdn.jtvnw.net/jtv_user_pictures/f4b12683-57ff-4b57-9d36-601439e767e3-profile_image-300x300.png",
			Games:     []string{"CS2", "F1"},
			Twitch:    "https://www.twitch.tv/gaules",
			Instagram: "https://www.instagram.com/gaules",
		},
		{
			ID:        "s3",
			Name:      "Coringa",
			Image:     "https://static-cdn.jtvnw.net/jtv_user_pictures/c6e3b08e-329b-4e08-8f81-f2f01f8101d2-profile_image-300x300.png",
			Games:     []string{"GTA RP", "LoL"},
			Twitch:    "https://www.twitch.tv/loud_coringa",
			Instagram: "https://www.instagram.com/loud_coringa",
		},
	}
}
