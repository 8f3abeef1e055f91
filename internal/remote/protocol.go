// Package remote talks to the server-side encoder over its JSON protocol.
package remote

// DefaultEndpoint is the encoder service address used when none is configured.
const DefaultEndpoint = "http://localhost:3001/api/render-video"

// RenderRequest is the body POSTed to the encoder service.
type RenderRequest struct {
	Image string  `json:"image"`
	Audio string  `json:"audio"`
	SRT   *string `json:"srt"`
}

// RenderResponse is the body returned by the encoder service.
type RenderResponse struct {
	Success   bool   `json:"success"`
	VideoData string `json:"videoData,omitempty"`
	Error     string `json:"error,omitempty"`
}
