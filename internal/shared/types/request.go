package types

// ExitDesktopRequest asks the launcher to leave the desktop session.
// TerminatePeer false keeps the desktop process running in the background.
type ExitDesktopRequest struct {
	TerminatePeer bool `json:"terminatePeer"`
}

// TaskUpdateRequest submits a status change for one task
type TaskUpdateRequest struct {
	Status   string `json:"status" binding:"required"`
	Progress *int   `json:"progress,omitempty" binding:"omitempty,min=0,max=100"`
	Comments string `json:"comments,omitempty"`
}

// DownloadRequest fetches a task artifact into the local download dir
type DownloadRequest struct {
	URL      string `json:"url" binding:"required,url"`
	Filename string `json:"filename,omitempty"`
}

// WSMessage is one frame pushed on the snapshot stream
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	Message string      `json:"message,omitempty"`
}
