package video

// VideoRequest describes one video render from a generated still. Await makes
// the enqueue call block until the provider finishes instead of returning the
// operation id for polling.
type VideoRequest struct {
	ClientID  string `json:"clientId"`
	SessionID string `json:"sessionId"`
	ImageURL  string `json:"imageUrl"`
	Prompt    string `json:"prompt"`
	Duration  int    `json:"duration,omitempty"`
	Await     bool   `json:"await,omitempty"`
}

// Operation is the state of one long-running render at the provider.
type Operation struct {
	ID       string `json:"id"`
	Status   string `json:"status"` // pending | processing | completed | error
	VideoURL string `json:"videoUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

type submitResponse struct {
	OperationID string `json:"operationId"`
}

type pollResponse struct {
	Status   string `json:"status"`
	VideoURL string `json:"videoUrl"`
	Error    string `json:"error"`
}
