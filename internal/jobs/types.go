package jobs

const TaskRefreshRecord = "cache:refresh_record"

type RefreshPayload struct {
	Source    string `json:"source"`
	Namespace string `json:"namespace,omitempty"`
	SID       string `json:"sid"`
}
