package websocket

import "github.com/stemsi/exstem-cbt/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer    Action = "answer"
	ActionFlag      Action = "flag"
	ActionUnflag    Action = "unflag"
	ActionTabSwitch Action = "tab_switch"
	ActionSubmit    Action = "submit"
	ActionTime      Action = "time"
	ActionPing      Action = "ping"
)

// RequestPayload is the single client message shape; fields unused by an
// action are ignored.
type RequestPayload struct {
	Action    Action `json:"action"`
	QID       string `json:"q_id,omitempty"`
	Answer    string `json:"ans,omitempty"`
	TimeSpent int    `json:"time_spent,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError       Event = "error"
	EventAnswerSaved Event = "answer_saved"
	EventFlagged     Event = "flagged"
	EventUnflagged   Event = "unflagged"
	EventTabSwitch   Event = "tab_switch_recorded"
	EventSubmitted   Event = "submitted"
	EventTime        Event = "time"
	EventPong        Event = "pong"
)

type AnswerSavedResponse struct {
	Event         Event  `json:"event"`
	QID           string `json:"q_id"`
	TimeRemaining int    `json:"time_remaining"`
}

type FlagResponse struct {
	Event Event  `json:"event"`
	QID   string `json:"q_id"`
}

type TabSwitchResponse struct {
	Event          Event `json:"event"`
	TabSwitchCount int   `json:"tab_switch_count"`
}

// SubmittedResponse carries the result only when it is already released.
type SubmittedResponse struct {
	Event  Event                `json:"event"`
	Status model.AttemptStatus  `json:"status"`
	Result *model.ResultSummary `json:"result,omitempty"`
}

type TimeResponse struct {
	Event         Event `json:"event"`
	TimeRemaining int   `json:"time_remaining"`
	Expired       bool  `json:"expired"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
