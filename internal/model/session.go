package model

// SlotStatus 描述会话中一个问答类型槽位的当前状态。
type SlotStatus struct {
	Modality Modality  `json:"modality"`
	State    SlotState `json:"state"`
	Sources  []string  `json:"sources,omitempty"`
}

// SessionStatus 是会话的只读快照。
type SessionStatus struct {
	SessionID  string       `json:"session_id"`
	CreatedAt  LocalTime    `json:"created_at"`
	LastAccess LocalTime    `json:"last_access"`
	Slots      []SlotStatus `json:"slots"`
}
