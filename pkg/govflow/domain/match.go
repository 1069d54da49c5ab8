package domain

// MatchContext describes the document or request a workflow is being chosen for.
type MatchContext struct {
	DocumentType     string         `json:"documentType,omitempty"`
	DocumentCategory string         `json:"documentCategory,omitempty"`
	Committee        string         `json:"committee,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	CustomFields     map[string]any `json:"customFields,omitempty"`
}

// WorkflowSuggestion is one ranked router result.
type WorkflowSuggestion struct {
	Definition *WorkflowDefinition `json:"definition"`
	RuleID     string              `json:"ruleId"`
	Score      int                 `json:"score"`
	Reasons    []string            `json:"reasons"`
	AutoStart  bool                `json:"autoStart"`
}
