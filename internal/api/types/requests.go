package types

// EngagementStartRequest is the intake payload for a new engagement.
type EngagementStartRequest struct {
	Query                string   `json:"query" validate:"required"`
	Context              string   `json:"context"`
	ExpectedDeliverables []string `json:"expected_deliverables"`
	Timeframe            string   `json:"timeframe"`
	Budget               string   `json:"budget"`
	Stakeholders         []string `json:"stakeholders"`
	Urgency              string   `json:"urgency" validate:"omitempty,oneof=low medium high critical"`
}

// EngagementCancelRequest carries the cancellation reason for the ledger.
type EngagementCancelRequest struct {
	Reason string `json:"reason" validate:"required"`
}
