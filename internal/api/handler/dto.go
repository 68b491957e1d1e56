package handler

// CreateGroupRequest represents a buyer's request to open an escrow group
type CreateGroupRequest struct {
	BuyerID        string `json:"buyer_id" binding:"required,uuid"`
	Price          int64  `json:"price" binding:"required,gt=0"`
	Currency       string `json:"currency" binding:"required,len=3"`
	Responsibility string `json:"fee_responsibility" binding:"required,oneof=BUYER SELLER SPLIT"`
}

// JoinGroupRequest represents a seller joining an open escrow group
type JoinGroupRequest struct {
	SellerID string `json:"seller_id" binding:"required,uuid"`
}

// AgreementActionRequest identifies the acting user for propose, reject,
// and acknowledge operations
type AgreementActionRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

// DepositRequest represents a confirmed deposit applied directly to a
// balance. Exposed as a development hook; production deposits arrive via the
// payment gateway topic.
type DepositRequest struct {
	Amount   int64  `json:"amount" binding:"required,gt=0"`
	Currency string `json:"currency" binding:"required,len=3"`
}

// AgreementResponse represents one agreement instance in API responses
type AgreementResponse struct {
	State        string `json:"state"`
	BuyerAgreed  bool   `json:"buyer_agreed"`
	SellerAgreed bool   `json:"seller_agreed"`
	Initiator    string `json:"initiator,omitempty"`
	RejectedBy   string `json:"rejected_by,omitempty"`
	RejectedAt   string `json:"rejected_at,omitempty"`
}

// GroupResponse represents an escrow group in API responses
type GroupResponse struct {
	ID             string            `json:"id"`
	BuyerID        string            `json:"buyer_id"`
	SellerID       string            `json:"seller_id,omitempty"`
	Price          int64             `json:"price"`
	Fee            int64             `json:"fee"`
	Deposit        int64             `json:"deposit"`
	Currency       string            `json:"currency"`
	Responsibility string            `json:"fee_responsibility"`
	Status         string            `json:"status"`
	Completion     AgreementResponse `json:"completion"`
	Cancellation   AgreementResponse `json:"cancellation"`
	CreatedAt      string            `json:"created_at"`
	UpdatedAt      string            `json:"updated_at"`
	ClosedAt       string            `json:"closed_at,omitempty"`
}

// BalanceResponse represents one (user, currency) balance in API responses
type BalanceResponse struct {
	UserID    string `json:"user_id"`
	Currency  string `json:"currency"`
	Available int64  `json:"available"`
	Frozen    int64  `json:"frozen"`
	UpdatedAt string `json:"updated_at"`
}

// BalanceListResponse represents all balances held by a user
type BalanceListResponse struct {
	Balances []BalanceResponse `json:"balances"`
}

// HoldResponse represents one per-group frozen amount in API responses
type HoldResponse struct {
	ID        string `json:"id"`
	GroupID   string `json:"group_id"`
	Currency  string `json:"currency"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	ClosedAt  string `json:"closed_at,omitempty"`
}

// HoldListResponse represents all holds against a user's accounts
type HoldListResponse struct {
	Holds []HoldResponse `json:"holds"`
}

// FeeQuoteResponse represents a fee schedule lookup in API responses
type FeeQuoteResponse struct {
	Price          int64  `json:"price"`
	Fee            int64  `json:"fee"`
	Deposit        int64  `json:"deposit"`
	Responsibility string `json:"fee_responsibility"`
}

// EventResponse represents one audit event in API responses
type EventResponse struct {
	EventID       string `json:"event_id"`
	Type          string `json:"type"`
	GroupID       string `json:"group_id,omitempty"`
	ActorID       string `json:"actor_id,omitempty"`
	Workflow      string `json:"workflow,omitempty"`
	Amount        int64  `json:"amount,omitempty"`
	Fee           int64  `json:"fee,omitempty"`
	Currency      string `json:"currency,omitempty"`
	Detail        string `json:"detail,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

// EventListResponse represents a page of audit events
type EventListResponse struct {
	Events []EventResponse `json:"events"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=10" binding:"min=1,max=100"`
}
