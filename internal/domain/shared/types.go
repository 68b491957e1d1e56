package shared

// FailureReason defines payment processing failure categories
type FailureReason string

const (
	FailureReasonAccountNotFound        FailureReason = "ACCOUNT_NOT_FOUND"
	FailureReasonInsufficientFunds      FailureReason = "INSUFFICIENT_FUNDS"
	FailureReasonInvalidAmount          FailureReason = "INVALID_AMOUNT"
	FailureReasonInvalidCurrencyFormat  FailureReason = "INVALID_CURRENCY_FORMAT"
	FailureReasonGatewayReportedFailure FailureReason = "GATEWAY_REPORTED_FAILURE"
	FailureReasonUnknownError           FailureReason = "UNKNOWN_ERROR"
)

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)
