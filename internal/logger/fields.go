package logger

// Field names shared by log statements across packages.
const (
	FieldService   = "service"
	FieldOperation = "operation"
	FieldUserID    = "user_id"
	FieldEmail     = "email"
	FieldPaymentID = "payment_id"
	FieldOrderID   = "order_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration"
)
