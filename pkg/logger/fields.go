package logger

const (
	FieldChatID    = "chat_id"
	FieldRetailer  = "retailer"
	FieldStep      = "step"
	FieldOperation = "operation"
	FieldSessionID = "session_id"
	FieldStatus    = "status"
	FieldError     = "error"

	FieldMessageContentLength = "message_content_length"
	FieldResponseLength       = "response_length"
	FieldProductCount         = "product_count"
)
