package utils

// Application constants
const (
	// Application name
	AppName = "paysync"

	// API version
	APIVersion = "v1"

	// Default port
	DefaultPort = "8080"

	// Gateway name recorded on every payment row
	GatewayName = "razorpay"

	// Header carrying the gateway webhook signature
	WebhookSignatureHeader = "X-Razorpay-Signature"
)

// Error messages
const (
	ErrUnauthorized = "Unauthorized access"

	ErrInvalidRequest     = "Invalid request"
	ErrMissingGatewayID   = "gateway_order_id is required"
	ErrPaymentNotFound    = "Payment not found"
	ErrOrderNotFound      = "Order not found"
	ErrPollInProgress     = "A payment check is already running for this order"
	ErrInvalidSignature   = "Invalid webhook signature"
	ErrMalformedWebhook   = "Malformed webhook payload"
	ErrInternalServer     = "Internal server error"
	ErrServiceUnavailable = "Service unavailable"
)

// Success messages
const (
	MsgCheckoutCreated = "Checkout created"
	MsgCheckoutReused  = "Checkout already in progress"
	MsgPaymentPaid     = "Payment confirmed"
	MsgAlreadyPaid     = "Payment already confirmed"
	MsgPaymentPending  = "Payment still pending, please check later"
	MsgPaymentExpired  = "Payment link expired, please generate a new one"
	MsgPaymentRejected = "Payment was rejected, please try another method"
	MsgWebhookHandled  = "Webhook processed"
	MsgWebhookIgnored  = "Webhook ignored"
	MsgSyncCompleted   = "Pending payments synced"
	MsgPollCancelled   = "Payment check cancelled"
)
