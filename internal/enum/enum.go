package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	BatchStatusPending = "PENDING"
	BatchStatusPaid    = "PAID"
)

// ── Group B: Derived labels (never stored) ──

const (
	PayoutStatusPending = "pending"
	PayoutStatusPaid    = "paid"
)

// ── Group C: Roles carried in JWT claims ──

const (
	RoleAdmin     = "ADMIN"
	RoleCheckout  = "CHECKOUT"
	RoleProfessor = "PROFESSOR"
)

// ── Group D: Realtime event types ──

const (
	EventSaleRecorded = "sale.recorded"
	EventBatchCreated = "batch.created"
	EventBatchPaid    = "batch.paid"
)
