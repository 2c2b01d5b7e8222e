package metrics

// QuotaChecked records the outcome of a quota gate.
func QuotaChecked(resource string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	QuotaChecksTotal.WithLabelValues(resource, outcome).Inc()
}

// QuotaIncremented records one counter increment.
func QuotaIncremented(resource string) {
	QuotaIncrementsTotal.WithLabelValues(resource).Inc()
}

// Subscription lifecycle event names
const (
	SubscriptionCreated   = "created"
	SubscriptionActivated = "activated"
	SubscriptionFailed    = "payment_failed"
	SubscriptionCancelled = "cancelled"
	SubscriptionDuplicate = "duplicate_payment"
)

// SubscriptionEvent records a lifecycle transition for a plan.
func SubscriptionEvent(plan, event string) {
	SubscriptionsTotal.WithLabelValues(plan, event).Inc()
}
