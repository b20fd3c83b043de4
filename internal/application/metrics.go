package application

import "expvar"

// Counters published under /debug/vars.
var (
	stats = expvar.NewMap("accounts")

	metricSignUps         = newCounter("signups")
	metricSignUpsRejected = newCounter("signups_capacity_reached")
	metricActivations     = newCounter("activations")
	metricSignIns         = newCounter("signins")
	metricAuthFailures    = newCounter("auth_failures")
	metricLockouts        = newCounter("lockouts")
	metricPasswordResets  = newCounter("password_resets")
	metricEmailChanges    = newCounter("email_changes")
	metricNoticesDropped  = newCounter("notices_dropped")
	metricSweeps          = newCounter("sweeps")
	metricExpiredAccounts = newCounter("expired_accounts")
	metricExpiredPending  = newCounter("expired_pending_emails")
	metricExpiredResets   = newCounter("expired_reset_codes")
	metricTrackersRemoved = newCounter("trackers_removed")
)

func newCounter(name string) *expvar.Int {
	v := new(expvar.Int)
	stats.Set(name, v)
	return v
}
