package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"lex_dossier_app_go/logger"
)

const (
	failedLoginWindow    = 10 * time.Minute
	failedLoginThreshold = 5
	alertCooldown        = time.Hour
	maxAlertHistory      = 100
)

// SecurityAlert is raised when one source keeps failing to log in.
type SecurityAlert struct {
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	Email     string    `json:"email,omitempty"`
	Reason    string    `json:"reason"`
	Attempts  int       `json:"attempts"`
}

// SecurityMonitor counts failed logins per IP over a sliding window.
type SecurityMonitor struct {
	mu           sync.Mutex
	now          func() time.Time
	failedLogins map[string][]time.Time
	alertedIPs   map[string]time.Time
	alerts       []SecurityAlert
}

// Monitor is the process-wide instance used by the login handler.
var Monitor = NewSecurityMonitor()

func NewSecurityMonitor() *SecurityMonitor {
	return &SecurityMonitor{
		now:          time.Now,
		failedLogins: make(map[string][]time.Time),
		alertedIPs:   make(map[string]time.Time),
	}
}

// TrackFailedLogin records a failure for ip and raises an alert once the
// threshold is reached. It reports whether an alert was raised.
func (m *SecurityMonitor) TrackFailedLogin(ip, email string) bool {
	failedLogins.Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	windowStart := now.Add(-failedLoginWindow)
	recent := m.failedLogins[ip][:0]
	for _, t := range m.failedLogins[ip] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}
	recent = append(recent, now)
	m.failedLogins[ip] = recent

	if len(recent) < failedLoginThreshold {
		return false
	}
	if last, ok := m.alertedIPs[ip]; ok && now.Sub(last) < alertCooldown {
		return false
	}
	m.alertedIPs[ip] = now

	alert := SecurityAlert{
		Timestamp: now,
		IP:        ip,
		Email:     email,
		Reason:    "repeated failed logins",
		Attempts:  len(recent),
	}
	m.alerts = append([]SecurityAlert{alert}, m.alerts...)
	if len(m.alerts) > maxAlertHistory {
		m.alerts = m.alerts[:maxAlertHistory]
	}
	securityAlerts.Inc()

	logger.WithFields(logrus.Fields{
		"ip":       ip,
		"email":    email,
		"attempts": alert.Attempts,
	}).Warn("[SECURITY] repeated failed logins")
	return true
}

// ResetFailures forgets the failures of ip after a successful login.
func (m *SecurityMonitor) ResetFailures(ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failedLogins, ip)
}

// RecentAlerts returns a copy of the alert history, newest first.
func (m *SecurityMonitor) RecentAlerts() []SecurityAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SecurityAlert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// Prune drops stale counters and expired alert cooldowns.
func (m *SecurityMonitor) Prune() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for ip, attempts := range m.failedLogins {
		if len(attempts) == 0 || now.Sub(attempts[len(attempts)-1]) > failedLoginWindow {
			delete(m.failedLogins, ip)
		}
	}
	for ip, last := range m.alertedIPs {
		if now.Sub(last) > alertCooldown {
			delete(m.alertedIPs, ip)
		}
	}
}

// RunPruner calls Prune every interval until ctx is done.
func (m *SecurityMonitor) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Prune()
		}
	}
}
