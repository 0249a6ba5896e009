package notification

import (
	"math"
	"time"

	"github.com/domainstack/api/internal/model"
)

// Notification thresholds, in days remaining. A value maps to the tightest
// threshold it is <= to; anything past the largest maps to nothing.
const (
	maxDomainThresholdDays = 30
	maxCertThresholdDays   = 14
)

var domainThresholds = []struct {
	days int
	t    model.NotificationType
}{
	{1, model.NotificationDomainExpiry1d},
	{7, model.NotificationDomainExpiry7d},
	{14, model.NotificationDomainExpiry14d},
	{30, model.NotificationDomainExpiry30d},
}

var certThresholds = []struct {
	days int
	t    model.NotificationType
}{
	{1, model.NotificationCertExpiry1d},
	{3, model.NotificationCertExpiry3d},
	{7, model.NotificationCertExpiry7d},
	{14, model.NotificationCertExpiry14d},
}

// DomainExpiryType maps days remaining to the domain-expiry notification to
// send, or false when the domain is not yet inside any threshold. Zero and
// negative days still map to the 1-day type.
func DomainExpiryType(daysRemaining int) (model.NotificationType, bool) {
	for _, th := range domainThresholds {
		if daysRemaining <= th.days {
			return th.t, true
		}
	}
	return "", false
}

// CertExpiryType is the certificate counterpart of DomainExpiryType.
func CertExpiryType(daysRemaining int) (model.NotificationType, bool) {
	for _, th := range certThresholds {
		if daysRemaining <= th.days {
			return th.t, true
		}
	}
	return "", false
}

// DomainRenewed reports a fresh expiry cycle: the expiry jumped back past
// the widest threshold, so stale dedup rows must be cleared or the next
// approach to expiry would be permanently suppressed. A renewal that lands
// inside the threshold window is deliberately not detected.
func DomainRenewed(daysRemaining int) bool {
	return daysRemaining > maxDomainThresholdDays
}

// CertRenewed is the certificate counterpart of DomainRenewed.
func CertRenewed(daysRemaining int) bool {
	return daysRemaining > maxCertThresholdDays
}

// DaysRemaining counts whole days until expiry, rounding partial days up so
// "29.5 days left" still reads as 30.
func DaysRemaining(expiry, now time.Time) int {
	return int(math.Ceil(expiry.Sub(now).Hours() / 24))
}
