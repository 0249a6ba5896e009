package notification

import (
	"fmt"

	"github.com/domainstack/api/internal/email"
	"github.com/domainstack/api/internal/model"
)

func expirySubject(domainName string, t model.NotificationType) string {
	switch t {
	case model.NotificationDomainExpiry1d:
		return fmt.Sprintf("%s expires tomorrow", domainName)
	case model.NotificationDomainExpiry7d:
		return fmt.Sprintf("%s expires in 7 days", domainName)
	case model.NotificationDomainExpiry14d:
		return fmt.Sprintf("%s expires in 14 days", domainName)
	case model.NotificationDomainExpiry30d:
		return fmt.Sprintf("%s expires in 30 days", domainName)
	case model.NotificationCertExpiry1d:
		return fmt.Sprintf("TLS certificate for %s expires tomorrow", domainName)
	case model.NotificationCertExpiry3d:
		return fmt.Sprintf("TLS certificate for %s expires in 3 days", domainName)
	case model.NotificationCertExpiry7d:
		return fmt.Sprintf("TLS certificate for %s expires in 7 days", domainName)
	case model.NotificationCertExpiry14d:
		return fmt.Sprintf("TLS certificate for %s expires in 14 days", domainName)
	}
	return fmt.Sprintf("Alert for %s", domainName)
}

func expiryMessage(to, domainName string, t model.NotificationType, daysRemaining int) email.Message {
	noun := "Domain"
	if t.Category() == model.CategoryCertificateExpiry {
		noun = "The TLS certificate for"
	}

	body := fmt.Sprintf(
		"<p>%s <strong>%s</strong> expires in %d day(s).</p>"+
			"<p>Renew it before the deadline to avoid an outage.</p>",
		noun, domainName, daysRemaining,
	)
	text := fmt.Sprintf("%s %s expires in %d day(s). Renew it before the deadline to avoid an outage.",
		noun, domainName, daysRemaining)

	return email.Message{
		To:      to,
		Subject: expirySubject(domainName, t),
		HTML:    body,
		Text:    text,
	}
}

func verificationFailingMessage(to, domainName string) email.Message {
	return email.Message{
		To:      to,
		Subject: fmt.Sprintf("Verification failing for %s", domainName),
		HTML: fmt.Sprintf(
			"<p>We can no longer find the ownership proof for <strong>%s</strong>.</p>"+
				"<p>Restore your DNS record, verification file, or meta tag within 7 days "+
				"or monitoring for this domain will be paused.</p>", domainName),
		Text: fmt.Sprintf("We can no longer find the ownership proof for %s. "+
			"Restore your DNS record, verification file, or meta tag within 7 days "+
			"or monitoring for this domain will be paused.", domainName),
	}
}

func verificationRevokedMessage(to, domainName string) email.Message {
	return email.Message{
		To:      to,
		Subject: fmt.Sprintf("Verification revoked for %s", domainName),
		HTML: fmt.Sprintf(
			"<p>Ownership verification for <strong>%s</strong> has been revoked after "+
				"7 days without a valid proof.</p>"+
				"<p>Re-verify the domain from your dashboard to resume monitoring.</p>", domainName),
		Text: fmt.Sprintf("Ownership verification for %s has been revoked after 7 days "+
			"without a valid proof. Re-verify the domain from your dashboard to resume monitoring.", domainName),
	}
}
