package mailer

import (
	"fmt"
	"html"
	"strings"
	"time"
)

func VerificationCodeEmail(to, code string, ttl time.Duration) Message {
	minutes := int(ttl.Minutes())
	return Message{
		To:      to,
		Subject: "Your WDIR verification code",
		Text:    fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutes),
		HTML: fmt.Sprintf(
			"<p>Your verification code is</p><p style=\"font-size:24px;letter-spacing:4px\"><strong>%s</strong></p><p>It expires in %d minutes. If you did not request it, ignore this email.</p>",
			html.EscapeString(code), minutes,
		),
	}
}

func LicenseWelcomeEmail(to, inspectorName, companyName, licenseKey string) Message {
	return Message{
		To:      to,
		Subject: "Your WDIR license key",
		Text: fmt.Sprintf(
			"Hi %s,\n\nThanks for choosing WDIR for %s. Your license key is %s.\nSign in to the WDIR app with this email address to activate your device.",
			inspectorName, companyName, licenseKey,
		),
		HTML: fmt.Sprintf(
			"<p>Hi %s,</p><p>Thanks for choosing WDIR for %s.</p><p>Your license key is <strong>%s</strong>.</p><p>Sign in to the WDIR app with this email address to activate your device.</p>",
			html.EscapeString(inspectorName), html.EscapeString(companyName), html.EscapeString(licenseKey),
		),
	}
}

// AlertDevice is one row of the multi-device alert.
type AlertDevice struct {
	DeviceID   string
	DeviceName string
	LastUsedAt time.Time
}

func MultiDeviceAlertEmail(to, licenseKey, ownerEmail, companyName string, deviceCount int, devices []AlertDevice) Message {
	var text, rows strings.Builder
	fmt.Fprintf(&text, "License %s (%s, %s) has been used on %d devices in the last 12 months.\n", licenseKey, companyName, ownerEmail, deviceCount)
	for _, d := range devices {
		name := d.DeviceName
		if name == "" {
			name = d.DeviceID
		}
		last := d.LastUsedAt.UTC().Format(time.RFC3339)
		fmt.Fprintf(&text, "- %s, last used %s\n", name, last)
		fmt.Fprintf(&rows, "<li>%s, last used %s</li>", html.EscapeString(name), last)
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Multi-device use on license %s", licenseKey),
		Text:    text.String(),
		HTML: fmt.Sprintf(
			"<p>License <strong>%s</strong> (%s, %s) has been used on %d devices in the last 12 months.</p><ul>%s</ul>",
			html.EscapeString(licenseKey), html.EscapeString(companyName), html.EscapeString(ownerEmail), deviceCount, rows.String(),
		),
	}
}
