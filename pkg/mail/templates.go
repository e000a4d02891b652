package mail

import (
	"fmt"
	"strings"
	"time"
)

// PasswordResetMessage is the email carrying a reset code.
func PasswordResetMessage(to, code string, ttl time.Duration) Message {
	minutes := int(ttl.Minutes())
	return Message{
		To:      to,
		Subject: "Your HealthConnect password reset code",
		Body: fmt.Sprintf(
			"Use this code to reset your password: %s\n\n"+
				"The code expires in %d minutes. If you did not ask to reset your password you can ignore this email.\n",
			code, minutes),
	}
}

// RefillReminderMessage reminds a patient of an upcoming refill.
func RefillReminderMessage(to, name, medication, dosage string, due time.Time) Message {
	greeting := "Hello"
	if n := strings.TrimSpace(name); n != "" {
		greeting = "Hello " + n
	}
	med := medication
	if d := strings.TrimSpace(dosage); d != "" {
		med = medication + " (" + d + ")"
	}
	return Message{
		To:      to,
		Subject: "Medication refill reminder: " + medication,
		Body: fmt.Sprintf("%s,\n\nYour refill of %s is due on %s.\n",
			greeting, med, due.UTC().Format("Monday, 2 January 2006")),
	}
}
