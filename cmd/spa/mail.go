package main

import (
	"context"
	"fmt"
	"log"
	"time"

	mailgun "github.com/mailgun/mailgun-go/v3"
	"gitlab.com/lologarithm/spa/spa"
)

// AlertCooldown is the minimum time between two alert emails.
const AlertCooldown = 30 * time.Minute

// alerter sends an email when a set temperature run fails.
func alerter(mc MailgunConfig, results <-chan spa.Result) {
	var lastAlert time.Time
	for r := range results {
		if r.Outcome == spa.Reached {
			continue
		}
		if mc.APIKey == "" || len(mc.Recipients) == 0 {
			continue
		}
		if time.Since(lastAlert) < AlertCooldown {
			log.Printf("Skipping alert for run %s, last alert sent at %s", r.RunID, lastAlert.Format(time.Kitchen))
			continue
		}
		lastAlert = time.Now()
		sendMail(mc, r)
	}
}

func alertSubject(r spa.Result) string {
	return fmt.Sprintf("Spa temperature not set to %d (%s)", r.Target, r.Outcome)
}

func alertBody(r spa.Result) string {
	return r.Message() + "\n\nRun: " + r.RunID +
		"\nOutcome: " + r.Outcome.String() +
		"\nStarted: " + time.Now().Add(-r.Duration).Format(time.RFC1123)
}

func sendMail(mc MailgunConfig, r spa.Result) {
	// Create an instance of the Mailgun Client
	mg := mailgun.NewMailgun(mc.Domain, mc.APIKey)
	message := mg.NewMessage(mc.Sender, alertSubject(r), alertBody(r), mc.Recipients...)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	// Send the message	with a 10 second timeout
	resp, id, err := mg.Send(ctx, message)
	if err != nil {
		log.Printf("[Error] [%s] Failed to send alert: %s", r.RunID, err)
		return
	}
	if id == "" {
		log.Printf("[Error] [%s] Failed to send alert, invalid ID: %s", r.RunID, resp)
		return
	}
	log.Printf("[%s] Alert sent to %d recipients: %s", r.RunID, len(mc.Recipients), id)
}
