package services

import (
	mailjet "github.com/mailjet/mailjet-apiv3-go"
)

// Mailer is the delivery side of the notification dispatcher. Tests inject a
// recorder; production uses Mailjet.
type Mailer interface {
	Send(toEmail, toName, subject, body string) error
}

type MailjetMailer struct {
	client    *mailjet.Client
	fromEmail string
	fromName  string
}

func NewMailjetMailer(apiKey, apiSecret, fromEmail, fromName string) *MailjetMailer {
	return &MailjetMailer{
		client:    mailjet.NewMailjetClient(apiKey, apiSecret),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (m *MailjetMailer) Send(toEmail, toName, subject, body string) error {
	messages := mailjet.MessagesV31{
		Info: []mailjet.InfoMessagesV31{
			{
				From: &mailjet.RecipientV31{
					Email: m.fromEmail,
					Name:  m.fromName,
				},
				To: &mailjet.RecipientsV31{
					{
						Email: toEmail,
						Name:  toName,
					},
				},
				Subject:  subject,
				TextPart: body,
			},
		},
	}
	_, err := m.client.SendMailV31(&messages)
	return err
}
