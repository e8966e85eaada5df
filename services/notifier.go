package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"academianet/logging"
	"academianet/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/go-resty/resty/v2"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// TwilioSMS sends text messages through the Twilio Messages REST resource.
type TwilioSMS struct {
	client     *resty.Client
	accountSID string
	from       string
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewTwilioSMS(baseURL, accountSID, authToken, from string) *TwilioSMS {
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(accountSID, authToken)
	return &TwilioSMS{client: client, accountSID: accountSID, from: from}
}

func (t *TwilioSMS) SendSMS(ctx context.Context, to, body string) error {
	var apiErr twilioError
	resp, err := t.client.R().
		SetContext(ctx).
		SetPathParam("sid", t.accountSID).
		SetFormData(map[string]string{
			"To":   to,
			"From": t.from,
			"Body": body,
		}).
		SetError(&apiErr).
		Post("/2010-04-01/Accounts/{sid}/Messages.json")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusCreated && resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("twilio sms failed, status: %d, code: %d, message: %s", resp.StatusCode(), apiErr.Code, apiErr.Message)
	}
	return nil
}

type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESEmail sends plain-text email through SES v2.
type SESEmail struct {
	client SESAPI
	from   string
}

func NewSESEmail(client SESAPI, from string) *SESEmail {
	return &SESEmail{client: client, from: from}
}

func (s *SESEmail) SendEmail(ctx context.Context, to, subject, body string) error {
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &sestypes.Destination{ToAddresses: []string{to}},
		Content: &sestypes.EmailContent{Simple: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", to, err)
	}
	return nil
}

// ApplicationNotifier confirms a submitted application to the applicant. Either
// channel may be nil; delivery failures are logged and never returned.
type ApplicationNotifier struct {
	sms    SMSSender
	email  EmailSender
	logger *slog.Logger
}

func NewApplicationNotifier(sms SMSSender, email EmailSender, logger *slog.Logger) *ApplicationNotifier {
	return &ApplicationNotifier{sms: sms, email: email, logger: logging.OrNop(logger)}
}

func (n *ApplicationNotifier) NotifyApplication(ctx context.Context, app models.Application) {
	if n == nil {
		return
	}
	logger := logging.FromContext(ctx, n.logger).With("application_id", app.ID)
	text := fmt.Sprintf("Hola %s, recibimos tu solicitud al programa %s (%s). Nos comunicaremos contigo pronto.",
		app.Nombre, app.ProgramName, app.ID)

	if n.email != nil && app.Email != "" {
		if err := n.email.SendEmail(ctx, app.Email, "Solicitud recibida", text); err != nil {
			logger.Warn("confirmation email failed", "error", err)
		}
	}
	if n.sms != nil && app.Telefono != "" {
		if err := n.sms.SendSMS(ctx, app.Telefono, text); err != nil {
			logger.Warn("confirmation sms failed", "error", err)
		}
	}
}
