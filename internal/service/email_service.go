package service

import (
	"context"
	"fmt"
	"html"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// EmailService handles sending emails via Amazon SES
type EmailService struct {
	client     *sesv2.Client
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
	debug      bool
}

// NewEmailService creates a new email service
func NewEmailService(awsRegion, fromEmail, fromName, appBaseURL string, debug bool) (*EmailService, error) {
	// If fromEmail is empty, create a disabled service
	if fromEmail == "" {
		log.Println("Email service disabled: SES_FROM_EMAIL not configured")
		if debug {
			log.Println("[DEBUG] Email service will skip sending all emails")
		}
		return &EmailService{
			enabled: false,
			debug:   debug,
		}, nil
	}

	if debug {
		log.Printf("[DEBUG] Initializing email service with AWS SES")
		log.Printf("[DEBUG] AWS Region: %s", awsRegion)
		log.Printf("[DEBUG] From Email: %s", fromEmail)
		log.Printf("[DEBUG] From Name: %s", fromName)
		log.Printf("[DEBUG] App Base URL: %s", appBaseURL)
	}

	// Load AWS configuration
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(awsRegion),
	)
	if err != nil {
		if debug {
			log.Printf("[DEBUG] Failed to load AWS config: %v", err)
		}
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if debug {
		log.Println("[DEBUG] AWS config loaded successfully")
	}

	// Create SES client
	client := sesv2.NewFromConfig(cfg)

	log.Printf("Email service enabled: from=%s, region=%s", fromEmail, awsRegion)
	if debug {
		log.Println("[DEBUG] SES client created successfully")
	}

	return &EmailService{
		client:     client,
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		enabled:    true,
		debug:      debug,
	}, nil
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

const emailStyle = `
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.header { background-color: #2f6f4f; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
		.content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
		.button { display: inline-block; padding: 12px 30px; background-color: #2f6f4f; color: white; text-decoration: none; border-radius: 5px; margin: 20px 0; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }`

// wrapHTML renders the shared e-mail layout around body
func (s *EmailService) wrapHTML(title, body string) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>%s
	</style>
</head>
<body>
	<div class="container">
		<div class="header">
			<h1>%s</h1>
		</div>
		<div class="content">
%s
		</div>
		<div class="footer">
			<p>This is an automated email from %s. Please do not reply.</p>
		</div>
	</div>
</body>
</html>
`, emailStyle, html.EscapeString(title), body, html.EscapeString(s.siteName()))
}

func (s *EmailService) siteName() string {
	if s.fromName != "" {
		return s.fromName
	}
	return "the member directory"
}

// SendInvitationEmail sends a registration invitation carrying a signed link
func (s *EmailService) SendInvitationEmail(ctx context.Context, toEmail, inviteLink string, expiresAt *time.Time) error {
	if s.debug {
		log.Printf("[DEBUG] SendInvitationEmail called: to=%s", toEmail)
	}

	if !s.enabled {
		log.Printf("Skipping email send (service disabled): invitation to %s", toEmail)
		return nil
	}

	expiry := "This invitation does not expire."
	if expiresAt != nil {
		expiry = fmt.Sprintf("This invitation expires on %s.", expiresAt.Format("2 January 2006"))
	}

	subject := fmt.Sprintf("You're invited to join %s", s.siteName())
	htmlBody := s.wrapHTML("You're Invited", fmt.Sprintf(`
			<p>Hello,</p>
			<p>You have been invited to add your family to %s.</p>
			<p style="text-align: center;">
				<a href="%s" class="button">Register Now</a>
			</p>
			<p>Or copy and paste this link into your browser:</p>
			<p style="word-break: break-all; font-size: 12px; color: #666;">%s</p>
			<p><strong>%s</strong></p>`,
		html.EscapeString(s.siteName()), html.EscapeString(inviteLink), html.EscapeString(inviteLink), expiry))

	textBody := fmt.Sprintf(`Hello,

You have been invited to add your family to %s.

Register here:
%s

%s

---
This is an automated email from %s. Please do not reply.
`, s.siteName(), inviteLink, expiry, s.siteName())

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

// SendRegistrationReceivedEmail confirms a public registration that now awaits approval
func (s *EmailService) SendRegistrationReceivedEmail(ctx context.Context, toEmail, toName string) error {
	if s.debug {
		log.Printf("[DEBUG] SendRegistrationReceivedEmail called: to=%s, name=%s", toEmail, toName)
	}

	if !s.enabled {
		log.Printf("Skipping email send (service disabled): registration received to %s", toEmail)
		return nil
	}

	subject := "We received your registration"
	htmlBody := s.wrapHTML("Registration Received", fmt.Sprintf(`
			<p>Hi %s,</p>
			<p>Thank you for registering. An administrator will review your details shortly.</p>
			<p>You will receive another email once your profile is visible in the directory.</p>`,
		html.EscapeString(toName)))

	textBody := fmt.Sprintf(`Hi %s,

Thank you for registering. An administrator will review your details shortly.
You will receive another email once your profile is visible in the directory.

---
This is an automated email from %s. Please do not reply.
`, toName, s.siteName())

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

// SendMemberApprovedEmail tells a member their profile is now public
func (s *EmailService) SendMemberApprovedEmail(ctx context.Context, toEmail, toName string, memberID int64) error {
	if !s.enabled {
		log.Printf("Skipping email send (service disabled): approval to %s", toEmail)
		return nil
	}

	profileLink := fmt.Sprintf("%s/profile?id=%d", s.appBaseURL, memberID)
	subject := "Your directory profile is live"
	htmlBody := s.wrapHTML("Welcome!", fmt.Sprintf(`
			<p>Hi %s,</p>
			<p>Your registration has been approved and your profile is now in the directory.</p>
			<p style="text-align: center;">
				<a href="%s" class="button">View Profile</a>
			</p>`,
		html.EscapeString(toName), html.EscapeString(profileLink)))

	textBody := fmt.Sprintf(`Hi %s,

Your registration has been approved and your profile is now in the directory:
%s

---
This is an automated email from %s. Please do not reply.
`, toName, profileLink, s.siteName())

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

// sendEmail sends an email using Amazon SES
func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	if s.debug {
		log.Printf("[DEBUG] sendEmail called: to=%s, subject=%s", toEmail, subject)
	}

	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	if s.debug {
		log.Printf("[DEBUG] From address: %s", fromAddress)
		log.Printf("[DEBUG] To address: %s", toEmail)
		log.Printf("[DEBUG] Subject: %s", subject)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	if s.debug {
		log.Printf("[DEBUG] Calling SES SendEmail API...")
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		if s.debug {
			log.Printf("[DEBUG] SES SendEmail failed: %v", err)
		}
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	if s.debug {
		log.Printf("[DEBUG] SES SendEmail succeeded")
		if result.MessageId != nil {
			log.Printf("[DEBUG] Message ID: %s", *result.MessageId)
		}
	}

	log.Printf("Email sent successfully: to=%s, subject=%s", toEmail, subject)
	return nil
}
