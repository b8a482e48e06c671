// Package email sends transactional billing notices through Postmark.
package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		apiURL:      defaultAPIURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendSubscriptionConfirmed notifies the user their plan is live.
func (c *Client) SendSubscriptionConfirmed(toEmail, planName string) error {
	subject := "Your PixelProof subscription is active"
	text := fmt.Sprintf("Thanks for subscribing!\n\nYour %s plan is now active and your daily comparison quota is available immediately.", planName)
	html := fmt.Sprintf(
		`<p>Thanks for subscribing!</p><p>Your <strong>%s</strong> plan is now active and your daily comparison quota is available immediately.</p>`,
		planName,
	)
	return c.send(toEmail, subject, html, text)
}

// SendPaymentFailed warns the user a renewal charge did not go through.
func (c *Client) SendPaymentFailed(toEmail string) error {
	subject := "PixelProof payment failed"
	text := "A renewal payment for your PixelProof subscription failed.\n\nPlease update your payment method from the billing portal to keep your plan active."
	html := `<p>A renewal payment for your PixelProof subscription failed.</p><p>Please update your payment method from the billing portal to keep your plan active.</p>`
	return c.send(toEmail, subject, html, text)
}

func (c *Client) send(toEmail, subject, htmlBody, textBody string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("postmark returned status %d", resp.StatusCode)
	}
	return nil
}
