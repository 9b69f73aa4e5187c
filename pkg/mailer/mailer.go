// Package mailer sends transactional emails through Resend.
package mailer

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"genalixir-backend/pkg/logging"
	"genalixir-backend/pkg/metrics"

	"github.com/resend/resend-go/v2"
)

// Mailer 发送成员相关邮件
type Mailer interface {
	SendCredentials(ctx context.Context, to, fullName, genAlixirID, pin string) error
	SendRejection(ctx context.Context, to, fullName string, reason *string) error
	SendContract(ctx context.Context, to, fullName, filename string, pdf []byte) error
}

// Config 邮件服务配置
type Config struct {
	// BaseURL overrides the Resend API endpoint; empty uses the SDK default.
	BaseURL string
	APIKey  string
	From    string
}

// Client sends through the Resend API.
type Client struct {
	from   string
	resend *resend.Client
}

// New 创建邮件客户端；未配置 API key 时返回只记录日志的实现
func New(cfg Config) Mailer {
	log := logging.WithComponent("mailer")
	if cfg.APIKey == "" {
		log.Warn("⚠️  Mail API not configured, emails will only be logged")
		return Noop{}
	}

	client := resend.NewCustomClient(&http.Client{Timeout: 15 * time.Second}, cfg.APIKey)
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
		if err != nil {
			log.WithError(err).Warn("⚠️  Invalid MAIL_API_URL, using the Resend default")
		} else {
			client.BaseURL = base
		}
	}
	return &Client{from: cfg.From, resend: client}
}

// SendCredentials 发送 GEN ALIXIR ID 与 PIN
func (c *Client) SendCredentials(ctx context.Context, to, fullName, genAlixirID, pin string) error {
	body := fmt.Sprintf(
		"<p>Bonjour %s,</p><p>Votre adhésion à GEN ALIXIR a été validée.</p>"+
			"<p>Identifiant GEN ALIXIR : <strong>%s</strong><br>Code PIN : <strong>%s</strong></p>"+
			"<p>Conservez ce PIN, il ne vous sera plus communiqué.</p>",
		html.EscapeString(fullName), html.EscapeString(genAlixirID), html.EscapeString(pin))
	err := c.send(ctx, "credentials", &resend.SendEmailRequest{
		To:      []string{to},
		Subject: "Bienvenue dans GEN ALIXIR",
		Html:    body,
	})
	metrics.RecordMail("credentials", err)
	return err
}

// SendRejection 通知申请被拒绝
func (c *Client) SendRejection(ctx context.Context, to, fullName string, reason *string) error {
	body := fmt.Sprintf("<p>Bonjour %s,</p><p>Votre demande d'adhésion à GEN ALIXIR n'a pas été retenue.</p>",
		html.EscapeString(fullName))
	if reason != nil && *reason != "" {
		body += fmt.Sprintf("<p>Motif : %s</p>", html.EscapeString(*reason))
	}
	err := c.send(ctx, "rejection", &resend.SendEmailRequest{
		To:      []string{to},
		Subject: "Votre demande d'adhésion GEN ALIXIR",
		Html:    body,
	})
	metrics.RecordMail("rejection", err)
	return err
}

// SendContract 发送合同附件
func (c *Client) SendContract(ctx context.Context, to, fullName, filename string, pdf []byte) error {
	body := fmt.Sprintf("<p>Bonjour %s,</p><p>Veuillez trouver ci-joint votre contrat GEN ALIXIR.</p>",
		html.EscapeString(fullName))
	err := c.send(ctx, "contract", &resend.SendEmailRequest{
		To:      []string{to},
		Subject: "Votre contrat GEN ALIXIR",
		Html:    body,
		Attachments: []*resend.Attachment{{
			Filename:    filename,
			Content:     pdf,
			ContentType: "application/pdf",
		}},
	})
	metrics.RecordMail("contract", err)
	return err
}

func (c *Client) send(ctx context.Context, kind string, req *resend.SendEmailRequest) error {
	req.From = c.from
	sent, err := c.resend.Emails.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}
	logging.FromContext(ctx).WithField("email_id", sent.Id).WithField("kind", kind).Debug("📧 Email sent")
	return nil
}

// Noop 仅记录日志（不记录 PIN）
type Noop struct{}

func (Noop) SendCredentials(ctx context.Context, to, fullName, genAlixirID, pin string) error {
	logging.FromContext(ctx).WithField("to", to).WithField("gen_alixir_id", genAlixirID).Info("📧 [noop] credentials email")
	return nil
}

func (Noop) SendRejection(ctx context.Context, to, fullName string, reason *string) error {
	logging.FromContext(ctx).WithField("to", to).Info("📧 [noop] rejection email")
	return nil
}

func (Noop) SendContract(ctx context.Context, to, fullName, filename string, pdf []byte) error {
	logging.FromContext(ctx).WithField("to", to).WithField("filename", filename).Info("📧 [noop] contract email")
	return nil
}
