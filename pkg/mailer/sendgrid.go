package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/baselhussain/ketoplan-backend/pkg/config"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
)

var errAPIKeyRequired = errors.New("sendgrid api key is required")

// Client sends transactional delivery mail through SendGrid.
type Client struct {
	sender sender
	from   *mail.Email
	logger *logger.Logger
}

type sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// NewClient validates credentials and builds the mailer.
func NewClient(cfg config.SendgridConfig, logg *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	from := strings.TrimSpace(cfg.DefaultFrom)
	if from == "" {
		return nil, errors.New("sendgrid from address is required")
	}
	return &Client{
		sender: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(cfg.FromName, from),
		logger: logg,
	}, nil
}

// Message is one outbound email.
type Message struct {
	To        string
	Subject   string
	PlainBody string
	HTMLBody  string
}

// Send delivers the message, mapping provider rejections to CodeDependency so
// the orchestrator's bounded retry policy applies.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient address required")
	}

	email := mail.NewSingleEmail(c.from, msg.Subject, mail.NewEmail("", msg.To), msg.PlainBody, msg.HTMLBody)
	resp, err := c.sender.SendWithContext(ctx, email)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sendgrid send")
	}
	if resp.StatusCode >= 400 {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("sendgrid rejected message: status %d", resp.StatusCode))
	}

	if c.logger != nil {
		logCtx := c.logger.WithField(ctx, "sendgrid_status", resp.StatusCode)
		c.logger.Info(logCtx, "notification email accepted")
	}
	return nil
}
