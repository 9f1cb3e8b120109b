package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/hostelmess/core"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"

	// bill runs notify a whole hostel at once
	maxConcurrentSends = 8
)

type sendgridService struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	logger     core.Logger
	api        func(req sendgridRequest) (int, string, error) // mockable
}

type sendgridRequest struct {
	key  string
	body []byte
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	return &sendgridService{
		key:        conf.Email.SendgridAPIKey,
		from:       sgAddress(conf.Email.DefaultFrom),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
		api:        callSendgrid,
	}
}

// SendMessages returns immediately; delivery happens in the background with bounded concurrency.
func (svc *sendgridService) SendMessages(messages ...*core.EmailMessage) {
	if len(messages) == 0 {
		return
	}
	go func() {
		var g errgroup.Group
		g.SetLimit(maxConcurrentSends)
		for _, msg := range messages {
			msg := msg
			g.Go(func() error {
				svc.deliver(msg)
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (svc *sendgridService) deliver(msg *core.EmailMessage) {
	if err := msg.Render(); err != nil {
		svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err, metaFields(msg))
		return
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return
	}

	status, body, err := svc.api(sendgridRequest{key: svc.key, body: sgmail.GetRequestBody(svc.build(msg))})
	switch {
	case err != nil:
		svc.logger.Error(fmt.Sprintf("sending email: %v", err), errors.Wrap(err, "sendgrid"), metaFields(msg))
	case status >= http.StatusBadRequest:
		svc.logger.Error(fmt.Sprintf("sending email: sendgrid answered %d: %s", status, body), metaFields(msg))
	}
}

// build maps msg to a v3 payload; Category and Meta become sendgrid categories and custom args.
func (svc *sendgridService) build(msg *core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgAddress(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(sgAddress(cc))
	}
	for k, v := range msg.Meta {
		p.SetCustomArg(k, v)
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)
	if msg.Category != "" {
		m.AddCategories(msg.Category)
	}
	if msg.TextContent != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	}
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	return m
}

func sgAddress(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

func metaFields(msg *core.EmailMessage) map[string]interface{} {
	fields := map[string]interface{}{"category": msg.Category}
	for k, v := range msg.Meta {
		fields[k] = v
	}
	return fields
}

func callSendgrid(r sendgridRequest) (int, string, error) {
	req := sendgrid.GetRequest(r.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = r.body
	res, err := sendgrid.API(req)
	if err != nil {
		return 0, "", err
	}
	return res.StatusCode, res.Body, nil
}
