package mailer

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-guard/pkg/helpers"
	mailtpl "github.com/oksasatya/account-guard/pkg/mailer/templates"
)

// Transport hands a job to whatever actually delivers it.
type Transport interface {
	Deliver(ctx context.Context, job EmailJob) error
}

// RabbitTransport publishes jobs for cmd/email_worker.
type RabbitTransport struct {
	Publisher *helpers.RabbitPublisher
}

func (t RabbitTransport) Deliver(ctx context.Context, job EmailJob) error {
	return t.Publisher.PublishJSON(ctx, job)
}

// DirectTransport renders and sends in-process.
type DirectTransport struct {
	Sender   Sender
	Resolver mailtpl.GeoResolver
}

func (t DirectTransport) Deliver(ctx context.Context, job EmailJob) error {
	subject, text, html, err := Render(ctx, t.Resolver, job)
	if err != nil {
		return err
	}
	return t.Sender.Send(ctx, job.To, subject, text, html)
}

// LogTransport only logs. Used when sending is disabled.
type LogTransport struct {
	Logger *logrus.Logger
}

func (t LogTransport) Deliver(_ context.Context, job EmailJob) error {
	t.Logger.WithFields(logrus.Fields{
		"to":   job.To,
		"type": job.Data["Type"],
	}).Info("mail sending disabled, notice not sent")
	return nil
}
