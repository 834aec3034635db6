package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/ytdigest/internal/config"
	"github.com/TobiSchelling/ytdigest/internal/mail"
	"github.com/TobiSchelling/ytdigest/internal/metrics"
	"github.com/TobiSchelling/ytdigest/internal/render"
)

// deliver renders and sends one personalised document per recipient.
// Recipients are independent: a failure never stops the others.
func (r *Runner) deliver(ctx context.Context, log zerolog.Logger, d config.Digest, b *built, res *DigestResult) {
	timeout := r.cfg.Pipeline.Timeouts.Deliver
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := r.cfg.Pipeline.Concurrency
	if limit <= 0 {
		limit = 4
	}

	var mu sync.Mutex
	var sendErrs []error

	g := new(errgroup.Group)
	g.SetLimit(limit)
	for _, rcpt := range d.Recipients {
		g.Go(func() error {
			err := r.sendOne(ctx, d, b, rcpt, timeout)
			metrics.ObserveDelivery(d.ID, err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Err(err).Str("recipient", rcpt).Msg("delivery failed")
				res.Failed++
				sendErrs = append(sendErrs, err)
				return nil
			}
			res.Delivered++
			return nil
		})
	}
	g.Wait()

	step := StepResult{
		Name:    "Deliver",
		Summary: fmt.Sprintf("%d sent, %d failed", res.Delivered, res.Failed),
	}
	if res.Delivered == 0 && len(sendErrs) > 0 {
		step.Err = sendErrs[0]
	}
	res.Steps = append(res.Steps, step)
}

func (r *Runner) sendOne(ctx context.Context, d config.Digest, b *built, rcpt string, timeout time.Duration) error {
	doc, err := render.Render(b.renderInput(d, rcpt, r.cfg.Mail.UnsubscribeURL))
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.deps.Sender.Send(sendCtx, mail.Message{
		To:              rcpt,
		Subject:         doc.Subject,
		HTML:            doc.HTML,
		Text:            doc.Text,
		ListUnsubscribe: doc.UnsubscribeURL,
	})
}
