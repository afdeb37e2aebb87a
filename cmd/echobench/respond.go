package main

import (
	"context"

	"github.com/torosent/echobench/internal/config"
	"github.com/torosent/echobench/internal/logging"
	"github.com/torosent/echobench/internal/responder"
)

func runResponder(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateResponder(); err != nil {
		return err
	}
	p, err := dial(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer p.Close()

	r := responder.New(responder.Options{
		Participant:  p,
		RequestTopic: cfg.OutboundTopic,
		ReplyTopic:   cfg.InboundTopic,
	})
	logging.Infof("echoing %q to %q over %s at %s", cfg.OutboundTopic, cfg.InboundTopic, cfg.Transport, cfg.Endpoint)
	err = r.Run(ctx)
	logging.Infof("echoed %d messages", r.Echoed())
	return err
}
