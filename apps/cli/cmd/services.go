package cmd

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/callspec/packages/apidef"
	"github.com/abdul-hamid-achik/callspec/packages/auth/oauth2"
	"github.com/abdul-hamid-achik/callspec/packages/core/config"
	"github.com/abdul-hamid-achik/callspec/packages/core/runner"
	"github.com/abdul-hamid-achik/callspec/packages/correlator"
	"github.com/abdul-hamid-achik/callspec/packages/db"
	"github.com/abdul-hamid-achik/callspec/packages/dispatch"
	"github.com/abdul-hamid-achik/callspec/packages/inbound"
	"github.com/abdul-hamid-achik/callspec/packages/notify"
)

// services is everything a command needs to execute plans.
type services struct {
	config      *config.Config
	logger      zerolog.Logger
	broker      *correlator.Broker
	engine      *runner.Engine
	notifier    *notify.Manager
	definitions *apidef.FileProvider
	store       *db.Client
}

func buildServices(cfg *config.Config, logger zerolog.Logger, extra ...notify.Notifier) (*services, error) {
	s := &services{config: cfg, logger: logger}
	s.broker = correlator.NewBroker(correlator.WithLogger(logger))

	dispatchOpts := []dispatch.Option{dispatch.WithLogger(logger)}
	if cfg.OAuth2 != nil {
		if err := cfg.OAuth2.Validate(); err != nil {
			return nil, errors.Wrap(err, "invalid oauth2 config")
		}
		dispatchOpts = append(dispatchOpts, dispatch.WithSigner(oauth2.NewProvider(cfg.OAuth2)))
	}
	dispatcher := dispatch.New(cfg.Dispatch(), s.broker, dispatchOpts...)

	notifiers := append(buildNotifiers(cfg), extra...)
	s.notifier = notify.NewManager(notifiers, notify.WithLogger(logger))

	opts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithSink(s.notifier),
		runner.WithHosting(cfg.GetHostingEnabled()),
	}
	if cfg.DefinitionsPath != "" {
		s.definitions = apidef.NewFileProvider(cfg.DefinitionsPath, apidef.WithLogger(logger))
		opts = append(opts, runner.WithDefinitions(s.definitions))
	}
	if cfg.ReportsDB != "" {
		store, err := db.NewClient(cfg.ReportsDB, db.WithLogger(logger))
		if err != nil {
			return nil, errors.Wrap(err, "opening reports database")
		}
		s.store = store
		opts = append(opts, runner.WithStore(store))
	}

	s.engine = runner.NewEngine(dispatcher, opts...)
	return s, nil
}

// receiver builds the inbound server. The control API is only mounted
// when control is set.
func (s *services) receiver(control bool) *inbound.Server {
	opts := []inbound.Option{
		inbound.WithAddr(s.config.ListenAddr),
		inbound.WithLogger(s.logger),
		inbound.WithHosting(s.config.GetHostingEnabled(), s.config.CounterpartHeader),
	}
	if control {
		opts = append(opts, inbound.WithController(s.engine))
	}
	return inbound.NewServer(s.broker, opts...)
}

func (s *services) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

func buildNotifiers(cfg *config.Config) []notify.Notifier {
	notifyOn := notify.NotifyOn(cfg.NotifyOn)

	var notifiers []notify.Notifier
	for _, url := range cfg.Webhooks {
		notifiers = append(notifiers, notify.NewWebhookNotifier(url, notify.WithWebhookNotifyOn(notifyOn)))
	}
	if cfg.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.SlackWebhook, notify.WithSlackNotifyOn(notifyOn)))
	}
	return notifiers
}
