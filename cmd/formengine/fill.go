package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	formengine "github.com/goliatone/go-formengine"
	"github.com/goliatone/go-formengine/pkg/submit"
	"github.com/goliatone/go-formengine/pkg/transport"
	"github.com/goliatone/go-formengine/pkg/wizard"
)

func (a *app) fillCmd() *cobra.Command {
	var draft bool
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Fill a form interactively and submit it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Schema == "" {
				return fmt.Errorf("fill: no schema configured")
			}
			ctx := cmd.Context()

			clientOpts := []transport.Option{
				transport.WithTimeout(a.cfg.Timeout()),
				transport.WithLogger(a.logger),
			}
			for name, value := range a.cfg.Endpoint.Headers {
				clientOpts = append(clientOpts, transport.WithHeader(name, value))
			}
			client, err := transport.NewHTTPClient(a.cfg.Endpoint.BaseURL, clientOpts...)
			if err != nil {
				return err
			}

			opts := []formengine.Option{
				formengine.WithLogger(a.logger),
				formengine.WithTransport(client),
				formengine.WithTermSearcher(client),
			}
			if a.cfg.Endpoint.Nonce != "" {
				name := a.cfg.Endpoint.NonceField
				if name == "" {
					name = "_wpnonce"
				}
				opts = append(opts, formengine.WithHidden(submit.Nonce(name, a.cfg.Endpoint.Nonce)))
			}
			form, err := formengine.Open(ctx, a.loader(), sourceFor(a.cfg.Schema), opts...)
			if err != nil {
				return err
			}
			defer form.Close()

			w := wizard.New(
				wizard.WithPromptDriver(wizard.NewSurveyDriver(cmd.OutOrStdout())),
				wizard.WithLogger(a.logger),
				wizard.WithDraft(draft || a.cfg.Wizard.Draft),
				wizard.WithConfirm(a.cfg.Wizard.Confirm),
				wizard.WithOpener(wizard.OpenFile),
			)
			resp, err := w.Run(ctx, form)
			if err != nil {
				a.logger.Debug("fill ended", zap.Error(err))
				var notice *formengine.Notice
				if errors.As(err, &notice) {
					return errReported
				}
				return err
			}
			a.logger.Info("form submitted", zap.String("status", resp.Status), zap.String("view", resp.ViewLink))
			return nil
		},
	}
	cmd.Flags().BoolVar(&draft, "draft", false, "save as draft, skipping required checks")
	return cmd
}
