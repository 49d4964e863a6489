package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/boardsync/internal/board"
	"github.com/danmuck/boardsync/internal/observability"
	"github.com/danmuck/boardsync/internal/protocol"
	"github.com/danmuck/boardsync/internal/realtime"
	"github.com/danmuck/boardsync/internal/transport"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (a *app) newManager(opts ...realtime.Option) *realtime.Manager {
	opts = append([]realtime.Option{realtime.WithMetrics(observability.Metrics{})}, opts...)
	return realtime.NewManager(a.cfg.Realtime, a.authz, transport.Factory(a.cfg.Realtime), a.codec, opts...)
}

// boardSession is one board connected either on its own socket or over a primary one.
type boardSession struct {
	manager    *realtime.Manager
	negotiator *realtime.Negotiator
	primary    *realtime.Manager
	shared     bool
}

func (a *app) connectBoard(ctx context.Context, channel board.Channel, shared bool, clusterURL string) (*boardSession, error) {
	m := a.newManager()
	s := &boardSession{manager: m}

	if shared {
		if a.cfg.WebSocketURL == "" {
			return nil, errors.New("shared mode needs web_socket_url for the primary connection")
		}
		s.primary = a.newManager(realtime.WithURL(a.cfg.WebSocketURL))
		if err := s.primary.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect primary: %w", err)
		}
		s.negotiator = realtime.NewNegotiator(a.client, m, realtime.NewPrimary(s.primary, clusterURL))
		directive, err := s.negotiator.ConnectToShared(ctx, channel)
		if err != nil {
			_ = s.primary.Disconnect()
			return nil, err
		}
		s.shared = directive.SharedWebSocket
		return s, nil
	}

	s.negotiator = realtime.NewNegotiator(a.client, m, nil)
	if _, err := s.negotiator.ConnectDedicated(ctx, channel); err != nil {
		_ = m.Disconnect()
		return nil, err
	}
	return s, nil
}

func (s *boardSession) close(ctx context.Context) error {
	var err error
	if s.primary != nil {
		_, err = s.negotiator.DisconnectFromShared(ctx)
		if cerr := s.primary.Disconnect(); cerr != nil && err == nil {
			err = cerr
		}
		return err
	}
	return s.manager.Disconnect()
}

func listenCmd(a *app) *cobra.Command {
	var (
		shared      bool
		clusterURL  string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "listen <channel-id>",
		Short: "Stream decrypted board activity until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			if metricsAddr != "" {
				observability.RegisterMetrics()
				srv := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
				g.Go(func() error {
					log.Info().Str("addr", metricsAddr).Msg("metrics listening")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}

			g.Go(func() error {
				s, err := a.connectBoard(gctx, board.Channel{ChannelID: args[0]}, shared, clusterURL)
				if err != nil {
					return err
				}
				off := s.manager.On(realtime.EventTopic(protocol.EventTypeBoardActivity), func(ev realtime.Event) {
					if ev.Err != nil {
						log.Warn().Err(ev.Err).Str("event_id", ev.Frame.ID).Msg("undecryptable board activity")
						return
					}
					if ev.Item != nil {
						_ = a.printJSON(ev.Item)
					}
				})
				defer off()
				offline := make(chan error, 1)
				s.manager.On(realtime.TopicOffline, func(ev realtime.Event) {
					select {
					case offline <- ev.Err:
					default:
					}
				})
				log.Info().Str("channel", args[0]).Bool("shared", s.shared).Msg("listening")

				select {
				case <-gctx.Done():
				case err := <-offline:
					log.Warn().Err(err).Msg("board connection lost")
				}
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.close(closeCtx); err != nil {
					return err
				}
				return errLostConnection(gctx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&shared, "shared", false, "ride the primary connection at web_socket_url")
	cmd.Flags().StringVar(&clusterURL, "cluster-url", "", "connection cluster url sent with shared registration")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	return cmd
}

// errLostConnection is nil when the listener stopped because it was asked to.
func errLostConnection(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	return realtime.ErrDisconnected
}

func publishCmd(a *app) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "publish <channel-id> <text>",
		Short: "Encrypt and publish one message to live board listeners",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			channel, err := a.client.GetChannel(ctx, board.Channel{ChannelID: args[0]})
			if err != nil {
				return err
			}
			s, err := a.connectBoard(ctx, channel, false, "")
			if err != nil {
				return err
			}
			defer func() { _ = s.close(context.Background()) }()

			waitCtx, cancel := context.WithTimeout(ctx, wait)
			defer cancel()
			if err := s.manager.WaitOnline(waitCtx); err != nil {
				return fmt.Errorf("wait online: %w", err)
			}
			frame, err := realtime.NewPublisher(s.manager, a.codec).Publish(ctx, channel, args[1])
			if err != nil {
				return err
			}
			return a.printJSON(frame)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "how long to wait for the connection to come online")
	return cmd
}
