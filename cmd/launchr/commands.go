package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	"github.com/loykin/launchr/internal/bus"
	"github.com/loykin/launchr/internal/config"
	"github.com/loykin/launchr/internal/intent"
	"github.com/loykin/launchr/internal/logger"
	"github.com/loykin/launchr/internal/manifest"
)

func createSendCommand(global *GlobalFlags) *cobra.Command {
	flags := &SendFlags{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish one intent",
		Long: `Publish one intent to the intent topic, or POST it to a running
supervisor's HTTP API when --api-url is given.

Examples:
  launchr send --type LAUNCH_GAME --game pong
  launchr send --type QUIT --source remote
  launchr send --type BACK_HOME --api-url http://127.0.0.1:8090/api`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := buildIntent(*flags)
			if err != nil {
				return err
			}
			if flags.APIUrl != "" {
				err = NewAPIClient(flags.APIUrl, flags.Timeout).SendIntent(cmd.Context(), payload)
			} else {
				err = publishIntent(cmd.Context(), global.ConfigPath, payload, flags.Timeout)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", payload)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.Type, "type", intent.TypeLaunchGame, "intent type: LAUNCH_GAME, BACK_HOME or QUIT")
	cmd.Flags().StringVar(&flags.Game, "game", "", "spoken game name (LAUNCH_GAME only)")
	cmd.Flags().StringVar(&flags.Source, "source", "cli", "provenance tag")
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "send over HTTP instead of MQTT (e.g. http://127.0.0.1:8090/api)")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 5*time.Second, "connect/request timeout")
	return cmd
}

// buildIntent renders the wire payload and checks it classifies as intended.
func buildIntent(f SendFlags) ([]byte, error) {
	kind := strings.ToUpper(strings.TrimSpace(f.Type))
	if kind == intent.TypeLaunchGame && strings.TrimSpace(f.Game) == "" {
		return nil, errors.New("--game is required for LAUNCH_GAME")
	}
	payload, err := sjson.SetBytes([]byte(`{}`), "type", kind)
	if err != nil {
		return nil, err
	}
	if kind == intent.TypeLaunchGame {
		if payload, err = sjson.SetBytes(payload, "game_name", f.Game); err != nil {
			return nil, err
		}
	}
	if f.Source != "" {
		if payload, err = sjson.SetBytes(payload, "source", f.Source); err != nil {
			return nil, err
		}
	}
	if _, ok := intent.Parse(payload); !ok {
		return nil, fmt.Errorf("unknown intent type %q", f.Type)
	}
	return payload, nil
}

func publishIntent(ctx context.Context, configPath string, payload []byte, timeout time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	bc := cfg.BusConfig()
	bc.ClientID = "launchr-cli"
	bc.UniqueClientID = true
	bc.ConnectTimeout = timeout
	mq := bus.NewMQTT(bc, logger.Discard())
	defer mq.Close()

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := mq.Connect(cctx); err != nil {
		return err
	}
	return mq.Publish(cfg.Topics.Intent, payload, false)
}

func createGamesCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "games [config.toml]",
		Short: "List games from the manifest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(global.configPath(args))
			if err != nil {
				return err
			}
			printGames(cmd.OutOrStdout(), m.Games())
			return nil
		},
	}
}

func createResolveCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <spoken name>",
		Short: "Show which game a phrase resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(global.ConfigPath)
			if err != nil {
				return err
			}
			spoken := strings.Join(args, " ")
			g, ok := m.Resolve(spoken)
			if !ok {
				return fmt.Errorf("%w: %s", manifest.ErrUnknownGame, spoken)
			}
			printGames(cmd.OutOrStdout(), []manifest.GameEntry{g})
			return nil
		},
	}
}

func createStatusCommand() *cobra.Command {
	flags := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running supervisor's state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := NewAPIClient(flags.APIUrl, flags.Timeout).GetState(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "mode:    %s\n", st.Mode)
			if st.GameID != nil {
				_, _ = fmt.Fprintf(out, "game:    %s\n", *st.GameID)
			}
			if st.Detail != "" {
				_, _ = fmt.Fprintf(out, "detail:  %s\n", st.Detail)
			}
			sec := int64(st.TS)
			_, _ = fmt.Fprintf(out, "since:   %s\n", time.Unix(sec, int64((st.TS-float64(sec))*1e9)).Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", defaultAPIURL, "supervisor API base URL")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func loadManifest(configPath string) (*manifest.Manifest, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg.LoadManifest()
}

func printGames(w io.Writer, games []manifest.GameEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSYNONYMS\tHEALTHCHECK")
	for _, g := range games {
		hc := g.HealthCheck.Type
		if hc == "" {
			hc = "none"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", g.ID, g.Name, strings.Join(g.Synonyms, ", "), hc)
	}
	_ = tw.Flush()
}
