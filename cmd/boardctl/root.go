package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/boardsync/internal/auth"
	"github.com/danmuck/boardsync/internal/codec"
	"github.com/danmuck/boardsync/internal/config"
	"github.com/danmuck/boardsync/internal/keyring"
	"github.com/danmuck/boardsync/internal/persistence"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "boardsync.toml"

type globalFlags struct {
	configPath string
	serviceURL string
	token      string
	keyFile    string
	deviceType string
}

// app is the wiring shared by every command that talks to the service.
type app struct {
	cfg    config.Config
	authz  auth.Authorizer
	keys   *keyring.Keyring
	codec  *codec.Codec
	client *persistence.Client
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	a := &app{}

	root := &cobra.Command{
		Use:           "boardctl",
		Short:         "Encrypted board sync client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			if cmd.Annotations["skipSetup"] == "true" {
				return nil
			}
			return a.setup(flags)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", defaultConfigPath, "config file path")
	pf.StringVar(&flags.serviceURL, "service-url", "", "board service URL (overrides config)")
	pf.StringVar(&flags.token, "token", "", "bearer token (overrides config and BOARDSYNC_TOKEN)")
	pf.StringVar(&flags.keyFile, "key-file", "", "key ring TOML file (overrides config)")
	pf.StringVar(&flags.deviceType, "device", "", "device type stamped on content (overrides config)")

	root.AddCommand(
		pingCmd(a),
		channelCmd(a),
		contentsCmd(a),
		listenCmd(a),
		publishCmd(a),
		configCmd(flags),
	)
	return root
}

func (a *app) setup(flags *globalFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if cfg.ServiceURL == "" {
		return errors.New("service url required (set service_url or --service-url)")
	}

	keys := keyring.New()
	if cfg.KeyFile != "" {
		keys, err = keyring.LoadFile(cfg.KeyFile)
		if err != nil {
			return err
		}
	}

	a.cfg = cfg
	a.authz = auth.StaticToken{Token: cfg.Token}
	a.keys = keys
	a.codec = codec.New(keys, cfg.DeviceType)
	a.client, err = persistence.New(cfg.Persistence, a.authz, a.codec)
	if err != nil {
		return err
	}
	log.Debug().Str("service_url", cfg.ServiceURL).Str("device", cfg.DeviceType).Msg("boardctl configured")
	return nil
}

// loadConfig reads the config file when present and applies flag and env overrides.
func loadConfig(flags *globalFlags) (config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(flags.configPath); err == nil {
		cfg, err = config.Load(flags.configPath)
		if err != nil {
			return config.Config{}, err
		}
		if cfg.KeyFile != "" && !filepath.IsAbs(cfg.KeyFile) {
			cfg.KeyFile = filepath.Join(filepath.Dir(flags.configPath), cfg.KeyFile)
		}
	} else if !errors.Is(err, fs.ErrNotExist) || flags.configPath != defaultConfigPath {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}

	if token := strings.TrimSpace(os.Getenv("BOARDSYNC_TOKEN")); token != "" {
		cfg.Token = token
	}
	if flags.serviceURL != "" {
		cfg.ServiceURL = strings.TrimSpace(flags.serviceURL)
	}
	if flags.token != "" {
		cfg.Token = strings.TrimSpace(flags.token)
	}
	if flags.keyFile != "" {
		cfg.KeyFile = flags.keyFile
	}
	if flags.deviceType != "" {
		cfg.DeviceType = strings.TrimSpace(flags.deviceType)
	}
	cfg.Persistence.ServiceURL = cfg.ServiceURL
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
