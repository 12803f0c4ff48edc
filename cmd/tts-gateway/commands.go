package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/tts-gateway/internal/assets"
	"github.com/book-expert/tts-gateway/internal/assetserver"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/speech"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// Flag names and descriptions.
const (
	flagConfig       = "config"
	flagConfigDesc   = "Path to project.toml (defaults to configurator discovery)"
	flagKind         = "kind"
	flagKindDesc     = "Provider whose catalog to list (defaults to the configured kind)"
	flagVoice        = "voice"
	flagVoiceDesc    = "Voice id as printed by the voices command"
	flagCategory     = "category"
	flagCategoryDesc = "Asset category: cache, permanent or hailing"
	flagName         = "name"
	flagNameDesc     = "Stored filename (defaults to the uploaded file's name)"
	flagReplace      = "replace"
	flagReplaceDesc  = "Replace an existing file with the same name"
)

// Output formats.
const (
	outFmtVoice    = "%s\t%s\n"
	outFmtSpoken   = "%s\n%s\ncache hit: %t\n"
	outFmtPurged   = "Purged %d %s file(s)\n"
	outFmtAsset    = "%s\t%s\t%s\t%s\n"
	outFmtStored   = "Stored %s (%s)\n"
	outFmtDeleted  = "Deleted %s from %s\n"
	catalogTimeout = 2 * time.Minute
	cliOwnerID     = "tts-gateway-cli"
)

// ErrVoiceRequired indicates a say command without --voice.
var ErrVoiceRequired = errors.New("--voice is required")

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "tts-gateway",
		Short: "Text-to-speech gateway for home automation playback devices",
		Long: `tts-gateway turns text into MP3 files with one of several cloud
speech providers, keeps them in a local cache and serves them to
playback devices over HTTP.

Without a subcommand it runs the gateway (same as "serve").`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts.configPath)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, flagConfig, "", flagConfigDesc)

	rootCmd.AddCommand(
		newServeCommand(opts),
		newVoicesCommand(opts),
		newSayCommand(opts),
		newPurgeCommand(opts),
		newAssetsCommand(opts),
	)

	return rootCmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the asset server and the NATS worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts.configPath)
		},
	}
}

func newVoicesCommand(opts *rootOptions) *cobra.Command {
	var kindName string

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the voices of a provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, err := openGateway(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer gw.close()

			kind := gw.cfg.Kind()
			if kindName != "" {
				kind, err = core.ParseServiceKind(kindName)
				if err != nil {
					return err
				}

				gw.configure(cmd.Context(), kind)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), catalogTimeout)
			defer cancel()

			return printVoices(cmd.OutOrStdout(), gw.registry.ListVoicesFor(ctx, kind))
		},
	}

	cmd.Flags().StringVar(&kindName, flagKind, "", flagKindDesc)

	return cmd
}

func printVoices(out io.Writer, voices []core.VoiceDescriptor) error {
	for _, voice := range voices {
		_, err := fmt.Fprintf(out, outFmtVoice, voice.ID, voice.DisplayName)
		if err != nil {
			return fmt.Errorf("failed to write voice list: %w", err)
		}
	}

	return nil
}

func newSayCommand(opts *rootOptions) *cobra.Command {
	var voiceID string

	cmd := &cobra.Command{
		Use:   "say <text>...",
		Short: "Synthesize text into the cache and print its path and playback URL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(voiceID) == "" {
				return ErrVoiceRequired
			}

			gw, err := openGateway(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer gw.close()

			server, err := newAssetServer(gw)
			if err != nil {
				return err
			}

			speaker := speech.New(gw.registry, gw.lease, gw.store, server, gw.log)

			result, err := speaker.Speak(cmd.Context(), speech.Request{
				OwnerID: cliOwnerID,
				Text:    strings.Join(args, " "),
				VoiceID: voiceID,
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), outFmtSpoken, result.Path, result.URL, result.CacheHit)
			if err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&voiceID, flagVoice, "", flagVoiceDesc)

	return cmd
}

func newPurgeCommand(opts *rootOptions) *cobra.Command {
	var categoryName string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every file of one asset category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			category, err := assets.ParseCategory(categoryName)
			if err != nil {
				return err
			}

			gw, err := openGateway(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer gw.close()

			removed := gw.store.PurgeCategory(category)

			_, err = fmt.Fprintf(cmd.OutOrStdout(), outFmtPurged, removed, category)
			if err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&categoryName, flagCategory, assets.Cache.String(), flagCategoryDesc)

	return cmd
}

func newAssetsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Manage stored audio files",
	}

	cmd.AddCommand(
		newAssetsListCommand(opts),
		newAssetsUploadCommand(opts),
		newAssetsDeleteCommand(opts),
	)

	return cmd
}

func newAssetsListCommand(opts *rootOptions) *cobra.Command {
	var categoryName string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the files of one asset category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			category, err := assets.ParseCategory(categoryName)
			if err != nil {
				return err
			}

			gw, err := openGateway(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer gw.close()

			for _, asset := range gw.store.List(category) {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), outFmtAsset,
					asset.Name,
					asset.Filename,
					humanize.Bytes(uint64(asset.SizeBytes)),
					humanize.Time(asset.CreatedAt),
				)
				if err != nil {
					return fmt.Errorf("failed to write asset list: %w", err)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&categoryName, flagCategory, assets.Cache.String(), flagCategoryDesc)

	return cmd
}

func newAssetsUploadCommand(opts *rootOptions) *cobra.Command {
	var (
		categoryName string
		name         string
		replace      bool
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Copy an MP3 file into the permanent or hailing category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := assets.ParseCategory(categoryName)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			if name == "" {
				name = filepath.Base(args[0])
			}

			gw, err := openGateway(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer gw.close()

			filename := assets.SanitizeName(name)

			var asset assets.AudioAsset
			if replace {
				asset, err = gw.store.Replace(category, filename, data)
			} else {
				asset, err = gw.store.Store(category, filename, data)
			}

			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), outFmtStored, asset.RelativePath, humanize.Bytes(uint64(asset.SizeBytes)))
			if err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&categoryName, flagCategory, assets.Permanent.String(), flagCategoryDesc)
	cmd.Flags().StringVar(&name, flagName, "", flagNameDesc)
	cmd.Flags().BoolVar(&replace, flagReplace, false, flagReplaceDesc)

	return cmd
}

func newAssetsDeleteCommand(opts *rootOptions) *cobra.Command {
	var categoryName string

	cmd := &cobra.Command{
		Use:   "delete <filename>",
		Short: "Delete one stored file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := assets.ParseCategory(categoryName)
			if err != nil {
				return err
			}

			gw, err := openGateway(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer gw.close()

			err = gw.store.Delete(category, args[0])
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), outFmtDeleted, args[0], category)
			if err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&categoryName, flagCategory, assets.Permanent.String(), flagCategoryDesc)

	return cmd
}

func newAssetServer(gw *gateway) (*assetserver.Server, error) {
	server, err := assetserver.New(assetserver.Config{
		Root:        gw.store.Root(),
		HostAddress: gw.cfg.Server.HostAddress,
		Port:        gw.cfg.Server.Port,
	}, gw.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset server: %w", err)
	}

	return server, nil
}
