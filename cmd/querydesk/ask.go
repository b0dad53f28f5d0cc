package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"pkt.systems/querydesk"
	"pkt.systems/querydesk/core"
	"pkt.systems/querydesk/internal/appconfig"
	"pkt.systems/querydesk/schema"
)

type askOptions struct {
	user     string
	jsonOut  bool
	raw      bool
	imageDir string
}

func newAskCmd() *cobra.Command {
	var cfgPath string
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Run one query through the pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			components, err := querydesk.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = components.Close() }()
			return runAsk(cmd.Context(), components.Pipeline, strings.Join(args, " "), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "username to ask as")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "print markdown without terminal rendering")
	cmd.Flags().StringVar(&opts.imageDir, "image-dir", ".", "directory for generated images")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runAsk(ctx context.Context, pipeline core.Pipeline, query string, opts askOptions, out io.Writer) error {
	result := pipeline.Process(ctx, schema.UserID(opts.user), query)
	if opts.jsonOut {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, string(data))
		if !result.OK() {
			return errors.New(result.Message)
		}
		return nil
	}
	if !result.OK() {
		return errors.New(result.Message)
	}
	if err := printMessage(out, result.Payload.Message, opts.raw); err != nil {
		return err
	}
	for i, img := range result.Payload.Images {
		path, err := writeImage(opts.imageDir, result.Action, i, img)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "image: %s\n", path)
	}
	return nil
}

func printMessage(out io.Writer, message string, raw bool) error {
	if raw {
		_, err := fmt.Fprintln(out, message)
		return err
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return err
	}
	rendered, err := renderer.Render(message)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(out, rendered)
	return err
}

func writeImage(dir string, kind schema.ActionKind, index int, img schema.Image) (string, error) {
	data, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%d.png", kind, index+1))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
