// askllm sends one prompt through the chat flow from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"academianet/app"
	"academianet/config"
	"academianet/logging"
	"academianet/services"

	"github.com/spf13/cobra"
)

type options struct {
	system         string
	conversationID string
	imagePath      string
	imageBucket    string
	imageKey       string
	modelID        string
	temperature    float64
	maxTokens      int
	recommend      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "askllm [prompt]",
		Short: "Send a prompt to the configured chat model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.system, "system", "s", "", "system prompt (defaults to DEFAULT_SYSTEM_PROMPT)")
	f.StringVarP(&opts.conversationID, "conversation", "c", "", "conversation id to continue")
	f.StringVar(&opts.imagePath, "image", "", "local JPEG to attach")
	f.StringVar(&opts.imageBucket, "image-bucket", "", "bucket of an S3 image (defaults to UPLOADS_BUCKET)")
	f.StringVar(&opts.imageKey, "image-key", "", "key of an S3 image to attach")
	f.StringVar(&opts.modelID, "model", "", "model id override")
	f.Float64Var(&opts.temperature, "temperature", -1, "temperature override in [0,1]")
	f.IntVar(&opts.maxTokens, "max-tokens", 0, "max tokens override")
	f.BoolVar(&opts.recommend, "recommend-search", false, "ask for a search recommendation line")
	cmd.MarkFlagsMutuallyExclusive("image", "image-key")
	return cmd
}

func run(cmd *cobra.Command, opts options, prompt string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: "text", Output: cmd.ErrOrStderr()})

	ctx := context.Background()
	clients, err := app.NewClients(ctx, cfg)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, clients, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	req := services.ChatRequest{
		Prompt:          prompt,
		SystemPrompt:    opts.system,
		ConversationID:  opts.conversationID,
		RecommendSearch: opts.recommend,
		Options:         services.CompletionOptions{ModelID: opts.modelID, MaxTokens: opts.maxTokens},
	}
	if opts.temperature >= 0 {
		req.Options.Temperature = &opts.temperature
	}
	switch {
	case opts.imagePath != "":
		req.Image, err = services.LoadLocalImage(opts.imagePath)
	case opts.imageKey != "":
		req.Image, err = a.Images.FromS3(ctx, services.ImageRef{Bucket: opts.imageBucket, Key: opts.imageKey})
	}
	if err != nil {
		return err
	}

	res, err := a.Chat.Ask(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]interface{}{
		"resp":                  res.Reply,
		"conversation_id":       res.ConversationID,
		"message_count":         res.MessageCount,
		"search_recommendation": res.SearchRecommendation,
	}); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}
