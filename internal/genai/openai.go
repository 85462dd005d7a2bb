package genai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// chatService is the subset of the OpenAI chat completions API used here.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// imageService is the subset of the OpenAI images API used here.
type imageService interface {
	Generate(ctx context.Context, body openai.ImageGenerateParams, opts ...option.RequestOption) (*openai.ImagesResponse, error)
}

type openAIBackend struct {
	chat        chatService
	images      imageService
	model       string
	imageModel  string
	temperature float64
}

func newOpenAIBackend(apiKey, model, imageModel string, temperature float64) *openAIBackend {
	cli := openai.NewClient(option.WithAPIKey(apiKey))
	return &openAIBackend{
		chat:        &cli.Chat.Completions,
		images:      &cli.Images,
		model:       model,
		imageModel:  imageModel,
		temperature: temperature,
	}
}

func (b *openAIBackend) generateJSON(ctx context.Context, req StructuredRequest) (string, any, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(b.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
		Temperature: openai.Float(b.temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        req.Name,
					Description: openai.String(req.Description),
					Schema:      req.Schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}

	resp, err := b.chat.New(ctx, params)
	if err != nil {
		return "", params, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", params, ErrNoChoicesReturned
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return "", params, fmt.Errorf("%w: %s", ErrRefused, msg.Refusal)
	}
	return msg.Content, params, nil
}

func (b *openAIBackend) generateImage(ctx context.Context, prompt string) (*Image, any, error) {
	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(b.imageModel),
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize1024x1024,
	}
	if b.imageModel == string(openai.ImageModelGPTImage1) {
		// gpt-image-1 always returns base64 and supports a moderation level.
		params.Moderation = openai.ImageGenerateParamsModerationLow
		params.OutputFormat = openai.ImageGenerateParamsOutputFormatPNG
	} else {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}

	resp, err := b.images.Generate(ctx, params)
	if err != nil {
		return nil, params, fmt.Errorf("openai image generation failed: %w", err)
	}
	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, params, ErrNoImageReturned
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(resp.Data[0].B64JSON))
	if err != nil {
		return nil, params, fmt.Errorf("failed to decode image payload: %w", err)
	}
	return &Image{Data: data, MIMEType: "image/png"}, params, nil
}
