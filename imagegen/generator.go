package imagegen

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Generator produces one image per call
type Generator interface {
	Generate(ctx context.Context, req Request) (*Image, error)
}

// OpenAIConfig configures an OpenAIGenerator. BaseURL switches to any
// OpenAI-compatible images API, xAI's included.
type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// OpenAIGenerator generates images with the openai-go client
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates a generator. The client's own retries are disabled;
// retrying is left to the executor running each request.
func NewOpenAIGenerator(config OpenAIConfig) (*OpenAIGenerator, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("image generator requires an api key")
	}
	if config.Model == "" {
		config.Model = string(openai.ImageModelDallE3)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}

	client := openai.NewClient(opts...)
	return &OpenAIGenerator{
		client: &client,
		model:  config.Model,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (*Image, error) {
	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         req.FullPrompt(),
		Model:          openai.ImageModel(g.model),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(req.Size()),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &RequestError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("image request failed: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("image response contained no data")
	}

	data := resp.Data[0]
	return &Image{
		URL:           data.URL,
		B64JSON:       data.B64JSON,
		RevisedPrompt: data.RevisedPrompt,
		Model:         g.model,
		Size:          req.Size(),
		CreatedAt:     time.Now().UTC(),
	}, nil
}
