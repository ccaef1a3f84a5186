// Package media invokes the external image and audio generation services. The
// orchestrator treats the results as opaque descriptors and never inspects the
// generated bytes.
package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/myrjola/taleweaver/internal/errors"
	"github.com/myrjola/taleweaver/internal/game"
	"github.com/myrjola/taleweaver/internal/random"
	"github.com/sashabaranov/go-openai"
)

// Client is the media generation contract used by the tool dispatcher.
type Client interface {
	GenerateImage(ctx context.Context, args map[string]any) (game.MediaDescriptor, error)
	GenerateAudio(ctx context.Context, args map[string]any) (game.MediaDescriptor, error)
}

// Config selects the API endpoint and where generated audio files land.
type Config struct {
	APIKey  string
	BaseURL string
	// MediaDir is the directory served under /media/ where audio files are written.
	MediaDir string
}

// OpenAIClient generates images through the images API and audio through the
// speech API.
type OpenAIClient struct {
	client   *openai.Client
	mediaDir string
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient builds a media client.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		client:   openai.NewClientWithConfig(clientConfig),
		mediaDir: cfg.MediaDir,
	}
}

// GenerateImage renders an illustration for the given prompt and returns a
// descriptor pointing at the hosted image.
func (c *OpenAIClient) GenerateImage(ctx context.Context, args map[string]any) (game.MediaDescriptor, error) {
	prompt := stringArg(args, "prompt")
	if prompt == "" {
		prompt = stringArg(args, "description")
	}
	if prompt == "" {
		return game.MediaDescriptor{}, errors.New("generate_image requires a prompt argument")
	}

	response, err := c.client.CreateImage(ctx, openai.ImageRequest{ //nolint:exhaustruct // this is better for readability
		Prompt:         prompt,
		Model:          openai.CreateImageModelDallE3,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return game.MediaDescriptor{}, game.CollaboratorError(errors.Wrap(err, "create image"))
	}
	if len(response.Data) == 0 {
		return game.MediaDescriptor{}, game.CollaboratorError(errors.New("image response has no data"))
	}

	return game.MediaDescriptor{
		Kind:        game.MediaImage,
		URL:         response.Data[0].URL,
		Description: prompt,
	}, nil
}

// GenerateAudio synthesises narration audio, writes it under the media
// directory, and returns a descriptor with the file's serving path.
func (c *OpenAIClient) GenerateAudio(ctx context.Context, args map[string]any) (game.MediaDescriptor, error) {
	text := stringArg(args, "text")
	if text == "" {
		return game.MediaDescriptor{}, errors.New("generate_audio requires a text argument")
	}

	response, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{ //nolint:exhaustruct // this is better for readability
		Model: openai.TTSModel1,
		Input: text,
		Voice: openai.VoiceAlloy,
	})
	if err != nil {
		return game.MediaDescriptor{}, game.CollaboratorError(errors.Wrap(err, "create speech"))
	}
	defer func() {
		_ = response.Close()
	}()

	name, err := random.Letters(20)
	if err != nil {
		return game.MediaDescriptor{}, errors.Wrap(err, "generate file name")
	}
	fileName := name + ".mp3"
	path := filepath.Join(c.mediaDir, fileName)

	file, err := os.Create(path)
	if err != nil {
		return game.MediaDescriptor{}, errors.Wrap(err, "create audio file")
	}
	defer func() {
		_ = file.Close()
	}()
	if _, err = io.Copy(file, response); err != nil {
		return game.MediaDescriptor{}, errors.Wrap(err, "write audio file")
	}

	return game.MediaDescriptor{
		Kind:        game.MediaAudio,
		URL:         "/media/" + fileName,
		Description: text,
	}, nil
}

func stringArg(args map[string]any, key string) string {
	value, ok := args[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}
