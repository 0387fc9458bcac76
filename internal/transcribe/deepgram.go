package transcribe

import (
	"context"
	"fmt"
	"strings"

	listenv1rest "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// deepgramBackend transcribes files through Deepgram's prerecorded API
type deepgramBackend struct {
	client   *listenv1rest.Client
	model    string
	language string
}

func newDeepgramBackend(apiKey, model, language string) *deepgramBackend {
	c := listenClient.NewREST(apiKey, &interfaces.ClientOptions{})
	return &deepgramBackend{
		client:   listenv1rest.New(c),
		model:    model,
		language: language,
	}
}

func (b *deepgramBackend) Name() string {
	return "deepgram"
}

func (b *deepgramBackend) Transcribe(ctx context.Context, audioPath string) (string, error) {
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       b.model,
		Language:    b.language,
		SmartFormat: true,
		Punctuate:   true,
	}

	res, err := b.client.FromFile(ctx, audioPath, options)
	if err != nil {
		return "", fmt.Errorf("deepgram transcription failed: %w", err)
	}

	if res == nil || res.Results == nil || len(res.Results.Channels) == 0 ||
		len(res.Results.Channels[0].Alternatives) == 0 {
		return "", fmt.Errorf("%w: empty deepgram result", ErrMalformedResponse)
	}
	return strings.TrimSpace(res.Results.Channels[0].Alternatives[0].Transcript), nil
}
