package categorize

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/goccy/go-json"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/shiplog-app/shiplog/internal/circuitbreak"
	"github.com/shiplog-app/shiplog/internal/config"
	"github.com/shiplog-app/shiplog/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	maxBodyChars = 2000
	maxDiffChars = 3000
)

var ErrEmptyCompletion = errors.New("empty completion response")

// Input carries the PR fields the categorizer looks at. Diff is optional.
type Input struct {
	Title string
	Body  string
	Diff  string
}

type Categorization struct {
	Category string `json:"category"`
	Summary  string `json:"summary"`
	Emoji    string `json:"emoji"`
}

type Categorizer interface {
	Categorize(ctx context.Context, in Input) (*Categorization, error)
	CategorizeWithFallback(ctx context.Context, in Input) *Categorization
}

type Client struct {
	Client         *openai.Client
	CircuitBreaker *gobreaker.CircuitBreaker[[]byte]
}

func NewClient() *Client {
	opts := []option.RequestOption{
		option.WithRequestTimeout(time.Duration(config.Conf.OpenAITimeout) * time.Second),
	}

	if config.Conf.OpenAIAPIKey != "" {
		opts = append(opts, option.WithAPIKey(config.Conf.OpenAIAPIKey))
	}

	if config.Conf.OpenAIBaseUrl != "" {
		opts = append(opts, option.WithBaseURL(config.Conf.OpenAIBaseUrl))
	}

	client := openai.NewClient(opts...)

	return &Client{
		Client:         &client,
		CircuitBreaker: newCategorizerCircuitBreaker(),
	}
}

func newCategorizerCircuitBreaker() *gobreaker.CircuitBreaker[[]byte] {
	settings := gobreaker.Settings{
		Name:     "Categorizer",
		Interval: time.Duration(config.Conf.OpenAIIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.OpenAIConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Info("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.CategorizerService)
			}
		},
	}

	return gobreaker.NewCircuitBreaker[[]byte](settings)
}

// Categorize asks the model to classify and summarize a merged PR. Errors
// propagate so a caller on the durable pipeline can queue the event.
func (client *Client) Categorize(ctx context.Context, in Input) (*Categorization, error) {
	result, err := client.CircuitBreaker.Execute(func() ([]byte, error) {
		return client.doCompletionRequest(ctx, in)
	})
	if err != nil {
		return nil, err
	}

	var raw map[string]any

	err = json.Unmarshal(result, &raw)
	if err != nil {
		return nil, err
	}

	return coerceCategorization(raw, in.Title), nil
}

// CategorizeWithFallback degrades to the keyword heuristic on any error
// from the primary path. Used by the bulk sync path, which has no retry
// queue behind it.
func (client *Client) CategorizeWithFallback(ctx context.Context, in Input) *Categorization {
	result, err := client.Categorize(ctx, in)
	if err != nil {
		logging.Logger.Warn("categorization degraded to keyword fallback",
			zap.String("pr_title", in.Title),
			zap.String("error", err.Error()),
		)

		fallback := Fallback(in.Title)

		return &fallback
	}

	return result
}

func (client *Client) doCompletionRequest(ctx context.Context, in Input) ([]byte, error) {
	var resultBytes []byte

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	err := retry.Do(
		func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			resp, err := client.Client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
				Model: openai.ChatModel(config.Conf.OpenAIModel),
				Messages: []openai.ChatCompletionMessageParamUnion{
					openai.SystemMessage(systemPrompt),
					openai.UserMessage(buildUserMessage(in)),
				},
				Temperature: openai.Float(config.Conf.OpenAITemperature),
				MaxTokens:   openai.Int(config.Conf.OpenAIMaxTokens),
				ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
					OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
				},
			})
			if err != nil {
				logging.Logger.Error("completion request failed",
					zap.String("pr_title", in.Title),
					zap.String("error", err.Error()),
				)

				return err
			}

			if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
				return ErrEmptyCompletion
			}

			resultBytes = []byte(resp.Choices[0].Message.Content)

			return nil
		},
		retry.Attempts(config.Conf.OpenAIRetryMaxAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Duration(config.Conf.OpenAIRetryMinBackoff)*time.Second),
		retry.MaxDelay(time.Duration(config.Conf.OpenAIRetryMaxBackoff)*time.Second),
	)
	if err != nil {
		return nil, err
	}

	return resultBytes, nil
}

func buildUserMessage(in Input) string {
	message := "PR Title: " + in.Title + "\n"

	if in.Body != "" {
		body := in.Body
		if len(body) > maxBodyChars {
			body = body[:maxBodyChars]
		}

		message += "\nPR Description:\n" + body + "\n"
	}

	if in.Diff != "" {
		diff := in.Diff
		if len(diff) > maxDiffChars {
			diff = diff[:maxDiffChars]
		}

		message += "\nDiff Summary:\n" + diff + "\n"
	}

	return message
}

// coerceCategorization forces a possibly sloppy model response into the
// fixed taxonomy. Missing or invalid fields get safe defaults.
func coerceCategorization(raw map[string]any, title string) *Categorization {
	category, _ := raw["category"].(string)

	switch category {
	case CategoryFeature, CategoryFix, CategoryImprovement, CategoryBreaking:
	default:
		category = CategoryImprovement
	}

	summary, ok := raw["summary"].(string)
	if !ok || summary == "" {
		summary = title
	}

	emoji, ok := raw["emoji"].(string)
	if !ok || emoji == "" {
		emoji = EmojiForCategory(category)
	}

	return &Categorization{
		Category: category,
		Summary:  summary,
		Emoji:    emoji,
	}
}
