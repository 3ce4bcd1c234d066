// Package bedrock adapts AWS Bedrock runtime models (Titan embeddings, Anthropic
// messages) to the domain embedder and chat model.
package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
)

const contentTypeJSON = "application/json"

// eventStream is the response stream of InvokeModelWithResponseStream.
type eventStream interface {
	Events() <-chan types.ResponseStream
	Close() error
	Err() error
}

// runtimeAPI is the slice of the Bedrock runtime the adapters call.
type runtimeAPI interface {
	Invoke(ctx context.Context, modelID string, body []byte) ([]byte, error)
	InvokeStream(ctx context.Context, modelID string, body []byte) (eventStream, error)
	CheckCredentials(ctx context.Context) error
}

// Options configures the AWS client.
type Options struct {
	Region      string
	MaxAttempts int
}

// Runtime is the SDK-backed runtimeAPI.
type Runtime struct {
	client *bedrockruntime.Client
	creds  aws.CredentialsProvider
}

// NewRuntime loads the default AWS config (env, shared files, instance role)
// with standard-mode retries.
func NewRuntime(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithRetryMode(aws.RetryModeStandard),
		awsconfig.WithRetryMaxAttempts(opts.MaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Runtime{client: bedrockruntime.NewFromConfig(cfg), creds: cfg.Credentials}, nil
}

// Invoke calls InvokeModel and returns the raw response body.
func (r *Runtime) Invoke(ctx context.Context, modelID string, body []byte) ([]byte, error) {
	out, err := r.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        body,
		ContentType: aws.String(contentTypeJSON),
		Accept:      aws.String(contentTypeJSON),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// InvokeStream calls InvokeModelWithResponseStream and returns the event stream.
func (r *Runtime) InvokeStream(ctx context.Context, modelID string, body []byte) (eventStream, error) {
	out, err := r.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(modelID),
		Body:        body,
		ContentType: aws.String(contentTypeJSON),
		Accept:      aws.String(contentTypeJSON),
	})
	if err != nil {
		return nil, err
	}
	return out.GetStream(), nil
}

// CheckCredentials resolves AWS credentials without calling a model.
func (r *Runtime) CheckCredentials(ctx context.Context) error {
	if r.creds == nil {
		return errors.New("no aws credentials provider configured")
	}
	if _, err := r.creds.Retrieve(ctx); err != nil {
		return fmt.Errorf("retrieve aws credentials: %w", err)
	}
	return nil
}

// parseAPIError turns AWS errors into readable messages wrapped with the sentinel.
func parseAPIError(kind string, err error, wrap error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s %s: %s: %w", kind, apiErr.ErrorCode(), apiErr.ErrorMessage(), wrap)
	}
	return fmt.Errorf("%s request failed: %w: %w", kind, wrap, err)
}
