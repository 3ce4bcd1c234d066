package bedrock

import (
	"context"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/kailas-cloud/ragchat/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

// fakeRuntime records requests and replays canned responses.
type fakeRuntime struct {
	body      []byte
	err       error
	stream    *fakeStream
	streamErr error
	credsErr  error

	lastModel string
	lastBody  []byte
}

func (f *fakeRuntime) Invoke(_ context.Context, modelID string, body []byte) ([]byte, error) {
	f.lastModel = modelID
	f.lastBody = body
	return f.body, f.err
}

func (f *fakeRuntime) InvokeStream(_ context.Context, modelID string, body []byte) (eventStream, error) {
	f.lastModel = modelID
	f.lastBody = body
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return f.stream, nil
}

func (f *fakeRuntime) CheckCredentials(context.Context) error { return f.credsErr }

// fakeStream delivers payloads as chunk events, then reports err.
type fakeStream struct {
	ch     chan types.ResponseStream
	err    error
	closed bool
}

func newFakeStream(err error, payloads ...string) *fakeStream {
	ch := make(chan types.ResponseStream, len(payloads))
	for _, p := range payloads {
		ch <- &types.ResponseStreamMemberChunk{Value: types.PayloadPart{Bytes: []byte(p)}}
	}
	close(ch)
	return &fakeStream{ch: ch, err: err}
}

func (s *fakeStream) Events() <-chan types.ResponseStream { return s.ch }
func (s *fakeStream) Err() error                          { return s.err }
func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}
