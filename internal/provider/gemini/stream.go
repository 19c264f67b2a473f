package gemini

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"gemini-relay/internal/provider"
	"gemini-relay/internal/translator"
)

// doneSentinel is the terminal frame payload ending every emulated stream.
const doneSentinel = "[DONE]"

type streamMessageKind int

const (
	messageContent streamMessageKind = iota
	messageDone
)

// streamMessage is one entry on the emulator's ordered queue. A content
// message carries a serialized chunk; a done message carries nothing.
type streamMessage struct {
	kind    streamMessageKind
	payload string
}

// RelayStream emulates incremental delivery of a response the upstream only
// returns as one finished blob.
//
// A background goroutine fully reads the body, closes it, decodes it, and
// publishes at most one content message followed by exactly one done message
// on a single ordered queue. The foreground loop consumes the queue and
// writes frames: one data frame per content message, then the terminal
// sentinel on done. Ordering is enforced by the queue itself, so a content
// frame can never follow the terminal frame.
//
// Failures inside the background goroutine are logged and collapse the stream
// to the terminal sentinel alone; once frames are being written the wire
// contract cannot retroactively report an HTTP-level error. Cancelling ctx
// emits the terminal sentinel immediately and abandons the in-flight read.
//
// The delivered completion text is returned for the caller's accounting.
func (a *Adapter) RelayStream(ctx context.Context, body io.ReadCloser, w provider.FrameWriter) (string, *translator.ErrorWithStatus) {
	// Buffered to the maximum number of messages so the background goroutine
	// never blocks and cannot leak when the foreground exits early.
	queue := make(chan streamMessage, 2)
	guard := newCloseGuard(body)

	var deliveredText string

	go func() {
		defer func() {
			queue <- streamMessage{kind: messageDone}
		}()

		raw, err := io.ReadAll(guard)
		if err != nil {
			slog.Error("error reading stream response", "error", err)
			return
		}
		if err := guard.Close(); err != nil {
			slog.Error("error closing stream response", "error", err)
			return
		}

		var upstream chatResponse
		if err := json.Unmarshal(raw, &upstream); err != nil {
			slog.Error("error unmarshalling stream response", "error", err)
			return
		}

		// Streaming tolerates an empty candidate list: the chunk simply
		// carries empty content.
		text := upstream.firstCandidateText()
		chunk := a.streamChunk(text)

		encoded, err := json.Marshal(chunk)
		if err != nil {
			slog.Error("error marshalling stream response", "error", err)
			return
		}

		deliveredText = text
		queue <- streamMessage{kind: messageContent, payload: string(encoded)}
	}()

	for {
		select {
		case <-ctx.Done():
			// Abandon the in-flight read; the background goroutine observes
			// the closed body, logs, and drains into the buffered queue.
			_ = guard.Close()
			if err := w.WriteFrame(doneSentinel); err != nil {
				return "", wrapError(err, codeWriteBody)
			}
			return "", nil

		case msg := <-queue:
			switch msg.kind {
			case messageContent:
				if err := w.WriteFrame(msg.payload); err != nil {
					// Best effort: the consumer still deserves a terminal
					// frame even when the content write failed.
					_ = w.WriteFrame(doneSentinel)
					return "", wrapError(err, codeWriteBody)
				}
				// Loop once more to consume the pending done message.

			case messageDone:
				if err := w.WriteFrame(doneSentinel); err != nil {
					return "", wrapError(err, codeWriteBody)
				}
				return deliveredText, nil
			}
		}
	}
}

// streamChunk builds the single neutral chunk for an emulated stream. The
// model field carries the fixed adapter-identifying stream model name, not
// the caller's model.
func (a *Adapter) streamChunk(content string) translator.ChatCompletionStreamResponse {
	finishReason := a.finishReason
	return translator.ChatCompletionStreamResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   a.streamModel,
		Choices: []translator.StreamChoice{
			{
				Index:        0,
				Delta:        translator.StreamDelta{Content: content},
				FinishReason: &finishReason,
			},
		},
	}
}

// closeGuard makes closing an upstream body idempotent. The body is owned by
// whichever task currently reads it and is released exactly once; additional
// Close calls report the first result without re-closing.
type closeGuard struct {
	rc   io.ReadCloser
	once sync.Once
	err  error
}

func newCloseGuard(rc io.ReadCloser) *closeGuard {
	return &closeGuard{rc: rc}
}

func (g *closeGuard) Read(p []byte) (int, error) {
	return g.rc.Read(p)
}

func (g *closeGuard) Close() error {
	g.once.Do(func() {
		g.err = g.rc.Close()
	})
	return g.err
}
