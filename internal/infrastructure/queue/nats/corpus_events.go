package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
)

func (q *Queue) PublishCorpusChanged(ctx context.Context, change domain.CorpusChange) error {
	data, err := encodeCorpusChange(change)
	if err != nil {
		return err
	}
	return q.publish(ctx, "nats.publish_corpus", q.corpusSubject, data)
}

// SubscribeCorpusChanged uses a plain subscription so every replica applies
// every change to its own corpus.
func (q *Queue) SubscribeCorpusChanged(ctx context.Context, handler func(context.Context, domain.CorpusChange) error) error {
	sub, err := q.conn.Subscribe(q.corpusSubject, func(msg *nats.Msg) {
		change, err := decodeCorpusChange(msg.Data)
		if err != nil {
			slog.Error("corpus_event_invalid", "error", err)
			return
		}
		dispatch(ctx, func(handlerCtx context.Context) error {
			return handler(handlerCtx, change)
		}, "corpus_event_failed", "document_id", change.DocumentID, "kind", string(change.Kind))
	})
	if err != nil {
		return fmt.Errorf("nats subscribe corpus: %w", err)
	}
	return q.serve(ctx, sub)
}

func encodeCorpusChange(change domain.CorpusChange) ([]byte, error) {
	if change.DocumentID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode corpus change", errors.New("document id is required"))
	}
	data, err := json.Marshal(change)
	if err != nil {
		return nil, fmt.Errorf("marshal corpus change: %w", err)
	}
	return data, nil
}

func decodeCorpusChange(data []byte) (domain.CorpusChange, error) {
	var change domain.CorpusChange
	if err := json.Unmarshal(data, &change); err != nil {
		return domain.CorpusChange{}, fmt.Errorf("decode corpus change: %w", err)
	}
	switch change.Kind {
	case domain.CorpusDocumentIndexed, domain.CorpusDocumentRemoved:
	default:
		return domain.CorpusChange{}, fmt.Errorf("decode corpus change: unknown kind %q", change.Kind)
	}
	if change.DocumentID == "" {
		return domain.CorpusChange{}, errors.New("decode corpus change: missing document id")
	}
	return change, nil
}
