package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jjtheshooterr/autobot/internal/llm"
	"github.com/jjtheshooterr/autobot/internal/nlu"
	"github.com/jjtheshooterr/autobot/pkg/logging"
)

type stubLLM struct {
	resp llm.Response
	err  error
	req  llm.Request
}

func (s *stubLLM) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	s.req = req
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return s.resp, nil
}

func newTestAnswerer(client llm.Client) *Answerer {
	business := testBusiness()
	return NewAnswerer(client, "model-id", business, NewResponder(business), logging.Default())
}

func TestAnswerKnownTopicSkipsLLM(t *testing.T) {
	client := &stubLLM{resp: llm.Response{Text: "should not be used"}}
	a := newTestAnswerer(client)

	answer := a.Answer(context.Background(), nlu.TopicPrice, "how much?", []string{"Sunday at 12:00 PM", "Sunday at 3:00 PM"})
	if !strings.Contains(answer, "$199 flat") {
		t.Fatalf("expected the canned price answer, got %q", answer)
	}
	if !strings.Contains(answer, "does Sunday at 12:00 PM or Sunday at 3:00 PM work for you?") {
		t.Fatalf("expected the steer back to the offer, got %q", answer)
	}
	if client.req.Model != "" {
		t.Fatal("known topics must not call the model")
	}
}

func TestAnswerSteerSingleSlot(t *testing.T) {
	a := newTestAnswerer(nil)

	answer := a.Answer(context.Background(), nlu.TopicPrice, "how much?", []string{"Sunday at 12:00 PM"})
	if !strings.Contains(answer, "does Sunday at 12:00 PM work for you?") {
		t.Fatalf("expected the single-slot steer, got %q", answer)
	}
	if strings.Contains(answer, " or Sunday at 12:00 PM") {
		t.Fatalf("a lone slot must not be offered against itself, got %q", answer)
	}
}

func TestAnswerOpenQuestionUsesLLM(t *testing.T) {
	client := &stubLLM{resp: llm.Response{Text: "We can usually work around street parking, no problem."}}
	a := newTestAnswerer(client)

	answer := a.Answer(context.Background(), nlu.TopicQuestion, "do you need a driveway?", []string{"Sunday at 12:00 PM"})
	if !strings.Contains(answer, "street parking") {
		t.Fatalf("expected the model's phrasing, got %q", answer)
	}

	if client.req.Model != "model-id" || len(client.req.System) != 1 {
		t.Fatalf("unexpected request: %+v", client.req)
	}
	prompt := client.req.System[0]
	for _, want := range []string{"$199 flat", "Dallas-Fort Worth", "Sunday at 12:00 PM"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("expected fact %q in the system prompt:\n%s", want, prompt)
		}
	}
}

func TestAnswerFallsBackWhenLLMFails(t *testing.T) {
	client := &stubLLM{err: errors.New("model down")}
	a := newTestAnswerer(client)

	answer := a.Answer(context.Background(), nlu.TopicQuestion, "do you need a driveway?", nil)
	if !strings.Contains(answer, "What day or time usually works best") {
		t.Fatalf("expected the deterministic fallback, got %q", answer)
	}
}

func TestAnswerNilClient(t *testing.T) {
	a := newTestAnswerer(nil)

	answer := a.Answer(context.Background(), nlu.TopicQuestion, "anything?", []string{"Sunday at 12:00 PM"})
	if !strings.Contains(answer, "What day or time usually works best") {
		t.Fatalf("expected the open-ended ask without a model, got %q", answer)
	}
}

func TestAnswerEmptyModelText(t *testing.T) {
	client := &stubLLM{resp: llm.Response{Text: "   "}}
	a := newTestAnswerer(client)

	answer := a.Answer(context.Background(), nlu.TopicQuestion, "anything?", nil)
	if !strings.Contains(answer, "What day or time usually works best") {
		t.Fatalf("expected the fallback for empty model output, got %q", answer)
	}
}
