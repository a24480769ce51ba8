package translator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classics-portal/internal/types"
)

type fakeModel struct {
	replies []*schema.Message
	errs    []error
	calls   int
	inputs  [][]*schema.Message
}

func (m *fakeModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	i := m.calls
	m.calls++
	m.inputs = append(m.inputs, input)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return nil, errors.New("no reply scripted")
}

func newTestSuggester(m *fakeModel) *Suggester {
	s := NewSuggesterWithModel(m, "test-model")
	s.retryDelay = 0
	return s
}

func TestSuggester_Suggest(t *testing.T) {
	m := &fakeModel{replies: []*schema.Message{schema.AssistantMessage("  先生が言った。\n", nil)}}
	s := newTestSuggester(m)

	out, err := s.Suggest(context.Background(), " 子曰 ")
	require.NoError(t, err)
	assert.Equal(t, "先生が言った。", out)

	require.Len(t, m.inputs, 1)
	input := m.inputs[0]
	require.Len(t, input, 2)
	assert.Equal(t, schema.System, input[0].Role)
	assert.Equal(t, schema.User, input[1].Role)
	assert.Equal(t, "子曰", input[1].Content)
}

func TestSuggester_EmptyInput(t *testing.T) {
	m := &fakeModel{}
	_, err := newTestSuggester(m).Suggest(context.Background(), "   ")
	assert.True(t, types.HasCode(err, types.ErrInvalidInput))
	assert.Zero(t, m.calls)
}

func TestSuggester_EmptyReply(t *testing.T) {
	m := &fakeModel{replies: []*schema.Message{schema.AssistantMessage(" ", nil)}}
	_, err := newTestSuggester(m).Suggest(context.Background(), "子曰")
	assert.True(t, types.HasCode(err, types.ErrTranslation))
}

func TestSuggester_Retry(t *testing.T) {
	m := &fakeModel{
		errs:    []error{errors.New("502 bad gateway"), nil},
		replies: []*schema.Message{nil, schema.AssistantMessage("訳", nil)},
	}
	out, err := newTestSuggester(m).Suggest(context.Background(), "子曰")
	require.NoError(t, err)
	assert.Equal(t, "訳", out)
	assert.Equal(t, 2, m.calls)
}

func TestSuggester_GivesUp(t *testing.T) {
	m := &fakeModel{errs: []error{errors.New("boom"), errors.New("boom again")}}
	_, err := newTestSuggester(m).Suggest(context.Background(), "子曰")
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrTranslation))
	assert.Contains(t, err.Error(), "boom again")
	assert.Equal(t, MaxRetries, m.calls)
}

func TestSuggester_CancelledIsNotRetried(t *testing.T) {
	m := &fakeModel{errs: []error{context.Canceled}}
	_, err := newTestSuggester(m).Suggest(context.Background(), "子曰")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, m.calls)
}

func TestSuggester_TruncatesLongInput(t *testing.T) {
	m := &fakeModel{replies: []*schema.Message{schema.AssistantMessage("訳", nil)}}
	_, err := newTestSuggester(m).Suggest(context.Background(), strings.Repeat("字", MaxInputLength+50))
	require.NoError(t, err)
	assert.Len(t, []rune(m.inputs[0][1].Content), MaxInputLength)
}

func TestNewSuggester_RequiresKey(t *testing.T) {
	_, err := NewSuggester(context.Background(), Config{})
	assert.True(t, types.HasCode(err, types.ErrConfig))
}
