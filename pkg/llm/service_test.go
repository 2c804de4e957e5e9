package llm

import (
	"context"
	"errors"
	"testing"

	"ai-assist-go/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testProvider struct {
	initErr error
	answer  string
	genErr  error
}

func (p *testProvider) Initialize(ctx context.Context) error { return p.initErr }

func (p *testProvider) GenerateAnswer(ctx context.Context, prompt string) (string, error) {
	return p.answer, p.genErr
}

func (p *testProvider) Close() error { return nil }

func TestParseKind(t *testing.T) {
	for _, raw := range []string{"local", "Local", " LOCAL "} {
		kind, err := ParseKind(raw)
		require.NoError(t, err)
		assert.Equal(t, KindLocal, kind)
	}

	_, err := ParseKind("mystery")
	assert.Error(t, err)
}

func TestInitializeFailsWhenDefaultProviderBroken(t *testing.T) {
	s := NewService(map[Kind]Provider{
		KindLocal: &testProvider{initErr: errors.New("connection refused")},
		KindCloud: &testProvider{},
	}, KindLocal)

	err := s.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConfiguration))
}

func TestInitializeToleratesNonDefaultFailure(t *testing.T) {
	s := NewService(map[Kind]Provider{
		KindLocal: &testProvider{},
		KindCloud: &testProvider{initErr: errors.New("bad api key")},
	}, KindLocal)

	require.NoError(t, s.Initialize(context.Background()))

	// 失败的提供方不可用
	_, err := s.Provider(KindCloud)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConfiguration))
}

func TestProviderResolvesEmptyKindToCurrent(t *testing.T) {
	local := &testProvider{answer: "from local"}
	s := NewService(map[Kind]Provider{KindLocal: local}, KindLocal)
	require.NoError(t, s.Initialize(context.Background()))

	p, err := s.Provider("")
	require.NoError(t, err)
	assert.Same(t, Provider(local), p)
}

func TestProviderRejectsUnregisteredKind(t *testing.T) {
	s := NewService(map[Kind]Provider{KindLocal: &testProvider{}}, KindLocal)
	require.NoError(t, s.Initialize(context.Background()))

	_, err := s.Provider(KindCloud)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConfiguration))
}

func TestSwitchProvider(t *testing.T) {
	s := NewService(map[Kind]Provider{
		KindLocal: &testProvider{},
		KindCloud: &testProvider{},
	}, KindLocal)
	require.NoError(t, s.Initialize(context.Background()))

	require.NoError(t, s.SwitchProvider(KindCloud))
	assert.Equal(t, KindCloud, s.Current())
}

func TestSwitchProviderKeepsCurrentOnFailure(t *testing.T) {
	s := NewService(map[Kind]Provider{
		KindLocal: &testProvider{},
		KindCloud: &testProvider{initErr: errors.New("bad api key")},
	}, KindLocal)
	require.NoError(t, s.Initialize(context.Background()))

	err := s.SwitchProvider(KindCloud)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConfiguration))
	assert.Equal(t, KindLocal, s.Current())

	err = s.SwitchProvider(Kind("mystery"))
	require.Error(t, err)
	assert.Equal(t, KindLocal, s.Current())
}

func TestIsDBQuestion(t *testing.T) {
	s := NewService(map[Kind]Provider{KindLocal: &testProvider{}}, KindLocal)

	assert.True(t, s.IsDBQuestion(context.Background(), &testProvider{answer: "true"}, "q"))
	assert.True(t, s.IsDBQuestion(context.Background(), &testProvider{answer: "True."}, "q"))
	assert.False(t, s.IsDBQuestion(context.Background(), &testProvider{answer: "false"}, "q"))
}

func TestIsDBQuestionFailsSafe(t *testing.T) {
	s := NewService(map[Kind]Provider{KindLocal: &testProvider{}}, KindLocal)

	broken := &testProvider{genErr: errors.New("model unavailable")}
	assert.False(t, s.IsDBQuestion(context.Background(), broken, "q"))
}
