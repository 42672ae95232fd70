package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/tagstream/internal/domain"
	"github.com/soyeahso/tagstream/internal/failover"
	"github.com/soyeahso/tagstream/internal/llm"
)

const testConfig = `
failover:
  credentials: [k1, k2]
  models: [m1]
engine:
  baseDelay: 1ms
`

type result struct {
	out, err string
}

// home creates a TAGSTREAM_HOME holding config.
func home(t *testing.T, config string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TAGSTREAM_HOME", dir)
	t.Setenv("TAGSTREAM_CONFIG_PATH", "")
	if config != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(config), 0o600))
	}
	return dir
}

func run(t *testing.T, stdin string, args ...string) (result, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return result{out: out.String(), err: errOut.String()}, err
}

// mockProvider rate limits k1 and answers on any other key.
func mockProvider(t *testing.T) *[]string {
	t.Helper()
	var secrets []string
	orig := newFactory
	t.Cleanup(func() { newFactory = orig })
	newFactory = func(string, string) (llm.Factory, error) {
		return func(_ context.Context, secret string) (llm.Client, error) {
			return &llm.MockClient{ProviderName: "mock", StreamFunc: func(context.Context, llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
				secrets = append(secrets, secret)
				if secret == "k1" {
					return llm.ScriptedStream(llm.StreamEvent{
						Type: llm.EventError,
						Err:  &llm.ProviderError{Provider: "mock", Code: 429, Message: "slow down"},
					}), nil
				}
				return llm.TextStream("[reaction:heart] hi ", "there"), nil
			}}, nil
		}, nil
	}
	return &secrets
}

func TestVersion(t *testing.T) {
	home(t, "")
	res, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, res.out, "tagstream dev")
}

func TestConfigValidate(t *testing.T) {
	home(t, "provider:\n  backend: cohere\n")
	res, err := run(t, "", "config", "validate")
	require.Error(t, err)
	assert.Contains(t, res.out, "provider.backend")
	assert.Contains(t, res.out, "failover.credentials")

	home(t, testConfig)
	res, err = run(t, "", "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, res.out, ": ok")
}

func TestConfigShowRedacts(t *testing.T) {
	home(t, testConfig)
	res, err := run(t, "", "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, res.out, "k1")
	assert.Contains(t, res.out, "<redacted>")
	assert.Contains(t, res.out, "m1")
}

func TestConfigSetGet(t *testing.T) {
	dir := home(t, testConfig)

	_, err := run(t, "", "config", "set", "engine.baseDelay", "250ms")
	require.NoError(t, err)
	_, err = run(t, "", "config", "set", "gateway.port", "9000")
	require.NoError(t, err)

	res, err := run(t, "", "config", "get", "engine.baseDelay")
	require.NoError(t, err)
	assert.Equal(t, "250ms\n", res.out)

	res, err = run(t, "", "config", "get", "gateway")
	require.NoError(t, err)
	assert.Contains(t, res.out, "port: 9000")

	_, err = run(t, "", "config", "get", "gateway.nope")
	assert.Error(t, err)

	res, err = run(t, "", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml")+"\n", res.out)
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, false, parseValue("FALSE"))
	assert.Equal(t, 42, parseValue("42"))
	assert.Equal(t, 0.5, parseValue("0.5"))
	assert.Equal(t, "30s", parseValue("30s"))
	assert.Equal(t, "t", parseValue("t"))
	assert.Equal(t, "#dev", parseValue("#dev"))
}

func TestGenerateRotatesAndPersists(t *testing.T) {
	home(t, testConfig)
	secrets := mockProvider(t)

	res, err := run(t, "", "generate", "say", "hi")
	require.NoError(t, err)
	assert.Equal(t, "reaction  heart\nmessage   hi there\n", res.out)
	assert.Contains(t, res.err, "succeeded model=m1 attempts=2 actions=2")
	assert.Equal(t, []string{"k1", "k2"}, *secrets)

	res, err = run(t, "", "failover", "status")
	require.NoError(t, err)
	assert.Contains(t, res.out, "* "+failover.CredentialID("k2")+"  available")
	assert.Contains(t, res.out, "  "+failover.CredentialID("k1")+"  blocked for")

	// The block survives into the next process, so k1 is skipped.
	*secrets = nil
	_, err = run(t, "", "generate", "again")
	require.NoError(t, err)
	assert.Equal(t, []string{"k2"}, *secrets)

	res, err = run(t, "", "failover", "reset")
	require.NoError(t, err)
	assert.Contains(t, res.out, "failover state reset")

	res, err = run(t, "", "failover", "status", "--json")
	require.NoError(t, err)
	assert.Contains(t, res.out, `"credentialIndex": 0`)
}

func TestGenerateReadsStdinAndPrintsJSON(t *testing.T) {
	home(t, testConfig)
	mockProvider(t)

	res, err := run(t, "prompt from stdin\n", "generate", "--json")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(res.out), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"kind":"reaction","action":{"type":"heart"}}`, lines[0])
	assert.JSONEq(t, `{"kind":"message","action":{"text":"hi there"}}`, lines[1])
}

func TestGenerateEmptyPrompt(t *testing.T) {
	home(t, testConfig)
	_, err := run(t, "  ", "generate")
	assert.EqualError(t, err, "empty prompt")
}

func TestGenerateRejectsInvalidConfig(t *testing.T) {
	home(t, "failover:\n  models: [m1]\n")
	mockProvider(t)
	_, err := run(t, "", "generate", "hi")
	assert.ErrorContains(t, err, "config validation failed")
}

func TestStatus(t *testing.T) {
	home(t, testConfig)
	res, err := run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, res.out, "Provider: gemini")
	assert.Contains(t, res.out, "Keys:     2 ["+failover.CredentialID("k1"))
	assert.Contains(t, res.out, "Models:   m1")
	assert.Contains(t, res.out, "Gateway:  127.0.0.1:18790 auth=false")
	assert.Contains(t, res.out, "Hooks:    (none)")
	assert.NotContains(t, res.out, "Validation issues")

	home(t, testConfig+"hooks:\n  log: [turn_failed, model_rotated]\n")
	res, err = run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, res.out, "Hooks:    model_rotated(1) turn_failed(1)")
}

func TestConsoleSinkLines(t *testing.T) {
	var buf bytes.Buffer
	s := &consoleSink{w: &buf}
	ctx := context.Background()

	s.OnReaction(ctx, "1:laugh")
	s.OnSticker(ctx, "wave")
	s.OnMessage(ctx, "sure", domain.IntPtr(2))
	s.OnUndo(ctx, domain.UndoTarget{Mode: domain.UndoRange, Start: 1, End: 3})
	s.OnCard(ctx, "u42")
	s.OnImage(ctx, "https://x/y.png", "look")
	s.OnComplete(ctx)
	s.OnError(ctx, assert.AnError)

	assert.Equal(t, strings.Join([]string{
		"reaction  1:laugh",
		"sticker   wave",
		"message   (re #2) sure",
		"undo      1:3",
		"card      u42",
		"image     https://x/y.png look",
		"error     " + assert.AnError.Error(),
	}, "\n")+"\n", buf.String())
}
