package questrade

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/dnaeon/go-vcr/cassette"
	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"

	_ "qtcache/internal/bootstrap/dotenv" // QUESTRADE_TOKEN_FILE may live in .env
)

// This test uses go-vcr to record/replay a real ServerTime call.
// It skips by default if cassette is absent and RECORD_CASSETTES != 1.
// Recording needs QUESTRADE_TOKEN_FILE pointing at a valid token file.
func TestClient_ServerTime_Recorded(t *testing.T) {
	cassettePath := filepath.Join("testdata", "cassettes", "questrade_time.yaml")
	if _, err := os.Stat(cassettePath); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" || os.Getenv("QUESTRADE_TOKEN_FILE") == "" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 and QUESTRADE_TOKEN_FILE to record: %s", cassettePath)
		}
		err := os.MkdirAll(filepath.Dir(cassettePath), 0o755)
		assert.NoError(t, err, "mkdir cassettes dir should succeed")
	}

	r, err := recorder.New(cassettePath)
	assert.NoError(t, err, "recorder.New should not error")
	assert.NotNil(t, r, "recorder should not be nil")
	defer func() { _ = r.Stop() }()
	r.AddFilter(func(i *cassette.Interaction) error {
		delete(i.Request.Headers, "Authorization")
		return nil
	})

	tok := Token{AccessToken: "replayed", APIServer: "https://api01.iq.questrade.com/", ExpiresAt: 1 << 40}
	tokens := StaticTokenSource(tok, "", &http.Client{Transport: r})
	if path := os.Getenv("QUESTRADE_TOKEN_FILE"); path != "" {
		tokens = NewTokenSource(path, "", "", &http.Client{Transport: r})
	}

	client := NewClient(WithHTTPClient(&http.Client{Transport: r}), WithTokenSource(tokens), WithMaxRetries(0))
	ts, err := client.ServerTime(context.Background())
	assert.NoError(t, err, "ServerTime should not error")
	assert.False(t, ts.IsZero(), "server time should be set")
}
