package job

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoJob struct {
	Value string `json:"value"`
}

func (j *echoJob) Execute(ctx context.Context) (any, error) {
	return j.Value, nil
}

func TestRegistry_Decode(t *testing.T) {
	r := NewRegistry()
	Register[echoJob](r, "echo")

	p, err := NewPayload("echo", map[string]string{"value": "hello"})
	require.NoError(t, err)

	j, err := r.Decode(p)
	require.NoError(t, err)

	result, err := j.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestRegistry_DecodeUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Decode(Payload{Type: "missing"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownJob))

	_, err = r.Decode(Payload{})
	assert.True(t, errors.Is(err, ErrEmptyPayload))
}

func TestRegistry_DecodeBadData(t *testing.T) {
	r := NewRegistry()
	Register[echoJob](r, "echo")

	_, err := r.Decode(Payload{Type: "echo", Data: []byte(`{"value": 12}`)})
	require.Error(t, err)
}

func TestPayload_RoundTrip(t *testing.T) {
	p, err := NewPayload(LogJobType, LogJob{Message: "hi"})
	require.NoError(t, err)

	b, err := p.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalPayload(b)
	require.NoError(t, err)
	assert.Equal(t, LogJobType, got.Type)
	assert.JSONEq(t, `{"message":"hi"}`, string(got.Data))

	_, err = UnmarshalPayload(nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestDefault_Names(t *testing.T) {
	assert.Equal(t, []string{CommandJobType, HTTPJobType, LogJobType}, Default().Names())
}

func TestHTTPJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "token", r.Header.Get("X-Token"))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	t.Run("success", func(t *testing.T) {
		j := &HTTPJob{
			Method:         http.MethodPost,
			URL:            srv.URL + "/ok",
			Headers:        map[string]string{"X-Token": "token"},
			Body:           `{"ping":true}`,
			ExpectedStatus: http.StatusAccepted,
			Timeout:        "5s",
		}
		result, err := j.Execute(context.Background())
		require.NoError(t, err)

		res, ok := result.(*HTTPResult)
		require.True(t, ok)
		assert.Equal(t, http.StatusAccepted, res.Status)
		assert.Equal(t, `{"ping":true}`, res.Body)
	})

	t.Run("failure status", func(t *testing.T) {
		j := &HTTPJob{URL: srv.URL + "/fail"}
		_, err := j.Execute(context.Background())
		require.Error(t, err)
	})

	t.Run("missing url", func(t *testing.T) {
		_, err := (&HTTPJob{}).Execute(context.Background())
		require.Error(t, err)
	})
}

func TestCommandJob(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	result, err := (&CommandJob{Command: "sh", Args: []string{"-c", "echo $GREETING"}, Env: map[string]string{"GREETING": "hi"}}).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hi\n", result.(*CommandResult).Output)

	_, err = (&CommandJob{Command: "sh", Args: []string{"-c", "exit 3"}}).Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code 3")
}

func TestLogJob(t *testing.T) {
	result, err := (&LogJob{Message: "hello", Level: "debug"}).Execute(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)
}
