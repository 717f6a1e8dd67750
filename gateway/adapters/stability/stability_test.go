package stability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelgate/pixelgate/gateway"
)

func serverProfile(endpoint string) gateway.ProviderProfile {
	p := DefaultProfile()
	p.Endpoint = endpoint
	return p
}

func TestAdapter_Generate(t *testing.T) {
	var fields map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		assert.Equal(t, "Bearer sk-stab", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(wireResponse{Image: "cGl4ZWxz", Seed: 1234, FinishReason: "SUCCESS"})
	}))
	defer server.Close()

	adapter := New(serverProfile(server.URL), "sk-stab", server.Client(), nil)
	result, err := adapter.Generate(context.Background(), &gateway.GenerationRequest{
		Provider: "stability",
		Prompt:   "a lighthouse",
		Size:     "512x512",
		Style:    "artistic",
		Seed:     99,
	})
	require.NoError(t, err)

	assert.Equal(t, "a lighthouse", fields["prompt"])
	assert.Equal(t, "png", fields["output_format"])
	assert.Equal(t, "1:1", fields["aspect_ratio"])
	assert.Equal(t, "artistic", fields["style_preset"])
	assert.Equal(t, "99", fields["seed"])

	assert.True(t, result.Success)
	require.Len(t, result.Images, 1)
	assert.Equal(t, "data:image/png;base64,cGl4ZWxz", result.Images[0].URL)
	assert.EqualValues(t, 1234, result.Images[0].Seed)
	assert.EqualValues(t, 1234, result.RawMetadata["seed"])
}

func TestAdapter_CountFansOut(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&calls, 1)
		json.NewEncoder(w).Encode(wireResponse{Image: "aW1n", Seed: n})
	}))
	defer server.Close()

	adapter := New(serverProfile(server.URL), "sk", server.Client(), nil)
	result, err := adapter.Generate(context.Background(), &gateway.GenerationRequest{
		Prompt: "x", Count: 3,
	})
	require.NoError(t, err)

	assert.EqualValues(t, 3, atomic.LoadInt64(&calls))
	assert.Len(t, result.Images, 3)
}

func TestAdapter_FirstFailureAbortsAttempt(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(wireResponse{Image: "aW1n"})
	}))
	defer server.Close()

	adapter := New(serverProfile(server.URL), "sk", server.Client(), nil)
	_, err := adapter.Generate(context.Background(), &gateway.GenerationRequest{Prompt: "x", Count: 3})

	require.Error(t, err)
	assert.True(t, gateway.IsRetryable(err))
	assert.EqualValues(t, 2, atomic.LoadInt64(&calls), "remaining images are not attempted")
}

func TestAdapter_MissingImageIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireResponse{FinishReason: "CONTENT_FILTERED"})
	}))
	defer server.Close()

	adapter := New(serverProfile(server.URL), "sk", server.Client(), nil)
	_, err := adapter.Generate(context.Background(), &gateway.GenerationRequest{Prompt: "x"})

	require.Error(t, err)
	assert.Equal(t, gateway.ErrPermanent, gateway.GetErrorCode(err))
}

func TestAspectRatio(t *testing.T) {
	tests := []struct {
		size string
		want string
	}{
		{"1024x1024", "1:1"},
		{"512x512", "1:1"},
		{"1536x1024", "16:9"},
		{"1024x1536", "9:16"},
		{"garbage", "1:1"},
		{"", "1:1"},
		{"0x100", "1:1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, aspectRatio(tt.size), tt.size)
	}
}

func TestAdapter_Kind(t *testing.T) {
	adapter := New(DefaultProfile(), "sk", nil, nil)
	assert.Equal(t, gateway.KindMultipart, adapter.Kind())
	assert.Equal(t, "stability", adapter.Name())
}
