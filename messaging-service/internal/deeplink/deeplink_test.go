package deeplink

import (
	"context"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
	"github.com/israelseleshi/building-management-system-sub000/pkg/idgen"
)

func newComposer(t *testing.T) *Composer {
	t.Helper()
	g, err := idgen.NewNanoIDGenerator(idgen.DefaultNanoIDSize, idgen.DefaultNanoIDAlphabet)
	require.NoError(t, err)
	return NewComposer(g)
}

func TestCompose_Decode(t *testing.T) {
	c := newComposer(t)

	tests := []struct {
		name     string
		target   string
		prefill  string
		autoSend bool
	}{
		{"prefill only", "tenant-1", "Please pay rent", false},
		{"auto send", "tenant-1", "Please pay rent", true},
		{"reserved characters", "tenant-1", "Rent & fees = 100% due? #2", false},
		{"no prefill", "tenant-1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, err := c.Compose(tt.target, tt.prefill, tt.autoSend)
			require.NoError(t, err)
			assert.Equal(t, ContextWarning, link.Context)

			if tt.autoSend {
				assert.Len(t, link.Token, idgen.DefaultNanoIDSize)
			} else {
				assert.Empty(t, link.Token)
			}

			decoded, err := DecodeQuery("?" + link.Query())
			require.NoError(t, err)
			assert.Equal(t, link, decoded)
		})
	}
}

func TestCompose_Params(t *testing.T) {
	link, err := newComposer(t).Compose("tenant-1", "Please pay rent", false)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		ParamTo:       "tenant-1",
		ParamPrefill:  "Please pay rent",
		ParamContext:  ContextWarning,
		ParamAutoSend: "0",
	}, link.Params())
}

func TestCompose_FreshTokenPerLink(t *testing.T) {
	c := newComposer(t)
	a, err := c.Compose("tenant-1", "x", true)
	require.NoError(t, err)
	b, err := c.Compose("tenant-1", "x", true)
	require.NoError(t, err)
	assert.NotEqual(t, a.Token, b.Token)

	_, err = c.Compose("  ", "x", true)
	assert.ErrorIs(t, err, domain.ErrInvalidLink)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(url.Values{ParamPrefill: {"hi"}})
	assert.ErrorIs(t, err, domain.ErrInvalidLink)

	_, err = Decode(url.Values{ParamTo: {"t"}, ParamAutoSend: {"maybe"}})
	assert.ErrorIs(t, err, domain.ErrInvalidLink)

	// unknown targets still decode
	link, err := Decode(url.Values{ParamTo: {"nobody"}, ParamAutoSend: {"true"}})
	require.NoError(t, err)
	assert.Equal(t, "nobody", link.Target)
	assert.True(t, link.AutoSend)
	assert.Empty(t, link.Token)
}

func TestMemoryTokenStore(t *testing.T) {
	s := NewMemoryTokenStore(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := s.Consume(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Consume(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err = s.Consume(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, ok, "expired tokens are forgotten")
}

func TestMemoryTokenStore_ConcurrentConsumeOnce(t *testing.T) {
	s := NewMemoryTokenStore(time.Minute)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Consume(context.Background(), "tok"); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestRedisTokenStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	s := NewRedisTokenStore(client, "test:deeplink", time.Minute)
	token := "tok-" + time.Now().Format(time.RFC3339Nano)
	defer client.Del(context.Background(), "test:deeplink:"+token)

	ok, err := s.Consume(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Consume(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, ok)
}
