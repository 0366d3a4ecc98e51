package bot

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

// stubTransport answers every REST call with an empty command list so
// registration never leaves the process.
type stubTransport struct {
	requests int64
}

func (t *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt64(&t.requests, 1)

	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader("[]")),
		Request:    req,
	}, nil
}

func newStubSession(transport *stubTransport) *discordgo.Session {
	s := &discordgo.Session{
		State:       discordgo.NewState(),
		Client:      &http.Client{Transport: transport},
		Ratelimiter: discordgo.NewRatelimiter(),
	}
	s.State.User = &discordgo.User{ID: "app-1"}

	return s
}

func TestGuildCreateBurstRegistersOnce(t *testing.T) {
	transport := &stubTransport{}
	b := New(newStubSession(transport), NewCommandRegistry())

	// the gateway dispatches each event on its own goroutine, a ready
	// burst can deliver the same guild more than once
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.handleGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "guild-1"}})
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt64(&transport.requests))
}

func TestGuildCreateDistinctGuilds(t *testing.T) {
	transport := &stubTransport{}
	b := New(newStubSession(transport), NewCommandRegistry())

	guilds := []string{"guild-1", "guild-2", "guild-3", "guild-4"}

	var wg sync.WaitGroup
	for _, gID := range guilds {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			b.handleGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: id}})
		}(gID)
	}
	wg.Wait()

	assert.EqualValues(t, len(guilds), atomic.LoadInt64(&transport.requests))
}
