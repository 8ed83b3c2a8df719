package conversation

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/antonbillionaire/staffix/internal/bookings"
	"github.com/antonbillionaire/staffix/internal/business"
	"github.com/antonbillionaire/staffix/internal/clients"
)

// Sunday 2026-03-01 00:00 UTC, 05:00 in Tashkent.
var testNow = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

type step func(req LLMRequest) (LLMResponse, error)

// scriptedLLM replays steps in order and records every request.
type scriptedLLM struct {
	mu       sync.Mutex
	steps    []step
	requests []LLMRequest
}

func (s *scriptedLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return LLMResponse{Text: "done"}, nil
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	return next(req)
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func sayText(text string) step {
	return func(LLMRequest) (LLMResponse, error) { return LLMResponse{Text: text}, nil }
}

func callTool(id, name string, args any) step {
	return func(LLMRequest) (LLMResponse, error) {
		raw, _ := json.Marshal(args)
		return LLMResponse{ToolCalls: []ToolCall{{ID: id, Name: name, Arguments: raw}}}, nil
	}
}

type recordingObserver struct {
	mu        sync.Mutex
	created   []bookings.Booking
	cancelled []bookings.Booking
}

func (o *recordingObserver) BookingCreated(_ context.Context, b bookings.Booking) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created = append(o.created, b)
}

func (o *recordingObserver) BookingCancelled(_ context.Context, b bookings.Booking) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelled = append(o.cancelled, b)
}

type fixture struct {
	store    *business.MemoryStore
	bookings *bookings.MemoryRepository
	engine   *bookings.Engine
	clients  *clients.MemoryRepository
	builder  *ContextBuilder
	redis    *redis.Client
	mini     *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := business.NewMemoryStore()
	day := &business.DayHours{Open: "09:00", Close: "18:00"}
	store.PutBusiness(business.Business{
		ID:          "biz",
		Name:        "Barbershop Aziz",
		Description: "Classic cuts in Chilanzar.",
		Timezone:    "Asia/Tashkent",
		Language:    business.LanguageRussian,
		Hours:       business.BusinessHours{Monday: day, Tuesday: day, Wednesday: day, Thursday: day, Friday: day},
	})
	store.PutBusiness(business.Business{ID: "other", Name: "Other", Timezone: "Asia/Almaty", Language: business.LanguageEnglish})
	store.AddService(business.Service{ID: "cut", BusinessID: "biz", Name: "Haircut", DurationMinutes: 60, PriceCents: 8000000, Active: true})
	store.AddService(business.Service{ID: "beard", BusinessID: "biz", Name: "Beard trim", DurationMinutes: 30, PriceCents: 4000000, Active: true})
	store.AddService(business.Service{ID: "old", BusinessID: "biz", Name: "Retired", DurationMinutes: 30, Active: false})
	store.AddStaff(business.Staff{ID: "aziz", BusinessID: "biz", Name: "Aziz", Role: "Senior barber", Active: true})
	store.AddStaff(business.Staff{ID: "bek", BusinessID: "biz", Name: "Bek", ServiceIDs: []string{"cut"}, Active: true})
	store.AddFAQ("biz", business.FAQEntry{Question: "Parking?", Answer: "Free parking behind the building."})

	repo := bookings.NewMemoryRepository()
	engine := bookings.NewEngine(store, repo,
		bookings.WithClock(func() time.Time { return testNow }),
		bookings.WithSlotStep(time.Hour),
	)
	clientRepo := clients.NewMemoryRepository()
	builder := NewContextBuilder(store, clientRepo, engine, nil)
	builder.now = func() time.Time { return testNow }

	mini := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return &fixture{
		store:    store,
		bookings: repo,
		engine:   engine,
		clients:  clientRepo,
		builder:  builder,
		redis:    rdb,
		mini:     mini,
	}
}

func (f *fixture) scope(clientID string) Scope {
	return Scope{BusinessID: "biz", ClientID: clientID, Timezone: "Asia/Tashkent", Language: business.LanguageRussian}
}

func decodeContent(t *testing.T, res ToolResult) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(res.Content), &out); err != nil {
		t.Fatalf("tool result is not JSON: %v (%s)", err, res.Content)
	}
	return out
}

// lastToolResults returns the tool results sent with the latest request.
func lastToolResults(llm *scriptedLLM) []ToolResult {
	llm.mu.Lock()
	defer llm.mu.Unlock()
	if len(llm.requests) == 0 {
		return nil
	}
	msgs := llm.requests[len(llm.requests)-1].Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == ChatRoleTool {
			return msgs[i].ToolResults
		}
	}
	return nil
}
