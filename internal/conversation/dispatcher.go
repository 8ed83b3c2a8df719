package conversation

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/antonbillionaire/staffix/internal/bookings"
	"github.com/antonbillionaire/staffix/internal/business"
	"github.com/antonbillionaire/staffix/internal/timezone"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

// ErrExternalService means the language model failed or timed out. The turn
// is aborted; bookings already written by earlier tool calls stay.
var ErrExternalService = errors.New("conversation: external service unavailable")

const (
	defaultMaxRounds   = 5
	defaultLLMTimeout  = 30 * time.Second
	maxListedSlots     = 20
	maxAlternatives    = 3
	defaultMaxTokens   = 1024
	defaultTemperature = 0.2
)

// BookingEngine is the deterministic booking surface the tools call into.
type BookingEngine interface {
	GetServicesList(ctx context.Context, businessID string) ([]business.Service, error)
	GetStaffList(ctx context.Context, businessID string) ([]business.Staff, error)
	CheckAvailability(ctx context.Context, q bookings.AvailabilityQuery) (iter.Seq[bookings.Slot], error)
	CreateBooking(ctx context.Context, req bookings.CreateRequest) (*bookings.Booking, error)
	SuggestAlternatives(ctx context.Context, req bookings.CreateRequest, limit int) ([]bookings.Slot, error)
	GetClientBookings(ctx context.Context, businessID, clientID string) ([]bookings.Booking, error)
	CancelBooking(ctx context.Context, businessID, bookingID, clientID string) (*bookings.Booking, bool, error)
}

// BookingObserver is told about bookings the assistant created or cancelled.
type BookingObserver interface {
	BookingCreated(ctx context.Context, b bookings.Booking)
	BookingCancelled(ctx context.Context, b bookings.Booking)
}

// Scope pins every tool call of a turn to one business and client. Model
// arguments can never widen it.
type Scope struct {
	BusinessID string
	ClientID   string
	Timezone   string
	Language   string
}

// TurnInput is everything the dispatcher needs for one client message.
type TurnInput struct {
	Scope        Scope
	SystemPrompt string
	History      []ChatMessage
	UserText     string
}

// TurnResult is the final reply of a turn.
type TurnResult struct {
	Text string
	// Fallback is set when the round limit was hit and Text is the canned
	// support message.
	Fallback  bool
	Rounds    int
	ToolCalls int
}

type turnState int

const (
	stateCompose turnState = iota
	stateAwait
	stateExecute
	stateResume
	stateTerminal
)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxRounds bounds the number of tool rounds per turn.
func WithMaxRounds(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxRounds = n
		}
	}
}

// WithLLMTimeout bounds each model call.
func WithLLMTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithBookingObserver registers a best-effort observer.
func WithBookingObserver(obs BookingObserver) DispatcherOption {
	return func(d *Dispatcher) {
		d.observer = obs
	}
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *logging.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithModelLabel sets the model label used in metrics.
func WithModelLabel(model string) DispatcherOption {
	return func(d *Dispatcher) {
		if model != "" {
			d.model = model
		}
	}
}

// Dispatcher runs the bounded loop between the model and the booking tools.
type Dispatcher struct {
	llm       LLMClient
	engine    BookingEngine
	observer  BookingObserver
	logger    *logging.Logger
	tracer    trace.Tracer
	tools     []ToolDefinition
	maxRounds int
	timeout   time.Duration
	model     string
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(llm LLMClient, engine BookingEngine, opts ...DispatcherOption) *Dispatcher {
	if llm == nil {
		panic("conversation: llm client required")
	}
	if engine == nil {
		panic("conversation: booking engine required")
	}
	d := &Dispatcher{
		llm:       llm,
		engine:    engine,
		logger:    logging.Default(),
		tracer:    otel.Tracer("staffix.internal.conversation"),
		tools:     ToolDefinitions(),
		maxRounds: defaultMaxRounds,
		timeout:   defaultLLMTimeout,
		model:     "default",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run drives Compose, Await, Execute and Resume until the model answers with
// text or the round limit is reached.
func (d *Dispatcher) Run(ctx context.Context, in TurnInput) (TurnResult, error) {
	ctx, span := d.tracer.Start(ctx, "conversation.dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("staffix.business_id", in.Scope.BusinessID))

	var (
		result   TurnResult
		messages []ChatMessage
		req      LLMRequest
		resp     LLMResponse
		results  []ToolResult
	)
	state := stateCompose
	for state != stateTerminal {
		switch state {
		case stateCompose:
			messages = append(append(make([]ChatMessage, 0, len(in.History)+1), in.History...),
				ChatMessage{Role: ChatRoleUser, Content: in.UserText})
			req = LLMRequest{
				System:      []string{in.SystemPrompt},
				Messages:    messages,
				Tools:       d.tools,
				MaxTokens:   defaultMaxTokens,
				Temperature: defaultTemperature,
			}
			state = stateAwait

		case stateAwait:
			var err error
			resp, err = d.complete(ctx, req)
			if err != nil {
				span.RecordError(err)
				observeRounds(result.Rounds)
				return TurnResult{}, err
			}
			switch {
			case len(resp.ToolCalls) == 0:
				result.Text = resp.Text
				state = stateTerminal
			case result.Rounds >= d.maxRounds:
				d.logger.Warn("tool round limit reached",
					"business_id", in.Scope.BusinessID, "rounds", result.Rounds)
				result.Text = RepliesFor(in.Scope.Language).Support
				result.Fallback = true
				state = stateTerminal
			default:
				state = stateExecute
			}

		case stateExecute:
			result.Rounds++
			results = make([]ToolResult, 0, len(resp.ToolCalls))
			for _, call := range resp.ToolCalls {
				results = append(results, d.execute(ctx, in.Scope, call))
				result.ToolCalls++
			}
			state = stateResume

		case stateResume:
			messages = append(messages,
				ChatMessage{Role: ChatRoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls},
				ChatMessage{Role: ChatRoleTool, ToolResults: results},
			)
			req.Messages = messages
			state = stateAwait
		}
	}

	observeRounds(result.Rounds)
	span.SetAttributes(
		attribute.Int("staffix.agent.rounds", result.Rounds),
		attribute.Int("staffix.agent.tool_calls", result.ToolCalls),
		attribute.Bool("staffix.agent.fallback", result.Fallback),
	)
	return result, nil
}

func (d *Dispatcher) complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	started := time.Now()
	resp, err := d.llm.Complete(callCtx, req)
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			status = "timeout"
		}
	}
	observeLLM(d.model, status, time.Since(started), resp.Usage)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("%w: %s: %v", ErrExternalService, status, err)
	}
	return resp, nil
}

// execute runs one tool call. Failures become structured results; nothing
// is returned as a Go error.
func (d *Dispatcher) execute(ctx context.Context, scope Scope, call ToolCall) ToolResult {
	ctx, span := d.tracer.Start(ctx, "conversation.tool."+call.Name)
	defer span.End()

	res := ToolResult{CallID: call.ID, Name: call.Name}
	payload, err := d.run(ctx, scope, call)
	outcome := "ok"
	if err != nil {
		span.RecordError(err)
		te := d.toolError(ctx, scope, call, err)
		outcome = te.Code
		res.IsError = true
		res.Content = encodeResult(map[string]any{"error": te})
		if te.Code == codeInternal {
			d.logger.Error("tool call failed",
				"business_id", scope.BusinessID, "tool", call.Name, "error", err)
		}
	} else {
		res.Content = encodeResult(payload)
	}
	toolCallsTotal.WithLabelValues(toolLabel(call.Name), outcome).Inc()
	return res
}

func (d *Dispatcher) run(ctx context.Context, scope Scope, call ToolCall) (any, error) {
	switch call.Name {
	case ToolCheckAvailability:
		var args checkAvailabilityArgs
		if err := decodeArgs(call.Arguments, scope.Timezone, &args); err != nil {
			return nil, err
		}
		seq, err := d.engine.CheckAvailability(ctx, bookings.AvailabilityQuery{
			BusinessID: scope.BusinessID,
			ServiceID:  args.ServiceID,
			StaffID:    args.StaffID,
			From:       args.from,
			To:         args.to,
		})
		if err != nil {
			return nil, err
		}
		slots := bookings.Collect(seq, maxListedSlots+1)
		truncated := len(slots) > maxListedSlots
		if truncated {
			slots = slots[:maxListedSlots]
		}
		return map[string]any{"slots": d.slotViews(scope, slots), "truncated": truncated}, nil

	case ToolCreateBooking:
		var args createBookingArgs
		if err := decodeArgs(call.Arguments, scope.Timezone, &args); err != nil {
			return nil, err
		}
		b, err := d.engine.CreateBooking(ctx, bookings.CreateRequest{
			BusinessID: scope.BusinessID,
			ClientID:   scope.ClientID,
			ServiceID:  args.ServiceID,
			StaffID:    args.StaffID,
			Start:      args.start,
			Notes:      args.Notes,
		})
		if err != nil {
			return nil, err
		}
		if d.observer != nil {
			d.observer.BookingCreated(ctx, *b)
		}
		return map[string]any{"booking": d.bookingView(scope, *b)}, nil

	case ToolListServices:
		if err := decodeArgs(call.Arguments, scope.Timezone, &noArgs{}); err != nil {
			return nil, err
		}
		services, err := d.engine.GetServicesList(ctx, scope.BusinessID)
		if err != nil {
			return nil, err
		}
		out := make([]serviceView, 0, len(services))
		for _, svc := range services {
			out = append(out, serviceView{
				ID:              svc.ID,
				Name:            svc.Name,
				Description:     svc.Description,
				DurationMinutes: svc.DurationMinutes,
				Price:           formatPrice(svc.PriceCents),
			})
		}
		return map[string]any{"services": out}, nil

	case ToolListStaff:
		var args listStaffArgs
		if err := decodeArgs(call.Arguments, scope.Timezone, &args); err != nil {
			return nil, err
		}
		staff, err := d.engine.GetStaffList(ctx, scope.BusinessID)
		if err != nil {
			return nil, err
		}
		out := make([]staffView, 0, len(staff))
		for _, st := range staff {
			if args.ServiceID != "" && !st.Offers(args.ServiceID) {
				continue
			}
			out = append(out, staffView{ID: st.ID, Name: st.Name, Role: st.Role})
		}
		return map[string]any{"staff": out}, nil

	case ToolGetClientBookings:
		if err := decodeArgs(call.Arguments, scope.Timezone, &noArgs{}); err != nil {
			return nil, err
		}
		list, err := d.engine.GetClientBookings(ctx, scope.BusinessID, scope.ClientID)
		if err != nil {
			return nil, err
		}
		out := make([]bookingView, 0, len(list))
		for _, b := range list {
			out = append(out, d.bookingView(scope, b))
		}
		return map[string]any{"bookings": out}, nil

	case ToolCancelBooking:
		var args cancelBookingArgs
		if err := decodeArgs(call.Arguments, scope.Timezone, &args); err != nil {
			return nil, err
		}
		b, changed, err := d.engine.CancelBooking(ctx, scope.BusinessID, args.BookingID, scope.ClientID)
		if err != nil {
			return nil, err
		}
		if changed && d.observer != nil {
			d.observer.BookingCancelled(ctx, *b)
		}
		return map[string]any{"booking": d.bookingView(scope, *b)}, nil

	default:
		return nil, &argError{Field: "name", Reason: fmt.Sprintf("unknown tool %q", call.Name)}
	}
}

// toolError maps an execution error to the payload the model sees.
func (d *Dispatcher) toolError(ctx context.Context, scope Scope, call ToolCall, err error) toolError {
	var (
		argErr *argError
		valErr *bookings.ValidationError
	)
	switch {
	case errors.As(err, &argErr):
		return toolError{Code: codeValidation, Message: argErr.Reason, Field: argErr.Field}
	case errors.As(err, &valErr):
		return toolError{Code: codeValidation, Message: valErr.Reason, Field: valErr.Field}
	case errors.Is(err, bookings.ErrSlotConflict):
		te := toolError{Code: codeSlotConflict, Message: "the requested time is no longer available"}
		te.Alternatives = d.alternatives(ctx, scope, call)
		return te
	case errors.Is(err, bookings.ErrNotFound), errors.Is(err, business.ErrNotFound):
		return toolError{Code: codeNotFound, Message: "not found"}
	case errors.Is(err, bookings.ErrForbidden):
		return toolError{Code: codeForbidden, Message: "this booking belongs to another client"}
	default:
		return toolError{Code: codeInternal, Message: "internal error"}
	}
}

func (d *Dispatcher) alternatives(ctx context.Context, scope Scope, call ToolCall) []slotView {
	var args createBookingArgs
	if call.Name != ToolCreateBooking || decodeArgs(call.Arguments, scope.Timezone, &args) != nil {
		return nil
	}
	alts, err := d.engine.SuggestAlternatives(ctx, bookings.CreateRequest{
		BusinessID: scope.BusinessID,
		ClientID:   scope.ClientID,
		ServiceID:  args.ServiceID,
		StaffID:    args.StaffID,
		Start:      args.start,
	}, maxAlternatives)
	if err != nil {
		d.logger.Warn("alternative slots unavailable", "business_id", scope.BusinessID, "error", err)
		return nil
	}
	return d.slotViews(scope, alts)
}

func (d *Dispatcher) slotViews(scope Scope, slots []bookings.Slot) []slotView {
	out := make([]slotView, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotView{
			StaffID:   s.StaffID,
			StaffName: s.StaffName,
			Start:     timezone.ToLocal(s.Start, scope.Timezone).Format(localLayout),
			End:       timezone.ToLocal(s.End, scope.Timezone).Format(localLayout),
		})
	}
	return out
}

func (d *Dispatcher) bookingView(scope Scope, b bookings.Booking) bookingView {
	return bookingView{
		ID:        b.ID,
		ServiceID: b.ServiceID,
		StaffID:   b.StaffID,
		Start:     timezone.ToLocal(b.Start, scope.Timezone).Format(localLayout),
		End:       timezone.ToLocal(b.End, scope.Timezone).Format(localLayout),
		Status:    string(b.Status),
		Notes:     b.Notes,
	}
}

// toolLabel keeps metric cardinality bounded when the model invents names.
func toolLabel(name string) string {
	switch name {
	case ToolCheckAvailability, ToolCreateBooking, ToolListServices, ToolListStaff, ToolGetClientBookings, ToolCancelBooking:
		return name
	default:
		return "unknown"
	}
}
