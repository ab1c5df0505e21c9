package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aftorrescurrea/chatbot-sub000/internal/flow"
	"github.com/aftorrescurrea/chatbot-sub000/internal/memory"
	"github.com/aftorrescurrea/chatbot-sub000/internal/models"
	"github.com/aftorrescurrea/chatbot-sub000/internal/reply"
	"github.com/aftorrescurrea/chatbot-sub000/internal/scheduler"
	"github.com/aftorrescurrea/chatbot-sub000/internal/session"
	"github.com/aftorrescurrea/chatbot-sub000/internal/store"
)

// fakeNLU returns canned detections keyed by message text.
type fakeNLU struct {
	results map[string]models.NLUResult
	err     error
}

func (f *fakeNLU) Detect(ctx context.Context, text string, known map[string]string) (models.NLUResult, error) {
	if f.err != nil {
		return models.NLUResult{}, f.err
	}
	return f.results[text], nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) SendMessage(ctx context.Context, to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, body)
	return nil
}

func (r *recordingSender) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return ""
	}
	return r.sent[len(r.sent)-1]
}

type testBot struct {
	orch     *Orchestrator
	sessions *session.Manager
	mem      *memory.Store
	engine   *flow.Engine
	store    *store.InMemoryStore
	sender   *recordingSender
}

func newTestBot(t *testing.T, detector *fakeNLU) *testBot {
	t.Helper()

	timers := scheduler.NewTimerSet()
	t.Cleanup(timers.Stop)

	st := store.NewInMemoryStore()
	memStore := memory.NewStore()
	engine := flow.NewEngine(flow.DefaultFlowTimeout)
	engine.Register(flow.NewTrialHandler(st))
	engine.Register(flow.NewSupportHandler(st))
	engine.Register(flow.NewTutorialHandler("erp", flow.ERPTutorialSteps()))

	sender := &recordingSender{}
	sessions := session.NewManager(time.Minute, timers, sender, memStore, engine)
	t.Cleanup(sessions.Stop)

	orch := NewOrchestrator(sessions, memStore, engine, detector, reply.NewTemplateGenerator(), sender, st)
	return &testBot{orch: orch, sessions: sessions, mem: memStore, engine: engine, store: st, sender: sender}
}

func TestProcessTurn_Greeting(t *testing.T) {
	b := newTestBot(t, &fakeNLU{results: map[string]models.NLUResult{
		"hola": {Intents: []string{models.IntentSaludo}},
	}})

	res, err := b.orch.ProcessTurn(context.Background(), "573001112233", "hola")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if res.PrimaryIntent != models.IntentSaludo {
		t.Errorf("primary intent = %q, want saludo", res.PrimaryIntent)
	}
	if res.Flow.State != models.FlowStateNone {
		t.Errorf("flow state = %q, want none", res.Flow.State)
	}
	if res.SessionClosed {
		t.Error("greeting should not close the session")
	}
	if !b.sessions.Active("573001112233") {
		t.Error("session should be active after a turn")
	}
	if !strings.Contains(res.Reply, "Hola") {
		t.Errorf("reply = %q, want greeting", res.Reply)
	}

	stats := b.orch.Stats()
	if stats.ActiveSessionCount != 1 || stats.ActiveFlowCount != 0 {
		t.Errorf("stats = %+v, want 1 session and 0 flows", stats)
	}
}

func TestProcessTurn_TrialSignupEndToEnd(t *testing.T) {
	b := newTestBot(t, &fakeNLU{results: map[string]models.NLUResult{
		"quiero probar el erp": {
			Intents:  []string{models.IntentSolicitudPrueba},
			Entities: map[string]string{models.FieldServicio: "erp"},
		},
		"Juan Pérez":     {Entities: map[string]string{models.FieldNombre: "Juan Pérez"}},
		"juan@acme.com":  {Entities: map[string]string{models.FieldEmail: "juan@acme.com"}},
		"jperez":         {Entities: map[string]string{models.FieldUsuario: "jperez"}},
		"secreto123":     {Entities: map[string]string{models.FieldClave: "secreto123"}},
	}})
	ctx := context.Background()
	user := "573001112233"

	res, err := b.orch.ProcessTurn(ctx, user, "quiero probar el erp")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if res.Flow.State != models.FlowStateActive || res.Flow.FlowType != models.FlowTypeTrial {
		t.Fatalf("flow = %+v, want active trial", res.Flow)
	}
	if res.Flow.Step != 0 || len(res.Flow.MissingFields) != 4 {
		t.Fatalf("flow step=%d missing=%v, want step 0 with 4 missing fields", res.Flow.Step, res.Flow.MissingFields)
	}

	for _, msg := range []string{"Juan Pérez", "juan@acme.com", "jperez"} {
		if res, err = b.orch.ProcessTurn(ctx, user, msg); err != nil {
			t.Fatalf("ProcessTurn(%q): %v", msg, err)
		}
		if res.Flow.State != models.FlowStateActive {
			t.Fatalf("after %q flow state = %q, want active", msg, res.Flow.State)
		}
	}
	if res.Flow.Step != 3 {
		t.Errorf("flow step = %d, want 3 after three answers", res.Flow.Step)
	}

	res, err = b.orch.ProcessTurn(ctx, user, "secreto123")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if res.Flow.State != models.FlowStateCompleted {
		t.Fatalf("flow state = %q, want completed", res.Flow.State)
	}
	if res.Flow.Payload[models.FieldUsuario] != "jperez" {
		t.Errorf("payload usuario = %q, want jperez", res.Flow.Payload[models.FieldUsuario])
	}
	if !res.SessionClosed {
		t.Error("completing a trial should close the session")
	}
	if !strings.Contains(res.Reply, "jperez") || !strings.Contains(res.Reply, reply.FarewellPhrase) {
		t.Errorf("completion reply = %q, want credentials and farewell", res.Reply)
	}

	if b.store.CredentialsCount() != 1 {
		t.Errorf("credentials count = %d, want 1", b.store.CredentialsCount())
	}
	u, err := b.store.FindUserByPhone(user)
	if err != nil || u == nil {
		t.Fatalf("FindUserByPhone: user=%v err=%v", u, err)
	}
	if !u.IsRegistered || u.Name != "Juan Pérez" {
		t.Errorf("user = %+v, want registered Juan Pérez", u)
	}

	if b.sessions.Active(user) {
		t.Error("session should be gone after completion")
	}
	if b.mem.Count() != 0 {
		t.Errorf("memory count = %d, want 0 after session close", b.mem.Count())
	}
}

func TestProcessTurn_NLUFailureDegradesToFallback(t *testing.T) {
	b := newTestBot(t, &fakeNLU{err: errors.New("api down")})

	res, err := b.orch.ProcessTurn(context.Background(), "573001112233", "hola")
	if err != nil {
		t.Fatalf("ProcessTurn should not fail on NLU errors: %v", err)
	}
	if len(res.Intents) != 0 {
		t.Errorf("intents = %v, want none", res.Intents)
	}
	if res.Reply == "" || !strings.Contains(res.Reply, "no estoy seguro") {
		t.Errorf("reply = %q, want fallback", res.Reply)
	}
}

func TestProcessTurn_StrongTopicChangeAbandonsFlow(t *testing.T) {
	b := newTestBot(t, &fakeNLU{results: map[string]models.NLUResult{
		"quiero una prueba gratis": {Intents: []string{models.IntentSolicitudPrueba}},
		"mi sistema no funciona, necesito soporte": {Intents: []string{models.IntentSoporteTecnico}},
	}})
	ctx := context.Background()
	user := "573001112233"

	if _, err := b.orch.ProcessTurn(ctx, user, "quiero una prueba gratis"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	res, err := b.orch.ProcessTurn(ctx, user, "mi sistema no funciona, necesito soporte")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if res.Flow.State != models.FlowStateActive || res.Flow.FlowType != models.FlowTypeSupport {
		t.Fatalf("flow = %+v, want active support flow after topic change", res.Flow)
	}
	if res.Memory.Context.CurrentTopic != models.TopicTechnicalSupport {
		t.Errorf("topic = %q, want technical_support", res.Memory.Context.CurrentTopic)
	}

	stats := b.orch.Stats()
	if stats.FlowsByType[models.FlowTypeTrial] != 0 || stats.FlowsByType[models.FlowTypeSupport] != 1 {
		t.Errorf("flows by type = %v, want only the support flow", stats.FlowsByType)
	}
}

func TestProcessTurn_TopicChangeWithoutNewFlowAnswersIntent(t *testing.T) {
	b := newTestBot(t, &fakeNLU{results: map[string]models.NLUResult{
		"quiero una prueba gratis":        {Intents: []string{models.IntentSolicitudPrueba}},
		"esto es pésimo, quiero quejarme": {Intents: []string{models.IntentQueja}},
	}})
	ctx := context.Background()
	user := "573001112233"

	if _, err := b.orch.ProcessTurn(ctx, user, "quiero una prueba gratis"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	res, err := b.orch.ProcessTurn(ctx, user, "esto es pésimo, quiero quejarme")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if res.Flow.State != models.FlowStateNone {
		t.Fatalf("flow state = %q, want none after switching to a flowless topic", res.Flow.State)
	}
	if b.engine.Active(user) {
		t.Error("trial flow should be gone after the topic change")
	}
	if !strings.Contains(res.Reply, reply.TopicSwitchNotice) {
		t.Errorf("reply = %q, want the dropped-process lead-in", res.Reply)
	}
	if !strings.Contains(res.Reply, "Lamento") {
		t.Errorf("reply = %q, want the complaint answered", res.Reply)
	}
	if b.store.CredentialsCount() != 0 {
		t.Error("abandoned trial must not issue credentials")
	}
}

func TestProcessTurn_GreetingMidFlowDoesNotAbandon(t *testing.T) {
	b := newTestBot(t, &fakeNLU{results: map[string]models.NLUResult{
		"quiero una prueba gratis": {Intents: []string{models.IntentSolicitudPrueba}},
		"hola de nuevo":            {Intents: []string{models.IntentSaludo}},
	}})
	ctx := context.Background()
	user := "573001112233"

	if _, err := b.orch.ProcessTurn(ctx, user, "quiero una prueba gratis"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	res, err := b.orch.ProcessTurn(ctx, user, "hola de nuevo")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if res.Flow.State != models.FlowStateActive || res.Flow.FlowType != models.FlowTypeTrial {
		t.Fatalf("flow = %+v, want trial still active after a greeting", res.Flow)
	}
	if res.Memory.Context.CurrentTopic != models.TopicTrialRequest {
		t.Errorf("topic = %q, want trial_request unchanged", res.Memory.Context.CurrentTopic)
	}
}

func TestProcessTurn_CancellationAbandonsFlow(t *testing.T) {
	b := newTestBot(t, &fakeNLU{results: map[string]models.NLUResult{
		"quiero una prueba gratis": {Intents: []string{models.IntentSolicitudPrueba}},
		"mejor cancela todo":       {Intents: []string{models.IntentCancelacion}},
	}})
	ctx := context.Background()
	user := "573001112233"

	if _, err := b.orch.ProcessTurn(ctx, user, "quiero una prueba gratis"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	res, err := b.orch.ProcessTurn(ctx, user, "mejor cancela todo")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if res.Flow.State != models.FlowStateAbandoned {
		t.Fatalf("flow state = %q, want abandoned", res.Flow.State)
	}
	if b.engine.Active(user) {
		t.Error("no flow should remain active after cancellation")
	}
	if !b.sessions.Active(user) {
		t.Error("cancellation alone should not close the session")
	}
	if b.store.CredentialsCount() != 0 {
		t.Error("abandoned flow must not run its side effect")
	}
}

func TestProcessTurn_FarewellClosesSession(t *testing.T) {
	b := newTestBot(t, &fakeNLU{results: map[string]models.NLUResult{
		"adiós": {Intents: []string{models.IntentDespedida}},
	}})
	user := "573001112233"

	res, err := b.orch.ProcessTurn(context.Background(), user, "adiós")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if !res.SessionClosed {
		t.Error("farewell should close the session")
	}
	if b.sessions.Active(user) {
		t.Error("session should be gone after farewell")
	}
	if !strings.Contains(b.sender.last(), reply.FarewellPhrase) {
		t.Errorf("last message = %q, want farewell", b.sender.last())
	}
}

func TestProcessTurn_TutorialRequestStartsNamedTutorial(t *testing.T) {
	b := newTestBot(t, &fakeNLU{results: map[string]models.NLUResult{
		"cómo uso el erp": {
			Intents:  []string{models.IntentTutorial},
			Entities: map[string]string{models.FieldServicio: "ERP"},
		},
	}})

	res, err := b.orch.ProcessTurn(context.Background(), "573001112233", "cómo uso el erp")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if res.Flow.FlowType != models.TutorialFlowType("erp") {
		t.Errorf("flow type = %q, want tutorial:erp", res.Flow.FlowType)
	}
	if res.Flow.State != models.FlowStateActive {
		t.Errorf("flow state = %q, want active", res.Flow.State)
	}
}

func TestProcessTurn_UnknownTutorialFallsBack(t *testing.T) {
	b := newTestBot(t, &fakeNLU{results: map[string]models.NLUResult{
		"tutorial de inventario": {
			Intents:  []string{models.IntentTutorial},
			Entities: map[string]string{models.FieldServicio: "inventario"},
		},
	}})

	res, err := b.orch.ProcessTurn(context.Background(), "573001112233", "tutorial de inventario")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if res.Flow.FlowType != models.TutorialFlowType("erp") {
		t.Errorf("flow type = %q, want fallback tutorial:erp", res.Flow.FlowType)
	}
}

func TestProcessTurn_PersistsBothMessages(t *testing.T) {
	b := newTestBot(t, &fakeNLU{results: map[string]models.NLUResult{
		"hola": {Intents: []string{models.IntentSaludo}},
	}})

	if _, err := b.orch.ProcessTurn(context.Background(), "573001112233", "hola"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if got := b.store.MessageCount(); got != 2 {
		t.Errorf("message count = %d, want inbound plus reply", got)
	}
}

func TestProcessTurn_SerializesSameUser(t *testing.T) {
	b := newTestBot(t, &fakeNLU{results: map[string]models.NLUResult{
		"hola": {Intents: []string{models.IntentSaludo}},
	}})
	ctx := context.Background()
	user := "573001112233"

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.orch.ProcessTurn(ctx, user, "hola"); err != nil {
				t.Errorf("ProcessTurn: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := b.store.MessageCount(); got != 40 {
		t.Errorf("message count = %d, want 40 from 20 serialized turns", got)
	}
	if b.orch.Stats().ActiveSessionCount != 1 {
		t.Errorf("session count = %d, want 1", b.orch.Stats().ActiveSessionCount)
	}
}
