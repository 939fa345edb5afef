package notify_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/toimcz/hail"
	"github.com/toimcz/hail/id"
	"github.com/toimcz/hail/notify"
)

// recordingGateway captures every message and fails the first failN sends.
type recordingGateway struct {
	mu    sync.Mutex
	sent  []*notify.Message
	failN int
	calls int
}

func (g *recordingGateway) Send(_ context.Context, msg *notify.Message) ([]id.DeliveryID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls++
	if g.calls <= g.failN {
		return nil, errors.New("gateway down")
	}
	g.sent = append(g.sent, msg)
	return []id.DeliveryID{id.NewDeliveryID()}, nil
}

func (g *recordingGateway) messages() []*notify.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*notify.Message(nil), g.sent...)
}

func TestSendMagicLink_BuildsMessage(t *testing.T) {
	gw := &recordingGateway{}
	m := notify.NewMailer(gw, notify.WithFrom("login@taxi.example"))

	err := m.SendMagicLink(context.Background(), notify.MagicLinkPayload{
		SubjectID:   "u1",
		Destination: "rider@example.com",
		Link:        "https://app.example/login/abc123",
	})
	if err != nil {
		t.Fatalf("SendMagicLink: %v", err)
	}

	msgs := gw.messages()
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.From != "login@taxi.example" {
		t.Errorf("From = %q", msg.From)
	}
	if msg.To != "rider@example.com" {
		t.Errorf("To = %q", msg.To)
	}
	if msg.Template != notify.TemplateMagicLink {
		t.Errorf("Template = %q, want %q", msg.Template, notify.TemplateMagicLink)
	}
	if msg.Params["link"] != "https://app.example/login/abc123" {
		t.Errorf("link param = %q", msg.Params["link"])
	}
}

func TestSendMagicLink_DestinationFallsBackToSubject(t *testing.T) {
	gw := &recordingGateway{}
	m := notify.NewMailer(gw)

	err := m.SendMagicLink(context.Background(), notify.MagicLinkPayload{
		SubjectID: "u1",
		Link:      "https://app.example/login/abc123",
	})
	if err != nil {
		t.Fatalf("SendMagicLink: %v", err)
	}
	if got := gw.messages()[0].To; got != "u1" {
		t.Errorf("To = %q, want subject fallback %q", got, "u1")
	}
}

func TestSendWelcomeEmail_BuildsMessage(t *testing.T) {
	gw := &recordingGateway{}
	m := notify.NewMailer(gw)

	err := m.SendWelcomeEmail(context.Background(), notify.WelcomePayload{
		SubjectID:   "u2",
		Destination: "driver@example.com",
		DisplayName: "Sam",
	})
	if err != nil {
		t.Fatalf("SendWelcomeEmail: %v", err)
	}

	msg := gw.messages()[0]
	if msg.Template != notify.TemplateWelcomeEmail {
		t.Errorf("Template = %q, want %q", msg.Template, notify.TemplateWelcomeEmail)
	}
	if msg.Params["display_name"] != "Sam" {
		t.Errorf("display_name param = %q", msg.Params["display_name"])
	}
}

func TestSend_GatewayErrorPropagates(t *testing.T) {
	gw := &recordingGateway{failN: 1}
	m := notify.NewMailer(gw)

	err := m.SendMagicLink(context.Background(), notify.MagicLinkPayload{
		SubjectID: "u1",
		Link:      "https://app.example/login/abc",
	})
	if err == nil {
		t.Fatal("expected gateway error")
	}
	if !strings.Contains(err.Error(), "gateway down") {
		t.Errorf("error = %v, want to mention the gateway failure", err)
	}
}

func TestSend_NilGateway(t *testing.T) {
	m := notify.NewMailer(nil)

	err := m.SendMagicLink(context.Background(), notify.MagicLinkPayload{SubjectID: "u1"})
	if !errors.Is(err, hail.ErrNoGateway) {
		t.Errorf("err = %v, want ErrNoGateway", err)
	}
}

func TestNewFamily_BindsClosedNameSet(t *testing.T) {
	gw := &recordingGateway{}
	f := notify.NewFamily(notify.NewMailer(gw))

	if f.Name != notify.Family {
		t.Errorf("family name = %q, want %q", f.Name, notify.Family)
	}
	if !f.Binds(notify.NameSendMagicLink) || !f.Binds(notify.NameSendWelcomeEmail) {
		t.Error("family should bind both job names")
	}

	err := f.Handle(context.Background(), "send-sms", nil)
	if !errors.Is(err, hail.ErrUnknownJobName) {
		t.Errorf("unknown name err = %v, want ErrUnknownJobName", err)
	}
}
