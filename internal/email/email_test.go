package email

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestTransportError_MatchesAndUnwraps(t *testing.T) {
	cause := errors.New("535 bad credentials")
	err := transportError("smtp", cause)

	if !errors.Is(err, ErrTransport) {
		t.Error("errors.Is(err, ErrTransport) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Provider != "smtp" {
		t.Errorf("errors.As provider = %v", terr)
	}
	if got, want := err.Error(), "smtp: 535 bad credentials"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestUnconfiguredSender_AlwaysFails(t *testing.T) {
	err := UnconfiguredSender{Provider: "smtp"}.Send(context.Background(), Message{To: "a@example.com"})
	if !errors.Is(err, ErrTransport) {
		t.Errorf("Send() error = %v, want TransportError", err)
	}
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Send() error = %v, want ErrNotConfigured cause", err)
	}
}

func TestRawMessage_PlainText(t *testing.T) {
	raw, err := rawMessage("", "me@example.com", Message{To: "you@example.com", Subject: "Reminder App", TextBody: "line1\nline2"})
	if err != nil {
		t.Fatalf("rawMessage() error = %v", err)
	}
	out := string(raw)

	for _, want := range []string{
		"me@example.com",
		"you@example.com",
		"Subject: Reminder App",
		"text/plain",
		"line1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("message missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "multipart/alternative") {
		t.Error("a text-only message should not be multipart")
	}
}

func TestRawMessage_Multipart(t *testing.T) {
	raw, err := rawMessage("Reminders", "me@example.com", ReminderMessage("you@example.com", "Reminder App", "pay <rent>"))
	if err != nil {
		t.Fatalf("rawMessage() error = %v", err)
	}
	out := string(raw)

	for _, want := range []string{"multipart/alternative", "text/plain", "text/html", "Reminders"} {
		if !strings.Contains(out, want) {
			t.Errorf("message missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "text/plain") > strings.Index(out, "text/html") {
		t.Error("text part should precede the html alternative")
	}
}

func TestRawMessage_InvalidRecipient(t *testing.T) {
	if _, err := rawMessage("", "me@example.com", Message{To: "not an address", TextBody: "x"}); err == nil {
		t.Error("expected error for malformed recipient")
	}
}

func TestReminderEmailHTML_EscapesBody(t *testing.T) {
	got := ReminderEmailHTML("pay <rent>\nnow", "Reminder App")
	if !strings.Contains(got, "pay &lt;rent&gt;<br>") {
		t.Errorf("body should be escaped with line breaks kept:\n%s", got)
	}
}

func TestNewSMTPSender_Validation(t *testing.T) {
	if _, err := NewSMTPSender(SMTPConfig{Port: 25, SenderAddress: "a@b.c"}); err == nil {
		t.Error("expected error for missing host")
	}
	if _, err := NewSMTPSender(SMTPConfig{Host: "localhost", SenderAddress: "a@b.c"}); err == nil {
		t.Error("expected error for missing port")
	}
	if _, err := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 70000, SenderAddress: "a@b.c"}); err == nil {
		t.Error("expected error for out of range port")
	}
	if _, err := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 25}); err == nil {
		t.Error("expected error for missing sender")
	}
}

// fakeSMTP accepts a single session without TLS or AUTH and records the DATA payload.
type fakeSMTP struct {
	ln       net.Listener
	mu       sync.Mutex
	from     string
	rcpt     string
	data     string
	rcptCode string
}

func startFakeSMTP(t *testing.T, rcptCode string) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeSMTP{ln: ln, rcptCode: rcptCode}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakeSMTP) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeSMTP) serve() {
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	write := func(s string) { conn.Write([]byte(s + "\r\n")) }

	write("220 fake ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			write("250 fake")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			f.mu.Lock()
			f.from = line[len("MAIL FROM:"):]
			f.mu.Unlock()
			write("250 ok")
		case strings.HasPrefix(upper, "RCPT TO:"):
			f.mu.Lock()
			f.rcpt = line[len("RCPT TO:"):]
			f.mu.Unlock()
			write(f.rcptCode)
		case upper == "DATA":
			write("354 go ahead")
			var sb strings.Builder
			for {
				dl, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if dl == ".\r\n" {
					break
				}
				sb.WriteString(dl)
			}
			f.mu.Lock()
			f.data = sb.String()
			f.mu.Unlock()
			write("250 queued")
		case upper == "QUIT":
			write("221 bye")
			return
		default:
			write("250 ok")
		}
	}
}

func TestSMTPSender_DeliversMessage(t *testing.T) {
	srv := startFakeSMTP(t, "250 ok")
	sender, err := NewSMTPSender(SMTPConfig{
		Host:          "127.0.0.1",
		Port:          srv.port(),
		SenderAddress: "reminders@example.com",
	})
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sender.Send(ctx, Message{To: "ada@example.com", Subject: "Reminder App", TextBody: "water the plants"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if !strings.Contains(srv.from, "reminders@example.com") {
		t.Errorf("MAIL FROM = %q", srv.from)
	}
	if !strings.Contains(srv.rcpt, "ada@example.com") {
		t.Errorf("RCPT TO = %q", srv.rcpt)
	}
	if !strings.Contains(srv.data, "water the plants") {
		t.Errorf("DATA missing body:\n%s", srv.data)
	}
}

func TestSMTPSender_RejectedRecipientIsTransportError(t *testing.T) {
	srv := startFakeSMTP(t, "550 no such user")
	sender, err := NewSMTPSender(SMTPConfig{
		Host:          "127.0.0.1",
		Port:          srv.port(),
		SenderAddress: "reminders@example.com",
	})
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = sender.Send(ctx, Message{To: "ghost@example.com", TextBody: "x"})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Send() error = %v, want TransportError", err)
	}
	if !strings.Contains(err.Error(), "550") {
		t.Errorf("error should carry provider detail, got %q", err.Error())
	}
}

func TestSMTPSender_CredentialsWithoutServerAuth(t *testing.T) {
	srv := startFakeSMTP(t, "250 ok")
	sender, err := NewSMTPSender(SMTPConfig{
		Host:          "127.0.0.1",
		Port:          srv.port(),
		Username:      "me@example.com",
		Password:      "app-password",
		SenderAddress: "reminders@example.com",
	})
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = sender.Send(ctx, Message{To: "ada@example.com", TextBody: "x"})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Send() error = %v, want TransportError", err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.data != "" {
		t.Error("no message should be transferred when authentication cannot happen")
	}
}

func TestSMTPSender_UnreachableHost(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	sender, _ := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: port, SenderAddress: "a@example.com"})
	err = sender.Send(context.Background(), Message{To: "b@example.com", TextBody: "x"})
	if !errors.Is(err, ErrTransport) {
		t.Errorf("Send() error = %v, want TransportError", err)
	}
}
