package notify

import (
	"bytes"
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/log"
)

func TestSMTPMailerRendersMessage(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "no-reply@qrmenu.test"})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	if err := m.SendRejection(context.Background(), "owner@example.com", "Taco Stand", "license expired"); err != nil {
		t.Fatalf("SendRejection: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr=%q", gotAddr)
	}
	if gotFrom != "no-reply@qrmenu.test" || len(gotTo) != 1 || gotTo[0] != "owner@example.com" {
		t.Errorf("from=%q to=%v", gotFrom, gotTo)
	}
	body := string(gotMsg)
	for _, want := range []string{"Subject: Your restaurant account was not approved", "Taco Stand", "Reason: license expired"} {
		if !strings.Contains(body, want) {
			t.Errorf("message missing %q:\n%s", want, body)
		}
	}
}

func TestSMTPMailerErrors(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 25})
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}
	if err := m.SendApproval(context.Background(), "a@example.com", "Cafe"); err == nil {
		t.Fatal("expected error")
	}

	m = NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 25, Timeout: 10 * time.Millisecond})
	block := make(chan struct{})
	defer close(block)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		<-block
		return nil
	}
	err := m.SendPasswordResetOTP(context.Background(), "a@example.com", "123456", 5)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v, want deadline exceeded", err)
	}
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := LogMailer{Logger: log.NewLogfmtLogger(&buf)}
	if err := m.SendPasswordResetOTP(context.Background(), "a@example.com", "042042", 5); err != nil {
		t.Fatalf("SendPasswordResetOTP: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "042042") || !strings.Contains(out, "to=a@example.com") {
		t.Fatalf("unexpected log output: %s", out)
	}
}
