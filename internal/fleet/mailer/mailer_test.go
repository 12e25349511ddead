package mailer

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/autopeer-io/robofleet/pkg/options"
)

func TestNewSelectsImplementation(t *testing.T) {
	opts := options.NewSmtpOptions()
	if _, ok := New(opts).(*LogMailer); !ok {
		t.Fatal("empty address must select the log mailer")
	}
	opts.Addr = "localhost:25"
	if _, ok := New(opts).(*SMTPMailer); !ok {
		t.Fatal("configured address must select the SMTP mailer")
	}
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("a@x", "b@y", "code\r\nBcc: evil@z", "line1\nline2"))
	if strings.Contains(msg, "\r\nBcc:") {
		t.Fatalf("header injection not neutralised:\n%s", msg)
	}
	if !strings.Contains(msg, "line1\r\nline2") {
		t.Fatalf("body line endings not normalised:\n%s", msg)
	}
}

// fakeSMTP speaks just enough SMTP for one delivery and returns the DATA section.
func fakeSMTP(t *testing.T) (addr string, data <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		write := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }

		write("220 fake ESMTP")
		var body strings.Builder
		inData := false
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if inData {
				if line == ".\r\n" {
					inData = false
					out <- body.String()
					write("250 queued")
					continue
				}
				body.WriteString(line)
				continue
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"):
				write("250 fake")
			case strings.HasPrefix(cmd, "DATA"):
				inData = true
				write("354 go ahead")
			case strings.HasPrefix(cmd, "QUIT"):
				write("221 bye")
				return
			default:
				write("250 ok")
			}
		}
	}()
	return ln.Addr().String(), out
}

func TestSMTPMailerSend(t *testing.T) {
	addr, data := fakeSMTP(t)
	m := &SMTPMailer{addr: addr, from: "fleet@x", timeout: 5 * time.Second}

	if err := m.Send(context.Background(), "rx@y", "Your pickup code", "Code 123456"); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	select {
	case got := <-data:
		if !strings.Contains(got, "Code 123456") || !strings.Contains(got, "To: rx@y") {
			t.Fatalf("unexpected DATA:\n%s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the mail")
	}
}

func TestSMTPMailerDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	m := &SMTPMailer{addr: addr, from: "fleet@x", timeout: time.Second}
	if err := m.Send(context.Background(), "rx@y", "s", "b"); err == nil {
		t.Fatal("Send() to a closed port must fail")
	}
}
