package mailer

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"strings"
	"time"
)

// RFC 2047 encodes non-ascii display names
func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	encoded := mime.QEncoding.Encode("utf-8", name)
	return fmt.Sprintf("%s <%s>", encoded, addr)
}

func encodeSubject(subject string) string {
	return mime.QEncoding.Encode("utf-8", subject)
}

func newMessageID(domain string) string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return fmt.Sprintf("<%s@%s>", hex.EncodeToString(b), domain)
}

// headerSafe drops CR and LF so caller-supplied values cannot add headers.
func headerSafe(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

func buildMIMEMessage(e Email, messageIDDomain string) (string, error) {
	if len(e.To) == 0 {
		return "", fmt.Errorf("mailer: at least one recipient required")
	}
	if e.From == "" {
		return "", fmt.Errorf("mailer: from address required")
	}
	if e.Subject == "" {
		return "", fmt.Errorf("mailer: subject required")
	}
	if e.TextBody == "" && e.HTMLBody == "" {
		return "", fmt.Errorf("mailer: textBody or htmlBody required")
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", newMessageID(messageIDDomain))
	fmt.Fprintf(&b, "From: %s\r\n", headerSafe(formatAddress(e.FromName, e.From)))
	fmt.Fprintf(&b, "To: %s\r\n", headerSafe(strings.Join(e.To, ", ")))
	if len(e.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", headerSafe(strings.Join(e.Cc, ", ")))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", encodeSubject(headerSafe(e.Subject)))
	b.WriteString("MIME-Version: 1.0\r\n")

	for k, v := range e.Headers {
		k, v = headerSafe(k), headerSafe(v)
		if k == "" || v == "" || strings.Contains(k, ":") {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}

	if e.TextBody != "" && e.HTMLBody != "" {
		boundary := randomBoundary()
		fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

		fmt.Fprintf(&b, "--%s\r\n", boundary)
		if err := writePart(&b, "text/plain", e.TextBody); err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		if err := writePart(&b, "text/html", e.HTMLBody); err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "--%s--\r\n", boundary)
		return b.String(), nil
	}

	if e.HTMLBody != "" {
		if err := writePart(&b, "text/html", e.HTMLBody); err != nil {
			return "", err
		}
		return b.String(), nil
	}

	if err := writePart(&b, "text/plain", e.TextBody); err != nil {
		return "", err
	}
	return b.String(), nil
}

// writePart writes part headers and a quoted-printable body.
func writePart(b *strings.Builder, contentType, body string) error {
	fmt.Fprintf(b, "Content-Type: %s; charset=UTF-8\r\n", contentType)
	b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	w := quotedprintable.NewWriter(b)
	if _, err := w.Write([]byte(body)); err != nil {
		return fmt.Errorf("mailer: encode body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mailer: encode body: %w", err)
	}
	b.WriteString("\r\n")
	return nil
}

func randomBoundary() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return "alt-" + hex.EncodeToString(b)
}
