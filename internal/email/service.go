package email

import (
	"fmt"
	"net/smtp"
)

// Service handles email sending via SMTP
type Service struct {
	host string
	port int
	from string
}

// NewService creates a new email service
func NewService(host string, port int, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
	}
}

// SendSettlementNotice emails the store operator about a settlement
// outcome for one checkout session.
func (s *Service) SendSettlementNotice(to, sessionID, headline string, lines []Line) error {
	shortID := sessionID
	if len(sessionID) > 12 {
		shortID = sessionID[:12]
	}
	subject := fmt.Sprintf("【%s】セッション: %s", headline, shortID)
	body := BuildSettlementNoticeBody(sessionID, headline, lines)
	return s.send(to, subject, body)
}

func (s *Service) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	return smtp.SendMail(addr, nil, s.from, []string{to}, []byte(msg))
}
