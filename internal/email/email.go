package email

import (
	"errors"
	"fmt"
	"net/smtp"
)

// Config carries the SMTP settings for license delivery.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type Sender struct {
	cfg Config
}

func NewSender(cfg Config) (*Sender, error) {
	if cfg.Host == "" || cfg.Port == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("SMTP configuration incomplete")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &Sender{cfg: cfg}, nil
}

// SendLicenseKey mails a freshly issued key to its customer.
func (s *Sender) SendLicenseKey(to, key string) error {
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	addr := s.cfg.Host + ":" + s.cfg.Port
	return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, s.buildMessage(to, key))
}

func (s *Sender) buildMessage(to, key string) []byte {
	body := fmt.Sprintf(`Hello,

Thank you for your purchase! Your license is ready.

LICENSE KEY
%s

GETTING STARTED
1. Open the app settings
2. Go to the License tab
3. Enter your license key

Questions? Just reply to this email.
`, key)

	return []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", s.cfg.From, to, "Your license key", body))
}
