package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageLoginCode         = "login_code"
	pageWelcome           = "welcome"
	pageAccountProposal   = "account_proposal"
	pageConversionSuccess = "conversion_success"
)

// ConversionMailer compone los correos del flujo OTP y del embudo de conversion.
// No decide cuando enviarlos.
type ConversionMailer struct {
	sender  Sender
	appName string
	baseURL string
	pages   map[string]*template.Template
}

type pageData struct {
	AppName    string
	BaseURL    string
	Email      string
	Code       string
	ExpiresAt  string
	LoginCount int
	Days       int
}

func NewConversionMailer(sender Sender, appName, baseURL string) (*ConversionMailer, error) {
	if sender == nil {
		return nil, fmt.Errorf("email sender is required")
	}
	pages := make(map[string]*template.Template)
	for _, name := range []string{pageLoginCode, pageWelcome, pageAccountProposal, pageConversionSuccess} {
		tpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = tpl
	}
	return &ConversionMailer{
		sender:  sender,
		appName: appName,
		baseURL: strings.TrimRight(baseURL, "/"),
		pages:   pages,
	}, nil
}

// SendLoginCode entrega el codigo recien emitido.
func (m *ConversionMailer) SendLoginCode(ctx context.Context, to, code string, expiresAt time.Time) error {
	data := m.data(to)
	data.Code = code
	data.ExpiresAt = expiresAt.UTC().Format("2006-01-02 15:04")
	text := fmt.Sprintf(
		"Your %s login code is %s.\nIt expires at %s UTC.\n",
		m.appName, code, data.ExpiresAt,
	)
	return m.send(ctx, pageLoginCode, fmt.Sprintf("Your %s login code", m.appName), text, data)
}

// SendWelcome se envia tras el primer login exitoso.
func (m *ConversionMailer) SendWelcome(ctx context.Context, to string) error {
	text := fmt.Sprintf(
		"Welcome to %s.\nYour node dashboard is ready at %s/dashboard\n",
		m.appName, m.baseURL,
	)
	return m.send(ctx, pageWelcome, "Welcome to "+m.appName, text, m.data(to))
}

// SendAccountProposal invita a crear una cuenta permanente.
func (m *ConversionMailer) SendAccountProposal(ctx context.Context, to string, loginCount, days int) error {
	data := m.data(to)
	data.LoginCount = loginCount
	data.Days = days
	text := fmt.Sprintf(
		"You have signed in %d times. Create a permanent account: %s/register\n",
		loginCount, m.baseURL,
	)
	return m.send(ctx, pageAccountProposal, "Keep your "+m.appName+" history with an account", text, data)
}

// SendConversionSuccess confirma la creacion de la cuenta.
func (m *ConversionMailer) SendConversionSuccess(ctx context.Context, to string) error {
	text := fmt.Sprintf("Your %s account is active.\n", m.appName)
	return m.send(ctx, pageConversionSuccess, "Your "+m.appName+" account is ready", text, m.data(to))
}

func (m *ConversionMailer) data(to string) pageData {
	return pageData{AppName: m.appName, BaseURL: m.baseURL, Email: to}
}

func (m *ConversionMailer) send(ctx context.Context, page, subject, text string, data pageData) error {
	var buf bytes.Buffer
	if err := m.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}
	return m.sender.Send(ctx, Message{
		To:      data.Email,
		Subject: subject,
		Text:    text,
		HTML:    buf.String(),
	})
}
