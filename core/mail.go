package core

import (
	"bytes"
	"embed"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

//go:embed templates/email/*
var templateFS embed.FS

const templateDir = "templates/email"

var (
	emailTemplates = map[string]*emailTemplate{}
	tmplOnce       sync.Once
	tmplErr        error
)

type (
	// emailTemplate pairs the text and html renditions of one message; either may be nil.
	emailTemplate struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}

	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string

		// Category groups messages of one kind (e.g. "bill_generated") at the provider.
		Category string
		// Meta is attached to the sent message so delivery events can be traced back.
		Meta map[string]string
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// Render fills TextContent and HTMLContent from BodyStr or the named template.
func (m *EmailMessage) Render() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}

	tmplOnce.Do(loadEmailTemplates)
	if tmplErr != nil {
		return errors.Wrap(tmplErr, "parsing email templates")
	}
	tmpl, ok := emailTemplates[m.TemplateName]
	if !ok {
		return errors.Errorf("unknown email template %q", m.TemplateName)
	}

	var buf bytes.Buffer
	if tmpl.text != nil && m.BodyStr == "" {
		if err := tmpl.text.Execute(&buf, m.TemplateData); err != nil {
			return errors.Wrapf(err, "rendering %s.txt", m.TemplateName)
		}
		m.TextContent = buf.String()
		buf.Reset()
	}
	if tmpl.html != nil {
		if err := tmpl.html.Execute(&buf, m.TemplateData); err != nil {
			return errors.Wrapf(err, "rendering %s.gohtml", m.TemplateName)
		}
		m.HTMLContent = buf.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

// loadEmailTemplates parses every non partial template, each on top of its _base layout.
func loadEmailTemplates() {
	entries, err := fs.ReadDir(templateFS, templateDir)
	if err != nil {
		tmplErr = err
		return
	}
	for _, de := range entries {
		fname := de.Name()
		if strings.HasPrefix(fname, "_") {
			continue
		}
		ext := path.Ext(fname)
		name := strings.TrimSuffix(fname, ext)
		tmpl, ok := emailTemplates[name]
		if !ok {
			tmpl = &emailTemplate{}
			emailTemplates[name] = tmpl
		}

		base, file := path.Join(templateDir, "_base"+ext), path.Join(templateDir, fname)
		switch ext {
		case ".txt":
			tmpl.text, err = texttmpl.ParseFS(templateFS, base, file)
			if err == nil {
				tmpl.text.Option("missingkey=error")
			}
		case ".gohtml":
			tmpl.html, err = htmltmpl.ParseFS(templateFS, base, file)
			if err == nil {
				tmpl.html.Option("missingkey=error")
			}
		}
		if err != nil {
			tmplErr = err
			return
		}
	}
}
