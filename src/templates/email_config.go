package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	textTemplate "text/template"

	"gopkg.in/yaml.v3"
)

//go:embed emails/*
var emailTemplates embed.FS

// EmailConfig holds email configuration from config.yaml
type EmailConfig struct {
	Branding struct {
		Name        string `yaml:"name"`
		Website     string `yaml:"website"`
		SecurityURL string `yaml:"security_url"`
	} `yaml:"branding"`

	Design struct {
		PrimaryColor string `yaml:"primary_color"`
		TextColor    string `yaml:"text_color"`
		MutedColor   string `yaml:"muted_color"`
		BorderColor  string `yaml:"border_color"`
	} `yaml:"design"`

	// Subjects and Alert bodies are keyed by security log action, plus rotation_due
	Subjects map[string]string `yaml:"subjects"`

	Alert struct {
		Greeting    string `yaml:"greeting"`
		KeyCreated  string `yaml:"api_key_created"`
		KeyRotated  string `yaml:"api_key_rotated"`
		KeyRevoked  string `yaml:"api_key_revoked"`
		RotationDue string `yaml:"rotation_due"`
		ButtonText  string `yaml:"button_text"`
		IgnoreText  string `yaml:"ignore_text"`
	} `yaml:"alert"`
}

// LoadEmailConfig loads email configuration from the embedded config.yaml
func LoadEmailConfig() (*EmailConfig, error) {
	data, err := emailTemplates.ReadFile("emails/config.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read email config: %w", err)
	}

	var config EmailConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse email config: %w", err)
	}

	return &config, nil
}

// SecurityAlertData holds data for the security alert templates
type SecurityAlertData struct {
	Subject    string
	Greeting   string
	Body       string
	IPAddress  string
	OccurredAt string

	// Config-based data
	BrandName   string
	SecurityURL string
	ButtonText  string
	IgnoreText  string

	// Design colors
	PrimaryColor string
	TextColor    string
	MutedColor   string
	BorderColor  string
}

// RenderSecurityAlertHTML renders the HTML alert
func RenderSecurityAlertHTML(data SecurityAlertData) (string, error) {
	tmplData, err := emailTemplates.ReadFile("emails/security-alert.html")
	if err != nil {
		return "", fmt.Errorf("failed to read security-alert.html: %w", err)
	}

	tmpl, err := template.New("security-alert").Parse(string(tmplData))
	if err != nil {
		return "", fmt.Errorf("failed to parse security-alert template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute security-alert template: %w", err)
	}

	return buf.String(), nil
}

// RenderSecurityAlertText renders the plain text alert
func RenderSecurityAlertText(data SecurityAlertData) (string, error) {
	tmplData, err := emailTemplates.ReadFile("emails/security-alert.txt")
	if err != nil {
		return "", fmt.Errorf("failed to read security-alert.txt: %w", err)
	}

	tmpl, err := textTemplate.New("security-alert-text").Parse(string(tmplData))
	if err != nil {
		return "", fmt.Errorf("failed to parse security-alert text template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute security-alert text template: %w", err)
	}

	return buf.String(), nil
}
