package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"spms/internal/domain"
)

// Config models spms.yml.
type Config struct {
	System struct {
		Name    string `yaml:"name" json:"name"`
		BaseURL string `yaml:"base_url" json:"base_url"`
	} `yaml:"system" json:"system"`
	Notifications Notifications             `yaml:"notifications" json:"notifications"`
	Documents     map[string]DocumentPolicy `yaml:"documents" json:"documents"`
	Webhooks      []WebhookConfig           `yaml:"webhooks" json:"webhooks,omitempty"`
}

type Notifications struct {
	From string `yaml:"from" json:"from"`
	// Templates maps an action to the relay template id.
	Templates map[string]string `yaml:"templates" json:"templates"`
	Relay     RelayConfig       `yaml:"relay" json:"relay"`
}

type RelayConfig struct {
	URL            string `yaml:"url" json:"url,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
}

// DocumentPolicy holds what happens when a document of a kind passes the directorate.
type DocumentPolicy struct {
	Successor     string            `yaml:"successor" json:"successor,omitempty"`
	ProjectStatus string            `yaml:"project_status" json:"project_status,omitempty"`
	Templates     map[string]string `yaml:"templates" json:"templates,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Secret         string   `yaml:"secret" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with spms config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.System.Name) == "" {
		return fmt.Errorf("config.system.name is required")
	}
	if c.System.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.System.BaseURL); err != nil {
			return fmt.Errorf("config.system.base_url: %w", err)
		}
	}
	for action, tmpl := range c.Notifications.Templates {
		if _, err := domain.ParseAction(action); err != nil {
			return fmt.Errorf("config.notifications.templates: %w", err)
		}
		if strings.TrimSpace(tmpl) == "" {
			return fmt.Errorf("template for action %s is empty", action)
		}
	}
	if c.Notifications.Relay.URL != "" {
		if _, err := url.ParseRequestURI(c.Notifications.Relay.URL); err != nil {
			return fmt.Errorf("config.notifications.relay.url: %w", err)
		}
	}
	if c.Notifications.Relay.TimeoutSeconds < 0 {
		return fmt.Errorf("config.notifications.relay.timeout_seconds must not be negative")
	}
	for kind, policy := range c.Documents {
		k, err := domain.ParseDocumentKind(kind)
		if err != nil {
			return fmt.Errorf("config.documents: %w", err)
		}
		if policy.Successor != "" {
			succ, err := domain.ParseDocumentKind(policy.Successor)
			if err != nil {
				return fmt.Errorf("document %s successor: %w", kind, err)
			}
			if succ == k {
				return fmt.Errorf("document %s cannot succeed itself", kind)
			}
			if k == domain.KindProjectClosure {
				return fmt.Errorf("document %s closes the project and cannot have a successor", kind)
			}
		}
		if policy.ProjectStatus != "" {
			status := domain.ProjectStatus(policy.ProjectStatus)
			if !status.Valid() {
				return fmt.Errorf("document %s has invalid project_status %q", kind, policy.ProjectStatus)
			}
			if k == domain.KindProjectClosure && status != domain.ProjectClosed {
				return fmt.Errorf("document %s must set project_status closed", kind)
			}
		}
		for action, tmpl := range policy.Templates {
			if _, err := domain.ParseAction(action); err != nil {
				return fmt.Errorf("document %s templates: %w", kind, err)
			}
			if strings.TrimSpace(tmpl) == "" {
				return fmt.Errorf("document %s template for action %s is empty", kind, action)
			}
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// TemplateFor returns the relay template id for an action on a document kind.
func (c *Config) TemplateFor(kind domain.DocumentKind, action domain.Action) string {
	if c != nil {
		if p, ok := c.Documents[string(kind)]; ok {
			if t := p.Templates[string(action)]; t != "" {
				return t
			}
		}
		if t := c.Notifications.Templates[string(action)]; t != "" {
			return t
		}
	}
	return fmt.Sprintf("document_%s", action)
}

// SuccessorFor returns the document kind created when kind is fully approved.
func (c *Config) SuccessorFor(kind domain.DocumentKind) (domain.DocumentKind, bool) {
	if c == nil {
		return "", false
	}
	p, ok := c.Documents[string(kind)]
	if !ok || p.Successor == "" {
		return "", false
	}
	return domain.DocumentKind(p.Successor), true
}

// ProjectStatusOnApproval returns the status a project moves to when kind is fully approved.
func (c *Config) ProjectStatusOnApproval(kind domain.DocumentKind) (domain.ProjectStatus, bool) {
	if kind == domain.KindProjectClosure {
		return domain.ProjectClosed, true
	}
	if c == nil {
		return "", false
	}
	p, ok := c.Documents[string(kind)]
	if !ok || p.ProjectStatus == "" {
		return "", false
	}
	return domain.ProjectStatus(p.ProjectStatus), true
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "spms.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// ToYAML renders the config for export.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `system:
  name: spms
  base_url: http://127.0.0.1:8080

notifications:
  from: spms-noreply@localhost
  templates:
    approve: document_approved
    recall: document_recalled
    send_back: document_sent_back
    reopen: project_reopened
  relay:
    timeout_seconds: 10

documents:
  concept:
    successor: projectplan
    project_status: pending
  projectplan:
    project_status: active
  progressreport: {}
  studentreport: {}
  projectclosure:
    project_status: closed
    templates:
      approve: project_closed
`
