package workflow

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/acumba/internal/core/domain"
	"github.com/vietddude/acumba/internal/resilience"
)

// Sender sends single emails.
type Sender interface {
	SendSingleEmail(ctx context.Context, e domain.SingleEmail) (int, error)
}

// Template is the source of a triggered email. Fields are text/template
// bodies over a map of string variables, e.g. {{.order_number}}.
type Template struct {
	Subject   string `yaml:"subject"`
	Content   string `yaml:"content"`
	PreHeader string `yaml:"pre_header"`
}

// Rendered is a template executed against a set of variables.
type Rendered struct {
	Subject   string
	Content   string
	PreHeader string
}

type compiled struct {
	subject   *template.Template
	content   *template.Template
	preHeader *template.Template
}

// Triggers is a registry of named email templates sent in response to
// events. It is safe for concurrent use.
type Triggers struct {
	sender Sender
	log    *slog.Logger

	mu        sync.RWMutex
	templates map[string]compiled
}

// NewTriggers creates a registry preloaded with DefaultTemplates.
func NewTriggers(sender Sender, logger *slog.Logger) *Triggers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	t := &Triggers{
		sender:    sender,
		log:       logger.With("component", "triggers"),
		templates: make(map[string]compiled),
	}
	for name, tpl := range DefaultTemplates() {
		if err := t.Register(name, tpl); err != nil {
			panic(fmt.Sprintf("default trigger %s: %v", name, err))
		}
	}
	return t
}

// Register adds or replaces the template for name.
func (t *Triggers) Register(name string, tpl Template) error {
	if err := resilience.FirstError(
		resilience.ValidateRequired("trigger", name),
		resilience.ValidateRequired("subject", tpl.Subject),
		resilience.ValidateRequired("content", tpl.Content),
	); err != nil {
		return err
	}

	var c compiled
	var err error
	if c.subject, err = parse(name, "subject", tpl.Subject); err != nil {
		return err
	}
	if c.content, err = parse(name, "content", tpl.Content); err != nil {
		return err
	}
	if c.preHeader, err = parse(name, "pre_header", tpl.PreHeader); err != nil {
		return err
	}

	t.mu.Lock()
	t.templates[name] = c
	t.mu.Unlock()
	return nil
}

func parse(trigger, part, text string) (*template.Template, error) {
	tpl, err := template.New(trigger + "." + part).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, resilience.Validation(part, fmt.Sprintf("trigger %s: %v", trigger, err))
	}
	return tpl, nil
}

type triggerFile struct {
	Triggers map[string]Template `yaml:"triggers"`
}

// Load registers every template of a YAML document:
//
//	triggers:
//	  order_shipped:
//	    subject: "Order #{{.order_number}} shipped"
//	    content: "<p>Tracking: {{.tracking}}</p>"
func (t *Triggers) Load(data []byte) (int, error) {
	var f triggerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("failed to parse triggers: %w", err)
	}
	names := make([]string, 0, len(f.Triggers))
	for name := range f.Triggers {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := t.Register(name, f.Triggers[name]); err != nil {
			return 0, err
		}
	}
	return len(names), nil
}

// LoadFile reads a YAML trigger file.
func (t *Triggers) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read triggers file: %w", err)
	}
	n, err := t.Load(data)
	if err != nil {
		return 0, err
	}
	t.log.Info("Loaded trigger templates", "file", path, "count", n)
	return n, nil
}

// Names lists the registered triggers in sorted order.
func (t *Triggers) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.templates))
	for name := range t.templates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Render executes the trigger's templates with vars. A variable the
// template uses but vars lacks is a validation error.
func (t *Triggers) Render(name string, vars map[string]string) (Rendered, error) {
	t.mu.RLock()
	c, ok := t.templates[name]
	t.mu.RUnlock()
	if !ok {
		return Rendered{}, resilience.Validation("trigger", "unknown trigger type: "+name)
	}
	if vars == nil {
		vars = map[string]string{}
	}

	var r Rendered
	var err error
	if r.Subject, err = execute(c.subject, vars); err != nil {
		return Rendered{}, err
	}
	if r.Content, err = execute(c.content, vars); err != nil {
		return Rendered{}, err
	}
	if r.PreHeader, err = execute(c.preHeader, vars); err != nil {
		return Rendered{}, err
	}
	return r, nil
}

func execute(tpl *template.Template, vars map[string]string) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, vars); err != nil {
		return "", resilience.Validation("vars", err.Error())
	}
	return strings.TrimSpace(buf.String()), nil
}

// Send renders the trigger and sends it to one recipient, categorised
// under the trigger name.
func (t *Triggers) Send(ctx context.Context, name, to string, vars map[string]string) (int, error) {
	r, err := t.Render(name, vars)
	if err != nil {
		return 0, err
	}
	id, err := t.sender.SendSingleEmail(ctx, domain.SingleEmail{
		To:       to,
		Subject:  r.Subject,
		Content:  r.Content,
		Category: name,
	})
	if err != nil {
		t.log.Error("Failed to send triggered email", "trigger", name, "to", to, "error", err)
		return 0, err
	}
	t.log.Info("Triggered email sent", "trigger", name, "to", to, "id", id)
	return id, nil
}

// DefaultTemplates are registered by NewTriggers.
func DefaultTemplates() map[string]Template {
	return map[string]Template{
		"order_confirmation": {
			Subject: "Order Confirmation - Order #{{.order_number}}",
			Content: `
<h1>Order Confirmation</h1>
<p>Thank you for your order!</p>
<p><strong>Order Number:</strong> #{{.order_number}}</p>
<p><strong>Order Date:</strong> {{.order_date}}</p>
<p><strong>Total Amount:</strong> ${{.total_amount}}</p>
<h2>Order Details:</h2>
{{.order_items}}
<p>We'll send you a tracking number once your order ships.</p>`,
			PreHeader: "Your order has been confirmed and is being processed",
		},
		"password_reset": {
			Subject: "Password Reset Request",
			Content: `
<h1>Password Reset Request</h1>
<p>We received a request to reset your password.</p>
<p><a href="{{.reset_link}}">Reset Password</a></p>
<p>This link will expire in 24 hours.</p>
<p>If you didn't request this, you can safely ignore this email.</p>`,
			PreHeader: "Reset your password securely",
		},
		"welcome_back": {
			Subject: "Welcome back! We missed you",
			Content: `
<h1>Welcome Back!</h1>
<p>We noticed you haven't been around lately, and we wanted to check in.</p>
<p><a href="{{.login_link}}">Log In Now</a></p>
<p>We'd love to have you back!</p>`,
			PreHeader: "We missed you! Come back and see what's new",
		},
	}
}
