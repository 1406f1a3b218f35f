// Package deeplink encodes and decodes the "open chat with prefilled text"
// links the reports page uses to escalate a warning to a tenant.
package deeplink

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
	"github.com/israelseleshi/building-management-system-sub000/pkg/idgen"
)

// Query parameter names.
const (
	ParamTo       = "to"
	ParamPrefill  = "prefill"
	ParamContext  = "context"
	ParamAutoSend = "autosend"
	ParamToken    = "token"
)

// ContextWarning marks a link raised from a warning on the reports page.
const ContextWarning = "warning"

// Link is the decoded form of a deep link.
type Link struct {
	Target   string
	Prefill  string
	Context  string
	AutoSend bool
	// Token is the one-time auto-send token; empty when AutoSend is false.
	Token string
}

// Values encodes the link as URL query parameters.
func (l Link) Values() url.Values {
	v := url.Values{}
	v.Set(ParamTo, l.Target)
	if l.Prefill != "" {
		v.Set(ParamPrefill, l.Prefill)
	}
	if l.Context != "" {
		v.Set(ParamContext, l.Context)
	}
	if l.AutoSend {
		v.Set(ParamAutoSend, "1")
	} else {
		v.Set(ParamAutoSend, "0")
	}
	if l.Token != "" {
		v.Set(ParamToken, l.Token)
	}
	return v
}

// Query returns the encoded query string, without the leading "?".
func (l Link) Query() string {
	return l.Values().Encode()
}

// Params returns the link parameters as a flat map.
func (l Link) Params() map[string]string {
	params := make(map[string]string)
	for k, vs := range l.Values() {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return params
}

// Composer builds links. Auto-send links get a fresh token each time.
type Composer struct {
	tokens idgen.Generator
}

func NewComposer(tokens idgen.Generator) *Composer {
	return &Composer{tokens: tokens}
}

func (c *Composer) Compose(target, prefill string, autoSend bool) (Link, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return Link{}, fmt.Errorf("%w: missing target", domain.ErrInvalidLink)
	}

	link := Link{
		Target:   target,
		Prefill:  prefill,
		Context:  ContextWarning,
		AutoSend: autoSend,
	}
	if autoSend {
		token, err := c.tokens.Generate()
		if err != nil {
			return Link{}, fmt.Errorf("failed to generate link token: %w", err)
		}
		link.Token = token
	}
	return link, nil
}

// Decode reads a link from query parameters. The target is not checked for
// existence here; resolving an unknown target fails later with NotFound.
func Decode(values url.Values) (Link, error) {
	target := strings.TrimSpace(values.Get(ParamTo))
	if target == "" {
		return Link{}, fmt.Errorf("%w: missing %q parameter", domain.ErrInvalidLink, ParamTo)
	}

	autoSend, err := parseBool(values.Get(ParamAutoSend))
	if err != nil {
		return Link{}, err
	}

	return Link{
		Target:   target,
		Prefill:  values.Get(ParamPrefill),
		Context:  values.Get(ParamContext),
		AutoSend: autoSend,
		Token:    values.Get(ParamToken),
	}, nil
}

// DecodeQuery parses a raw query string, with or without a leading "?".
func DecodeQuery(raw string) (Link, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return Link{}, fmt.Errorf("%w: %v", domain.ErrInvalidLink, err)
	}
	return Decode(values)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false":
		return false, nil
	case "1", "true":
		return true, nil
	default:
		return false, fmt.Errorf("%w: bad %q value %q", domain.ErrInvalidLink, ParamAutoSend, s)
	}
}
