package graphql

import (
	"os"
	"strconv"

	"github.com/syssam/exo/schema"
)

// ContextProvider supplies the request-scoped values context fields resolve
// from. The transport layer implements it; the core only consumes it.
type ContextProvider interface {
	// JWTClaim returns a verified claim of the request's token.
	JWTClaim(key string) (any, bool)

	// Header returns a request header value.
	Header(name string) (string, bool)

	// Cookie returns a request cookie value.
	Cookie(name string) (string, bool)

	// ClientIP returns the peer address.
	ClientIP() string
}

// BuildRequestContext resolves every context type of the system against one
// request, producing the object access expressions evaluate over, e.g.
// {"AuthContext": {"role": "ADMIN"}}. Fields without a value are absent.
func BuildRequestContext(sys *schema.System, provider ContextProvider) map[string]any {
	out := make(map[string]any, len(sys.Contexts))
	for _, ctx := range sys.Contexts {
		values := map[string]any{}
		for _, field := range ctx.Fields {
			var (
				value any
				ok    bool
			)
			switch field.Source.Kind {
			case schema.SourceJWT:
				value, ok = provider.JWTClaim(field.Source.Key)
			case schema.SourceHeader:
				value, ok = stringValue(provider.Header(field.Source.Key))
			case schema.SourceCookie:
				value, ok = stringValue(provider.Cookie(field.Source.Key))
			case schema.SourceClientIP:
				value, ok = provider.ClientIP(), true
			case schema.SourceEnv:
				value, ok = stringValue(os.LookupEnv(field.Source.Key))
			}
			if !ok {
				continue
			}
			values[field.Name] = coerceContextValue(field.Type, value)
		}
		out[ctx.Name] = values
	}
	return out
}

func stringValue(s string, ok bool) (any, bool) {
	if !ok {
		return nil, false
	}
	return s, true
}

// coerceContextValue converts transported strings into the declared field
// type, so numeric claims compare as numbers.
func coerceContextValue(typ string, value any) any {
	s, isString := value.(string)
	if !isString {
		return value
	}
	switch typ {
	case "Int":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case "Float":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case "Boolean":
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return value
}
