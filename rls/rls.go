// Package rls applies row-level-security scoping to a database handle for
// the duration of one handler invocation. Scoping rides on Postgres
// set_config with is_local=true, so the settings exist only inside the
// request's transaction and are released at its boundary no matter how the
// handler exits.
package rls

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/Togather-Foundation/conduit/database"
)

// Context is the opaque security-scoping value derived per request. Keys
// become configuration parameter names under the configured prefix
// ("app.tenant_id" for prefix "app", key "tenant_id"); values are bound as
// query parameters and may carry anything.
type Context map[string]string

// DefaultPrefix is used when an endpoint enables RLS without naming one.
const DefaultPrefix = "app"

var keyPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate reports the first malformed key in rc. Parameter names reach
// set_config as literal identifiers, so they are restricted to
// [a-z_][a-z0-9_]*.
func Validate(rc Context) error {
	for key := range rc {
		if !keyPattern.MatchString(key) {
			return fmt.Errorf("rls: invalid context key %q", key)
		}
	}
	return nil
}

// Apply sets every entry of rc as a transaction-local configuration
// parameter. The querier must belong to an open transaction; applying to a
// pool connection would leak scoping onto whichever session the pool hands
// out next.
func Apply(ctx context.Context, q database.Querier, prefix string, rc Context) error {
	if len(rc) == 0 {
		return nil
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if err := Validate(rc); err != nil {
		return err
	}

	// Deterministic order keeps query logs and tests stable.
	keys := make([]string, 0, len(rc))
	for key := range rc {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		name := prefix + "." + key
		if _, err := q.Exec(ctx, "SELECT set_config($1, $2, true)", name, rc[key]); err != nil {
			return fmt.Errorf("rls: set %s: %w", name, err)
		}
	}
	return nil
}
