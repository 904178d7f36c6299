package warehouse

import (
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/aura-marketing/etl/pkg/etlerr"
)

// DefaultSSLMode is used when ConnectionConfig.SSLMode is empty.
const DefaultSSLMode = "require"

// ConnectionConfig holds warehouse credentials and session targets. All fields except SSLMode are required.
type ConnectionConfig struct {
	User      string
	Password  string
	Account   string // host[:port] of the warehouse endpoint
	Database  string
	Warehouse string // compute target; sent as application_name
	Schema    string // session schema; sent as search_path
	SSLMode   string
}

// Validate returns a ConfigurationError naming every missing parameter.
func (c ConnectionConfig) Validate() error {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"user", c.User},
		{"password", c.Password},
		{"account", c.Account},
		{"database", c.Database},
		{"warehouse", c.Warehouse},
		{"schema", c.Schema},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return etlerr.NewConfigurationError("missing connection parameters: " + strings.Join(missing, ", "))
	}
	return nil
}

// DSN returns the connection URL for the Postgres wire protocol.
func (c ConnectionConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", c.Warehouse)
	q.Set("search_path", c.Schema)
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Account,
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Redacted returns a copy safe to log.
func (c ConnectionConfig) Redacted() ConnectionConfig {
	if c.Password != "" {
		c.Password = "xxxxx"
	}
	return c
}

// DefaultTable is the raw Google Ads staging table.
var DefaultTable = TableRef{Schema: "source", Name: "raw_google_ads"}

// TableRef names a destination table.
type TableRef struct {
	Schema string
	Name   string
}

// ParseTableRef parses "schema.table" or "table".
func ParseTableRef(s string) (TableRef, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return TableRef{Name: parts[0]}, nil
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return TableRef{Schema: parts[0], Name: parts[1]}, nil
	}
	return TableRef{}, etlerr.NewConfigurationError("invalid table reference: " + s)
}

// String returns the unquoted dotted name.
func (t TableRef) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Sanitize returns the quoted identifier for use in SQL.
func (t TableRef) Sanitize() string {
	if t.Schema == "" {
		return pgx.Identifier{t.Name}.Sanitize()
	}
	return pgx.Identifier{t.Schema, t.Name}.Sanitize()
}
