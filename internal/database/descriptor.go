package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Engine identifies a supported database engine.
type Engine string

const (
	Postgres  Engine = "postgres"
	SQLServer Engine = "mssql"
)

// Default ports per engine
const (
	PostgresDefaultPort  = 5432
	SQLServerDefaultPort = 1433
)

// Default timeouts applied when the descriptor does not override them
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultCommandTimeout = 30 * time.Second
)

// DefaultPort returns the engine's default server port.
func (e Engine) DefaultPort() int {
	switch e {
	case SQLServer:
		return SQLServerDefaultPort
	default:
		return PostgresDefaultPort
	}
}

// ParseEngine maps an engine name (including common aliases) to an Engine.
func ParseEngine(s string) (Engine, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql":
		return Postgres, true
	case "mssql", "sqlserver":
		return SQLServer, true
	}
	return "", false
}

// TargetDescriptor is the parsed form of a connection descriptor string.
// It is immutable once parsed; the connection manager holds the only
// references.
type TargetDescriptor struct {
	Engine         Engine
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	SSL            bool
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

// Descriptor field synonyms. Keys are normalized to lower case with
// single internal spaces before lookup.
var descriptorKeySynonyms = map[string]string{
	"type":   "type",
	"engine": "type",

	"host":        "host",
	"server":      "host",
	"data source": "host",

	"port": "port",

	"user":     "user",
	"username": "user",
	"user id":  "user",
	"uid":      "user",

	"password": "password",
	"pwd":      "password",

	"database":        "database",
	"initial catalog": "database",

	"ssl":     "ssl",
	"encrypt": "ssl",

	"connect timeout":    "connect timeout",
	"connection timeout": "connect timeout",

	"command timeout": "command timeout",
}

// HasDescriptorField reports whether the raw descriptor carries a
// segment for the canonical field name, under any accepted synonym.
func HasDescriptorField(raw, canonical string) bool {
	for _, segment := range strings.Split(raw, ";") {
		segment = strings.TrimSpace(segment)
		eq := strings.Index(segment, "=")
		if eq < 0 {
			continue
		}
		if descriptorKeySynonyms[normalizeDescriptorKey(segment[:eq])] == canonical {
			return true
		}
	}
	return false
}

// ParseDescriptor parses a key=value;-style connection descriptor into a
// TargetDescriptor. Required fields are checked in order: type, host,
// user, password; the first missing one fails with a ConfigurationError
// naming the field. Database is optional. Unrecognized keys are ignored.
func ParseDescriptor(raw string) (*TargetDescriptor, error) {
	fields := make(map[string]string)

	for _, segment := range strings.Split(raw, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		eq := strings.Index(segment, "=")
		if eq < 0 {
			return nil, NewConfigurationError("", fmt.Sprintf("malformed segment %q: expected key=value", segment))
		}

		key := normalizeDescriptorKey(segment[:eq])
		value := strings.TrimSpace(segment[eq+1:])

		canonical, known := descriptorKeySynonyms[key]
		if !known {
			continue
		}
		fields[canonical] = value
	}

	// Required fields, checked in order
	for _, field := range []string{"type", "host", "user", "password"} {
		if fields[field] == "" {
			return nil, NewConfigurationError(field, "required field is missing")
		}
	}

	engine, ok := ParseEngine(fields["type"])
	if !ok {
		return nil, NewConfigurationError("type", fmt.Sprintf("unknown engine %q (expected postgres or mssql)", fields["type"]))
	}

	desc := &TargetDescriptor{
		Engine:         engine,
		Host:           fields["host"],
		Port:           engine.DefaultPort(),
		User:           fields["user"],
		Password:       fields["password"],
		Database:       fields["database"],
		ConnectTimeout: DefaultConnectTimeout,
		CommandTimeout: DefaultCommandTimeout,
	}

	if v, ok := fields["port"]; ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, NewConfigurationError("port", fmt.Sprintf("invalid port %q", v))
		}
		desc.Port = port
	}

	if v, ok := fields["ssl"]; ok && v != "" {
		ssl, err := parseDescriptorBool(v)
		if err != nil {
			return nil, NewConfigurationError("ssl", err.Error())
		}
		desc.SSL = ssl
	}

	if v, ok := fields["connect timeout"]; ok && v != "" {
		d, err := parseDescriptorSeconds(v)
		if err != nil {
			return nil, NewConfigurationError("connect timeout", err.Error())
		}
		desc.ConnectTimeout = d
	}

	if v, ok := fields["command timeout"]; ok && v != "" {
		d, err := parseDescriptorSeconds(v)
		if err != nil {
			return nil, NewConfigurationError("command timeout", err.Error())
		}
		desc.CommandTimeout = d
	}

	return desc, nil
}

func normalizeDescriptorKey(key string) string {
	return strings.Join(strings.Fields(strings.ToLower(key)), " ")
}

func parseDescriptorBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q (expected true/false/1/0)", v)
}

func parseDescriptorSeconds(v string) (time.Duration, error) {
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("invalid timeout %q (expected seconds)", v)
	}
	return time.Duration(seconds) * time.Second, nil
}

// Redacted returns a descriptor summary safe for logs: engine, host,
// port and database only.
func (d *TargetDescriptor) Redacted() string {
	if d.Database != "" {
		return fmt.Sprintf("%s://%s:%d/%s", d.Engine, d.Host, d.Port, d.Database)
	}
	return fmt.Sprintf("%s://%s:%d", d.Engine, d.Host, d.Port)
}

// WithDatabase returns a copy of the descriptor bound to the given
// database name.
func (d *TargetDescriptor) WithDatabase(database string) *TargetDescriptor {
	copied := *d
	copied.Database = database
	return &copied
}
