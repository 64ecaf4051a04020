package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// TransportType selects the MCP wire transport the process listens on.
type TransportType string

const (
	TransportStdio TransportType = "stdio"
	TransportHTTP  TransportType = "http"
)

// AuthMode selects how tools/call requests are authenticated.
type AuthMode string

const (
	AuthNone  AuthMode = "none"
	AuthJWT   AuthMode = "jwt"
	AuthOAuth AuthMode = "oauth"
	AuthIBMi  AuthMode = "ibmi"
)

// Settings holds every environment-variable-and-flag-derived value from
// spec.md §6, following the teacher's setupViper pattern of SetEnvPrefix +
// AutomaticEnv + explicit defaults, generalized from the "MCPP" prefix to
// reading the spec's own (unprefixed, historically fixed) env var names
// directly via viper.BindEnv.
type Settings struct {
	TransportType TransportType `mapstructure:"transport_type"`
	HTTPPort      int           `mapstructure:"http_port"`
	HTTPHost      string        `mapstructure:"http_host"`
	AllowedOrigins []string     `mapstructure:"-"`

	AuthMode AuthMode `mapstructure:"auth_mode"`
	JWTSecret string  `mapstructure:"jwt_secret"`

	IBMiHTTPAuthEnabled       bool   `mapstructure:"ibmi_http_auth_enabled"`
	IBMiAuthAllowHTTP         bool   `mapstructure:"ibmi_auth_allow_http"`
	IBMiAuthTokenExpirySecs   int    `mapstructure:"ibmi_auth_token_expiry_seconds"`
	IBMiAuthCleanupIntervalSecs int  `mapstructure:"ibmi_auth_cleanup_interval_seconds"`
	IBMiAuthMaxConcurrentSessions int `mapstructure:"ibmi_auth_max_concurrent_sessions"`
	IBMiAuthPrivateKeyPath    string `mapstructure:"ibmi_auth_private_key_path"`
	IBMiAuthPublicKeyPath     string `mapstructure:"ibmi_auth_public_key_path"`
	IBMiAuthKeyID             string `mapstructure:"ibmi_auth_key_id"`

	DB2iHost               string `mapstructure:"db2i_host"`
	DB2iUser               string `mapstructure:"db2i_user"`
	DB2iPass               string `mapstructure:"db2i_pass"`
	DB2iPort               int    `mapstructure:"db2i_port"`
	DB2iIgnoreUnauthorized bool   `mapstructure:"db2i_ignore_unauthorized"`

	ToolsYAMLPath     string   `mapstructure:"tools_yaml_path"`
	SelectedToolsets  []string `mapstructure:"-"`

	YAMLMergeArrays           bool `mapstructure:"yaml_merge_arrays"`
	YAMLAllowDuplicateTools   bool `mapstructure:"yaml_allow_duplicate_tools"`
	YAMLAllowDuplicateSources bool `mapstructure:"yaml_allow_duplicate_sources"`
	YAMLValidateMerged        bool `mapstructure:"yaml_validate_merged"`
	YAMLAutoReload            bool `mapstructure:"yaml_auto_reload"`
}

// envBindings lists every recognized environment variable alongside its
// viper key and default, matching spec.md §6's table exactly.
var envBindings = []struct {
	key     string
	env     string
	def     interface{}
}{
	{"transport_type", "MCP_TRANSPORT_TYPE", string(TransportStdio)},
	{"http_port", "MCP_HTTP_PORT", 3010},
	{"http_host", "MCP_HTTP_HOST", "127.0.0.1"},
	{"allowed_origins", "MCP_ALLOWED_ORIGINS", ""},
	{"auth_mode", "MCP_AUTH_MODE", string(AuthNone)},
	{"jwt_secret", "MCP_JWT_SECRET", ""},
	{"ibmi_http_auth_enabled", "IBMI_HTTP_AUTH_ENABLED", false},
	{"ibmi_auth_allow_http", "IBMI_AUTH_ALLOW_HTTP", false},
	{"ibmi_auth_token_expiry_seconds", "IBMI_AUTH_TOKEN_EXPIRY_SECONDS", 3600},
	{"ibmi_auth_cleanup_interval_seconds", "IBMI_AUTH_CLEANUP_INTERVAL_SECONDS", 300},
	{"ibmi_auth_max_concurrent_sessions", "IBMI_AUTH_MAX_CONCURRENT_SESSIONS", 100},
	{"ibmi_auth_private_key_path", "IBMI_AUTH_PRIVATE_KEY_PATH", ""},
	{"ibmi_auth_public_key_path", "IBMI_AUTH_PUBLIC_KEY_PATH", ""},
	{"ibmi_auth_key_id", "IBMI_AUTH_KEY_ID", ""},
	{"db2i_host", "DB2i_HOST", ""},
	{"db2i_user", "DB2i_USER", ""},
	{"db2i_pass", "DB2i_PASS", ""},
	{"db2i_port", "DB2i_PORT", DefaultGatewayPort},
	{"db2i_ignore_unauthorized", "DB2i_IGNORE_UNAUTHORIZED", false},
	{"tools_yaml_path", "TOOLS_YAML_PATH", ""},
	{"selected_toolsets", "SELECTED_TOOLSETS", ""},
	{"yaml_merge_arrays", "YAML_MERGE_ARRAYS", true},
	{"yaml_allow_duplicate_tools", "YAML_ALLOW_DUPLICATE_TOOLS", false},
	{"yaml_allow_duplicate_sources", "YAML_ALLOW_DUPLICATE_SOURCES", false},
	{"yaml_validate_merged", "YAML_VALIDATE_MERGED", true},
	{"yaml_auto_reload", "YAML_AUTO_RELOAD", false},
}

// BindFlags wires a cobra/pflag flag set into viper so CLI flags override
// the corresponding env var, per spec.md §6 ("Flags (all override
// corresponding env vars)"). Call once against the root command's flags.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	pairs := map[string]string{
		"tools":          "tools_yaml_path",
		"toolsets":       "selected_toolsets",
		"transport":      "transport_type",
	}
	for flag, key := range pairs {
		if f := flags.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadSettings builds a *viper.Viper bound to every recognized env var and
// unmarshals it into Settings. AutomaticEnv + explicit BindEnv calls
// (rather than a blanket prefix) are used because these variable names are
// fixed by spec.md §6 and don't share a common prefix.
func LoadSettings(v *viper.Viper) (*Settings, error) {
	if v == nil {
		v = viper.New()
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, b := range envBindings {
		v.SetDefault(b.key, b.def)
		_ = v.BindEnv(b.key, b.env)
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, err
	}

	if origins := v.GetString("allowed_origins"); origins != "" {
		s.AllowedOrigins = splitCSV(origins)
	}
	if toolsets := v.GetStringSlice("selected_toolsets"); len(toolsets) > 0 {
		s.SelectedToolsets = splitCSV(strings.Join(toolsets, ","))
	}

	return s, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// StaticSource builds the process-level SourceSpec from DB2i_* settings,
// used as the implicit "static" Identity when no per-token handshake has
// occurred (spec.md §3's "static — the process-level database
// credentials").
func (s *Settings) StaticSource() SourceSpec {
	return SourceSpec{
		Name:               "default",
		Host:               s.DB2iHost,
		User:               s.DB2iUser,
		Password:           s.DB2iPass,
		Port:               s.DB2iPort,
		IgnoreUnauthorized: s.DB2iIgnoreUnauthorized,
	}
}

// MergeOptions builds C5's MergeOptions from the YAML_* env/flag overlay.
func (s *Settings) MergeOptions() MergeOptions {
	return MergeOptions{
		MergeArrays:           s.YAMLMergeArrays,
		AllowDuplicateTools:   s.YAMLAllowDuplicateTools,
		AllowDuplicateSources: s.YAMLAllowDuplicateSources,
		ValidateMerged:        s.YAMLValidateMerged,
	}
}
