package domain

// SettingsDocID is the fixed identifier of the settings singleton. The
// "_local/" prefix keeps user preferences out of the replicated dataset.
const SettingsDocID = LocalDocPrefix + "user"

// Settings holds user-configurable preferences, persisted as a local-only
// document with an optimistic-concurrency revision token.
type Settings struct {
	// Rev is the revision token of the stored settings document. Empty when
	// no settings document exists yet. Carried forward on save.
	Rev string `json:"-"`

	// RemoteDB is the remote document-store endpoint URL. Empty disables
	// remote sync entirely (local-only operation).
	RemoteDB string `json:"remoteDB"`

	// Extra holds any further user-configurable key/value pairs.
	Extra map[string]any `json:"extra,omitempty"`
}

// DefaultSettings returns the settings used when no settings document has
// been stored yet.
func DefaultSettings() Settings {
	return Settings{}
}
