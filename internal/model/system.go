package model

// VersionInfo reports the running build and the applied schema migration.
type VersionInfo struct {
	AppVersion    string `json:"appVersion"`
	SchemaVersion int64  `json:"schemaVersion"`
}
