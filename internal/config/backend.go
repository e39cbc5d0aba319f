package config

// ConfigBackend is the persistent layer under environment overrides. Keys
// are the dotted names from the key table; values are whatever the store
// decoded (string, float64, bool) and are coerced per key type on load.
type ConfigBackend interface {
	Get(key string) (val any, ok bool)
	Set(key string, val any) error
	Delete(key string) error
}
